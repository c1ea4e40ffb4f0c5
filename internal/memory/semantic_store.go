package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

// memFactStore is the default in-process factStore backend.
type memFactStore struct {
	mu    sync.RWMutex
	facts map[string]*semanticFact
}

func newMemFactStore() *memFactStore {
	return &memFactStore{facts: make(map[string]*semanticFact)}
}

func (s *memFactStore) put(fact *semanticFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[fact.Entry.Key] = fact
	return nil
}

func (s *memFactStore) get(key string) (*semanticFact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[key]
	return f, ok
}

func (s *memFactStore) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.facts[key]; !ok {
		return false
	}
	delete(s.facts, key)
	return true
}

func (s *memFactStore) clear(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern == "" {
		n := len(s.facts)
		s.facts = make(map[string]*semanticFact)
		return n
	}
	n := 0
	for k := range s.facts {
		if hasPrefix(k, pattern) {
			delete(s.facts, k)
			n++
		}
	}
	return n
}

func (s *memFactStore) listKeys(pattern string, limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var keys []string
	for k := range s.facts {
		if pattern != "" && !hasPrefix(k, pattern) {
			continue
		}
		keys = append(keys, k)
		if len(keys) >= limit {
			break
		}
	}
	return keys
}

func (s *memFactStore) all() []*semanticFact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*semanticFact, 0, len(s.facts))
	for _, f := range s.facts {
		out = append(out, f)
	}
	return out
}

// factModel is the uptrace/bun row shape persisting a semanticFact,
// grounded on the teacher's storage/models package's bun-tagged struct
// style (service_key_model.go et al.) generalized from mbflow's
// domain tables to this domain's fact/entity/relationship/embedding shape.
type factModel struct {
	bun.BaseModel `bun:"table:memory_facts,alias:f"`

	Key           string    `bun:"key,pk"`
	ContentJSON   string    `bun:"content_json,notnull"`
	MetadataJSON  string    `bun:"metadata_json,notnull"`
	FactType      string    `bun:"fact_type,notnull"`
	Domain        string    `bun:"domain,notnull"`
	Confidence    float64   `bun:"confidence,notnull"`
	Source        string    `bun:"source,notnull"`
	EntitiesJSON  string    `bun:"entities_json,notnull"`
	RelationsJSON string    `bun:"relations_json,notnull"`
	EmbeddingJSON string    `bun:"embedding_json"`
	Timestamp     time.Time `bun:"timestamp,notnull"`
	AccessCount   int       `bun:"access_count,notnull,default:0"`
	Importance    float64   `bun:"importance,notnull,default:1"`
	TokenUsage    int       `bun:"token_usage,notnull,default:0"`
	CostUSD       float64   `bun:"cost_usd,notnull,default:0"`
}

// sqlFactStore persists facts through uptrace/bun against any SQL database
// bun supports (Postgres in production, sqlmock in tests).
type sqlFactStore struct {
	db bun.IDB
}

func newSQLFactStore(db bun.IDB) *sqlFactStore {
	return &sqlFactStore{db: db}
}

func toFactModel(fact *semanticFact) (*factModel, error) {
	content, err := json.Marshal(fact.Entry.Content)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(fact.Entry.Metadata)
	if err != nil {
		return nil, err
	}
	entities, err := json.Marshal(fact.Entities)
	if err != nil {
		return nil, err
	}
	relations, err := json.Marshal(fact.Relationships)
	if err != nil {
		return nil, err
	}
	embedding, err := json.Marshal(fact.Embedding)
	if err != nil {
		return nil, err
	}
	return &factModel{
		Key:           fact.Entry.Key,
		ContentJSON:   string(content),
		MetadataJSON:  string(metadata),
		FactType:      fact.FactType,
		Domain:        fact.Domain,
		Confidence:    fact.Confidence,
		Source:        fact.Source,
		EntitiesJSON:  string(entities),
		RelationsJSON: string(relations),
		EmbeddingJSON: string(embedding),
		Timestamp:     fact.Entry.Timestamp,
		AccessCount:   fact.Entry.AccessCount,
		Importance:    fact.Entry.Importance,
		TokenUsage:    fact.Entry.TokenUsage,
		CostUSD:       fact.Entry.CostUSD,
	}, nil
}

func fromFactModel(row *factModel) (*semanticFact, error) {
	fact := &semanticFact{
		FactType:   row.FactType,
		Domain:     row.Domain,
		Confidence: row.Confidence,
		Source:     row.Source,
		Entry: Entry{
			Key:         row.Key,
			Timestamp:   row.Timestamp,
			AccessCount: row.AccessCount,
			Importance:  row.Importance,
			TokenUsage:  row.TokenUsage,
			CostUSD:     row.CostUSD,
		},
	}
	if err := json.Unmarshal([]byte(row.ContentJSON), &fact.Entry.Content); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(row.MetadataJSON), &fact.Entry.Metadata); err != nil {
		return nil, err
	}
	if row.EntitiesJSON != "" {
		_ = json.Unmarshal([]byte(row.EntitiesJSON), &fact.Entities)
	}
	if row.RelationsJSON != "" {
		_ = json.Unmarshal([]byte(row.RelationsJSON), &fact.Relationships)
	}
	if row.EmbeddingJSON != "" {
		_ = json.Unmarshal([]byte(row.EmbeddingJSON), &fact.Embedding)
	}
	return fact, nil
}

func (s *sqlFactStore) put(fact *semanticFact) error {
	row, err := toFactModel(fact)
	if err != nil {
		return err
	}
	ctx := context.Background()
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("content_json = EXCLUDED.content_json").
		Set("metadata_json = EXCLUDED.metadata_json").
		Set("entities_json = EXCLUDED.entities_json").
		Set("relations_json = EXCLUDED.relations_json").
		Set("embedding_json = EXCLUDED.embedding_json").
		Exec(ctx)
	return err
}

func (s *sqlFactStore) get(key string) (*semanticFact, bool) {
	row := new(factModel)
	err := s.db.NewSelect().Model(row).Where("key = ?", key).Scan(context.Background())
	if err != nil {
		return nil, false
	}
	fact, err := fromFactModel(row)
	if err != nil {
		return nil, false
	}
	return fact, true
}

func (s *sqlFactStore) delete(key string) bool {
	res, err := s.db.NewDelete().Model((*factModel)(nil)).Where("key = ?", key).Exec(context.Background())
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *sqlFactStore) clear(pattern string) int {
	q := s.db.NewDelete().Model((*factModel)(nil))
	if pattern != "" {
		q = q.Where("key LIKE ?", pattern+"%")
	} else {
		q = q.Where("1 = 1")
	}
	res, err := q.Exec(context.Background())
	if err != nil {
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

func (s *sqlFactStore) listKeys(pattern string, limit int) []string {
	if limit <= 0 {
		limit = 100
	}
	var keys []string
	q := s.db.NewSelect().Model((*factModel)(nil)).Column("key").Limit(limit)
	if pattern != "" {
		q = q.Where("key LIKE ?", pattern+"%")
	}
	_ = q.Scan(context.Background(), &keys)
	return keys
}

func (s *sqlFactStore) all() []*semanticFact {
	var rows []*factModel
	if err := s.db.NewSelect().Model(&rows).Scan(context.Background()); err != nil {
		return nil
	}
	facts := make([]*semanticFact, 0, len(rows))
	for _, row := range rows {
		if fact, err := fromFactModel(row); err == nil {
			facts = append(facts, fact)
		}
	}
	return facts
}
