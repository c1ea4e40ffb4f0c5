package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

type memProcStore struct {
	mu      sync.RWMutex
	records map[string]*procRecord
}

func newMemProcStore() *memProcStore {
	return &memProcStore{records: make(map[string]*procRecord)}
}

func (s *memProcStore) put(rec *procRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Entry.Key] = rec
	return nil
}

func (s *memProcStore) get(key string) (*procRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	return r, ok
}

func (s *memProcStore) delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return false
	}
	delete(s.records, key)
	return true
}

func (s *memProcStore) clear(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern == "" {
		n := len(s.records)
		s.records = make(map[string]*procRecord)
		return n
	}
	n := 0
	for k := range s.records {
		if hasPrefix(k, pattern) {
			delete(s.records, k)
			n++
		}
	}
	return n
}

func (s *memProcStore) listKeys(pattern string, limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var keys []string
	for k := range s.records {
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

func (s *memProcStore) all() []*procRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*procRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// procedureModel is the uptrace/bun row shape for a stored Procedure.
type procedureModel struct {
	bun.BaseModel `bun:"table:memory_procedures,alias:p"`

	Key              string    `bun:"key,pk"`
	Name             string    `bun:"name,notnull"`
	Category         string    `bun:"category,notnull"`
	StepsJSON        string    `bun:"steps_json,notnull"`
	ApplicableJSON   string    `bun:"applicable_json"`
	SuccessRate      float64   `bun:"success_rate,notnull,default:0.5"`
	UsageCount       int       `bun:"usage_count,notnull,default:0"`
	MetadataJSON     string    `bun:"metadata_json,notnull"`
	Timestamp        time.Time `bun:"timestamp,notnull"`
	TokenUsage       int       `bun:"token_usage,notnull,default:0"`
	CostUSD          float64   `bun:"cost_usd,notnull,default:0"`
}

type sqlProcStore struct {
	db bun.IDB
}

func newSQLProcStore(db bun.IDB) *sqlProcStore {
	return &sqlProcStore{db: db}
}

func toProcModel(rec *procRecord) (*procedureModel, error) {
	steps, err := json.Marshal(rec.Procedure.Steps)
	if err != nil {
		return nil, err
	}
	applicable, err := json.Marshal(rec.Procedure.ApplicableWhen)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(rec.Entry.Metadata)
	if err != nil {
		return nil, err
	}
	return &procedureModel{
		Key:            rec.Entry.Key,
		Name:           rec.Procedure.Name,
		Category:       rec.Procedure.Category,
		StepsJSON:      string(steps),
		ApplicableJSON: string(applicable),
		SuccessRate:    rec.Procedure.SuccessRate,
		UsageCount:     rec.Procedure.UsageCount,
		MetadataJSON:   string(metadata),
		Timestamp:      rec.Entry.Timestamp,
		TokenUsage:     rec.Entry.TokenUsage,
		CostUSD:        rec.Entry.CostUSD,
	}, nil
}

func fromProcModel(row *procedureModel) (*procRecord, error) {
	rec := &procRecord{
		Entry: Entry{
			Key:        row.Key,
			Timestamp:  row.Timestamp,
			TokenUsage: row.TokenUsage,
			CostUSD:    row.CostUSD,
		},
		Procedure: Procedure{
			Name:        row.Name,
			Category:    row.Category,
			SuccessRate: row.SuccessRate,
			UsageCount:  row.UsageCount,
		},
	}
	if row.StepsJSON != "" {
		_ = json.Unmarshal([]byte(row.StepsJSON), &rec.Procedure.Steps)
	}
	if row.ApplicableJSON != "" {
		_ = json.Unmarshal([]byte(row.ApplicableJSON), &rec.Procedure.ApplicableWhen)
	}
	if row.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(row.MetadataJSON), &rec.Entry.Metadata)
	}
	rec.Entry.Content = rec.Procedure
	return rec, nil
}

func (s *sqlProcStore) put(rec *procRecord) error {
	row, err := toProcModel(rec)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("success_rate = EXCLUDED.success_rate").
		Set("usage_count = EXCLUDED.usage_count").
		Set("steps_json = EXCLUDED.steps_json").
		Set("applicable_json = EXCLUDED.applicable_json").
		Exec(context.Background())
	return err
}

func (s *sqlProcStore) get(key string) (*procRecord, bool) {
	row := new(procedureModel)
	if err := s.db.NewSelect().Model(row).Where("key = ?", key).Scan(context.Background()); err != nil {
		return nil, false
	}
	rec, err := fromProcModel(row)
	if err != nil {
		return nil, false
	}
	return rec, true
}

func (s *sqlProcStore) delete(key string) bool {
	res, err := s.db.NewDelete().Model((*procedureModel)(nil)).Where("key = ?", key).Exec(context.Background())
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *sqlProcStore) clear(pattern string) int {
	q := s.db.NewDelete().Model((*procedureModel)(nil))
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

func (s *sqlProcStore) listKeys(pattern string, limit int) []string {
	if limit <= 0 {
		limit = 100
	}
	var keys []string
	q := s.db.NewSelect().Model((*procedureModel)(nil)).Column("key").Limit(limit)
	if pattern != "" {
		q = q.Where("key LIKE ?", pattern+"%")
	}
	_ = q.Scan(context.Background(), &keys)
	return keys
}

func (s *sqlProcStore) all() []*procRecord {
	var rows []*procedureModel
	if err := s.db.NewSelect().Model(&rows).Scan(context.Background()); err != nil {
		return nil
	}
	recs := make([]*procRecord, 0, len(rows))
	for _, row := range rows {
		if rec, err := fromProcModel(row); err == nil {
			recs = append(recs, rec)
		}
	}
	return recs
}
