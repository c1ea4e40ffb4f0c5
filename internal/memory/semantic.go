package memory

import (
	"crypto/sha512"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// SemanticMemory stores domain facts with an optional vector index -
// entities and typed relationships, grounded on semantic.py's nested
// domain/entity/relationship indexes. Persistence is delegated to a
// factStore: memFactStore for the default in-memory backend, sqlFactStore
// (uptrace/bun) when Config.Backend is "sql"/"postgres".
type SemanticMemory struct {
	store        factStore
	embeddingDim int
	enableVector bool

	mu         sync.Mutex
	tokenTotal int
	costTotal  float64
}

// semanticFact is the full record persisted per fact, beyond the plain
// Entry shape, carrying the domain/entity/relationship metadata semantic.py
// indexes on.
type semanticFact struct {
	Entry        Entry
	FactType     string
	Domain       string
	Confidence   float64
	Source       string
	Entities     []string
	Relationships []relationship
	Embedding    []float64
}

type relationship struct {
	Type     string  `json:"type"`
	Target   string  `json:"target"`
	Strength float64 `json:"strength"`
}

// factStore is the persistence boundary SemanticMemory delegates to.
type factStore interface {
	put(fact *semanticFact) error
	get(key string) (*semanticFact, bool)
	delete(key string) bool
	clear(pattern string) int
	listKeys(pattern string, limit int) []string
	all() []*semanticFact
}

func NewSemanticMemory(cfg Config, db bun.IDB) *SemanticMemory {
	dim := cfg.EmbeddingDim
	if dim <= 0 {
		dim = 384
	}
	var store factStore
	if db != nil && (cfg.Backend == "sql" || cfg.Backend == "postgres") {
		store = newSQLFactStore(db)
	} else {
		store = newMemFactStore()
	}
	return &SemanticMemory{store: store, embeddingDim: dim, enableVector: cfg.EnableVectorSearch}
}

func (m *SemanticMemory) Guarantees() map[Guarantee]bool {
	g := map[Guarantee]bool{GuaranteeDurable: true}
	if m.enableVector {
		g[GuaranteeVectorised] = true
	}
	return g
}

func (m *SemanticMemory) Store(key string, content interface{}, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	fact := &semanticFact{
		Entry: Entry{
			Key:       key,
			Content:   content,
			Metadata:  metadata,
			Timestamp: time.Now(),
		},
		FactType:   stringMeta(metadata, "type", "general"),
		Domain:     stringMeta(metadata, "domain", "general"),
		Confidence: floatMeta(metadata, "confidence", 1.0),
		Source:     stringMeta(metadata, "source", "system"),
		Entities:   stringSliceMeta(metadata, "entities"),
	}
	if rels, ok := metadata["relationships"].([]interface{}); ok {
		for _, r := range rels {
			rm, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			target, _ := rm["target"].(string)
			relType, _ := rm["type"].(string)
			if target == "" || relType == "" {
				continue
			}
			fact.Relationships = append(fact.Relationships, relationship{
				Type: relType, Target: target, Strength: floatMeta(rm, "strength", 1.0),
			})
		}
	}

	if m.enableVector {
		embedding, err := generateEmbedding(content, m.embeddingDim)
		if err != nil {
			return err
		}
		fact.Embedding = embedding
	}

	tokens := estimateTokens(content)
	cost := estimateCost(tokens)
	fact.Entry.TokenUsage = tokens
	fact.Entry.CostUSD = cost

	if err := m.store.put(fact); err != nil {
		return apperrors.New(apperrors.KindInternal, "semantic.store", err)
	}

	m.mu.Lock()
	m.tokenTotal += tokens
	m.costTotal += cost
	m.mu.Unlock()
	return nil
}

// generateEmbedding deterministically derives a fixed-length unit vector
// from content, grounded on semantic.py's _generate_embedding (a SHA-384
// hash stretched/normalized into floats) - a stand-in for a real embedding
// model, kept deterministic so tests don't depend on an external provider.
func generateEmbedding(content interface{}, dim int) ([]float64, error) {
	var payload []byte
	switch v := content.(type) {
	case string:
		payload = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, apperrors.New(apperrors.KindInternal, "semantic.embed", err)
		}
		payload = b
	}

	vec := make([]float64, dim)
	sum := sha512.Sum384(payload)
	for i := 0; i < dim; i++ {
		vec[i] = float64(sum[i%len(sum)]) / 255.0
		// Perturb repeated cycles so the vector isn't a flat tile when
		// dim exceeds the 48-byte digest.
		if i >= len(sum) {
			vec[i] = vec[i] * float64((i/len(sum))+1) / float64((i/len(sum))+2)
		}
	}
	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (m *SemanticMemory) Retrieve(key string) (*Entry, bool) {
	fact, ok := m.store.get(key)
	if !ok {
		return nil, false
	}
	return &fact.Entry, true
}

func (m *SemanticMemory) Search(query string, limit int, filters map[string]interface{}) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	if m.enableVector && query != "" {
		return m.vectorSearch(query, limit, filters)
	}

	var results []*Entry
	for _, fact := range m.store.all() {
		if !containsFold(contentString(fact.Entry.Content), query) {
			continue
		}
		if !matchesFilters(fact.Entry.Metadata, filters) {
			continue
		}
		results = append(results, &fact.Entry)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func (m *SemanticMemory) vectorSearch(query string, limit int, filters map[string]interface{}) ([]*Entry, error) {
	queryVec, err := generateEmbedding(query, m.embeddingDim)
	if err != nil {
		return nil, err
	}

	type scored struct {
		entry *Entry
		score float64
	}
	var candidates []scored
	for _, fact := range m.store.all() {
		if len(fact.Embedding) == 0 {
			continue
		}
		if len(fact.Embedding) != m.embeddingDim {
			return nil, apperrors.New(apperrors.KindDimensionMismatch, "semantic.vector_search",
				dimensionError{expected: m.embeddingDim, got: len(fact.Embedding)})
		}
		if !matchesFilters(fact.Entry.Metadata, filters) {
			continue
		}
		candidates = append(candidates, scored{entry: &fact.Entry, score: cosineSimilarity(queryVec, fact.Embedding)})
	}
	sortScoredDesc(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	results := make([]*Entry, len(candidates))
	for i, c := range candidates {
		results[i] = c.entry
	}
	return results, nil
}

type dimensionError struct {
	expected int
	got      int
}

func (e dimensionError) Error() string {
	return "embedding dimension mismatch: expected " + itoa(e.expected) + ", got " + itoa(e.got)
}

func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

func sortScoredDesc(s []struct {
	entry *Entry
	score float64
}) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score > s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (m *SemanticMemory) Delete(key string) bool {
	return m.store.delete(key)
}

func (m *SemanticMemory) Clear(pattern string) int {
	return m.store.clear(pattern)
}

func (m *SemanticMemory) ListKeys(pattern string, limit int) []string {
	return m.store.listKeys(pattern, limit)
}

func (m *SemanticMemory) UsageStats() UsageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	backend := "memory"
	if _, ok := m.store.(*sqlFactStore); ok {
		backend = "sql"
	}
	return UsageStats{
		EntryCount: len(m.store.all()),
		Backend:    backend,
		Tokens:     m.tokenTotal,
		CostUSD:    m.costTotal,
	}
}

// UpsertEmbedding stores an explicit embedding for an existing fact,
// enforcing dimensional safety on upsert per spec.md §4.5/§7.
func (m *SemanticMemory) UpsertEmbedding(key string, vector []float64) error {
	if len(vector) != m.embeddingDim {
		return apperrors.New(apperrors.KindDimensionMismatch, "semantic.upsert_embedding",
			dimensionError{expected: m.embeddingDim, got: len(vector)})
	}
	fact, ok := m.store.get(key)
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "semantic.upsert_embedding", errNotFound{key})
	}
	fact.Embedding = vector
	return m.store.put(fact)
}

type errNotFound struct{ key string }

func (e errNotFound) Error() string { return "fact not found: " + e.key }

// FindRelated returns the targets of relationships of the given type rooted
// at entity, per semantic.py's find_related/get_relationships_by_type.
func (m *SemanticMemory) FindRelated(entity, relType string) []string {
	var targets []string
	for _, fact := range m.store.all() {
		for _, e := range fact.Entities {
			if e != entity {
				continue
			}
			for _, rel := range fact.Relationships {
				if relType == "" || rel.Type == relType {
					targets = append(targets, rel.Target)
				}
			}
		}
	}
	return targets
}

// GetEntitiesByDomain mirrors semantic.py's domain->entity index query.
func (m *SemanticMemory) GetEntitiesByDomain(domain string) []string {
	seen := map[string]bool{}
	var entities []string
	for _, fact := range m.store.all() {
		if fact.Domain != domain {
			continue
		}
		for _, e := range fact.Entities {
			if !seen[e] {
				seen[e] = true
				entities = append(entities, e)
			}
		}
	}
	return entities
}

func stringMeta(m map[string]interface{}, key, def string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return def
}

func floatMeta(m map[string]interface{}, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return def
	}
}

func stringSliceMeta(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
