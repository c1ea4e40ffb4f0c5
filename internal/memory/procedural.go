package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// Procedure is a reusable action pattern - steps plus applicability
// conditions and a rolling success rate - grounded on
// procedural_memory_store.py's procedure content shape.
type Procedure struct {
	Name           string                 `json:"name"`
	Category       string                 `json:"category"`
	Steps          []interface{}          `json:"steps"`
	ApplicableWhen map[string]interface{} `json:"applicable_when,omitempty"`
	SuccessRate    float64                `json:"success_rate"`
	UsageCount     int                    `json:"usage_count"`
}

// ProceduralMemory stores action patterns with success_rate/usage_count and
// applicability filters, supporting composite procedures and learning from
// execution outcomes, per spec.md §4.5.
type ProceduralMemory struct {
	store procStore

	mu         sync.Mutex
	tokenTotal int
	costTotal  float64
}

type procRecord struct {
	Entry     Entry
	Procedure Procedure
}

// procStore is the persistence boundary ProceduralMemory delegates to.
type procStore interface {
	put(rec *procRecord) error
	get(key string) (*procRecord, bool)
	delete(key string) bool
	clear(pattern string) int
	listKeys(pattern string, limit int) []string
	all() []*procRecord
}

func NewProceduralMemory(cfg Config, db bun.IDB) *ProceduralMemory {
	var store procStore
	if db != nil && (cfg.Backend == "sql" || cfg.Backend == "postgres") {
		store = newSQLProcStore(db)
	} else {
		store = newMemProcStore()
	}
	return &ProceduralMemory{store: store}
}

func (m *ProceduralMemory) Guarantees() map[Guarantee]bool {
	return map[Guarantee]bool{GuaranteeDurable: true}
}

func (m *ProceduralMemory) Store(key string, content interface{}, metadata map[string]interface{}) error {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	proc := Procedure{
		Name:        stringMeta(metadata, "name", key),
		Category:    stringMeta(metadata, "category", "general"),
		SuccessRate: floatMeta(metadata, "success_rate", 0.5),
	}
	if p, ok := content.(Procedure); ok {
		proc = p
	} else if steps, ok := content.([]interface{}); ok {
		proc.Steps = steps
	}
	if cond, ok := metadata["applicable_when"].(map[string]interface{}); ok {
		proc.ApplicableWhen = cond
	}

	tokens := estimateTokens(content)
	cost := estimateCost(tokens)
	rec := &procRecord{
		Entry: Entry{
			Key:        key,
			Content:    content,
			Metadata:   metadata,
			Timestamp:  time.Now(),
			TokenUsage: tokens,
			CostUSD:    cost,
		},
		Procedure: proc,
	}
	if err := m.store.put(rec); err != nil {
		return apperrors.New(apperrors.KindInternal, "procedural.store", err)
	}

	m.mu.Lock()
	m.tokenTotal += tokens
	m.costTotal += cost
	m.mu.Unlock()
	return nil
}

func (m *ProceduralMemory) Retrieve(key string) (*Entry, bool) {
	rec, ok := m.store.get(key)
	if !ok {
		return nil, false
	}
	return &rec.Entry, true
}

func (m *ProceduralMemory) Search(query string, limit int, filters map[string]interface{}) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	minSuccess, hasMin := filters["min_success_rate"].(float64)

	var results []*procRecord
	for _, rec := range m.store.all() {
		if !containsFold(rec.Procedure.Name, query) && !containsFold(contentString(rec.Entry.Content), query) {
			continue
		}
		if category, ok := filters["category"].(string); ok && rec.Procedure.Category != category {
			continue
		}
		if hasMin && rec.Procedure.SuccessRate < minSuccess {
			continue
		}
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Procedure.SuccessRate > results[j].Procedure.SuccessRate })
	if len(results) > limit {
		results = results[:limit]
	}
	entries := make([]*Entry, len(results))
	for i, r := range results {
		entries[i] = &r.Entry
	}
	return entries, nil
}

func (m *ProceduralMemory) Delete(key string) bool { return m.store.delete(key) }
func (m *ProceduralMemory) Clear(pattern string) int { return m.store.clear(pattern) }
func (m *ProceduralMemory) ListKeys(pattern string, limit int) []string {
	return m.store.listKeys(pattern, limit)
}

func (m *ProceduralMemory) UsageStats() UsageStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	backend := "memory"
	if _, ok := m.store.(*sqlProcStore); ok {
		backend = "sql"
	}
	return UsageStats{
		EntryCount: len(m.store.all()),
		Backend:    backend,
		Tokens:     m.tokenTotal,
		CostUSD:    m.costTotal,
	}
}

// FindApplicableProcedures returns procedures whose ApplicableWhen
// conditions are satisfied by context, sorted by success rate descending -
// translating procedural_memory_store.py's find_applicable_procedures.
func (m *ProceduralMemory) FindApplicableProcedures(context map[string]interface{}) []*Procedure {
	var applicable []*procRecord
	for _, rec := range m.store.all() {
		if isApplicable(rec.Procedure, context) {
			applicable = append(applicable, rec)
		}
	}
	sort.Slice(applicable, func(i, j int) bool {
		return applicable[i].Procedure.SuccessRate > applicable[j].Procedure.SuccessRate
	})
	out := make([]*Procedure, len(applicable))
	for i, r := range applicable {
		out[i] = &r.Procedure
	}
	return out
}

func isApplicable(proc Procedure, context map[string]interface{}) bool {
	if len(proc.ApplicableWhen) == 0 {
		return true
	}
	for k, want := range proc.ApplicableWhen {
		if got, ok := context[k]; !ok || got != want {
			return false
		}
	}
	return true
}

// RecordExecution updates a procedure's rolling success_rate and usage_count
// after an execution outcome, per procedural_memory_store.py's
// record_execution - a simple running-average weighted by prior usage.
func (m *ProceduralMemory) RecordExecution(key string, success bool) error {
	rec, ok := m.store.get(key)
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "procedural.record_execution", errNotFound{key})
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	weightTotal := float64(rec.Procedure.UsageCount) + 1
	weightedSum := rec.Procedure.SuccessRate*float64(rec.Procedure.UsageCount) + outcome
	rec.Procedure.SuccessRate = weightedSum / weightTotal
	rec.Procedure.UsageCount++
	return m.store.put(rec)
}

// CreateCompositeProcedure concatenates the steps of several existing
// procedures into a new one, per create_composite_procedure.
func (m *ProceduralMemory) CreateCompositeProcedure(componentKeys []string, compositeKey, name string) error {
	var steps []interface{}
	for _, key := range componentKeys {
		rec, ok := m.store.get(key)
		if !ok {
			continue
		}
		steps = append(steps, rec.Procedure.Steps...)
	}
	composite := Procedure{
		Name:        name,
		Category:    "composite",
		Steps:       steps,
		SuccessRate: 0.5,
	}
	rec := &procRecord{
		Entry: Entry{
			Key:       compositeKey,
			Content:   composite,
			Metadata:  map[string]interface{}{"type": "composite", "category": "composite"},
			Timestamp: time.Now(),
		},
		Procedure: composite,
	}
	return m.store.put(rec)
}
