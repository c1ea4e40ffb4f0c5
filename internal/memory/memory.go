// Package memory implements C7: the unified agent memory substrate - four
// typed memory kinds (working, episodic, semantic, procedural) behind one
// facade, each with its own durability guarantee, pluggable storage backend,
// and token/cost accounting. Grounded on
// _examples/original_source/src/ice_core/memory/{memory_base_protocol,unified}.py,
// reworked from Python's async ABC + pydantic models into Go interfaces and
// plain structs.
package memory

import (
	"strings"
	"time"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// Guarantee is a durability property a backend promises, per spec.md §4.5's
// "ephemeral, ttl, durable, vectorised".
type Guarantee string

const (
	GuaranteeEphemeral  Guarantee = "ephemeral"
	GuaranteeTTL        Guarantee = "ttl"
	GuaranteeDurable    Guarantee = "durable"
	GuaranteeVectorised Guarantee = "vectorised"
)

// Entry is a single stored memory item, mirroring MemoryEntry from
// memory_base_protocol.py's field set.
type Entry struct {
	Key         string                 `json:"key"`
	Content     interface{}            `json:"content"`
	Metadata    map[string]interface{} `json:"metadata"`
	Timestamp   time.Time              `json:"timestamp"`
	AccessCount int                    `json:"access_count"`
	Importance  float64                `json:"importance"`
	TokenUsage  int                    `json:"token_usage"`
	CostUSD     float64                `json:"cost_usd"`
}

// Config configures a single memory backend, mirroring MemoryConfig.
type Config struct {
	Backend            string
	TTL                time.Duration
	MaxEntries         int
	EnableVectorSearch bool
	EmbeddingDim       int
	Guarantee          Guarantee
}

// DefaultConfig returns the zero-value-safe defaults used when a caller
// constructs a memory without an explicit Config.
func DefaultConfig() Config {
	return Config{
		Backend:      "memory",
		TTL:          time.Hour,
		MaxEntries:   1000,
		EmbeddingDim: 384,
		Guarantee:    GuaranteeDurable,
	}
}

// UsageStats is returned by Memory.UsageStats and aggregated by
// UnifiedMemory.GetUsageStats.
type UsageStats struct {
	EntryCount int     `json:"entry_count"`
	Backend    string  `json:"backend"`
	Tokens     int     `json:"tokens"`
	CostUSD    float64 `json:"cost_usd"`
}

// Memory is the common protocol every memory kind implements, translating
// BaseMemory's abstract methods into a Go interface.
type Memory interface {
	Store(key string, content interface{}, metadata map[string]interface{}) error
	Retrieve(key string) (*Entry, bool)
	Search(query string, limit int, filters map[string]interface{}) ([]*Entry, error)
	Delete(key string) bool
	Clear(pattern string) int
	ListKeys(pattern string, limit int) []string
	Guarantees() map[Guarantee]bool
	UsageStats() UsageStats
}

// ValidateGuarantee enforces invariant #5: "a memory's declared guarantee set
// must be a superset of the configuration's requested guarantee."
func ValidateGuarantee(m Memory, requested Guarantee) error {
	if requested == "" {
		return nil
	}
	offered := m.Guarantees()
	if !offered[requested] {
		return apperrors.New(apperrors.KindValidation, "memory.validate_guarantee",
			&guaranteeError{requested: requested, offered: offered})
	}
	return nil
}

type guaranteeError struct {
	requested Guarantee
	offered   map[Guarantee]bool
}

func (e *guaranteeError) Error() string {
	names := make([]string, 0, len(e.offered))
	for g := range e.offered {
		names = append(names, string(g))
	}
	return "backend offers [" + strings.Join(names, ", ") + "] but request requires " + string(e.requested)
}

// estimateTokens is a provider-agnostic token estimator. It is a heuristic,
// not a real tokenizer - grounded on working_memory_store.py's own fallback
// path ("token_usage = len(content) // 4") used whenever the primary
// tokenizer is unavailable; here it's the only path, since no tokenizer
// library is part of this stack.
func estimateTokens(content interface{}) int {
	s, ok := content.(string)
	if !ok {
		return 0
	}
	if len(s) == 0 {
		return 0
	}
	return len(s) / 4
}

// costPerThousandTokens is a flat, provider-agnostic rate used purely for
// relative cost accounting across memory entries - not a billing source of
// truth.
const costPerThousandTokens = 0.002

func estimateCost(tokens int) float64 {
	return float64(tokens) / 1000.0 * costPerThousandTokens
}

func matchesFilters(metadata map[string]interface{}, filters map[string]interface{}) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
