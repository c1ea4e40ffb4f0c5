package memory

import (
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// Kind names the four memory types a UnifiedMemory routes between.
type Kind string

const (
	KindWorking    Kind = "working"
	KindEpisodic   Kind = "episodic"
	KindSemantic   Kind = "semantic"
	KindProcedural Kind = "procedural"
)

// UnifiedConfig configures a UnifiedMemory, mirroring unified.py's
// UnifiedMemoryConfig (smart per-kind defaults, explicit overrides).
type UnifiedConfig struct {
	Backend            string
	EnableVectorSearch bool
	EmbeddingDim       int

	EnableWorking    bool
	EnableEpisodic   bool
	EnableSemantic   bool
	EnableProcedural bool

	Domains []string

	WorkingConfig    *Config
	EpisodicConfig   *Config
	SemanticConfig   *Config
	ProceduralConfig *Config
}

// DefaultUnifiedConfig returns unified.py's "all enabled, sensible defaults"
// configuration.
func DefaultUnifiedConfig() UnifiedConfig {
	return UnifiedConfig{
		Backend:            "redis",
		EnableVectorSearch: true,
		EnableWorking:      true,
		EnableEpisodic:     true,
		EnableSemantic:     true,
		EnableProcedural:   true,
		Domains:            []string{"general"},
		EmbeddingDim:       384,
	}
}

// UnifiedMemory is the C7 facade: one handle over working/episodic/
// semantic/procedural memory, routing by key prefix or explicit kind, per
// spec.md §4.5 and unified.py's UnifiedMemory.
type UnifiedMemory struct {
	cfg      UnifiedConfig
	memories map[Kind]Memory

	working    *WorkingMemory
	episodic   *EpisodicMemory
	semantic   *SemanticMemory
	procedural *ProceduralMemory
}

// NewUnifiedMemory constructs a UnifiedMemory. redisClient/db may be nil if
// the corresponding kinds aren't enabled or use the in-memory backend.
func NewUnifiedMemory(cfg UnifiedConfig, redisClient *redis.Client, db bun.IDB) *UnifiedMemory {
	um := &UnifiedMemory{cfg: cfg, memories: make(map[Kind]Memory)}

	if cfg.EnableWorking {
		wc := Config{Backend: "memory", EnableVectorSearch: cfg.EnableVectorSearch, EmbeddingDim: cfg.EmbeddingDim}
		if cfg.WorkingConfig != nil {
			wc = *cfg.WorkingConfig
		}
		um.working = NewWorkingMemory(wc)
		um.memories[KindWorking] = um.working
	}
	if cfg.EnableEpisodic {
		ec := Config{Backend: cfg.Backend, EnableVectorSearch: cfg.EnableVectorSearch, EmbeddingDim: cfg.EmbeddingDim}
		if cfg.EpisodicConfig != nil {
			ec = *cfg.EpisodicConfig
		}
		um.episodic = NewEpisodicMemory(redisClient, ec)
		um.memories[KindEpisodic] = um.episodic
	}
	if cfg.EnableSemantic {
		sc := Config{Backend: cfg.Backend, EnableVectorSearch: cfg.EnableVectorSearch, EmbeddingDim: cfg.EmbeddingDim}
		if cfg.SemanticConfig != nil {
			sc = *cfg.SemanticConfig
		}
		um.semantic = NewSemanticMemory(sc, db)
		um.memories[KindSemantic] = um.semantic
	}
	if cfg.EnableProcedural {
		pc := Config{Backend: cfg.Backend}
		if cfg.ProceduralConfig != nil {
			pc = *cfg.ProceduralConfig
		}
		um.procedural = NewProceduralMemory(pc, db)
		um.memories[KindProcedural] = um.procedural
	}

	return um
}

func (u *UnifiedMemory) Working() *WorkingMemory       { return u.working }
func (u *UnifiedMemory) Episodic() *EpisodicMemory     { return u.episodic }
func (u *UnifiedMemory) Semantic() *SemanticMemory     { return u.semantic }
func (u *UnifiedMemory) Procedural() *ProceduralMemory { return u.procedural }

// kindForKey applies unified.py's key-pattern routing: work:* -> working,
// episode:* -> episodic, fact:* -> semantic, procedure:* -> procedural,
// defaulting to working memory.
func kindForKey(key string) Kind {
	switch {
	case strings.HasPrefix(key, "work:"):
		return KindWorking
	case strings.HasPrefix(key, "episode:"):
		return KindEpisodic
	case strings.HasPrefix(key, "fact:"):
		return KindSemantic
	case strings.HasPrefix(key, "procedure:"):
		return KindProcedural
	default:
		return KindWorking
	}
}

func (u *UnifiedMemory) resolve(key string, explicit Kind) (Memory, Kind, error) {
	kind := explicit
	if kind == "" {
		kind = kindForKey(key)
	}
	mem, ok := u.memories[kind]
	if !ok {
		return nil, kind, apperrors.New(apperrors.KindValidation, "unified_memory.resolve",
			kindNotEnabledError{kind})
	}
	return mem, kind, nil
}

type kindNotEnabledError struct{ kind Kind }

func (e kindNotEnabledError) Error() string { return "memory kind '" + string(e.kind) + "' not enabled" }

// Store routes to the appropriate memory by key pattern, or explicitKind if
// non-empty.
func (u *UnifiedMemory) Store(key string, content interface{}, metadata map[string]interface{}, explicitKind Kind) error {
	mem, _, err := u.resolve(key, explicitKind)
	if err != nil {
		return err
	}
	return mem.Store(key, content, metadata)
}

// Retrieve routes to the appropriate memory and fetches key.
func (u *UnifiedMemory) Retrieve(key string, explicitKind Kind) (*Entry, bool) {
	mem, _, err := u.resolve(key, explicitKind)
	if err != nil {
		return nil, false
	}
	return mem.Retrieve(key)
}

// Search queries across the given kinds (all enabled kinds if empty),
// applying limit to the combined result set, per unified.py's search.
func (u *UnifiedMemory) Search(query string, kinds []Kind, limit int, filters map[string]interface{}) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(kinds) == 0 {
		for k := range u.memories {
			kinds = append(kinds, k)
		}
	}
	var results []*Entry
	for _, k := range kinds {
		mem, ok := u.memories[k]
		if !ok {
			continue
		}
		found, err := mem.Search(query, limit, filters)
		if err != nil {
			return nil, err
		}
		results = append(results, found...)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ClearAll clears every enabled memory kind, returning the count cleared per
// kind, per unified.py's clear_all.
func (u *UnifiedMemory) ClearAll() map[Kind]int {
	counts := make(map[Kind]int)
	for k, mem := range u.memories {
		counts[k] = mem.Clear("")
	}
	return counts
}

// Convenience methods, mirroring unified.py's remember_fact/episode/procedure.

func (u *UnifiedMemory) RememberFact(key, fact string, metadata map[string]interface{}) error {
	return u.Store("fact:"+key, fact, metadata, KindSemantic)
}

func (u *UnifiedMemory) RememberEpisode(key string, episode map[string]interface{}) error {
	metadata, _ := episode["metadata"].(map[string]interface{})
	return u.Store("episode:"+key, episode, metadata, KindEpisodic)
}

func (u *UnifiedMemory) RememberProcedure(name string, steps []interface{}) error {
	return u.Store("procedure:"+name, steps, map[string]interface{}{"name": name}, KindProcedural)
}

// GetWorkingContext returns working memory as a flat context map, for an
// agent's prompt assembly.
func (u *UnifiedMemory) GetWorkingContext() map[string]interface{} {
	if u.working == nil {
		return map[string]interface{}{}
	}
	return u.working.GetWorkingContext()
}

// Analytics and monitoring, per unified.py's get_usage_stats/
// get_domain_analytics/get_performance_metrics.

func (u *UnifiedMemory) GetUsageStats() map[Kind]UsageStats {
	stats := make(map[Kind]UsageStats)
	for k, mem := range u.memories {
		stats[k] = mem.UsageStats()
	}
	return stats
}

// DomainAnalytics reports, per configured domain, how many entries in each
// memory kind reference it (found via a substring search on the domain
// name), per unified.py's get_domain_analytics.
type DomainAnalytics struct {
	Domains    []string                 `json:"domains"`
	DomainUsage map[string]map[Kind]int `json:"domain_usage"`
}

func (u *UnifiedMemory) GetDomainAnalytics() (*DomainAnalytics, error) {
	result := &DomainAnalytics{Domains: u.cfg.Domains, DomainUsage: make(map[string]map[Kind]int)}
	for _, domain := range u.cfg.Domains {
		usage := make(map[Kind]int)
		for k, mem := range u.memories {
			entries, err := mem.Search(domain, 100, nil)
			if err != nil {
				continue
			}
			usage[k] = len(entries)
		}
		result.DomainUsage[domain] = usage
	}
	return result, nil
}

// PerformanceMetrics is a single memory kind's write/read/search timing
// sample, per unified.py's get_performance_metrics.
type PerformanceMetrics struct {
	WriteLatency  time.Duration `json:"write_latency"`
	ReadLatency   time.Duration `json:"read_latency"`
	SearchLatency time.Duration `json:"search_latency"`
	Backend       string        `json:"backend"`
}

func (u *UnifiedMemory) GetPerformanceMetrics() map[Kind]*PerformanceMetrics {
	metrics := make(map[Kind]*PerformanceMetrics)
	for k, mem := range u.memories {
		testKey := "perf_test_" + string(k)

		start := time.Now()
		_ = mem.Store(testKey, "test_data", nil)
		writeLatency := time.Since(start)

		start = time.Now()
		_, _ = mem.Retrieve(testKey)
		readLatency := time.Since(start)

		start = time.Now()
		_, _ = mem.Search("test", 5, nil)
		searchLatency := time.Since(start)

		mem.Delete(testKey)

		metrics[k] = &PerformanceMetrics{
			WriteLatency:  writeLatency,
			ReadLatency:   readLatency,
			SearchLatency: searchLatency,
			Backend:       mem.UsageStats().Backend,
		}
	}
	return metrics
}
