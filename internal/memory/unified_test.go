package memory_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/flowcore/internal/memory"
)

func newTestUnifiedMemory(t *testing.T) *memory.UnifiedMemory {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cfg := memory.DefaultUnifiedConfig()
	cfg.Backend = "memory"
	cfg.Domains = []string{"pricing", "support"}
	return memory.NewUnifiedMemory(cfg, client, nil)
}

func TestUnifiedMemoryRoutesByKeyPrefix(t *testing.T) {
	um := newTestUnifiedMemory(t)

	require.NoError(t, um.Store("work:goal", "ship the release", nil, ""))
	require.NoError(t, um.Store("episode:1", "customer call", map[string]interface{}{"participant": "alice"}, ""))
	require.NoError(t, um.Store("fact:1", "pricing starts at $10", nil, ""))
	require.NoError(t, um.Store("procedure:onboard", []interface{}{"step1", "step2"}, nil, ""))

	_, ok := um.Working().Retrieve("work:goal")
	assert.True(t, ok)
	_, ok = um.Episodic().Retrieve("episode:1")
	assert.True(t, ok)
	_, ok = um.Semantic().Retrieve("fact:1")
	assert.True(t, ok)
	_, ok = um.Procedural().Retrieve("procedure:onboard")
	assert.True(t, ok)
}

func TestUnifiedMemoryExplicitKindOverridesPrefix(t *testing.T) {
	um := newTestUnifiedMemory(t)

	require.NoError(t, um.Store("anything", "a semantic fact despite no prefix", nil, memory.KindSemantic))

	_, ok := um.Semantic().Retrieve("anything")
	assert.True(t, ok)
	_, ok = um.Working().Retrieve("anything")
	assert.False(t, ok)
}

func TestUnifiedMemoryStoreRejectsDisabledKind(t *testing.T) {
	cfg := memory.UnifiedConfig{Backend: "memory", EnableWorking: true}
	um := memory.NewUnifiedMemory(cfg, nil, nil)

	err := um.Store("fact:1", "x", nil, memory.KindSemantic)
	assert.Error(t, err)
}

func TestUnifiedMemorySearchAcrossKinds(t *testing.T) {
	um := newTestUnifiedMemory(t)
	require.NoError(t, um.Store("work:a", "refund policy applies", nil, ""))
	require.NoError(t, um.Store("fact:a", "refund policy is 30 days", nil, ""))

	results, err := um.Search("refund", nil, 10, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestUnifiedMemoryClearAllClearsEveryKind(t *testing.T) {
	um := newTestUnifiedMemory(t)
	require.NoError(t, um.Store("work:a", "1", nil, ""))
	require.NoError(t, um.Store("episode:1", "2", nil, ""))
	require.NoError(t, um.Store("fact:1", "3", nil, ""))
	require.NoError(t, um.Store("procedure:p", "4", nil, ""))

	counts := um.ClearAll()
	assert.Equal(t, 1, counts[memory.KindWorking])
	assert.Equal(t, 1, counts[memory.KindEpisodic])
	assert.Equal(t, 1, counts[memory.KindSemantic])
	assert.Equal(t, 1, counts[memory.KindProcedural])
}

func TestUnifiedMemoryRememberConvenienceMethods(t *testing.T) {
	um := newTestUnifiedMemory(t)

	require.NoError(t, um.RememberFact("tier", "premium tier is $49/mo", nil))
	_, ok := um.Semantic().Retrieve("fact:tier")
	assert.True(t, ok)

	require.NoError(t, um.RememberEpisode("1", map[string]interface{}{"content": "hello"}))
	_, ok = um.Episodic().Retrieve("episode:1")
	assert.True(t, ok)

	require.NoError(t, um.RememberProcedure("greet", []interface{}{"say hi"}))
	_, ok = um.Procedural().Retrieve("procedure:greet")
	assert.True(t, ok)
}

func TestUnifiedMemoryGetWorkingContext(t *testing.T) {
	um := newTestUnifiedMemory(t)
	require.NoError(t, um.Store("work:goal", "ship it", nil, ""))

	ctx := um.GetWorkingContext()
	assert.Equal(t, "ship it", ctx["work:goal"])
}

func TestUnifiedMemoryGetUsageStats(t *testing.T) {
	um := newTestUnifiedMemory(t)
	require.NoError(t, um.Store("work:a", "x", nil, ""))

	stats := um.GetUsageStats()
	assert.Contains(t, stats, memory.KindWorking)
	assert.Equal(t, 1, stats[memory.KindWorking].EntryCount)
}

func TestUnifiedMemoryGetDomainAnalytics(t *testing.T) {
	um := newTestUnifiedMemory(t)
	require.NoError(t, um.Store("fact:1", "pricing info here", nil, ""))

	analytics, err := um.GetDomainAnalytics()
	require.NoError(t, err)
	assert.Contains(t, analytics.Domains, "pricing")
	assert.GreaterOrEqual(t, analytics.DomainUsage["pricing"][memory.KindSemantic], 1)
}

func TestUnifiedMemoryGetPerformanceMetrics(t *testing.T) {
	um := newTestUnifiedMemory(t)
	metrics := um.GetPerformanceMetrics()
	assert.Contains(t, metrics, memory.KindWorking)
	assert.GreaterOrEqual(t, metrics[memory.KindWorking].ReadLatency.Nanoseconds(), int64(0))
}
