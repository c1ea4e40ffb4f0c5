package executor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/smilemakc/flowcore/internal/node"
)

// Fingerprint computes sha256(node_cfg ⊕ canonicalized_inputs), per
// spec.md §4.3 step 2. Input keys are sorted before marshaling so the
// fingerprint is stable regardless of map iteration order.
func Fingerprint(cfg *node.Config, inputs map[string]interface{}) (string, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]struct {
		K string      `json:"k"`
		V interface{} `json:"v"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].K = k
		ordered[i].V = inputs[k]
	}
	inputJSON, err := json.Marshal(ordered)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append(cfgJSON, inputJSON...))
	return hex.EncodeToString(sum[:]), nil
}

// Cache is the process-wide fingerprint cache of spec.md §4.4
// ("A process-wide cache is keyed by node fingerprint... Enabled per-node
// via use_cache.").
type Cache interface {
	Get(fingerprint string) (*node.ExecutionResult, bool)
	Set(fingerprint string, result *node.ExecutionResult)
}

// MemoryCache is an in-memory Cache, safe for concurrent use. It is the
// default since spec.md's non-goals exclude durable cross-restart
// persistence; a Redis-backed Cache could implement the same interface
// without the engine caring.
type MemoryCache struct {
	mu    sync.RWMutex
	store map[string]*node.ExecutionResult
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{store: make(map[string]*node.ExecutionResult)}
}

func (c *MemoryCache) Get(fingerprint string) (*node.ExecutionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.store[fingerprint]
	return r, ok
}

func (c *MemoryCache) Set(fingerprint string, result *node.ExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[fingerprint] = result
}
