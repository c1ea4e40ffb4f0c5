// Package ctxstore implements C4: a tenant/session-scoped key-value store
// for node outputs, with token-window enforcement and pluggable compression.
// Grounded on _examples/original_source/src/ice_orchestrator/context/scoped_context_store.py
// (scope-prefixed keys, prefix-sweep clear) and spec.md §4.2.
package ctxstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/smilemakc/flowcore/internal/apperrors"
)

// Strategy selects how an over-budget value is shrunk before storage.
type Strategy string

const (
	StrategyTruncate  Strategy = "truncate"
	StrategySummarize Strategy = "summarize"
	StrategyEmbed     Strategy = "embed" // future: spec.md §4.2 names it, not yet backed by a vector store
)

// charsPerToken is the fallback token estimator spec.md §4.2 specifies
// ("≈ 4 chars/token fallback when no tokenizer is present").
const charsPerToken = 4

// Store is a single scope's key-value store. One Store instance is created
// per run (session_id/tenant), matching spec.md's "exclusively owned by one
// run; never shared across runs" execution-context ownership rule.
type Store struct {
	scope     string
	maxTokens int
	strategy  Strategy

	mu   sync.RWMutex
	data map[string]interface{}
}

// New creates a Store for the given scope (tenant or session id). maxTokens
// of 0 disables the token-window enforcement.
func New(scope string, maxTokens int, strategy Strategy) *Store {
	if strategy == "" {
		strategy = StrategyTruncate
	}
	return &Store{
		scope:     scope,
		maxTokens: maxTokens,
		strategy:  strategy,
		data:      make(map[string]interface{}),
	}
}

func (s *Store) prefixed(key string) string {
	return s.scope + ":" + key
}

// Get returns the value stored under key, or ok=false.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[s.prefixed(key)]
	return v, ok
}

// Set stores value under key unconditionally, applying the same
// token-window enforcement as Update.
func (s *Store) Set(key string, value interface{}) error {
	return s.write(key, value)
}

// Update stores value under key; executionID is accepted for interface
// parity with spec.md §4.2's signature but is not currently used to
// namespace writes (single-writer-per-node-execution is enforced by the
// engine's scheduling, not the store).
func (s *Store) Update(key string, value interface{}, executionID string) error {
	return s.write(key, value)
}

func (s *Store) write(key string, value interface{}) error {
	compressed, err := s.enforceTokenWindow(value)
	if err != nil {
		return apperrors.NewNode(apperrors.KindValidation, "ctxstore.write", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.prefixed(key)] = compressed
	return nil
}

// Clear removes a single key, or every key in this scope when key is "".
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		prefix := s.scope + ":"
		for k := range s.data {
			if strings.HasPrefix(k, prefix) {
				delete(s.data, k)
			}
		}
		return
	}
	delete(s.data, s.prefixed(key))
}

// EstimateTokens approximates the token size of value using the 4-char
// fallback estimator.
func EstimateTokens(value interface{}) int {
	s, ok := value.(string)
	if !ok {
		data, err := json.Marshal(value)
		if err != nil {
			return 0
		}
		s = string(data)
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

func (s *Store) enforceTokenWindow(value interface{}) (interface{}, error) {
	if s.maxTokens <= 0 {
		return value, nil
	}
	size := EstimateTokens(value)
	if size <= s.maxTokens {
		return value, nil
	}
	switch s.strategy {
	case StrategyTruncate:
		return truncate(value, s.maxTokens), nil
	case StrategySummarize:
		return summarize(value, s.maxTokens), nil
	case StrategyEmbed:
		return nil, fmt.Errorf("embed compression strategy is not yet backed by a vector store")
	default:
		return nil, fmt.Errorf("unknown compression strategy %q", s.strategy)
	}
}

func asString(value interface{}) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

func truncate(value interface{}, maxTokens int) string {
	s := asString(value)
	budget := maxTokens * charsPerToken
	if len(s) <= budget {
		return s
	}
	return s[:budget]
}

// summarize is a deterministic summariser: head + tail slices of the
// char budget with an explicit marker, so repeated calls on the same input
// are byte-identical (spec.md doesn't require semantic summarization, just
// "a compression strategy... summarize (deterministic summariser)").
func summarize(value interface{}, maxTokens int) string {
	s := asString(value)
	budget := maxTokens * charsPerToken
	if len(s) <= budget {
		return s
	}
	marker := "...[truncated]..."
	if budget <= len(marker) {
		return s[:budget]
	}
	half := (budget - len(marker)) / 2
	return s[:half] + marker + s[len(s)-half:]
}
