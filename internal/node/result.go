package node

import "time"

// ExecutionError is the tagged error surfaced on a failed NodeExecutionResult,
// using the same taxonomy as internal/apperrors.
type ExecutionError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *ExecutionError) Error() string { return e.Kind + ": " + e.Message }

// Usage carries token/cost accounting for a node execution, set by LLM and
// Agent executors.
type Usage struct {
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Cost      float64 `json:"cost_usd"`
	Model     string  `json:"model,omitempty"`
	Provider  string  `json:"provider,omitempty"`
}

// ResultMetadata records bookkeeping about a single node execution.
type ResultMetadata struct {
	NodeID      string        `json:"node_id"`
	Kind        Kind          `json:"kind"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     time.Time     `json:"ended_at"`
	Duration    time.Duration `json:"duration"`
	RetriesUsed int           `json:"retries_used"`
	ErrorType   string        `json:"error_type,omitempty"`
}

// ExecutionResult is spec.md §3's NodeExecutionResult.
type ExecutionResult struct {
	Success     bool                   `json:"success"`
	Output      interface{}            `json:"output,omitempty"`
	Error       *ExecutionError        `json:"error,omitempty"`
	Metadata    ResultMetadata         `json:"metadata"`
	Usage       *Usage                 `json:"usage,omitempty"`
	ContextUsed map[string]interface{} `json:"context_used,omitempty"`
	CacheHit    bool                   `json:"cache_hit"`
}

// CanRecurse reports the caller-declared recursion signal read off a node's
// own output map, per spec.md §4.4: "the engine inspects output._can_recurse
// and, when truthy and converged is false, enqueues recursive_sources".
func CanRecurse(output interface{}) (canRecurse bool, converged bool) {
	m, ok := output.(map[string]interface{})
	if !ok {
		return false, true
	}
	if v, ok := m["_can_recurse"].(bool); ok {
		canRecurse = v
	}
	if v, ok := m["converged"].(bool); ok {
		converged = v
	}
	return canRecurse, converged
}
