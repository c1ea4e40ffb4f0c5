// Package engine implements C6: the workflow engine that schedules a
// internal/graph.DAG level by level, dispatches each node through
// internal/executor, gates branches, enforces token/depth ceilings, and
// emits internal/events lifecycle events. Grounded on pkg/engine's
// DAGExecutor/ExecutionState/ExecutionOptions plus
// internal/application/engine's ExecutionCheckpoint/ConditionCache
// additions, consolidating both of the teacher's parallel engine trees
// into one.
package engine

import (
	"sync"
	"time"

	"github.com/smilemakc/flowcore/internal/node"
)

// Phase is the engine's run state machine, per spec.md §4.4:
// "Initializing -> Validating -> Executing -> {Completed, Failed, Cancelled}".
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseValidating   Phase = "validating"
	PhaseExecuting    Phase = "executing"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

// FailurePolicy governs what happens to sibling/downstream nodes when a
// node fails, per spec.md §4.4.
type FailurePolicy string

const (
	// PolicyHalt stops the whole run as soon as any node fails.
	PolicyHalt FailurePolicy = "halt"
	// PolicyContinuePossible keeps running branches unaffected by the
	// failed node, but the overall run still reports failure.
	PolicyContinuePossible FailurePolicy = "continue_possible"
	// PolicyAlwaysContinue runs every node it can regardless of failures and
	// never reports the run as failed because of them; per-node errors are
	// still collected in RunResult.Errors.
	PolicyAlwaysContinue FailurePolicy = "always_continue"
)

// State is the C6/C10 execution-state container: thread-safe per-node
// status/output/error/timing tracking for one workflow run, grounded on
// pkg/engine/execution_state.go's ExecutionState.
type State struct {
	WorkflowID  string
	SessionID   string
	Tenant      string
	Input       map[string]interface{}
	Metadata    map[string]interface{}
	Depth       int // recursion/sub-workflow nesting depth, for depth_ceiling
	TokensUsed  int64
	TokensIn    int64
	TokensOut   int64
	CostUSD     float64

	mu          sync.RWMutex
	phase       Phase
	nodeStatus  map[string]Status
	nodeOutputs map[string]interface{}
	nodeErrors  map[string]error
	nodeStart   map[string]time.Time
	nodeEnd     map[string]time.Time
	nodeRetries map[string]int
	active      map[string]bool // monotonic "is this node still reachable" cache for branch gating
}

// Status is a single node's lifecycle status within a State.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

func NewState(workflowID, sessionID, tenant string, input map[string]interface{}) *State {
	return &State{
		WorkflowID:  workflowID,
		SessionID:   sessionID,
		Tenant:      tenant,
		Input:       input,
		Metadata:    make(map[string]interface{}),
		phase:       PhaseInitializing,
		nodeStatus:  make(map[string]Status),
		nodeOutputs: make(map[string]interface{}),
		nodeErrors:  make(map[string]error),
		nodeStart:   make(map[string]time.Time),
		nodeEnd:     make(map[string]time.Time),
		nodeRetries: make(map[string]int),
		active:      make(map[string]bool),
	}
}

func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

func (s *State) SetPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = p
}

func (s *State) SetNodeStatus(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeStatus[id] = status
}

func (s *State) NodeStatus(id string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.nodeStatus[id]
	return st, ok
}

func (s *State) SetNodeOutput(id string, output interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeOutputs[id] = output
}

func (s *State) NodeOutput(id string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.nodeOutputs[id]
	return out, ok
}

// AllOutputs returns a shallow copy of every recorded node output, used as
// the upstreamOutputs argument to executor.BuildInputs.
func (s *State) AllOutputs() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]interface{}, len(s.nodeOutputs))
	for k, v := range s.nodeOutputs {
		out[k] = v
	}
	return out
}

func (s *State) SetNodeError(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeErrors[id] = err
}

func (s *State) NodeError(id string) (error, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err, ok := s.nodeErrors[id]
	return err, ok
}

func (s *State) SetNodeStart(id string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeStart[id] = t
}

func (s *State) SetNodeEnd(id string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeEnd[id] = t
}

func (s *State) SetNodeRetries(id string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeRetries[id] = n
}

// SetActive records whether a node is still reachable given the branch
// decisions made so far - monotonic within a run, per spec.md §4.4's
// "active node" cache: once a node is excluded it never becomes active
// again within the same run.
func (s *State) SetActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.active[id]; ok && !existing {
		return // monotonic: once inactive, stays inactive
	}
	s.active[id] = active
}

func (s *State) IsActive(id string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	active, ok := s.active[id]
	return active, ok
}

func (s *State) AddTokens(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokensUsed += n
	return s.TokensUsed
}

// AddUsage folds a node's reported Usage into the run totals, keeping
// in/out/cost broken out so InvokeWorkflow can propagate more than a flat
// token count to its parent.
func (s *State) AddUsage(u *node.Usage) {
	if u == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TokensIn += int64(u.TokensIn)
	s.TokensOut += int64(u.TokensOut)
	s.TokensUsed += int64(u.TokensIn + u.TokensOut)
	s.CostUSD += u.Cost
}

// IncrDepth records one more level of nesting (a recursive re-entry round
// or a nested sub-workflow invocation) and returns the new depth, for
// Ceilings.CheckDepth to compare against DepthCeiling.
func (s *State) IncrDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Depth++
	return s.Depth
}

// CompletedNodeIDs returns every node id currently marked Completed, for
// checkpointing.
func (s *State) CompletedNodeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, st := range s.nodeStatus {
		if st == StatusCompleted {
			ids = append(ids, id)
		}
	}
	return ids
}

// Result summarizes a node's outcome for the final WorkflowResult.
type Result struct {
	NodeID string
	Kind   node.Kind
	Status Status
	Output interface{}
	Err    error
}
