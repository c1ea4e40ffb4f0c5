package engine

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Checkpoint is a snapshot of a run's State at the boundary of a completed
// level, letting a crashed-and-restarted process resume at the lowest
// incomplete level instead of from scratch - spec.md §4.8's "deterministic
// checkpoint/resume re-entering at the lowest incomplete level". Grounded
// on internal/application/engine/execution_checkpoint.go's ExecutionCheckpoint.
type Checkpoint struct {
	WorkflowID     string                 `json:"workflow_id"`
	LevelIndex     int                    `json:"level_index"`
	Timestamp      time.Time              `json:"timestamp"`
	CompletedNodes []string               `json:"completed_nodes"`
	NodeOutputs    map[string]interface{} `json:"node_outputs"`
	NodeStatuses   map[string]Status      `json:"node_statuses"`
	TokensUsed     int64                  `json:"tokens_used"`
	Depth          int                    `json:"depth"`
}

// NewCheckpoint snapshots st at the boundary after levelIndex has completed.
func NewCheckpoint(st *State, levelIndex int) *Checkpoint {
	st.mu.RLock()
	defer st.mu.RUnlock()

	outputs := make(map[string]interface{}, len(st.nodeOutputs))
	for k, v := range st.nodeOutputs {
		outputs[k] = v
	}
	statuses := make(map[string]Status, len(st.nodeStatus))
	var completed []string
	for k, v := range st.nodeStatus {
		statuses[k] = v
		if v == StatusCompleted {
			completed = append(completed, k)
		}
	}

	return &Checkpoint{
		WorkflowID:     st.WorkflowID,
		LevelIndex:     levelIndex,
		Timestamp:      time.Now(),
		CompletedNodes: completed,
		NodeOutputs:    outputs,
		NodeStatuses:   statuses,
		TokensUsed:     st.TokensUsed,
		Depth:          st.Depth,
	}
}

// Restore rebuilds a State from a Checkpoint, ready to resume scheduling
// from cp.LevelIndex+1.
func (cp *Checkpoint) Restore(sessionID, tenant string, input map[string]interface{}) *State {
	st := NewState(cp.WorkflowID, sessionID, tenant, input)
	st.TokensUsed = cp.TokensUsed
	st.Depth = cp.Depth
	for k, v := range cp.NodeOutputs {
		st.nodeOutputs[k] = v
	}
	for k, v := range cp.NodeStatuses {
		st.nodeStatus[k] = v
	}
	return st
}

func (cp *Checkpoint) NextLevelIndex() int { return cp.LevelIndex + 1 }

func (cp *Checkpoint) IsNodeCompleted(nodeID string) bool {
	for _, id := range cp.CompletedNodes {
		if id == nodeID {
			return true
		}
	}
	return false
}

func (cp *Checkpoint) Serialize() ([]byte, error)     { return json.Marshal(cp) }
func DeserializeCheckpoint(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("engine: deserialize checkpoint: %w", err)
	}
	return &cp, nil
}

// CheckpointStore is the pluggable persistence boundary for Checkpoints.
// The in-memory implementation below is what ships; spec.md's non-goals
// exclude durable cross-restart resumption as a product guarantee, but the
// mechanism (interface + in-memory default) is still worth having so a host
// can back it with Redis without touching engine internals.
type CheckpointStore interface {
	Save(cp *Checkpoint)
	Load(workflowID string) (*Checkpoint, bool)
	Delete(workflowID string)
}

// MemoryCheckpointStore is the default in-process CheckpointStore.
type MemoryCheckpointStore struct {
	mu    sync.RWMutex
	store map[string]*Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{store: make(map[string]*Checkpoint)}
}

func (s *MemoryCheckpointStore) Save(cp *Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[cp.WorkflowID] = cp
}

func (s *MemoryCheckpointStore) Load(workflowID string) (*Checkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.store[workflowID]
	return cp, ok
}

func (s *MemoryCheckpointStore) Delete(workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, workflowID)
}
