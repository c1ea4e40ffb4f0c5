// Package events implements C10: a typed event bus for workflow execution
// lifecycle events; the execution state those events report on is kept by
// internal/engine's State. Grounded on
// internal/application/observer's Event/Observer/EventFilter/ObserverManager
// shape, generalized from that package's domain-model Workflow to
// internal/node.Config and renamed from mbflow's dot-notation event types to
// spec.md §4.4's named event set (WorkflowStarted, NodeStarted,
// NodeCompleted, NodeFailed, WorkflowCompleted, GraphInsights).
package events

import "time"

// Type is one of spec.md §4.4's six lifecycle event kinds.
type Type string

const (
	TypeWorkflowStarted   Type = "workflow_started"
	TypeWorkflowCompleted Type = "workflow_completed"
	TypeNodeStarted       Type = "node_started"
	TypeNodeCompleted     Type = "node_completed"
	TypeNodeFailed        Type = "node_failed"
	TypeGraphInsights     Type = "graph_insights"
)

// Event is the common envelope: workflow_id + a monotonic per-workflow_id
// Sequence + Timestamp, per spec.md §4.4/§5 ("events are totally ordered per
// workflow_id, unordered across workflow_ids").
type Event struct {
	Type       Type
	WorkflowID string
	Sequence   int64
	Timestamp  time.Time

	NodeID   string `json:"node_id,omitempty"`
	NodeKind string `json:"node_kind,omitempty"`
	Level    int    `json:"level,omitempty"`

	Output     interface{}            `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Filter decides whether an Event should be delivered to a given subscriber.
type Filter interface {
	ShouldNotify(e Event) bool
}

// TypeFilter passes only events of the listed types; nil/empty = all events.
type TypeFilter struct{ allowed map[Type]bool }

func NewTypeFilter(types ...Type) Filter {
	if len(types) == 0 {
		return nil
	}
	m := make(map[Type]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return &TypeFilter{allowed: m}
}

func (f *TypeFilter) ShouldNotify(e Event) bool {
	if f == nil || len(f.allowed) == 0 {
		return true
	}
	return f.allowed[e.Type]
}

// WorkflowIDFilter passes only events for a specific workflow_id.
type WorkflowIDFilter struct{ workflowID string }

func NewWorkflowIDFilter(workflowID string) Filter {
	return &WorkflowIDFilter{workflowID: workflowID}
}

func (f *WorkflowIDFilter) ShouldNotify(e Event) bool { return e.WorkflowID == f.workflowID }

// CompoundFilter requires every sub-filter to pass (AND).
type CompoundFilter struct{ filters []Filter }

func NewCompoundFilter(filters ...Filter) Filter {
	return &CompoundFilter{filters: filters}
}

func (f *CompoundFilter) ShouldNotify(e Event) bool {
	for _, sub := range f.filters {
		if sub != nil && !sub.ShouldNotify(e) {
			return false
		}
	}
	return true
}
