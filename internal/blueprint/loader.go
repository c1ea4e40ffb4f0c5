package blueprint

import (
	"context"

	"github.com/smilemakc/flowcore/internal/node"
)

// Loader adapts a Store to internal/engine.WorkflowLoader, letting
// Workflow-kind nodes (spec.md §3's workflow_ref) resolve a registry name
// to a stored blueprint's node list without internal/engine importing
// internal/blueprint directly.
type Loader struct {
	store *Store
}

// NewLoader wraps store as an engine.WorkflowLoader.
func NewLoader(store *Store) *Loader {
	return &Loader{store: store}
}

// LoadWorkflow resolves ref as a blueprint id and returns its node list.
func (l *Loader) LoadWorkflow(ctx context.Context, ref string) ([]*node.Config, error) {
	bp, _, err := l.store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return bp.Nodes, nil
}
