package builtin

import (
	"context"

	"github.com/smilemakc/flowcore/internal/node"
)

// PassthroughExecutor realizes Human, Monitor, and Swarm kinds, which
// spec.md §3 enumerates in NodeConfig's kind union but gives no elaborated
// extension schema or semantics anywhere in §4: it echoes its inputs back
// as output, letting a host application attach real behavior (a human
// approval gate, an external monitor hook, a swarm coordinator) by
// registering its own executor.Executor for the kind instead, without
// needing a stub to return an error in the meantime.
type PassthroughExecutor struct {
	Kind node.Kind
}

func NewPassthroughExecutor(kind node.Kind) *PassthroughExecutor {
	return &PassthroughExecutor{Kind: kind}
}

func (e *PassthroughExecutor) Validate(cfg *node.Config) error { return nil }

func (e *PassthroughExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	out := make(map[string]interface{}, len(inputs))
	for k, v := range inputs {
		out[k] = v
	}
	return out, nil, nil
}
