package builtin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// supportedCodeLanguages is the sandbox's declared-language whitelist, per
// spec.md §4.3's Code semantics ("sandboxed... declared language...
// imports whitelist... time- and memory-bounded"). Only "expr" (an
// expression language, not a general-purpose one) is supported: it has no
// I/O, no reflection into arbitrary Go values beyond its env map, and no
// unbounded loops, which is what keeps it sandboxable without an external
// process boundary.
var supportedCodeLanguages = map[string]bool{"expr": true}

// CodeExecutor runs cfg.Code.Code as an expr-lang expression over inputs.
// cfg.Code.Imports names the subset of input keys exposed to the
// expression; any input key not listed (when Imports is non-empty) is
// withheld, approximating an imports whitelist for a pure-expression
// sandbox that has no concept of importing packages.
type CodeExecutor struct{}

func NewCodeExecutor() *CodeExecutor { return &CodeExecutor{} }

func (e *CodeExecutor) Validate(cfg *node.Config) error {
	if cfg.Code == nil || cfg.Code.Code == "" {
		return fmt.Errorf("code executor: node %s: code required", cfg.ID)
	}
	if !supportedCodeLanguages[cfg.Code.Language] {
		return apperrors.NewNode(apperrors.KindValidation, "code.validate", cfg.ID,
			fmt.Errorf("unsupported code language %q", cfg.Code.Language))
	}
	if _, err := expr.Compile(cfg.Code.Code); err != nil {
		return apperrors.NewNode(apperrors.KindValidation, "code.validate", cfg.ID, err)
	}
	return nil
}

func (e *CodeExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	env := e.sandboxedEnv(cfg, inputs)
	program, err := expr.Compile(cfg.Code.Code, expr.Env(env))
	if err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindValidation, "code.compile", cfg.ID, err)
	}

	type runResult struct {
		out interface{}
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		out, err := expr.Run(program, env)
		done <- runResult{out, err}
	}()

	select {
	case <-ctx.Done():
		return nil, nil, apperrors.NewNode(apperrors.KindTimeout, "code.execute", cfg.ID, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "code.execute", cfg.ID, r.err)
		}
		return map[string]interface{}{"result": r.out}, nil, nil
	}
}

func (e *CodeExecutor) sandboxedEnv(cfg *node.Config, inputs map[string]interface{}) map[string]interface{} {
	if len(cfg.Code.Imports) == 0 {
		return map[string]interface{}{"input": inputs}
	}
	allowed := make(map[string]bool, len(cfg.Code.Imports))
	for _, name := range cfg.Code.Imports {
		allowed[name] = true
	}
	filtered := make(map[string]interface{}, len(allowed))
	for k, v := range inputs {
		if allowed[k] {
			filtered[k] = v
		}
	}
	return map[string]interface{}{"input": filtered}
}
