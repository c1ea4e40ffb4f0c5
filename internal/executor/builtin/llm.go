package builtin

import (
	"context"
	"fmt"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
	"github.com/smilemakc/flowcore/internal/registry"
	"github.com/smilemakc/flowcore/internal/template"
)

// Provider is a third-party LLM backend contract. Concrete providers (out of
// scope per spec.md §1's non-goals: "third-party LLM... providers") are
// registered by the host application under registry's KindLLM namespace,
// keyed by LLMConfig.Provider.
type Provider interface {
	Complete(ctx context.Context, model, prompt string, temperature float64, maxTokens *int) (text string, usage *node.Usage, err error)
}

// LLMExecutor resolves an LLMConfig.Provider from the registry, renders
// prompt_template against inputs, and delegates completion to the Provider.
type LLMExecutor struct {
	Registry *registry.Registry
}

func NewLLMExecutor(reg *registry.Registry) *LLMExecutor {
	return &LLMExecutor{Registry: reg}
}

func (e *LLMExecutor) Validate(cfg *node.Config) error {
	if cfg.LLM == nil || cfg.LLM.Model == "" {
		return fmt.Errorf("llm executor: node %s: model required", cfg.ID)
	}
	if cfg.LLM.Provider == "" {
		return fmt.Errorf("llm executor: node %s: provider required", cfg.ID)
	}
	if !e.Registry.Has(node.KindLLM, cfg.LLM.Provider) {
		return apperrors.New(apperrors.KindNotFound, "llm.validate",
			fmt.Errorf("llm provider %q not registered", cfg.LLM.Provider))
	}
	return nil
}

func (e *LLMExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	entry, err := e.Registry.Get(node.KindLLM, cfg.LLM.Provider)
	if err != nil {
		return nil, nil, err
	}
	provider, ok := entry.(Provider)
	if !ok {
		return nil, nil, apperrors.New(apperrors.KindInternal, "llm.execute",
			fmt.Errorf("registered entry for provider %q does not implement builtin.Provider", cfg.LLM.Provider))
	}

	prompt, err := template.ResolveString(cfg.LLM.PromptTemplate, map[string]interface{}{"input": inputs}, true)
	if err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindValidation, "llm.render_prompt", cfg.ID, err)
	}

	text, usage, err := provider.Complete(ctx, cfg.LLM.Model, prompt, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	if err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "llm.complete", cfg.ID, err)
	}
	return map[string]interface{}{"text": text}, usage, nil
}
