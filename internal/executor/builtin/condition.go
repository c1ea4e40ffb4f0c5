package builtin

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// conditionCache is a thread-safe LRU of compiled expr-lang programs,
// grounded on pkg/engine/condition_cache.go's ConditionCache.
type conditionCache struct {
	capacity int
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
}

type conditionCacheEntry struct {
	expression string
	program    *vm.Program
}

func newConditionCache(capacity int) *conditionCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &conditionCache{capacity: capacity, entries: make(map[string]*list.Element), order: list.New()}
}

func (c *conditionCache) compile(expression string, env interface{}) (*vm.Program, error) {
	c.mu.Lock()
	if el, ok := c.entries[expression]; ok {
		c.order.MoveToFront(el)
		program := el.Value.(*conditionCacheEntry).program
		c.mu.Unlock()
		return program, nil
	}
	c.mu.Unlock()

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	el := c.order.PushFront(&conditionCacheEntry{expression: expression, program: program})
	c.entries[expression] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*conditionCacheEntry).expression)
		}
	}
	c.mu.Unlock()
	return program, nil
}

// ConditionExecutor evaluates cfg.Condition.Expression against inputs using
// expr-lang, caching compiled programs. Output is {"result": bool,
// "branch": "true_branch"|"false_branch"}, letting the engine's branch-gating
// logic (C6) exclude the non-taken branch's descendants.
type ConditionExecutor struct {
	cache *conditionCache
}

func NewConditionExecutor() *ConditionExecutor {
	return &ConditionExecutor{cache: newConditionCache(100)}
}

func (e *ConditionExecutor) Validate(cfg *node.Config) error {
	if cfg.Condition == nil || cfg.Condition.Expression == "" {
		return fmt.Errorf("condition executor: node %s: expression required", cfg.ID)
	}
	_, err := expr.Compile(cfg.Condition.Expression, expr.Env(map[string]interface{}{"input": map[string]interface{}{}}), expr.AsBool())
	if err != nil {
		return apperrors.NewNode(apperrors.KindValidation, "condition.validate", cfg.ID, err)
	}
	return nil
}

func (e *ConditionExecutor) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, error) {
	env := map[string]interface{}{"input": inputs}
	program, err := e.cache.compile(cfg.Condition.Expression, env)
	if err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindValidation, "condition.compile", cfg.ID, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, nil, apperrors.NewNode(apperrors.KindUpstream, "condition.run", cfg.ID, err)
	}
	result, ok := out.(bool)
	if !ok {
		return nil, nil, apperrors.NewNode(apperrors.KindValidation, "condition.run", cfg.ID,
			fmt.Errorf("expression did not produce a boolean, got %T", out))
	}
	branch := "false_branch"
	if result {
		branch = "true_branch"
	}
	return map[string]interface{}{"result": result, "branch": branch}, nil, nil
}
