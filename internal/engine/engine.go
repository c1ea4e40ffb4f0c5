package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/events"
	"github.com/smilemakc/flowcore/internal/executor"
	"github.com/smilemakc/flowcore/internal/graph"
	"github.com/smilemakc/flowcore/internal/node"
)

// WorkflowLoader resolves a workflow_ref (spec.md §3's Workflow-kind
// extension) to a buildable node list, letting Workflow-kind nodes recurse
// into a nested run without the engine depending on internal/blueprint.
type WorkflowLoader interface {
	LoadWorkflow(ctx context.Context, ref string) ([]*node.Config, error)
}

// Options configures a single Run, generalizing pkg/engine's
// ExecutionOptions to spec.md's named knobs.
type Options struct {
	MaxParallel     int
	Ceilings        Ceilings
	FailurePolicy   FailurePolicy
	SessionID       string
	Tenant          string
	Metadata        map[string]interface{}
	CheckpointEvery bool
	// Depth seeds the new run's State.Depth. Zero for a top-level Run;
	// InvokeWorkflow sets it to the calling run's depth + 1 so a nested
	// workflow's own recursion/nesting still counts against the same
	// DepthCeiling the parent enforces.
	Depth int
}

// RunResult is the external-facing outcome of a completed/failed run, per
// spec.md §6's "user-visible failed-workflow result shape".
type RunResult struct {
	WorkflowID string
	Phase      Phase
	Outputs    map[string]interface{}
	Errors     map[string]string
	TokensUsed int64
	TokensIn   int64
	TokensOut  int64
	CostUSD    float64
}

// Engine is the C6 workflow engine: schedules an internal/graph.DAG level
// by level over a weighted semaphore, dispatches each node through
// internal/executor.Dispatcher, gates branches, enforces ceilings, and
// publishes internal/events lifecycle events. It also implements
// builtin.Invoker so Loop/Parallel/Workflow/Recursive executors can call
// back into it. Grounded on pkg/engine/dag_executor.go's wave-based
// executeWave, consolidated with internal/application/engine's
// checkpoint/condition-cache additions.
type Engine struct {
	Dispatcher      *executor.Dispatcher
	Bus             *events.Bus
	Checkpoints     CheckpointStore
	WorkflowLoader  WorkflowLoader
	Logger          *slog.Logger

	mu    sync.RWMutex
	states map[string]*State // workflow_id -> in-flight State, for InvokeNode callbacks
	dags   map[string]*graph.DAG
}

func New(dispatcher *executor.Dispatcher, bus *events.Bus, checkpoints CheckpointStore, loader WorkflowLoader, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Dispatcher:     dispatcher,
		Bus:            bus,
		Checkpoints:    checkpoints,
		WorkflowLoader: loader,
		Logger:         logger,
		states:         make(map[string]*State),
		dags:           make(map[string]*graph.DAG),
	}
}

// Run builds the DAG from nodes and schedules it level by level to
// completion (or failure, per opts.FailurePolicy).
func (e *Engine) Run(ctx context.Context, workflowID string, nodes []*node.Config, input map[string]interface{}, opts Options) (*RunResult, error) {
	dag, err := graph.Build(nodes)
	if err != nil {
		return nil, apperrors.New(apperrors.KindValidation, "engine.run", err)
	}

	st := NewState(workflowID, opts.SessionID, opts.Tenant, input)
	st.Depth = opts.Depth
	if opts.Metadata != nil {
		st.Metadata = opts.Metadata
	}
	e.registerState(workflowID, st, dag)
	defer e.unregisterState(workflowID)

	st.SetPhase(PhaseValidating)
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = PolicyHalt
	}
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 10
	}

	e.publish(events.TypeWorkflowStarted, st, "", node.Kind(""), 0, nil, "", 0)
	st.SetPhase(PhaseExecuting)

	startLevel := 0
	if cp, ok := e.Checkpoints.Load(workflowID); ok {
		st = cp.Restore(opts.SessionID, opts.Tenant, input)
		e.registerState(workflowID, st, dag)
		startLevel = cp.NextLevelIndex()
	}

	runErr := e.runLevels(ctx, dag, st, opts, maxParallel, startLevel)

	outputs := st.AllOutputs()
	errs := map[string]string{}
	st.mu.RLock()
	for id, err := range st.nodeErrors {
		errs[id] = err.Error()
	}
	st.mu.RUnlock()

	if runErr != nil {
		st.SetPhase(PhaseFailed)
	} else {
		st.SetPhase(PhaseCompleted)
		e.Checkpoints.Delete(workflowID)
	}
	e.publish(events.TypeWorkflowCompleted, st, "", node.Kind(""), 0, outputs, "", 0)

	result := &RunResult{
		WorkflowID: workflowID,
		Phase:      st.Phase(),
		Outputs:    outputs,
		Errors:     errs,
		TokensUsed: st.TokensUsed,
		TokensIn:   st.TokensIn,
		TokensOut:  st.TokensOut,
		CostUSD:    st.CostUSD,
	}
	return result, runErr
}

func (e *Engine) runLevels(ctx context.Context, dag *graph.DAG, st *State, opts Options, maxParallel int, startLevel int) error {
	for levelIdx := startLevel; levelIdx < len(dag.Levels); levelIdx++ {
		if err := ctx.Err(); err != nil {
			st.SetPhase(PhaseCancelled)
			return apperrors.New(apperrors.KindCancelled, "engine.run", err)
		}
		if err := opts.Ceilings.CheckDepth(st); err != nil {
			return err
		}

		levelErr := e.runLevel(ctx, dag, st, opts, maxParallel, dag.Levels[levelIdx])
		if opts.CheckpointEvery {
			e.Checkpoints.Save(NewCheckpoint(st, levelIdx))
		}
		if levelErr != nil && opts.FailurePolicy == PolicyHalt {
			return levelErr
		}
		// PolicyAlwaysContinue and PolicyContinuePossible both keep scheduling
		// subsequent levels; PolicyContinuePossible's failure is reported once
		// the whole run finishes, via the nodeStatus scan below.
	}
	// PolicyContinuePossible reports failure if any node ended up Failed.
	if opts.FailurePolicy == PolicyContinuePossible {
		st.mu.RLock()
		defer st.mu.RUnlock()
		for _, status := range st.nodeStatus {
			if status == StatusFailed {
				return apperrors.New(apperrors.KindUpstream, "engine.run", fmt.Errorf("one or more nodes failed"))
			}
		}
	}
	return nil
}

func (e *Engine) runLevel(ctx context.Context, dag *graph.DAG, st *State, opts Options, maxParallel int, levelNodeIDs []string) error {
	semaphore := make(chan int, maxParallel)
	var wg sync.WaitGroup
	errCh := make(chan error, len(levelNodeIDs))

	for _, id := range levelNodeIDs {
		cfg := dag.ByID[id]
		exec, skipReason := shouldExecute(dag, st, cfg)
		if !exec {
			st.SetNodeStatus(id, StatusSkipped)
			st.SetActive(id, false)
			e.publish(events.TypeNodeFailed, st, id, cfg.Kind, dag.LevelOf[id], nil, skipReason, 0)
			continue
		}
		st.SetActive(id, true)

		weight := complexityWeight(cfg.Kind)
		if weight > maxParallel {
			weight = maxParallel
		}

		wg.Add(1)
		go func(cfg *node.Config, weight int) {
			defer wg.Done()
			acquireWeighted(semaphore, weight)
			defer releaseWeighted(semaphore, weight)

			if err := e.runNode(ctx, dag, st, opts, cfg); err != nil {
				errCh <- err
				if opts.FailurePolicy == PolicyHalt {
					return
				}
			}
		}(cfg, weight)
	}
	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func acquireWeighted(sem chan int, weight int) {
	for i := 0; i < weight; i++ {
		sem <- 1
	}
}

func releaseWeighted(sem chan int, weight int) {
	for i := 0; i < weight; i++ {
		<-sem
	}
}

// runContextKey carries the current run's Options/State through ctx so a
// control-flow executor's callback into InvokeNode/InvokeWorkflow (several
// stack frames away, through internal/executor/builtin) can still see the
// ceilings and depth it must respect.
type runContextKey struct{}

type runContext struct {
	opts  Options
	state *State
}

func withRunContext(ctx context.Context, opts Options, st *State) context.Context {
	return context.WithValue(ctx, runContextKey{}, &runContext{opts: opts, state: st})
}

func runContextFrom(ctx context.Context) (*runContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*runContext)
	return rc, ok
}

func (e *Engine) runNode(ctx context.Context, dag *graph.DAG, st *State, opts Options, cfg *node.Config) error {
	if err := opts.Ceilings.CheckTokens(st); err != nil {
		st.SetNodeStatus(cfg.ID, StatusFailed)
		st.SetNodeError(cfg.ID, err)
		return err
	}

	st.SetNodeStatus(cfg.ID, StatusRunning)
	started := time.Now()
	st.SetNodeStart(cfg.ID, started)
	e.publish(events.TypeNodeStarted, st, cfg.ID, cfg.Kind, cfg.Level, nil, "", 0)

	inputs, err := executor.BuildInputs(cfg, st.AllOutputs(), st.Input)
	if err != nil {
		return e.failNode(st, cfg, err)
	}

	ctx = withRunContext(ctx, opts, st)

	var result *node.ExecutionResult
	if cfg.Kind == node.KindRecursive {
		result, err = e.runRecursive(ctx, st, opts, cfg, inputs)
		if err != nil {
			return e.failNode(st, cfg, err)
		}
	} else {
		result = e.Dispatcher.Execute(ctx, cfg, inputs)
	}
	ended := time.Now()
	st.SetNodeEnd(cfg.ID, ended)
	st.SetNodeRetries(cfg.ID, result.Metadata.RetriesUsed)

	if result.Usage != nil {
		st.AddUsage(result.Usage)
	}

	if !result.Success {
		nodeErr := apperrors.NewNode(apperrors.Kind(result.Error.Kind), "engine.run_node", cfg.ID, fmt.Errorf("%s", result.Error.Message))
		return e.failNode(st, cfg, nodeErr)
	}

	st.SetNodeOutput(cfg.ID, result.Output)
	st.SetNodeStatus(cfg.ID, StatusCompleted)
	e.publish(events.TypeNodeCompleted, st, cfg.ID, cfg.Kind, cfg.Level, result.Output, "", ended.Sub(started).Milliseconds())
	return nil
}

func (e *Engine) failNode(st *State, cfg *node.Config, err error) error {
	st.SetNodeStatus(cfg.ID, StatusFailed)
	st.SetNodeError(cfg.ID, err)
	e.publish(events.TypeNodeFailed, st, cfg.ID, cfg.Kind, cfg.Level, nil, err.Error(), 0)
	return err
}

func (e *Engine) publish(t events.Type, st *State, nodeID string, kind node.Kind, level int, output interface{}, errMsg string, durationMs int64) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(events.Event{
		Type:       t,
		WorkflowID: st.WorkflowID,
		Timestamp:  time.Now(),
		NodeID:     nodeID,
		NodeKind:   string(kind),
		Level:      level,
		Output:     output,
		Error:      errMsg,
		DurationMs: durationMs,
	})
}

func (e *Engine) registerState(workflowID string, st *State, dag *graph.DAG) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[workflowID] = st
	e.dags[workflowID] = dag
}

func (e *Engine) unregisterState(workflowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, workflowID)
	delete(e.dags, workflowID)
}

// InvokeNode implements builtin.Invoker: it re-dispatches a single sibling
// node by id within the currently-running workflow, honoring its own
// schema/cache/retry pipeline.
func (e *Engine) InvokeNode(ctx context.Context, nodeID string, inputs map[string]interface{}) (*node.ExecutionResult, error) {
	// Best-effort: look across all in-flight states for the node (a Loop or
	// Parallel body node belongs to the same run as its caller).
	e.mu.RLock()
	var cfg *node.Config
	for _, dag := range e.dags {
		if c, ok := dag.ByID[nodeID]; ok {
			cfg = c
			break
		}
	}
	e.mu.RUnlock()
	if cfg == nil {
		return nil, apperrors.New(apperrors.KindNotFound, "engine.invoke_node", fmt.Errorf("node %s not found", nodeID))
	}
	return e.Dispatcher.Execute(ctx, cfg, inputs), nil
}

// InvokeWorkflow implements builtin.Invoker: it loads workflowRef via
// WorkflowLoader and runs it to completion as a nested, depth-incremented
// run, bounded by the same Ceilings the parent enforces.
func (e *Engine) InvokeWorkflow(ctx context.Context, workflowRef string, inputs map[string]interface{}, configOverrides map[string]interface{}) (map[string]interface{}, *node.Usage, error) {
	if e.WorkflowLoader == nil {
		return nil, nil, apperrors.New(apperrors.KindInternal, "engine.invoke_workflow", fmt.Errorf("no workflow loader configured"))
	}
	nodes, err := e.WorkflowLoader.LoadWorkflow(ctx, workflowRef)
	if err != nil {
		return nil, nil, apperrors.New(apperrors.KindNotFound, "engine.invoke_workflow", err)
	}

	nested := Options{MaxParallel: 10, FailurePolicy: PolicyHalt}
	if rc, ok := runContextFrom(ctx); ok {
		nested.MaxParallel = rc.opts.MaxParallel
		nested.Ceilings = rc.opts.Ceilings
		nested.FailurePolicy = rc.opts.FailurePolicy
		if err := rc.opts.Ceilings.CheckDepth(rc.state); err != nil {
			return nil, nil, err
		}
		nested.Depth = rc.state.IncrDepth()
	}

	result, err := e.Run(ctx, workflowRef, nodes, inputs, nested)
	if err != nil {
		return nil, nil, err
	}
	usage := &node.Usage{TokensIn: int(result.TokensIn), TokensOut: int(result.TokensOut), Cost: result.CostUSD}
	return result.Outputs, usage, nil
}
