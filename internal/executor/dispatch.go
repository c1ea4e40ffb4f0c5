package executor

import (
	"context"
	"math"
	"time"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/node"
)

// Dispatcher is the C5 "execute(node_id, inputs) → NodeExecutionResult"
// contract: ContextBuilder input resolution is the caller's job (it needs
// upstream outputs the Dispatcher doesn't track); Dispatcher.Execute takes
// already-built inputs and runs cache-check, schema validation, timeout,
// retry/backoff, and output validation, per spec.md §4.3 steps 2-5.
// Grounded on pkg/engine/retry_policy.go's InternalRetryPolicy.Execute loop.
type Dispatcher struct {
	Manager *Manager
	Cache   Cache
}

// NewDispatcher builds a Dispatcher over an executor Manager and a Cache
// (pass NewMemoryCache() for the default in-process cache).
func NewDispatcher(manager *Manager, cache Cache) *Dispatcher {
	return &Dispatcher{Manager: manager, Cache: cache}
}

// Execute runs cfg's executor against inputs, producing a full
// node.ExecutionResult.
func (d *Dispatcher) Execute(ctx context.Context, cfg *node.Config, inputs map[string]interface{}) *node.ExecutionResult {
	start := time.Now()
	result := &node.ExecutionResult{
		Metadata: node.ResultMetadata{NodeID: cfg.ID, Kind: cfg.Kind, StartedAt: start},
	}

	var fingerprint string
	if cfg.UseCache {
		fp, err := Fingerprint(cfg, inputs)
		if err == nil {
			fingerprint = fp
			if cached, ok := d.Cache.Get(fp); ok {
				hit := *cached
				hit.CacheHit = true
				return &hit
			}
		}
	}

	if cfg.InputSchema != nil {
		if err := ValidateSchema(inputs, cfg.InputSchema); err != nil {
			return fail(result, apperrors.KindValidation, err, 0)
		}
	}

	exec, ok := d.Manager.Get(cfg.Kind)
	if !ok {
		return fail(result, apperrors.KindInternal, apperrors.New(apperrors.KindInternal, "dispatch",
			&missingExecutorError{kind: cfg.Kind}), 0)
	}

	output, usage, retriesUsed, err := d.runWithRetry(ctx, exec, cfg, inputs)
	if err != nil {
		return fail(result, apperrors.KindOf(err), err, retriesUsed)
	}

	if cfg.OutputSchema != nil {
		if outMap, ok := output.(map[string]interface{}); ok {
			if verr := ValidateSchema(outMap, cfg.OutputSchema); verr != nil {
				return fail(result, apperrors.KindValidation, verr, retriesUsed)
			}
		}
	}

	end := time.Now()
	result.Success = true
	result.Output = output
	result.Usage = usage
	result.Metadata.EndedAt = end
	result.Metadata.Duration = end.Sub(start)
	result.Metadata.RetriesUsed = retriesUsed

	if cfg.UseCache && fingerprint != "" {
		d.Cache.Set(fingerprint, result)
	}
	return result
}

func fail(result *node.ExecutionResult, kind apperrors.Kind, err error, retries int) *node.ExecutionResult {
	end := time.Now()
	result.Success = false
	result.Error = &node.ExecutionError{Kind: string(kind), Message: err.Error()}
	result.Metadata.EndedAt = end
	result.Metadata.Duration = end.Sub(result.Metadata.StartedAt)
	result.Metadata.RetriesUsed = retries
	result.Metadata.ErrorType = string(kind)
	return result
}

type missingExecutorError struct{ kind node.Kind }

func (e *missingExecutorError) Error() string { return "no executor registered for kind " + string(e.kind) }

// runWithRetry implements spec.md §4.3 step 4: timeout per attempt, retry up
// to cfg.Retries with delay = backoff_seconds * 2^(attempt-1), stopping
// early on a non-retriable error or context cancellation.
func (d *Dispatcher) runWithRetry(ctx context.Context, exec Executor, cfg *node.Config, inputs map[string]interface{}) (interface{}, *node.Usage, int, error) {
	var lastErr error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(cfg.BackoffSeconds*math.Pow(2, float64(attempt-1))) * time.Second
			if delay > 0 {
				select {
				case <-ctx.Done():
					return nil, nil, attempt, apperrors.New(apperrors.KindCancelled, "dispatch.retry", ctx.Err())
				case <-time.After(delay):
				}
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if timeout := cfg.Timeout(); timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		output, usage, err := exec.Execute(attemptCtx, cfg, inputs)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return output, usage, attempt, nil
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			err = apperrors.NewNode(apperrors.KindTimeout, "dispatch.execute", cfg.ID, err)
		}
		lastErr = err
		if !apperrors.IsRetriable(err) {
			return nil, nil, attempt, err
		}
	}
	return nil, nil, cfg.Retries, lastErr
}
