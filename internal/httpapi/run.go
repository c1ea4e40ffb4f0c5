package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/blueprint"
	"github.com/smilemakc/flowcore/internal/engine"
	"github.com/smilemakc/flowcore/internal/events"
	"github.com/smilemakc/flowcore/internal/node"
)

// runStatus is GetRun's status field while a run hasn't produced a
// RunResult yet (spec.md §6: "202 while running").
type runStatus string

const (
	runStatusRunning   runStatus = "running"
	runStatusCompleted runStatus = "completed"
	runStatusFailed    runStatus = "failed"
)

// runRecord tracks one StartRun call's lifecycle, since engine.Engine.Run
// blocks to completion and StartRun must return immediately with a run_id
// per spec.md §6 ("run begins asynchronously").
type runRecord struct {
	WorkflowID string
	Status     runStatus
	Result     *engine.RunResult
	Err        error
	StartedAt  time.Time
	EndedAt    time.Time
}

// RunStore is the in-process registry of in-flight and completed runs.
// Grounded on internal/application/observer.Manager's in-memory registry
// style; not persisted, since a run's authoritative state is the
// engine.State held for its duration and the RunResult once it finishes.
type RunStore struct {
	mu      sync.RWMutex
	records map[string]*runRecord
}

func NewRunStore() *RunStore {
	return &RunStore{records: make(map[string]*runRecord)}
}

func (s *RunStore) start(runID, workflowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[runID] = &runRecord{WorkflowID: workflowID, Status: runStatusRunning, StartedAt: time.Now()}
}

func (s *RunStore) finish(runID string, result *engine.RunResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[runID]
	if !ok {
		return
	}
	rec.EndedAt = time.Now()
	rec.Result = result
	rec.Err = err
	if err != nil {
		rec.Status = runStatusFailed
	} else {
		rec.Status = runStatusCompleted
	}
}

func (s *RunStore) get(runID string) (*runRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	return rec, ok
}

// RunHandlers implements spec.md §6's run lifecycle: StartRun, GetRun,
// RunEvents.
type RunHandlers struct {
	engine *engine.Engine
	loader *blueprint.Loader
	bus    *events.Bus
	runs   *RunStore
}

func NewRunHandlers(eng *engine.Engine, loader *blueprint.Loader, bus *events.Bus, runs *RunStore) *RunHandlers {
	return &RunHandlers{engine: eng, loader: loader, bus: bus, runs: runs}
}

type startRunRequest struct {
	BlueprintID string          `json:"blueprint_id"`
	Blueprint   *node.Blueprint `json:"blueprint"`
	Input       map[string]any  `json:"input"`
	Options     startRunOptions `json:"options"`
}

type startRunOptions struct {
	MaxParallel int `json:"max_parallel"`
}

// HandleStart handles StartRun: {blueprint_id? | blueprint?, options:{max_parallel}}
// → {run_id, events_endpoint}. The run itself executes in a detached
// goroutine; this handler never blocks on it.
func (h *RunHandlers) HandleStart(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.New(apperrors.KindValidation, "run.start", err))
		return
	}

	var nodes []*node.Config
	switch {
	case req.BlueprintID != "":
		loaded, err := h.loader.LoadWorkflow(c.Request.Context(), req.BlueprintID)
		if err != nil {
			respondError(c, err)
			return
		}
		nodes = loaded
	case req.Blueprint != nil:
		if err := req.Blueprint.Validate(); err != nil {
			respondError(c, apperrors.New(apperrors.KindValidation, "run.start", err))
			return
		}
		nodes = req.Blueprint.Nodes
	default:
		respondError(c, apperrors.New(apperrors.KindValidation, "run.start",
			errMissingBlueprintRef{}))
		return
	}

	runID := uuid.New().String()
	maxParallel := req.Options.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	h.runs.start(runID, runID)

	go func() {
		ctx := context.Background()
		result, err := h.engine.Run(ctx, runID, nodes, req.Input, engine.Options{
			MaxParallel:   maxParallel,
			FailurePolicy: engine.PolicyHalt,
		})
		h.runs.finish(runID, result, err)
	}()

	respondJSON(c, http.StatusAccepted, gin.H{
		"run_id":         runID,
		"events_endpoint": "/v1/runs/" + runID + "/events",
	})
}

type errMissingBlueprintRef struct{}

func (errMissingBlueprintRef) Error() string { return "run.start: blueprint_id or blueprint is required" }

// HandleGet handles GetRun: returns the terminal RunResult, or 202 with a
// running status while the run is still in flight.
func (h *RunHandlers) HandleGet(c *gin.Context) {
	runID := c.Param("id")
	rec, ok := h.runs.get(runID)
	if !ok {
		respondError(c, apperrors.New(apperrors.KindNotFound, "run.get", errRunNotFound{runID}))
		return
	}

	if rec.Status == runStatusRunning {
		respondJSON(c, http.StatusAccepted, gin.H{"run_id": runID, "status": rec.Status})
		return
	}

	if rec.Err != nil {
		respondError(c, rec.Err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{
		"run_id":      runID,
		"status":      rec.Status,
		"workflow_id": rec.Result.WorkflowID,
		"phase":       rec.Result.Phase,
		"outputs":     rec.Result.Outputs,
		"errors":      rec.Result.Errors,
		"tokens_used": rec.Result.TokensUsed,
	})
}

type errRunNotFound struct{ id string }

func (e errRunNotFound) Error() string { return "run " + e.id + " not found" }

// sseSubscriber bridges the events.Bus's push model onto a buffered
// channel an SSE handler can range over, per events.Subscriber's contract
// that OnEvent must not block meaningfully.
type sseSubscriber struct {
	name string
	filt events.Filter
	ch   chan events.Event
}

func (s *sseSubscriber) Name() string         { return s.name }
func (s *sseSubscriber) Filter() events.Filter { return s.filt }
func (s *sseSubscriber) OnEvent(e events.Event) {
	select {
	case s.ch <- e:
	default:
		// Slow consumer: drop rather than block the bus's delivery goroutine.
	}
}

// HandleEvents handles RunEvents: a server-sent stream of typed events in
// emission order for one run_id, closing once a workflow_completed event
// for that run is observed.
func (h *RunHandlers) HandleEvents(c *gin.Context) {
	runID := c.Param("id")
	if _, ok := h.runs.get(runID); !ok {
		respondError(c, apperrors.New(apperrors.KindNotFound, "run.events", errRunNotFound{runID}))
		return
	}

	sub := &sseSubscriber{
		name: "sse-" + runID + "-" + uuid.New().String(),
		filt: events.NewWorkflowIDFilter(runID),
		ch:   make(chan events.Event, 256),
	}
	if err := h.bus.Subscribe(sub); err != nil {
		respondError(c, apperrors.New(apperrors.KindInternal, "run.events", err))
		return
	}
	defer h.bus.Unsubscribe(sub.name)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-sub.ch:
			if !ok {
				return false
			}
			payload, err := json.Marshal(e)
			if err != nil {
				return false
			}
			c.SSEvent(string(e.Type), string(payload))
			return e.Type != events.TypeWorkflowCompleted
		}
	})
}
