package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smilemakc/flowcore/internal/apperrors"
	"github.com/smilemakc/flowcore/internal/events"
)

// wsUpgrader mirrors the SSE stream's access pattern (no auth header
// required beyond what the gin middleware chain already enforces) so dev
// tooling can drive a bidirectional connection against the same run_id
// filter RunEvents uses over SSE.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandleEventsWS is a websocket alternative to RunEvents' SSE stream,
// grounded on the teacher's websocket_observer.go/websocket_handler.go
// upgrade-and-pump idiom, retargeted onto internal/events.Bus.
func (h *RunHandlers) HandleEventsWS(c *gin.Context) {
	runID := c.Param("id")
	if _, ok := h.runs.get(runID); !ok {
		respondError(c, apperrors.New(apperrors.KindNotFound, "run.events_ws", errRunNotFound{runID}))
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := &sseSubscriber{
		name: "ws-" + runID + "-" + uuid.New().String(),
		filt: events.NewWorkflowIDFilter(runID),
		ch:   make(chan events.Event, 256),
	}
	if err := h.bus.Subscribe(sub); err != nil {
		return
	}
	defer h.bus.Unsubscribe(sub.name)

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			if e.Type == events.TypeWorkflowCompleted {
				return
			}
		}
	}
}
