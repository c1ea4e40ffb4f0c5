package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/smilemakc/flowcore/internal/blueprint"
	"github.com/smilemakc/flowcore/internal/engine"
	"github.com/smilemakc/flowcore/internal/events"
	"github.com/smilemakc/flowcore/internal/logger"
)

// NewRouter builds the gin engine exposing spec.md §6's blueprint and run
// lifecycle surface. Grounded on cmd/server/main.go's router assembly
// (recovery + request-id logging middleware, then a versioned route
// group), trimmed to the components SPEC_FULL.md actually names.
func NewRouter(store *blueprint.Store, loader *blueprint.Loader, eng *engine.Engine, bus *events.Bus, runs *RunStore, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(log), RequestLogger(log))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	bp := NewBlueprintHandlers(store)
	runHandlers := NewRunHandlers(eng, loader, bus, runs)

	v1 := router.Group("/v1")
	{
		blueprints := v1.Group("/blueprints")
		blueprints.POST("/:id", bp.HandleCreate)
		blueprints.GET("/:id", bp.HandleGet)
		blueprints.PUT("/:id", bp.HandlePut)
		blueprints.PATCH("/:id", bp.HandlePatch)
		blueprints.DELETE("/:id", bp.HandleDelete)

		runsGroup := v1.Group("/runs")
		runsGroup.POST("", runHandlers.HandleStart)
		runsGroup.GET("/:id", runHandlers.HandleGet)
		runsGroup.GET("/:id/events", runHandlers.HandleEvents)
		runsGroup.GET("/:id/events/ws", runHandlers.HandleEventsWS)
	}

	return router
}
