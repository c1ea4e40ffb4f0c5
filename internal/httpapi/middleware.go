package httpapi

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smilemakc/flowcore/internal/logger"
)

const (
	requestIDHeader     = "X-Request-ID"
	contextKeyRequestID = "request_id"
)

func requestID(c *gin.Context) string {
	v, ok := c.Get(contextKeyRequestID)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// RequestLogger assigns/propagates X-Request-ID and logs request start and
// completion, mirroring rest.LoggingMiddleware.RequestLogger.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(requestIDHeader, id)

		log.Info("request started",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)

		c.Next()

		log.Info("request completed",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Recovery converts a panic into a 500 APIError instead of crashing the
// process, mirroring rest.RecoveryMiddleware.Recovery.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				id := requestID(c)
				log.Error("panic recovered",
					"request_id", id,
					"path", c.Request.URL.Path,
					"error", r,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, NewAPIError(
					"INTERNAL_ERROR", "internal server error", http.StatusInternalServerError,
				))
			}
		}()
		c.Next()
	}
}
