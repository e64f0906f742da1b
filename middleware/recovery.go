package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Recovery turns a panic into a 500. The panic is logged with the request's
// principal and recorded on the active span.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			requestID := GetRequestID(c)
			logger.Error(ctx, "panic recovered",
				"error", rec,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"stack", string(debug.Stack()),
			)
			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.RecordError(fmt.Errorf("panic: %v", rec))
				span.SetStatus(codes.Error, "panic recovered")
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":      "Internal server error",
				"request_id": requestID,
			})
		}()

		c.Next()
	}
}
