package middleware

import (
	"fmt"
	"time"

	"bloodbank/pkg/apperror"
	"bloodbank/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID propagates or generates a request id and attaches it to the log context.
func RequestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(RequestIDHeader, reqID)
		if log != nil {
			c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), reqID))
		}
		c.Next()
	}
}

// Logging writes one line per completed request.
func Logging(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}

		ctx := log.WithFields(c.Request.Context(), map[string]any{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		if len(c.Errors) > 0 {
			log.Error(ctx, "request.complete", c.Errors.Last())
			return
		}
		log.Info(ctx, "request.complete")
	}
}

// Recovery turns a panic into an INTERNAL_ERROR envelope.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				if log != nil {
					log.Error(c.Request.Context(), "request.panic", err)
				}
				abortWithError(c, apperror.Internal(err, "unexpected failure"))
			}
		}()
		c.Next()
	}
}
