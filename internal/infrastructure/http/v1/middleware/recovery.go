// Package middleware provides HTTP middleware of the pricing API.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"offerengine/internal/core/apperror"
	"offerengine/pkg/logger"
)

// Recovery turns a panic into a 500 response and marks the request span failed.
// The stack is logged, never returned.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.Request.Context()
				logger.Error(ctx, "panic recovered",
					"error", r,
					"stack", string(debug.Stack()),
				)

				err := fmt.Errorf("panic: %v", r)
				span := trace.SpanFromContext(ctx)
				span.RecordError(err)
				span.SetStatus(codes.Error, "panic")

				_ = c.Error(apperror.NewInternal(err).WithDetail("request_id", c.GetString(ContextKeyRequestID)))
				c.Abort()
			}
		}()
		c.Next()
	}
}
