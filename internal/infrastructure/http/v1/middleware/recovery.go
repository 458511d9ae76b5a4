// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/pkg/logger"
)

// Recovery middleware recovers from panics and returns 500 error.
// Logs stack trace but never exposes internal details to client.
// Registry lookups panic with *apperror.AppError on configuration faults.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"error", rec,
				"stack", string(debug.Stack()),
			)

			appErr, ok := rec.(*apperror.AppError)
			if !ok {
				appErr = apperror.NewInternal(fmt.Errorf("panic: %v", rec))
			}
			_ = c.Error(appErr)
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":    appErr.Code,
					"message": "Internal server error",
					"details": map[string]any{
						"request_id": c.GetString("request_id"),
					},
				})
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}
