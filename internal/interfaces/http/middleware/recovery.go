package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"doggo-chat-api/internal/interfaces/http/dto"
	"doggo-chat-api/pkg/logger"
)

// Recovery Panic 恢复中间件
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					fmt.Errorf("%v", r),
					"stack", string(debug.Stack()),
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				if c.Writer.Written() {
					c.Abort()
					return
				}
				dto.InternalError(c, "internal server error")
			}
		}()
		c.Next()
	}
}
