package middleware

import (
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"doggo-chat-api/internal/interfaces/http/dto"
	"doggo-chat-api/pkg/logger"
)

const (
	// DefaultUserHeader 上游网关注入的用户标识头
	DefaultUserHeader = "X-User-ID"

	userIDKey    = "user_id"
	maxUserIDLen = 64
)

// userIDPattern 用户 ID 会作为存储路径的一级目录
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@:-]*$`)

// UserContext 从可信网关注入的请求头读取用户 ID，缺失时返回 401
func UserContext(header string) gin.HandlerFunc {
	if header == "" {
		header = DefaultUserHeader
	}
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(header))
		if len(userID) > maxUserIDLen || !userIDPattern.MatchString(userID) {
			dto.Unauthorized(c, "missing or invalid "+header)
			return
		}

		c.Set(userIDKey, userID)
		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetUserID 从 Gin Context 中获取用户 ID
func GetUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
