package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole 检查用户是否具有指定角色。
// 此中间件必须在 AuthMiddleware 之后使用。
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 AuthMiddleware 设置的上下文中获取 claims
		claims, ok := ClaimsFrom(c)
		if !ok {
			// 如果 claims 不存在，说明 AuthMiddleware 未能成功解析，这是一个服务器内部错误
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
			return
		}

		if claims.Role != role {
			// 角色不匹配，则返回 Forbidden 状态
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足"})
			return
		}

		c.Next()
	}
}
