// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"support-desk-go/pkg/token"
)

// 上下文键。身份完全由外部身份服务签发的 token 决定，本服务不查本地用户表。
const (
	CtxClaims   = "claims"
	CtxRawToken = "rawToken"
)

// AuthMiddleware 创建一个 Gin 中间件，用于校验身份服务签发的 JWT。
// 它会从请求头中提取 token，验证其有效性，并将 claims 与原始 token 存入 Gin 的上下文中。
// 原始 token 保留下来用于透传给助手后端。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 Authorization 请求头中获取 token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			// 如果请求头为空，则中止请求，返回未授权状态
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}

		// Token 通常以 "Bearer <token>" 的形式提供，我们需要提取出 token 本身
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			// 如果 token 格式不正确，则返回错误
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		// 将 claims 与原始 token 存储在 context 中，供后续处理函数使用
		c.Set(CtxClaims, claims)
		c.Set(CtxRawToken, tokenString)

		// 继续处理请求链中的下一个处理器
		c.Next()
	}
}

// ClaimsFrom 从上下文中取出身份声明。AuthMiddleware 之后必然存在。
func ClaimsFrom(c *gin.Context) (*token.IdentityClaims, bool) {
	v, exists := c.Get(CtxClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*token.IdentityClaims)
	return claims, ok
}

// RawTokenFrom 从上下文中取出原始 bearer token。
func RawTokenFrom(c *gin.Context) string {
	return c.GetString(CtxRawToken)
}
