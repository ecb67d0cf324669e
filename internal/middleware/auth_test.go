package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"support-desk-go/pkg/token"
)

func newTestRouter(jwtManager *token.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("/", AuthMiddleware(jwtManager))
	authed.GET("/me", func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"userId": claims.UserID, "orgId": claims.OrgID, "token": RawTokenFrom(c)})
	})
	admin := authed.Group("/admin", RequireRole("org:admin"))
	admin.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	return r
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r := newTestRouter(token.NewJWTManager("secret", ""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_BadHeaderFormat(t *testing.T) {
	r := newTestRouter(token.NewJWTManager("secret", ""))
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_WrongSecretRejected(t *testing.T) {
	other := token.NewJWTManager("other-secret", "")
	tok, err := other.GenerateToken("u1", "org1", "org:agent", time.Hour)
	require.NoError(t, err)

	r := newTestRouter(token.NewJWTManager("secret", ""))
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_ValidTokenExposesClaims(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", "support-desk-identity")
	tok, err := jwtManager.GenerateToken("u1", "org1", "org:agent", time.Hour)
	require.NoError(t, err)

	r := newTestRouter(jwtManager)
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"userId":"u1"`)
	require.Contains(t, w.Body.String(), `"orgId":"org1"`)
	// 原始 token 透传给上游，必须原样保存在上下文中
	require.Contains(t, w.Body.String(), tok)
}

func TestRequireRole(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", "")

	agentTok, err := jwtManager.GenerateToken("u1", "org1", "org:agent", time.Hour)
	require.NoError(t, err)
	adminTok, err := jwtManager.GenerateToken("u2", "org1", "org:admin", time.Hour)
	require.NoError(t, err)

	r := newTestRouter(jwtManager)

	req := httptest.NewRequest("GET", "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+agentTok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest("GET", "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
