// Package token 提供了用于验证 JSON Web Tokens (JWT) 的功能。
// 令牌由外部身份服务签发，本服务只负责校验签名与取出声明。
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责管理 JWT 的验证。
type JWTManager struct {
	secretKey []byte // secretKey 用于验证 token 签名的共享密钥
	issuer    string // issuer 为身份服务声明的签发者，为空时不校验
}

// IdentityClaims 定义了身份服务在 JWT 中存储的自定义数据。
// 它嵌入了 jwt.RegisteredClaims 以包含标准的 JWT 声明（如过期时间）。
type IdentityClaims struct {
	UserID string `json:"userId"`
	OrgID  string `json:"orgId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		issuer:    issuer,
	}
}

// VerifyToken 验证给定的 token 字符串。
// 如果 token 有效，它会返回 IdentityClaims 对象。
// 如果 token 无效（例如，签名不匹配或已过期），则返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (*IdentityClaims, error) {
	// 解析 token 字符串
	token, err := jwt.ParseWithClaims(tokenString, &IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		// 返回密钥用于验证
		return m.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	// 从解析后的 token 中提取 claims
	claims, ok := token.Claims.(*IdentityClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	if m.issuer != "" && claims.Issuer != m.issuer {
		return nil, errors.New("unexpected token issuer")
	}
	if claims.UserID == "" || claims.OrgID == "" {
		return nil, errors.New("token missing identity claims")
	}
	return claims, nil
}

// GenerateToken 按身份服务的格式签发一个 token，测试辅助用。
func (m *JWTManager) GenerateToken(userID, orgID, role string, ttl time.Duration) (string, error) {
	claims := IdentityClaims{
		UserID: userID,
		OrgID:  orgID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}
