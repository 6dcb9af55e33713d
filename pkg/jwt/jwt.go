// Package jwt 提供 JWT Token 的生成和验证功能
// JWT (JSON Web Token) 用于用户认证
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// 定义错误类型
var (
	ErrInvalidToken = errors.New("invalid token")     // Token 无效
	ErrExpiredToken = errors.New("token has expired") // Token 已过期
)

// UserClaims 用户 JWT 的声明（Payload）
// 包含用户相关信息
type UserClaims struct {
	UserID   int64  `json:"user_id"`  // 用户 ID
	Username string `json:"username"` // 用户名
	jwt.RegisteredClaims              // 标准声明（过期时间等）
}

// JWTService 提供 JWT 相关操作
type JWTService struct {
	secret        []byte        // JWT 签名密钥
	accessExpire  time.Duration // Access Token 过期时间
	refreshExpire time.Duration // Refresh Token 过期时间
}

// NewJWTService 创建 JWTService 实例
// 参数:
//   - secret: JWT 签名密钥，至少 32 个字符
//   - accessExpire: Access Token 过期时间
//   - refreshExpire: Refresh Token 过期时间
//
// 返回:
//   - *JWTService: JWT 服务实例
func NewJWTService(secret string, accessExpire, refreshExpire time.Duration) *JWTService {
	return &JWTService{
		secret:        []byte(secret),
		accessExpire:  accessExpire,
		refreshExpire: refreshExpire,
	}
}

// GenerateAccessToken 生成 Access Token
// 用于普通请求的认证
// 参数:
//   - userID: 用户 ID
//   - username: 用户名
//
// 返回:
//   - string: JWT Token 字符串
//   - error: 生成错误
func (s *JWTService) GenerateAccessToken(userID int64, username string) (string, error) {
	claims := UserClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			// ExpiresAt: Token 过期时间
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessExpire)),
			// IssuedAt: Token 签发时间
			IssuedAt: jwt.NewNumericDate(time.Now()),
			// NotBefore: Token 生效时间（设为现在）
			NotBefore: jwt.NewNumericDate(time.Now()),
			// Issuer: 签发者标识
			Issuer: "humanly-ai",
			// Subject: 主题（这里使用 "access" 区分 Token 类型）
			Subject: "access",
		},
	}

	// jwt.SigningMethodHS256: 使用 HMAC SHA256 算法签名
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GenerateRefreshToken 生成 Refresh Token
// 用于刷新 Access Token
// 参数:
//   - userID: 用户 ID
//   - username: 用户名
//
// 返回:
//   - string: JWT Token 字符串
//   - error: 生成错误
func (s *JWTService) GenerateRefreshToken(userID int64, username string) (string, error) {
	claims := UserClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.refreshExpire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "humanly-ai",
			Subject:   "refresh", // 标识为 Refresh Token
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken 验证 Access Token
// 参数:
//   - tokenString: JWT Token 字符串
//
// 返回:
//   - *UserClaims: Token 中的声明信息
//   - error: 验证失败返回错误
func (s *JWTService) ValidateToken(tokenString string) (*UserClaims, error) {
	return s.parseToken(tokenString, "access")
}

// ValidateRefreshToken 验证 Refresh Token
// 参数:
//   - tokenString: JWT Token 字符串
//
// 返回:
//   - *UserClaims: Token 中的声明信息
//   - error: 验证失败返回错误
func (s *JWTService) ValidateRefreshToken(tokenString string) (*UserClaims, error) {
	return s.parseToken(tokenString, "refresh")
}

// parseToken 解析并验证 Token
// 检查签名、过期时间以及 Token 类型（Subject）
func (s *JWTService) parseToken(tokenString, subject string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		// 确认签名算法是 HMAC，防止算法替换攻击
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	// 检查 Token 类型，防止用 Refresh Token 当 Access Token 使用
	if claims.Subject != subject {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetAccessExpire 获取 Access Token 过期时间
func (s *JWTService) GetAccessExpire() time.Duration {
	return s.accessExpire
}

// GetRefreshExpire 获取 Refresh Token 过期时间
func (s *JWTService) GetRefreshExpire() time.Duration {
	return s.refreshExpire
}
