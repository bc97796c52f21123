package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrInvalidToken 表示 token 无法解析、签名无效或已过期
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenClaims 是 token 中携带的身份信息
type TokenClaims struct {
	UserID   string
	DeviceID string
}

// TokenService 负责签发和校验访问 token
type TokenService interface {
	Issue(userID, deviceID string) (string, error)
	Verify(token string) (*TokenClaims, error)
}

type deviceClaims struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// JWTTokenService 使用 HS256 签名的 JWT 实现 TokenService
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
}

// NewJWTTokenService 创建 JWTTokenService。
// jwtExpiryHours 定义 token 过期的小时数。
func NewJWTTokenService(jwtSecretKey string, jwtExpiryHours int) (*JWTTokenService, error) {
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24 // 默认 24 小时
	}
	return &JWTTokenService{
		secret: []byte(jwtSecretKey),
		expiry: time.Duration(jwtExpiryHours) * time.Hour,
	}, nil
}

// Issue 为用户的某台设备签发 token
func (s *JWTTokenService) Issue(userID, deviceID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, deviceClaims{
		UserID:   userID,
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	})
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Verify 解析并校验 token
func (s *JWTTokenService) Verify(tokenStr string) (*TokenClaims, error) {
	claims := &deviceClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// 只接受 HMAC 签名
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" || claims.DeviceID == "" {
		return nil, ErrInvalidToken
	}
	return &TokenClaims{UserID: claims.UserID, DeviceID: claims.DeviceID}, nil
}
