package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService() *JWTService {
	return NewJWTService("test-secret-at-least-32-characters!", time.Hour, 24*time.Hour)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	svc := newTestService()

	token, err := svc.GenerateAccessToken(42, "alice")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "access", claims.Subject)
}

func TestRefreshTokenNotUsableAsAccess(t *testing.T) {
	svc := newTestService()

	refresh, err := svc.GenerateRefreshToken(42, "alice")
	require.NoError(t, err)

	// Refresh Token 不能当 Access Token 用，反之亦然
	_, err = svc.ValidateToken(refresh)
	require.ErrorIs(t, err, ErrInvalidToken)

	claims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, "refresh", claims.Subject)

	access, err := svc.GenerateAccessToken(42, "alice")
	require.NoError(t, err)
	_, err = svc.ValidateRefreshToken(access)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredToken(t *testing.T) {
	svc := NewJWTService("test-secret-at-least-32-characters!", -time.Minute, -time.Minute)

	token, err := svc.GenerateAccessToken(42, "alice")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := newTestService().GenerateAccessToken(42, "alice")
	require.NoError(t, err)

	other := NewJWTService("another-secret-also-32-characters!!", time.Hour, 24*time.Hour)
	_, err = other.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageTokenRejected(t *testing.T) {
	_, err := newTestService().ValidateToken("not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}
