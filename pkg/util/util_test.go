package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-密码")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-密码", hash)

	require.True(t, CheckPassword("s3cret-密码", hash))
	require.False(t, CheckPassword("wrong", hash))
}

func TestGenerateSessionID(t *testing.T) {
	id := GenerateSessionID()
	require.Len(t, id, 32)
	require.NotContains(t, id, "-")
	require.NotEqual(t, id, GenerateSessionID())
}

func TestGenerateToken(t *testing.T) {
	token := GenerateToken(16)
	require.Len(t, token, 32)
	require.NotEqual(t, token, GenerateToken(16))
}

func TestDayKey(t *testing.T) {
	require.Equal(t, "20250114", DayKey(time.Date(2025, 1, 14, 23, 59, 0, 0, time.UTC)))
	require.Equal(t, "20251201", DayKey(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)))
}
