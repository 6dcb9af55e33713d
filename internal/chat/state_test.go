package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFreshChatFlagIsDurable(t *testing.T) {
	flags := newFakeFlags()
	state := testState(flags)

	require.NoError(t, state.RequestFreshChat(context.Background()))

	// 登出设置的标记要等到下次登录才消费，不能随会话级标记一起过期
	require.Equal(t, time.Duration(0), flags.ttlOf(1, flagFreshChat))

	// 消费后晋升为 chat_cleared，且只能消费一次
	require.True(t, state.ConsumeFreshChat(context.Background()))
	require.True(t, state.ChatCleared(context.Background()))
	require.False(t, state.ConsumeFreshChat(context.Background()))
}

func TestSessionScopedFlagsCarryTTL(t *testing.T) {
	flags := newFakeFlags()
	state := testState(flags)

	require.NoError(t, state.MarkChatCleared(context.Background()))
	require.NoError(t, state.MarkLoginSuccess(context.Background()))

	require.Equal(t, time.Hour, flags.ttlOf(1, flagChatCleared))
	require.Equal(t, time.Hour, flags.ttlOf(1, flagLoginSuccess))
}
