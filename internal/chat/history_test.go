package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"humanly-server/internal/model"
)

func testState(flags FlagStore) *SessionState {
	return NewSessionState(flags, 1, time.Hour)
}

func TestLoadChatHistoryFromDB(t *testing.T) {
	source := &fakeSource{rows: []model.ChatMessage{
		{ID: 1, UserID: 1, Role: model.MessageRoleUser, Content: "早", CreatedAt: time.Now().Add(-2 * time.Minute)},
		{ID: 2, UserID: 1, Role: model.MessageRoleAssistant, Content: "早上好", CreatedAt: time.Now().Add(-time.Minute)},
	}}
	loader := NewHistoryLoader(source, newFakeSnapshots())

	messages := loader.LoadChatHistory(context.Background(), 1, testState(newFakeFlags()), "user:1", 50)

	require.Len(t, messages, 2)
	require.Equal(t, "1", messages[0].ID)
	require.Equal(t, RoleUser, messages[0].Role)
	require.True(t, messages[0].Persisted)
	require.Equal(t, int64(2), messages[1].RemoteID)
}

func TestLoadChatHistoryHonorsLimit(t *testing.T) {
	rows := make([]model.ChatMessage, 10)
	for i := range rows {
		rows[i] = model.ChatMessage{ID: int64(i + 1), Role: model.MessageRoleUser, Content: "m"}
	}
	loader := NewHistoryLoader(&fakeSource{rows: rows}, newFakeSnapshots())

	messages := loader.LoadChatHistory(context.Background(), 1, testState(newFakeFlags()), "user:1", 4)

	// 取最新 4 条，保持正序
	require.Len(t, messages, 4)
	require.Equal(t, "7", messages[0].ID)
	require.Equal(t, "10", messages[3].ID)
}

func TestLoadChatHistoryFreshChatGivesEmpty(t *testing.T) {
	flags := newFakeFlags()
	state := testState(flags)
	require.NoError(t, state.RequestFreshChat(context.Background()))

	source := &fakeSource{rows: []model.ChatMessage{{ID: 1, Role: model.MessageRoleUser, Content: "旧"}}}
	loader := NewHistoryLoader(source, newFakeSnapshots())

	messages := loader.LoadChatHistory(context.Background(), 1, state, "user:1", 50)
	require.Empty(t, messages)

	// 标记被消费并晋升为已清空：再次加载仍为空
	require.True(t, state.ChatCleared(context.Background()))
	messages = loader.LoadChatHistory(context.Background(), 1, state, "user:1", 50)
	require.Empty(t, messages)
}

func TestLoadChatHistoryFallsBackToSnapshot(t *testing.T) {
	snapshots := newFakeSnapshots()
	cached := []Message{{ID: "a", Role: RoleUser, Content: "来自快照"}}
	require.NoError(t, snapshots.SaveMessageSnapshot(context.Background(), "user:1", cached, time.Hour))

	// 数据库错误 → 快照兜底
	loader := NewHistoryLoader(&fakeSource{err: errNetwork}, snapshots)
	messages := loader.LoadChatHistory(context.Background(), 1, testState(newFakeFlags()), "user:1", 50)
	require.Len(t, messages, 1)
	require.Equal(t, "来自快照", messages[0].Content)

	// 数据库为空 → 同样走快照
	loader = NewHistoryLoader(&fakeSource{}, snapshots)
	messages = loader.LoadChatHistory(context.Background(), 1, testState(newFakeFlags()), "user:1", 50)
	require.Len(t, messages, 1)
}

func TestLoadChatHistoryCoercesUnknownRole(t *testing.T) {
	source := &fakeSource{rows: []model.ChatMessage{
		{ID: 1, Role: "system", Content: "脏数据"},
	}}
	loader := NewHistoryLoader(source, newFakeSnapshots())

	messages := loader.LoadChatHistory(context.Background(), 1, testState(newFakeFlags()), "user:1", 50)
	require.Len(t, messages, 1)
	require.Equal(t, RoleUser, messages[0].Role)
}

func TestLoadChatHistoryNeverErrors(t *testing.T) {
	// 数据库和快照都失败时返回空列表而不是错误
	loader := NewHistoryLoader(&fakeSource{err: errNetwork}, newFakeSnapshots())
	messages := loader.LoadChatHistory(context.Background(), 1, testState(newFakeFlags()), "user:1", 50)
	require.NotNil(t, messages)
	require.Empty(t, messages)
}

func TestSnapshotKeyByTier(t *testing.T) {
	// 高级档按用户级存储
	require.Equal(t, "user:7", SnapshotKey(7, model.TierPremium, "abc"))
	// 免费/基础档附加会话子键
	require.Equal(t, "user:7:abc", SnapshotKey(7, model.TierFree, "abc"))
	require.Equal(t, "user:7:abc", SnapshotKey(7, model.TierBasic, "abc"))
	// 会话标识缺失时退回用户级
	require.Equal(t, "user:7", SnapshotKey(7, model.TierFree, ""))
}
