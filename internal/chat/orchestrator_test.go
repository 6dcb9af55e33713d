package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"humanly-server/internal/llm"
	"humanly-server/internal/model"
)

// fakeGate 可编程的用量门控
type fakeGate struct {
	mu       sync.Mutex
	current  int64
	limit    int64
	consumed int
}

func (g *fakeGate) Current(ctx context.Context, userID int64) (UsageInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return NewUsageInfo(g.current, g.limit), nil
}

func (g *fakeGate) Consume(ctx context.Context, userID int64) (UsageInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current++
	g.consumed++
	return NewUsageInfo(g.current, g.limit), nil
}

// fakeNotifier 记录推送事件
type fakeNotifier struct {
	mu        sync.Mutex
	deltas    []string
	completes []Message
	errors    []llm.ErrorKind
}

func (n *fakeNotifier) ChatDelta(userID int64, messageID, delta string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deltas = append(n.deltas, delta)
}

func (n *fakeNotifier) ChatComplete(userID int64, message Message, usage *UsageInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completes = append(n.completes, message)
}

func (n *fakeNotifier) ChatError(userID int64, kind llm.ErrorKind, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, kind)
}

type orchFixture struct {
	store     *Store
	state     *SessionState
	snapshots *fakeSnapshots
	sink      *fakeSink
	syncer    *Syncer
	completer *fakeCompleter
	gate      *fakeGate
	notifier  *fakeNotifier
	orch      *Orchestrator
}

func newOrchFixture(t *testing.T, tier string, completer *fakeCompleter) *orchFixture {
	t.Helper()

	store := NewStore()
	state := NewSessionState(newFakeFlags(), 1, time.Hour)
	snapshots := newFakeSnapshots()
	sink := &fakeSink{}
	syncer := NewSyncer(store, snapshots, sink, 1, "user:1", time.Hour, time.Hour)
	gate := &fakeGate{limit: 10}
	notifier := &fakeNotifier{}

	orch := NewOrchestrator(OrchestratorConfig{
		Store:        store,
		Syncer:       syncer,
		State:        state,
		Completer:    completer,
		UserID:       1,
		Tier:         tier,
		FreeWindow:   2,
		BasicWindow:  4,
		HistoryBound: 50,
		SystemPrompt: "你是情商教练",
		Notifier:     notifier,
		Usage:        gate,
	})

	return &orchFixture{
		store: store, state: state, snapshots: snapshots, sink: sink,
		syncer: syncer, completer: completer, gate: gate, notifier: notifier, orch: orch,
	}
}

func TestSendChatMessageHappyPath(t *testing.T) {
	completer := &fakeCompleter{reply: "你好，今天想聊什么？", deltas: []string{"你好，", "今天想聊什么？"}}
	fx := newOrchFixture(t, model.TierPremium, completer)

	reply, err := fx.orch.SendChatMessage(context.Background(), "你好")
	require.NoError(t, err)
	require.Equal(t, RoleAssistant, reply.Role)
	require.Equal(t, "你好，今天想聊什么？", reply.Content)

	// 消息列表：用户消息 + 回填后的助手消息
	messages := fx.store.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, "你好", messages[0].Content)
	require.Equal(t, reply.ID, messages[1].ID)

	// 流结束后立即落盘：用户消息和助手消息按顺序写库
	require.Equal(t, 2, fx.sink.count())
	require.Equal(t, "你好", fx.sink.created[0].Content)
	require.Equal(t, "你好，今天想聊什么？", fx.sink.created[1].Content)
	require.True(t, messages[0].Persisted)
	require.True(t, messages[1].Persisted)

	// 计量与推送
	require.Equal(t, 1, fx.gate.consumed)
	require.Equal(t, []string{"你好，", "今天想聊什么？"}, fx.notifier.deltas)
	require.Len(t, fx.notifier.completes, 1)
	require.Empty(t, fx.orch.LastError())
	require.Equal(t, int64(1), fx.orch.LastUsage().CurrentUsage)
}

func TestSendChatMessageEmptyIsNoop(t *testing.T) {
	fx := newOrchFixture(t, model.TierFree, &fakeCompleter{reply: "x"})

	_, err := fx.orch.SendChatMessage(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
	require.Equal(t, 0, fx.store.Len())
	require.Empty(t, fx.completer.windows)
}

func TestSendChatMessageQuotaPreGate(t *testing.T) {
	fx := newOrchFixture(t, model.TierFree, &fakeCompleter{reply: "x"})
	fx.gate.current = 10 // 达到额度

	_, err := fx.orch.SendChatMessage(context.Background(), "还能聊吗")
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// 发起前拒绝：不追加消息也不调用补全
	require.Equal(t, 0, fx.store.Len())
	require.Empty(t, fx.completer.windows)
	require.NotEmpty(t, fx.orch.LastError())
}

func TestSendChatMessageClassifiesFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("You exceeded your current quota, please check your billing")}
	fx := newOrchFixture(t, model.TierFree, completer)

	_, err := fx.orch.SendChatMessage(context.Background(), "你好")
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// 失败后占位消息保留（空白，不可见），等待用户重试
	require.Equal(t, 2, fx.store.Len())
	require.Len(t, fx.store.Visible(), 1)
	require.Len(t, fx.notifier.errors, 1)
	require.Equal(t, llm.ErrorKindQuota, fx.notifier.errors[0])
	require.NotEmpty(t, fx.orch.LastError())

	// 认证类错误
	completer.err = errors.New("Incorrect API key provided")
	_, err = fx.orch.RetryLastMessage(context.Background())
	require.ErrorIs(t, err, ErrAIKeyInvalid)

	// 其他错误归为服务不可用
	completer.err = errNetwork
	_, err = fx.orch.RetryLastMessage(context.Background())
	require.ErrorIs(t, err, ErrAIUnavailable)
}

func TestRetryLastMessageReplacesFailedReply(t *testing.T) {
	completer := &fakeCompleter{err: errNetwork}
	fx := newOrchFixture(t, model.TierPremium, completer)

	_, err := fx.orch.SendChatMessage(context.Background(), "帮我分析一下")
	require.ErrorIs(t, err, ErrAIUnavailable)
	require.Equal(t, 2, fx.store.Len())

	// 恢复后重试：旧占位被墓碑移除，新回复出现
	completer.err = nil
	completer.reply = "我们一步步来"
	reply, err := fx.orch.RetryLastMessage(context.Background())
	require.NoError(t, err)
	require.Equal(t, "我们一步步来", reply.Content)

	messages := fx.store.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, "帮我分析一下", messages[0].Content)
	require.Equal(t, "我们一步步来", messages[1].Content)
}

func TestRetryWithoutUserMessage(t *testing.T) {
	fx := newOrchFixture(t, model.TierFree, &fakeCompleter{reply: "x"})

	_, err := fx.orch.RetryLastMessage(context.Background())
	require.ErrorIs(t, err, ErrNothingToRetry)
}

func TestBuildWindowByTier(t *testing.T) {
	history := []Message{
		{ID: "1", Role: RoleUser, Content: "u1"},
		{ID: "2", Role: RoleAssistant, Content: "a1"},
		{ID: "3", Role: RoleUser, Content: "u2"},
		{ID: "4", Role: RoleAssistant, Content: "a2"},
		{ID: "5", Role: RoleUser, Content: "u3"},
		{ID: "6", Role: RoleAssistant, Content: "a3"},
	}

	cases := []struct {
		tier  string
		prior int // 历史片段条数（不含系统提示词和最新用户消息）
	}{
		{model.TierFree, 2},
		{model.TierBasic, 4},
		{model.TierPremium, 6},
	}

	for _, tc := range cases {
		completer := &fakeCompleter{reply: "ok"}
		fx := newOrchFixture(t, tc.tier, completer)
		fx.store.Replace(history)

		_, err := fx.orch.SendChatMessage(context.Background(), "最新问题")
		require.NoError(t, err)

		require.Len(t, completer.windows, 1)
		window := completer.windows[0]
		// 系统提示词 + 历史 + 最新用户消息
		require.Len(t, window, 1+tc.prior+1, "tier=%s", tc.tier)
		require.Equal(t, "system", window[0].Role)
		require.Equal(t, "最新问题", window[len(window)-1].Content)
		// 历史取的是最近的片段
		require.Equal(t, history[len(history)-tc.prior].Content, window[1].Content, "tier=%s", tc.tier)
	}
}

func TestStartNewChatClearsEverything(t *testing.T) {
	fx := newOrchFixture(t, model.TierFree, &fakeCompleter{reply: "好的"})

	_, err := fx.orch.SendChatMessage(context.Background(), "先聊一句")
	require.NoError(t, err)
	require.NotZero(t, fx.store.Len())

	fx.orch.StartNewChat(context.Background())

	require.Equal(t, 0, fx.store.Len())
	require.True(t, fx.state.ChatCleared(context.Background()))
	require.Empty(t, fx.orch.LastError())

	// 快照也被删除，兜底路径不会复活旧消息
	var cached []Message
	found, _ := fx.snapshots.LoadMessageSnapshot(context.Background(), "user:1", &cached)
	require.False(t, found)
}
