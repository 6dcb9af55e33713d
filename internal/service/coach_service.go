package service

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"humanly-server/internal/cache"
	"humanly-server/internal/chat"
	"humanly-server/internal/config"
	"humanly-server/internal/model"
	"humanly-server/internal/repository"
	"humanly-server/pkg/util"
)

// CoachService 对话教练服务
// 为每个用户维护一个内存中的对话会话（消息列表、会话状态、
// 持久化同步器、补全编排器），并在登录/登出/档案变更时管理其生命周期
type CoachService struct {
	messageRepo *repository.MessageRepository
	profileRepo *repository.ProfileRepository
	cache       *cache.RedisCache
	completer   chat.Completer
	streaks     *StreakService
	notifier    chat.Notifier
	cfg         *config.Config

	mu            sync.Mutex
	conversations map[int64]*conversation
}

// conversation 单个用户的对话会话
type conversation struct {
	store  *chat.Store
	state  *chat.SessionState
	syncer *chat.Syncer
	orch   *chat.Orchestrator
	gate   *usageGate
	tier   string
}

// NewCoachService 创建 CoachService 实例
func NewCoachService(
	messageRepo *repository.MessageRepository,
	profileRepo *repository.ProfileRepository,
	cache *cache.RedisCache,
	completer chat.Completer,
	streaks *StreakService,
	notifier chat.Notifier,
	cfg *config.Config,
) *CoachService {
	return &CoachService{
		messageRepo:   messageRepo,
		profileRepo:   profileRepo,
		cache:         cache,
		completer:     completer,
		streaks:       streaks,
		notifier:      notifier,
		cfg:           cfg,
		conversations: make(map[int64]*conversation),
	}
}

// SendMessage 发送一条用户消息并等待助手回复
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - content: 消息内容
//
// 返回:
//   - chat.Message: 助手回复
//   - chat.UsageInfo: 本次回合后的用量视图
//   - error: 分类后的业务错误（额度、密钥、服务不可用等）
func (s *CoachService) SendMessage(ctx context.Context, userID int64, content string) (chat.Message, chat.UsageInfo, error) {
	conv, err := s.getConversation(ctx, userID)
	if err != nil {
		return chat.Message{}, chat.UsageInfo{}, err
	}

	reply, err := conv.orch.SendChatMessage(ctx, content)
	return reply, conv.orch.LastUsage(), err
}

// RetryLastMessage 重试上一条用户消息
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - chat.Message: 新的助手回复
//   - error: 分类后的业务错误
func (s *CoachService) RetryLastMessage(ctx context.Context, userID int64) (chat.Message, error) {
	conv, err := s.getConversation(ctx, userID)
	if err != nil {
		return chat.Message{}, err
	}
	return conv.orch.RetryLastMessage(ctx)
}

// StartNewChat 开启新对话
// 清空当前消息列表并标记本会话已清空，远端历史保留
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - error: 会话装配错误
func (s *CoachService) StartNewChat(ctx context.Context, userID int64) error {
	conv, err := s.getConversation(ctx, userID)
	if err != nil {
		return err
	}
	conv.orch.StartNewChat(ctx)
	s.streaks.RecordNewChat(ctx, userID)
	return nil
}

// History 获取当前会话的可见消息列表
// 会话不存在时按需装配（含历史加载）
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - []chat.Message: 可见消息（空白占位消息已过滤）
//   - string: 最近一次对话错误的提示文案，无错误时为空
//   - error: 会话装配错误
func (s *CoachService) History(ctx context.Context, userID int64) ([]chat.Message, string, error) {
	conv, err := s.getConversation(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return conv.store.Visible(), conv.orch.LastError(), nil
}

// PurgeHistory 永久删除用户的全部对话历史
// 删除数据库记录、本地快照和内存会话，并标记本会话已清空
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - error: 数据库错误
func (s *CoachService) PurgeHistory(ctx context.Context, userID int64) error {
	s.dropConversation(userID)

	if err := s.messageRepo.DeleteByUserID(ctx, userID); err != nil {
		return err
	}

	state := s.SessionState(userID)
	tier := s.tierOf(ctx, userID)
	key := chat.SnapshotKey(userID, tier, state.SessionID(ctx))
	if err := s.cache.DeleteMessageSnapshot(ctx, key); err != nil {
		log.Printf("[WARN] 删除消息快照失败: userID=%d, err=%v", userID, err)
	}
	if err := state.MarkChatCleared(ctx); err != nil {
		log.Printf("[WARN] 标记对话已清空失败: userID=%d, err=%v", userID, err)
	}
	return nil
}

// Usage 获取当日用量视图
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - chat.UsageInfo: 用量视图
//   - error: 查询错误
func (s *CoachService) Usage(ctx context.Context, userID int64) (chat.UsageInfo, error) {
	conv, err := s.getConversation(ctx, userID)
	if err != nil {
		return chat.UsageInfo{}, err
	}
	return conv.gate.Current(ctx, userID)
}

// BeginSession 登录成功后建立新的对话会话
// 丢弃旧的内存会话，重置会话标识，清理会话级标记，写入登录成功标记
// 标记写入失败只记录日志，不阻断登录流程
func (s *CoachService) BeginSession(ctx context.Context, userID int64) {
	s.dropConversation(userID)

	state := s.SessionState(userID)
	state.ClearChatFlags(ctx)
	if err := state.ResetSessionID(ctx, util.GenerateSessionID()); err != nil {
		log.Printf("[WARN] 重置会话标识失败: userID=%d, err=%v", userID, err)
	}
	if err := state.MarkLoginSuccess(ctx); err != nil {
		log.Printf("[WARN] 写入登录成功标记失败: userID=%d, err=%v", userID, err)
	}
}

// EndSession 登出时结束对话会话
// 刷新未落盘的消息，丢弃内存会话，并请求下次登录时展示全新对话
func (s *CoachService) EndSession(ctx context.Context, userID int64) {
	s.dropConversation(userID)

	if err := s.SessionState(userID).RequestFreshChat(ctx); err != nil {
		log.Printf("[WARN] 写入全新对话标记失败: userID=%d, err=%v", userID, err)
	}
}

// InvalidateSession 档案变更后让内存会话失效
// 下一次请求时按新档案（档位、提示词）重建会话，会话标记不受影响
func (s *CoachService) InvalidateSession(ctx context.Context, userID int64) {
	s.dropConversation(userID)
}

// SessionState 构造用户的会话状态访问器
// 无状态包装，可随处创建，底层数据都在 Redis
func (s *CoachService) SessionState(userID int64) *chat.SessionState {
	return chat.NewSessionState(s.cache, userID, s.cfg.Coach.SessionTTL)
}

// Shutdown 服务关停时刷新所有会话的未落盘消息
func (s *CoachService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, conv := range s.conversations {
		conv.syncer.Close()
		delete(s.conversations, userID)
	}
}

// getConversation 获取或装配用户的对话会话
// 装配流程：读档案 → 确定会话标识与快照键 → 加载历史 → 创建
// 消息存储/同步器/编排器。装配在锁内完成，避免同一用户并发装配两份会话
func (s *CoachService) getConversation(ctx context.Context, userID int64) (*conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[userID]; ok {
		return conv, nil
	}

	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier := model.TierFree
	if profile != nil {
		tier = profile.SubscriptionTier
	}

	state := chat.NewSessionState(s.cache, userID, s.cfg.Coach.SessionTTL)
	sessionID := state.SessionID(ctx)
	if sessionID == "" {
		sessionID = util.GenerateSessionID()
		if err := state.ResetSessionID(ctx, sessionID); err != nil {
			log.Printf("[WARN] 重置会话标识失败: userID=%d, err=%v", userID, err)
		}
	}

	snapshotKey := chat.SnapshotKey(userID, tier, sessionID)

	loader := chat.NewHistoryLoader(s.messageRepo, s.cache)
	history := loader.LoadChatHistory(ctx, userID, state, snapshotKey, s.cfg.Coach.HistoryLimit)

	store := chat.NewStore()
	store.Replace(history)

	syncer := chat.NewSyncer(
		store,
		s.cache,
		s.messageRepo,
		userID,
		snapshotKey,
		s.cfg.Coach.SessionTTL,
		s.cfg.Coach.SaveDebounce,
	)

	gate := &usageGate{cache: s.cache, limit: s.dailyLimit(tier)}

	orch := chat.NewOrchestrator(chat.OrchestratorConfig{
		Store:        store,
		Syncer:       syncer,
		State:        state,
		Completer:    s.completer,
		UserID:       userID,
		Tier:         tier,
		FreeWindow:   s.cfg.Coach.FreeWindow,
		BasicWindow:  s.cfg.Coach.BasicWindow,
		HistoryBound: s.cfg.Coach.HistoryLimit,
		SystemPrompt: buildSystemPrompt(profile),
		Notifier:     s.notifier,
		Usage:        gate,
		AfterExchange: func(ctx context.Context) {
			s.streaks.RecordExchange(ctx, userID)
		},
	})

	conv := &conversation{
		store:  store,
		state:  state,
		syncer: syncer,
		orch:   orch,
		gate:   gate,
		tier:   tier,
	}
	s.conversations[userID] = conv
	return conv, nil
}

// dropConversation 丢弃内存会话
// Close 会刷新未落盘的消息，保证丢弃不等于丢失
func (s *CoachService) dropConversation(userID int64) {
	s.mu.Lock()
	conv, ok := s.conversations[userID]
	if ok {
		delete(s.conversations, userID)
	}
	s.mu.Unlock()

	if ok {
		conv.syncer.Close()
	}
}

// tierOf 查询用户的订阅档位，失败时按免费档处理
func (s *CoachService) tierOf(ctx context.Context, userID int64) string {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil || profile == nil {
		return model.TierFree
	}
	return profile.SubscriptionTier
}

// dailyLimit 按订阅档位返回每日消息额度
func (s *CoachService) dailyLimit(tier string) int64 {
	switch tier {
	case model.TierPremium:
		return int64(s.cfg.Coach.PremiumDailyLimit)
	case model.TierBasic:
		return int64(s.cfg.Coach.BasicDailyLimit)
	default:
		return int64(s.cfg.Coach.FreeDailyLimit)
	}
}

// usageGate 基于 Redis 当日计数的用量门控
// 实现 chat.UsageGate 接口
type usageGate struct {
	cache *cache.RedisCache
	limit int64
}

// Current 返回当前用量视图
func (g *usageGate) Current(ctx context.Context, userID int64) (chat.UsageInfo, error) {
	count, err := g.cache.GetUsage(ctx, userID, util.DayKey(time.Now()))
	if err != nil {
		return chat.UsageInfo{}, err
	}
	return chat.NewUsageInfo(count, g.limit), nil
}

// Consume 递增当日计数并返回最新视图
func (g *usageGate) Consume(ctx context.Context, userID int64) (chat.UsageInfo, error) {
	count, err := g.cache.IncrUsage(ctx, userID, util.DayKey(time.Now()))
	if err != nil {
		return chat.UsageInfo{}, err
	}
	return chat.NewUsageInfo(count, g.limit), nil
}

// buildSystemPrompt 根据用户档案组装系统提示词
// 原型和教练模式只影响语气与切入角度，核心人设保持一致
func buildSystemPrompt(profile *model.Profile) string {
	var b strings.Builder
	b.WriteString("你是 HumanlyAI 的情商教练。你的任务是通过对话帮助用户觉察情绪、")
	b.WriteString("理解人际关系中的模式，并给出可落地的小练习。")
	b.WriteString("回复保持温暖、具体、不评判，每次聚焦一个点，避免说教式的长篇大论。")

	if profile == nil {
		return b.String()
	}

	if profile.Archetype != nil && *profile.Archetype != "" {
		b.WriteString("用户的情商原型是「")
		b.WriteString(*profile.Archetype)
		b.WriteString("」，结合这一原型的典型盲区来组织你的引导。")
	}

	if profile.CoachingMode != nil {
		switch *profile.CoachingMode {
		case "direct":
			b.WriteString("用户选择了直接模式：观点先行，直说问题所在，再给行动建议。")
		case "gentle":
			b.WriteString("用户选择了温和模式：先共情确认感受，再轻轻提出另一种视角。")
		}
	}

	return b.String()
}
