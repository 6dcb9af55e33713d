// Package chat 实现对话会话的核心生命周期
package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"humanly-server/internal/llm"
	"humanly-server/internal/model"
)

// 定义业务错误
var (
	ErrEmptyMessage   = errors.New("消息内容不能为空")
	ErrInFlight       = errors.New("上一条消息还在处理中")
	ErrQuotaExceeded  = errors.New("对话额度已用完")
	ErrAIKeyInvalid   = errors.New("AI 服务密钥无效")
	ErrAIUnavailable  = errors.New("AI 服务暂不可用")
	ErrNothingToRetry = errors.New("没有可重试的消息")
)

// Completer 补全服务接口
// 生产环境由 llm.Client 实现，测试使用假实现
type Completer interface {
	Stream(ctx context.Context, messages []llm.Message, onDelta func(delta string)) (*llm.Envelope, error)
}

// UsageGate 用量门控
// 发送前检查额度，补全成功后消费一次计数
type UsageGate interface {
	// Current 返回当前用量视图
	Current(ctx context.Context, userID int64) (UsageInfo, error)
	// Consume 递增计数并返回最新视图
	Consume(ctx context.Context, userID int64) (UsageInfo, error)
}

// Notifier 会话事件通知接口
// 生产环境由 WebSocket Hub 实现，把流式增量推给客户端
type Notifier interface {
	// ChatDelta 推送流式增量
	ChatDelta(userID int64, messageID, delta string)
	// ChatComplete 推送完整的助手回复
	ChatComplete(userID int64, message Message, usage *UsageInfo)
	// ChatError 推送分类后的错误
	ChatError(userID int64, kind llm.ErrorKind, message string)
}

// OrchestratorConfig 编排器的装配参数
type OrchestratorConfig struct {
	Store     *Store
	Syncer    *Syncer
	State     *SessionState
	Completer Completer

	UserID int64
	Tier   string // 订阅档位，决定上下文窗口大小

	FreeWindow   int // 免费档历史窗口（条数）
	BasicWindow  int // 基础档历史窗口（条数）
	HistoryBound int // 高级档历史窗口上限

	SystemPrompt string

	Notifier      Notifier                  // 可选
	Usage         UsageGate                 // 可选
	AfterExchange func(ctx context.Context) // 可选：补全成功后的回调（打卡、埋点）
}

// Orchestrator 补全编排器
// 串起一次完整的对话回合：校验 → 追加消息 → 组装上下文窗口 →
// 调用补全服务 → 回填占位消息 → 刷新持久化
// 所有失败都被捕获并分类，最坏情况是一次降级的对话，不会影响会话本身
type Orchestrator struct {
	store     *Store
	syncer    *Syncer
	state     *SessionState
	completer Completer

	userID int64
	tier   string

	freeWindow   int
	basicWindow  int
	historyBound int

	systemPrompt string

	notifier      Notifier
	usage         UsageGate
	afterExchange func(ctx context.Context)

	inFlight atomic.Bool

	mu        sync.Mutex
	lastError string
	lastUsage UsageInfo
}

// NewOrchestrator 创建 Orchestrator 实例
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	return &Orchestrator{
		store:         cfg.Store,
		syncer:        cfg.Syncer,
		state:         cfg.State,
		completer:     cfg.Completer,
		userID:        cfg.UserID,
		tier:          cfg.Tier,
		freeWindow:    cfg.FreeWindow,
		basicWindow:   cfg.BasicWindow,
		historyBound:  cfg.HistoryBound,
		systemPrompt:  cfg.SystemPrompt,
		notifier:      cfg.Notifier,
		usage:         cfg.Usage,
		afterExchange: cfg.AfterExchange,
	}
}

// SendChatMessage 发送一条用户消息并等待助手回复
// 空白内容和并发请求都是无操作：消息列表不变，也不会发起网络调用
// 参数:
//   - ctx: 上下文
//   - content: 用户消息内容
//
// 返回:
//   - Message: 助手的最终回复
//   - error: 分类后的业务错误
func (o *Orchestrator) SendChatMessage(ctx context.Context, content string) (Message, error) {
	// 1. 校验
	if strings.TrimSpace(content) == "" {
		return Message{}, ErrEmptyMessage
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return Message{}, ErrInFlight
	}
	defer o.inFlight.Store(false)

	// 2. 额度门控（发起前检查，不追加消息就拒绝）
	if o.usage != nil {
		info, err := o.usage.Current(ctx, o.userID)
		if err == nil && info.Limit > 0 && info.CurrentUsage >= info.Limit {
			o.setError("今日对话额度已用完")
			return Message{}, ErrQuotaExceeded
		}
	}

	// 3. 追加用户消息和空的助手占位
	o.store.AddUserMessage(content)
	o.syncer.ScheduleSave()
	placeholderID := o.store.AddAssistantMessage("")
	o.syncer.ScheduleSave()

	// 4-6. 组装窗口、调用补全、回填结果
	return o.complete(ctx, placeholderID)
}

// RetryLastMessage 重试上一轮对话
// 先撤回最近的助手消息（如果有），然后用上一条用户消息重新发起补全
// 重试永远是用户的手动动作，编排器自身从不自动重试
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - Message: 助手的最终回复
//   - error: 分类后的业务错误
func (o *Orchestrator) RetryLastMessage(ctx context.Context) (Message, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		return Message{}, ErrInFlight
	}
	defer o.inFlight.Store(false)

	// 撤回最近的助手消息（墓碑删除）
	if last, ok := o.store.Last(); ok && last.Role == RoleAssistant {
		o.store.UpdateAssistantMessage(last.ID, nil)
		o.syncer.ScheduleSave()
	}

	// 必须存在可重试的用户消息
	if o.lastUserMessage() == nil {
		return Message{}, ErrNothingToRetry
	}

	placeholderID := o.store.AddAssistantMessage("")
	o.syncer.ScheduleSave()

	return o.complete(ctx, placeholderID)
}

// StartNewChat 开启全新对话
// 清空内存列表并标记会话已清空，历史不会再被加载
// 数据库中的旧消息保留，只是本会话不再展示
// 参数:
//   - ctx: 上下文
func (o *Orchestrator) StartNewChat(ctx context.Context) {
	o.store.Clear()
	if err := o.state.MarkChatCleared(ctx); err != nil {
		log.Printf("[WARN] mark chat cleared failed: user=%d err=%v", o.userID, err)
	}
	if err := o.syncer.DeleteSnapshot(ctx); err != nil {
		log.Printf("[WARN] delete chat snapshot failed: user=%d err=%v", o.userID, err)
	}
	o.setError("")
}

// LastError 返回最近一次失败的用户可读描述
// 成功的发送会清空它
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// LastUsage 返回最近一次计算的用量视图
func (o *Orchestrator) LastUsage() UsageInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastUsage
}

// complete 执行补全调用并回填占位消息
// 失败时占位消息保持原样（不撤回），重试由用户显式发起
func (o *Orchestrator) complete(ctx context.Context, placeholderID string) (Message, error) {
	window := o.buildWindow()

	// 流式期间占位消息不落库，去抖触发时只会写出之前的消息
	o.syncer.SetInFlight(placeholderID)
	defer o.syncer.SetInFlight("")

	envelope, err := o.completer.Stream(ctx, window, func(delta string) {
		o.store.AppendToMessage(placeholderID, delta)
		if o.notifier != nil {
			o.notifier.ChatDelta(o.userID, placeholderID, delta)
		}
	})
	if err != nil {
		return Message{}, o.fail(err)
	}

	// 用归一化后的完整文本替换占位内容
	// 流式期间逐段追加过的内容也以这里为准
	o.store.UpdateAssistantMessage(placeholderID, &envelope.Text)
	o.syncer.SetInFlight("")

	// 计量
	var usage *UsageInfo
	if o.usage != nil {
		if info, err := o.usage.Consume(ctx, o.userID); err == nil {
			usage = &info
			o.mu.Lock()
			o.lastUsage = info
			o.mu.Unlock()
		} else {
			log.Printf("[WARN] consume usage failed: user=%d err=%v", o.userID, err)
		}
	}

	// 流式结束后立即落盘，半截的助手消息不会成为持久化版本
	o.syncer.Flush()

	o.setError("")

	final := Message{}
	for _, msg := range o.store.Messages() {
		if msg.ID == placeholderID {
			final = msg
			break
		}
	}

	if o.notifier != nil {
		o.notifier.ChatComplete(o.userID, final, usage)
	}
	if o.afterExchange != nil {
		o.afterExchange(ctx)
	}

	return final, nil
}

// fail 分类补全错误并转换为业务错误
// 占位消息保持原样，由用户决定是否重试
func (o *Orchestrator) fail(err error) error {
	kind := llm.ClassifyError(err)
	log.Printf("[ERROR] completion failed: user=%d kind=%d err=%v", o.userID, kind, err)

	var userMessage string
	var result error
	switch kind {
	case llm.ErrorKindQuota:
		userMessage = "今日对话额度已用完，升级套餐可继续对话"
		result = ErrQuotaExceeded
	case llm.ErrorKindAuth:
		userMessage = "AI 服务配置异常，请稍后再试"
		result = ErrAIKeyInvalid
	default:
		userMessage = "AI 服务暂时不可用，请稍后重试"
		result = ErrAIUnavailable
	}

	o.setError(userMessage)
	if o.notifier != nil {
		o.notifier.ChatError(o.userID, kind, userMessage)
	}
	return result
}

// buildWindow 组装发送给补全服务的上下文窗口
// 窗口 = 系统提示词 + 档位决定的历史片段 + 最新一条用户消息
//   - 高级档: 服务端权威历史（内存列表全量，受上限约束）
//   - 基础档: 最近 4 条历史（2 轮对话）
//   - 免费档: 最近 2 条历史（1 轮对话）
func (o *Orchestrator) buildWindow() []llm.Message {
	messages := o.store.Messages()

	// 找到最新一条用户消息，它之前的都算历史
	newest := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			newest = i
			break
		}
	}
	if newest < 0 {
		return nil
	}

	// 历史片段（跳过空白消息，比如未填充的占位）
	prior := make([]Message, 0, newest)
	for _, msg := range messages[:newest] {
		if !msg.IsBlank() {
			prior = append(prior, msg)
		}
	}

	bound := o.historyBound
	switch o.tier {
	case model.TierBasic:
		bound = o.basicWindow
	case model.TierFree:
		bound = o.freeWindow
	}
	if bound > 0 && len(prior) > bound {
		prior = prior[len(prior)-bound:]
	}

	window := make([]llm.Message, 0, len(prior)+2)
	if o.systemPrompt != "" {
		window = append(window, llm.Message{Role: "system", Content: o.systemPrompt})
	}
	for _, msg := range prior {
		window = append(window, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	window = append(window, llm.Message{Role: RoleUser, Content: messages[newest].Content})
	return window
}

// lastUserMessage 返回最近一条用户消息
func (o *Orchestrator) lastUserMessage() *Message {
	messages := o.store.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return &messages[i]
		}
	}
	return nil
}

// setError 记录最近一次错误描述
func (o *Orchestrator) setError(message string) {
	o.mu.Lock()
	o.lastError = message
	o.mu.Unlock()
}
