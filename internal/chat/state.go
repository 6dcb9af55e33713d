// Package chat 实现对话会话的核心生命周期
package chat

import (
	"context"
	"time"
)

// 会话标记名常量
// 标记通过 SessionState 的具名方法读写，调用方不直接接触这些键名
const (
	flagChatCleared  = "chat_cleared"  // 本会话已清空过对话
	flagFreshChat    = "fresh_chat"    // 下次加载历史时直接给空对话
	flagLoginSuccess = "login_success" // 刚刚登录成功（用于欢迎提示）
	flagSessionID    = "session_id"    // 本次登录会话的标识
)

// FlagStore 会话标记的存取接口
// 生产环境由 Redis 实现，测试使用内存假实现
type FlagStore interface {
	SetSessionFlag(ctx context.Context, userID int64, name, value string, ttl time.Duration) error
	GetSessionFlag(ctx context.Context, userID int64, name string) (string, error)
	DeleteSessionFlag(ctx context.Context, userID int64, name string) error
}

// SessionState 类型化的会话状态
// 取代散落在各处的字符串键：状态迁移只能通过具名方法完成
// 这样 chat_cleared 和 fresh_chat 两个标记不可能再互相矛盾——
// fresh_chat 只有一个消费路径，消费时必然晋升为 chat_cleared
type SessionState struct {
	flags  FlagStore
	userID int64
	ttl    time.Duration // 会话级标记的有效期（浏览器会话的服务端近似）
}

// NewSessionState 创建 SessionState 实例
// 参数:
//   - flags: 标记存储
//   - userID: 用户ID
//   - ttl: 会话级标记有效期
func NewSessionState(flags FlagStore, userID int64, ttl time.Duration) *SessionState {
	return &SessionState{flags: flags, userID: userID, ttl: ttl}
}

// MarkChatCleared 标记本会话已清空对话
// 清空后的会话在本次登录内不会再加载历史
func (s *SessionState) MarkChatCleared(ctx context.Context) error {
	return s.flags.SetSessionFlag(ctx, s.userID, flagChatCleared, "1", s.ttl)
}

// ChatCleared 查询本会话是否清空过对话
func (s *SessionState) ChatCleared(ctx context.Context) bool {
	value, err := s.flags.GetSessionFlag(ctx, s.userID, flagChatCleared)
	return err == nil && value == "1"
}

// RequestFreshChat 请求下次进入时展示全新对话
// 登出等场景设置，由 ConsumeFreshChat 一次性消费
// 标记不设有效期：无论用户多久之后回来，请求过的全新开局都必须兑现
func (s *SessionState) RequestFreshChat(ctx context.Context) error {
	return s.flags.SetSessionFlag(ctx, s.userID, flagFreshChat, "1", 0)
}

// ConsumeFreshChat 消费"全新对话"请求
// 如果标记存在：删除它并晋升为 chat_cleared，保证每个会话最多一次全新开局
// 返回:
//   - bool: 标记是否存在（即是否需要全新开局）
func (s *SessionState) ConsumeFreshChat(ctx context.Context) bool {
	value, err := s.flags.GetSessionFlag(ctx, s.userID, flagFreshChat)
	if err != nil || value != "1" {
		return false
	}
	// 删除与晋升之间不要求原子：两者都幂等，最坏情况是多清一次
	_ = s.flags.DeleteSessionFlag(ctx, s.userID, flagFreshChat)
	_ = s.MarkChatCleared(ctx)
	return true
}

// MarkLoginSuccess 标记刚刚登录成功
// 登录接口调用，导航接口消费后触发欢迎提示
func (s *SessionState) MarkLoginSuccess(ctx context.Context) error {
	return s.flags.SetSessionFlag(ctx, s.userID, flagLoginSuccess, "1", s.ttl)
}

// ConsumeLoginSuccess 消费登录成功标记
// 返回:
//   - bool: 标记是否存在
func (s *SessionState) ConsumeLoginSuccess(ctx context.Context) bool {
	value, err := s.flags.GetSessionFlag(ctx, s.userID, flagLoginSuccess)
	if err != nil || value != "1" {
		return false
	}
	_ = s.flags.DeleteSessionFlag(ctx, s.userID, flagLoginSuccess)
	return true
}

// ResetSessionID 生成并保存新的会话标识
// 登录时调用，非高级档用它隔离不同登录会话的消息快照
// 参数:
//   - sessionID: 新的会话标识
func (s *SessionState) ResetSessionID(ctx context.Context, sessionID string) error {
	return s.flags.SetSessionFlag(ctx, s.userID, flagSessionID, sessionID, s.ttl)
}

// SessionID 读取当前会话标识
// 返回:
//   - string: 会话标识，不存在返回空字符串
func (s *SessionState) SessionID(ctx context.Context) string {
	value, _ := s.flags.GetSessionFlag(ctx, s.userID, flagSessionID)
	return value
}

// ClearChatFlags 清除对话相关标记
// 登录建立新会话时调用，让新会话从干净状态开始
func (s *SessionState) ClearChatFlags(ctx context.Context) {
	_ = s.flags.DeleteSessionFlag(ctx, s.userID, flagChatCleared)
	_ = s.flags.DeleteSessionFlag(ctx, s.userID, flagFreshChat)
}
