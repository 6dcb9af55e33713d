// Package chat 实现对话会话的核心生命周期
// 包含内存消息列表、会话状态、历史加载、去抖持久化和补全编排
package chat

import (
	"strings"
	"time"
)

// 消息角色常量
const (
	RoleUser      = "user"      // 用户消息
	RoleAssistant = "assistant" // AI 助手响应
)

// Message 会话内的一条消息
// 与数据库模型不同，这是内存中的权威形态：
// 本地新建的消息先持有 UUID，入库后记录数据库分配的 RemoteID
// Persisted 字段显式标记是否已落库，不再通过 ID 形状推断
type Message struct {
	// ID 消息标识
	// 本地生成时为 UUID；从数据库加载时为自增 ID 的字符串形式
	ID string `json:"id"`

	// Role 消息角色，user 或 assistant
	Role string `json:"role"`

	// Content 消息内容
	// 助手消息可能以空串创建，随流式输出逐步填充
	Content string `json:"content"`

	// CreatedAt 创建时间，创建后不再变化
	CreatedAt time.Time `json:"created_at"`

	// Persisted 是否已写入数据库
	Persisted bool `json:"persisted"`

	// RemoteID 数据库分配的自增 ID，未入库时为 0
	RemoteID int64 `json:"remote_id,omitempty"`
}

// IsBlank 判断消息内容是否为空或仅含空白
// 空白消息不会被渲染，持久化时也会被跳过
func (m *Message) IsBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}

// UsageInfo 用量视图
// 每次补全成功后根据当日计数重新计算，不单独持久化
type UsageInfo struct {
	CurrentUsage int64   `json:"current_usage"` // 当日已用条数
	Limit        int64   `json:"limit"`         // 档位额度
	Percentage   float64 `json:"percentage"`    // 已用百分比（0-100）
}

// NewUsageInfo 根据当前用量和额度构造用量视图
func NewUsageInfo(current, limit int64) UsageInfo {
	info := UsageInfo{CurrentUsage: current, Limit: limit}
	if limit > 0 {
		info.Percentage = float64(current) / float64(limit) * 100
		if info.Percentage > 100 {
			info.Percentage = 100
		}
	}
	return info
}
