// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// MessageRole 消息角色常量
const (
	MessageRoleUser      = "user"      // 用户消息
	MessageRoleAssistant = "assistant" // AI 助手响应
)

// ChatMessage 聊天消息模型
// 对应数据库表 chat_messages
// 消息按用户归属，一个用户只有一条持续的对话流
// 数据库是对话的持久化投影，会话内的顺序以内存中的消息列表为准
type ChatMessage struct {
	// ID 消息唯一标识，自增主键
	// 入库后该 ID 会回写到内存消息的 RemoteID 字段
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID，外键关联 users.id
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// Role 消息角色
	// user: 用户发送的消息
	// assistant: AI 助手的响应
	Role string `gorm:"size:20;not null" json:"role"`

	// Content 消息内容
	// 使用 TEXT 类型存储，可以存储较长的内容
	Content string `gorm:"type:text;not null" json:"content"`

	// CreatedAt 消息创建时间
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定表名
func (ChatMessage) TableName() string {
	return "chat_messages"
}
