// Package websocket 提供 WebSocket 通信功能
// 把对话的流式增量和状态变化实时推送给网页端
package websocket

import (
	"time"

	"humanly-server/internal/chat"
)

// MessageType 消息类型常量
const (
	// 客户端 → 服务端
	TypeHeartbeat = "heartbeat"  // 心跳
	TypeChatSend  = "chat:send"  // 发送用户消息
	TypeChatRetry = "chat:retry" // 重试上一条消息

	// 服务端 → 客户端
	TypeChatStream  = "chat:stream"  // AI 回复的流式增量
	TypeChatMessage = "chat:message" // AI 完整回复
	TypeChatError   = "chat:error"   // 对话错误（已分类）
	TypeUsageUpdate = "usage:update" // 用量变化

	// 通用
	TypeError = "error" // 协议层错误
	TypePong  = "pong"  // 心跳响应
)

// Message WebSocket 消息结构
// 所有消息都使用这个统一的结构
type Message struct {
	Type      string      `json:"type"`                 // 消息类型
	Payload   interface{} `json:"payload"`              // 消息内容
	Timestamp int64       `json:"timestamp"`            // 时间戳（毫秒）
	MessageID string      `json:"message_id,omitempty"` // 消息ID，用于追踪
}

// NewMessage 创建新消息
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewMessageWithID 创建带消息ID的新消息
func NewMessageWithID(msgType string, payload interface{}, messageID string) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
		MessageID: messageID,
	}
}

// ==================== Payload 类型定义 ====================

// ChatSendPayload 发送消息 Payload
// 客户端通过 WebSocket 发消息时使用（与 REST 接口等价）
type ChatSendPayload struct {
	Content string `json:"content"` // 消息内容
}

// ChatStreamPayload 流式增量 Payload
type ChatStreamPayload struct {
	MessageID string `json:"message_id"` // 占位消息ID
	Delta     string `json:"delta"`      // 增量内容
}

// ChatMessagePayload 完整回复 Payload
type ChatMessagePayload struct {
	Message chat.Message    `json:"message"`         // 助手的最终回复
	Usage   *chat.UsageInfo `json:"usage,omitempty"` // 本回合后的用量视图
}

// ChatErrorPayload 对话错误 Payload
type ChatErrorPayload struct {
	Kind    string `json:"kind"`    // 错误类别：generic / quota / auth
	Message string `json:"message"` // 用户可读的提示文案
}

// ErrorPayload 协议层错误 Payload
type ErrorPayload struct {
	Code    int    `json:"code"`    // 错误码
	Message string `json:"message"` // 错误信息
}
