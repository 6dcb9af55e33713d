// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"context"
	"errors"
	"log"
	"sync"

	"humanly-server/internal/chat"
	"humanly-server/internal/llm"
	"humanly-server/pkg/response"
)

// CoachSender 对话服务中 Hub 需要的能力
// 避免 websocket 包直接依赖 service 包造成循环引用
type CoachSender interface {
	SendMessage(ctx context.Context, userID int64, content string) (chat.Message, chat.UsageInfo, error)
	RetryLastMessage(ctx context.Context, userID int64) (chat.Message, error)
}

// Hub 是 WebSocket 连接的中心管理器
// 负责：
// 1. 管理所有客户端连接（一个用户可能有多个标签页）
// 2. 把对话事件广播给用户的所有连接
// 3. 处理通过 WebSocket 发起的对话请求
//
// Hub 同时实现 chat.Notifier 接口，编排器通过它推送流式增量
type Hub struct {
	// 客户端映射：userID -> []*Client
	clients map[int64][]*Client

	// 注册通道
	register chan *Client

	// 注销通道
	unregister chan *Client

	// 互斥锁，保护并发访问
	mu sync.RWMutex

	// 对话服务，Hub 创建后通过 SetCoach 注入
	// （对话服务的构造又需要 Hub 作为 Notifier）
	coach CoachSender
}

// NewHub 创建 Hub 实例
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// SetCoach 注入对话服务
// 必须在开始接受连接之前调用一次
func (h *Hub) SetCoach(coach CoachSender) {
	h.coach = coach
}

// Run 启动 Hub 的主循环
// 应该在单独的 goroutine 中运行
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// addClient 把客户端加入映射
func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.userID] = append(h.clients[client.userID], client)
	log.Printf("[INFO] WebSocket 客户端已连接: userID=%d, 连接数=%d",
		client.userID, len(h.clients[client.userID]))
}

// removeClient 把客户端移出映射并关闭
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.clients[client.userID]
	for i, c := range list {
		if c == client {
			h.clients[client.userID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.clients[client.userID]) == 0 {
		delete(h.clients, client.userID)
	}
	client.Close()
	log.Printf("[INFO] WebSocket 客户端已断开: userID=%d", client.userID)
}

// broadcastToUser 把消息发给用户的所有连接
func (h *Hub) broadcastToUser(userID int64, msg *Message) {
	h.mu.RLock()
	list := make([]*Client, len(h.clients[userID]))
	copy(list, h.clients[userID])
	h.mu.RUnlock()

	for _, client := range list {
		if err := client.SendMessage(msg); err != nil {
			log.Printf("[WARN] 推送消息失败: userID=%d, err=%v", userID, err)
		}
	}
}

// ==================== chat.Notifier 实现 ====================

// ChatDelta 推送流式增量
func (h *Hub) ChatDelta(userID int64, messageID, delta string) {
	h.broadcastToUser(userID, NewMessageWithID(TypeChatStream, ChatStreamPayload{
		MessageID: messageID,
		Delta:     delta,
	}, messageID))
}

// ChatComplete 推送完整的助手回复
func (h *Hub) ChatComplete(userID int64, message chat.Message, usage *chat.UsageInfo) {
	h.broadcastToUser(userID, NewMessageWithID(TypeChatMessage, ChatMessagePayload{
		Message: message,
		Usage:   usage,
	}, message.ID))

	if usage != nil {
		h.broadcastToUser(userID, NewMessage(TypeUsageUpdate, usage))
	}
}

// ChatError 推送分类后的对话错误
func (h *Hub) ChatError(userID int64, kind llm.ErrorKind, message string) {
	h.broadcastToUser(userID, NewMessage(TypeChatError, ChatErrorPayload{
		Kind:    kind.String(),
		Message: message,
	}))
}

// ==================== WebSocket 发起的对话请求 ====================

// handleChatSend 处理通过 WebSocket 发送的用户消息
// 补全是阻塞调用，放在独立 goroutine 中执行
// 流式增量和最终回复都由 Notifier 推送，这里只处理发送前的校验错误
func (h *Hub) handleChatSend(client *Client, content string) {
	if h.coach == nil {
		return
	}

	go func() {
		_, _, err := h.coach.SendMessage(context.Background(), client.userID, content)
		if err != nil {
			client.SendMessage(NewMessage(TypeError, chatErrorPayload(err)))
		}
	}()
}

// handleChatRetry 处理通过 WebSocket 发起的重试
func (h *Hub) handleChatRetry(client *Client) {
	if h.coach == nil {
		return
	}

	go func() {
		_, err := h.coach.RetryLastMessage(context.Background(), client.userID)
		if err != nil {
			client.SendMessage(NewMessage(TypeError, chatErrorPayload(err)))
		}
	}()
}

// chatErrorPayload 把对话业务错误映射为协议错误 Payload
func chatErrorPayload(err error) ErrorPayload {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return ErrorPayload{Code: response.CodeBadRequest, Message: err.Error()}
	case errors.Is(err, chat.ErrInFlight):
		return ErrorPayload{Code: response.CodeSendInFlight, Message: err.Error()}
	case errors.Is(err, chat.ErrQuotaExceeded):
		return ErrorPayload{Code: response.CodeQuotaExceeded, Message: err.Error()}
	case errors.Is(err, chat.ErrAIKeyInvalid):
		return ErrorPayload{Code: response.CodeAIKeyInvalid, Message: err.Error()}
	case errors.Is(err, chat.ErrAIUnavailable):
		return ErrorPayload{Code: response.CodeAIUnavailable, Message: err.Error()}
	case errors.Is(err, chat.ErrNothingToRetry):
		return ErrorPayload{Code: response.CodeBadRequest, Message: err.Error()}
	default:
		return ErrorPayload{Code: response.CodeInternalError, Message: "服务器内部错误"}
	}
}
