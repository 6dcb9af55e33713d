// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client 表示一个 WebSocket 客户端连接
// 同一个用户打开多个标签页时会有多个 Client
type Client struct {
	hub    *Hub            // 所属的 Hub
	conn   *websocket.Conn // WebSocket 连接
	send   chan []byte     // 发送消息的通道
	userID int64           // 用户ID
	mu     sync.Mutex      // 保护关闭操作的互斥锁
	closed bool            // send 通道是否已关闭
}

// 连接配置常量
const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 等待 Pong 响应的超时时间
	pongWait = 60 * time.Second

	// 发送 Ping 的间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小（64KB，对话消息远小于此）
	maxMessageSize = 64 * 1024
)

// NewClient 创建新的客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}
}

// ReadPump 读取 WebSocket 消息的 goroutine
// 每个客户端连接启动一个 ReadPump
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// 每次收到 Pong，重置读取超时
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WARN] WebSocket 读取失败: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Printf("[WARN] WebSocket 消息解析失败: %v", err)
			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump 写入 WebSocket 消息的 goroutine
// 每个客户端连接启动一个 WritePump
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				// send 通道已关闭
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 向客户端发送消息
// 非阻塞：通道满时丢弃消息而不是阻塞调用方
func (c *Client) SendMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		log.Printf("[WARN] 客户端发送缓冲区已满，丢弃消息: userID=%d", c.userID)
		return nil
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case TypeHeartbeat:
		c.SendMessage(NewMessage(TypePong, nil))

	case TypeChatSend:
		// payload 是 interface{}，需要重新序列化后解析
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			return
		}
		var payload ChatSendPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("[WARN] chat:send payload 解析失败: %v", err)
			return
		}
		c.hub.handleChatSend(c, payload.Content)

	case TypeChatRetry:
		c.hub.handleChatRetry(c)

	default:
		log.Printf("[WARN] 未知的消息类型: %s", msg.Type)
	}
}

// Close 关闭客户端的发送通道
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
