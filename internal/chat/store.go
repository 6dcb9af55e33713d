// Package chat 实现对话会话的核心生命周期
package chat

import (
	"sync"
	"time"

	"humanly-server/pkg/util"
)

// Store 内存消息列表
// 一个会话的消息顺序以这里为准，数据库只是持久化投影
// 浏览器端的原型运行在单线程事件循环上，服务端改用互斥锁
// 保证同样的"变更按调用顺序严格排列"语义
type Store struct {
	mu       sync.RWMutex
	messages []Message
}

// NewStore 创建空的消息列表
func NewStore() *Store {
	return &Store{}
}

// AddUserMessage 追加一条用户消息
// 内容校验由调用方负责，这里不做检查
// 参数:
//   - content: 消息内容
//
// 返回:
//   - string: 新消息的本地 ID
func (s *Store) AddUserMessage(content string) string {
	return s.append(RoleUser, content)
}

// AddAssistantMessage 追加一条助手消息
// 内容允许为空串，作为流式输出的占位
// 参数:
//   - content: 消息内容
//
// 返回:
//   - string: 新消息的本地 ID
func (s *Store) AddAssistantMessage(content string) string {
	return s.append(RoleAssistant, content)
}

// append 追加消息并返回本地 ID
func (s *Store) append(role, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := Message{
		ID:        util.GenerateLocalMessageID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages = append(s.messages, msg)
	return msg.ID
}

// UpdateAssistantMessage 更新或移除指定消息
// content 为 nil 时视为墓碑指令：整条移除该消息（用于撤回失败/空的响应）
// 否则原地替换内容，位置和 ID 保持不变，其他消息不受影响
// 参数:
//   - id: 消息 ID
//   - content: 新内容，nil 表示删除
//
// 返回:
//   - bool: 是否找到了该消息
func (s *Store) UpdateAssistantMessage(id string, content *string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if content == nil {
			// 墓碑：只移除这一条
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		} else {
			s.messages[i].Content = *content
		}
		return true
	}
	return false
}

// AppendToMessage 向指定消息追加增量内容
// 流式输出时使用，避免每个增量都整体替换
// 参数:
//   - id: 消息 ID
//   - delta: 增量内容
//
// 返回:
//   - bool: 是否找到了该消息
func (s *Store) AppendToMessage(id string, delta string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Content += delta
			return true
		}
	}
	return false
}

// MarkPersisted 标记消息已落库
// 同步器写库成功后回调
// 参数:
//   - id: 消息的本地 ID
//   - remoteID: 数据库分配的自增 ID
func (s *Store) MarkPersisted(id string, remoteID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Persisted = true
			s.messages[i].RemoteID = remoteID
			return
		}
	}
}

// Clear 清空消息列表
// 只清内存，不触碰数据库
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Replace 整体替换消息列表
// 历史加载完成后调用
func (s *Store) Replace(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]Message(nil), messages...)
}

// Messages 返回消息列表的副本
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Visible 返回可渲染的消息列表
// 空白消息（内容为空或仅含空白）永远不会被渲染
func (s *Store) Visible() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visible := make([]Message, 0, len(s.messages))
	for _, msg := range s.messages {
		if !msg.IsBlank() {
			visible = append(visible, msg)
		}
	}
	return visible
}

// Last 返回最后一条消息
// 返回:
//   - Message: 最后一条消息
//   - bool: 列表是否非空
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Len 返回消息数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
