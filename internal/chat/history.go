// Package chat 实现对话会话的核心生命周期
package chat

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"humanly-server/internal/model"
)

// MessageSource 历史消息的远端来源
// 生产环境由 MySQL 仓库实现
type MessageSource interface {
	GetLatestByUserID(ctx context.Context, userID int64, limit int) ([]model.ChatMessage, error)
}

// SnapshotStore 消息快照的本地缓存
// 生产环境由 Redis 实现
type SnapshotStore interface {
	SaveMessageSnapshot(ctx context.Context, key string, messages interface{}, ttl time.Duration) error
	LoadMessageSnapshot(ctx context.Context, key string, dest interface{}) (bool, error)
	DeleteMessageSnapshot(ctx context.Context, key string) error
}

// HistoryLoader 会话启动时的历史加载器
type HistoryLoader struct {
	source    MessageSource
	snapshots SnapshotStore
}

// NewHistoryLoader 创建 HistoryLoader 实例
func NewHistoryLoader(source MessageSource, snapshots SnapshotStore) *HistoryLoader {
	return &HistoryLoader{source: source, snapshots: snapshots}
}

// LoadChatHistory 加载用户的对话历史
// 流程:
//  1. 会话内清空过对话或请求了全新对话 → 直接返回空列表
//     （全新对话标记消费时晋升为已清空，保证每个会话最多一次全新开局）
//  2. 否则查数据库取最新 limit 条，按时间正序
//  3. 查库失败或没有数据时，回退到本地快照
//
// 任何错误都不会抛给调用方，最坏情况是空历史加日志
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - state: 会话状态
//   - snapshotKey: 快照键
//   - limit: 最多加载的条数
//
// 返回:
//   - []Message: 历史消息，永不为 nil 以外的错误形态
func (l *HistoryLoader) LoadChatHistory(ctx context.Context, userID int64, state *SessionState, snapshotKey string, limit int) []Message {
	// 1. 全新对话/已清空：空历史
	if state.ConsumeFreshChat(ctx) || state.ChatCleared(ctx) {
		return []Message{}
	}

	// 2. 远端查询
	rows, err := l.source.GetLatestByUserID(ctx, userID, limit)
	if err != nil {
		log.Printf("[WARN] load chat history from db failed: user=%d err=%v", userID, err)
		return l.loadSnapshot(ctx, snapshotKey)
	}
	if len(rows) == 0 {
		// 没有远端数据时也尝试快照（远端可能刚好还没来得及落库）
		return l.loadSnapshot(ctx, snapshotKey)
	}

	// 3. 归一化为内存消息形态
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		role := row.Role
		if role != model.MessageRoleUser && role != model.MessageRoleAssistant {
			// 防御性兜底：角色不合法时按用户消息处理
			// 正常数据不会走到这里，出现即说明有脏数据，必须留下诊断线索
			log.Printf("[WARN] chat message %d has unknown role %q, coercing to user", row.ID, role)
			role = model.MessageRoleUser
		}
		messages = append(messages, Message{
			ID:        strconv.FormatInt(row.ID, 10),
			Role:      role,
			Content:   row.Content,
			CreatedAt: row.CreatedAt,
			Persisted: true,
			RemoteID:  row.ID,
		})
	}
	return messages
}

// loadSnapshot 从本地快照兜底加载
func (l *HistoryLoader) loadSnapshot(ctx context.Context, key string) []Message {
	var messages []Message
	found, err := l.snapshots.LoadMessageSnapshot(ctx, key, &messages)
	if err != nil {
		log.Printf("[WARN] load chat snapshot failed: key=%s err=%v", key, err)
		return []Message{}
	}
	if !found {
		return []Message{}
	}
	return messages
}

// SnapshotKey 计算用户的快照键
// 高级档的历史由服务端权威管理，快照按用户级存储
// 免费/基础档附加会话子键，同一免费用户的并发会话互不干扰
// 参数:
//   - userID: 用户ID
//   - tier: 订阅档位
//   - sessionID: 会话标识
//
// 返回:
//   - string: 快照键
func SnapshotKey(userID int64, tier, sessionID string) string {
	if tier == model.TierPremium || sessionID == "" {
		return fmt.Sprintf("user:%d", userID)
	}
	return fmt.Sprintf("user:%d:%s", userID, sessionID)
}
