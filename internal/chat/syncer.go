// Package chat 实现对话会话的核心生命周期
package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"humanly-server/internal/model"
)

// MessageSink 消息的远端写入口
// 生产环境由 MySQL 仓库实现
type MessageSink interface {
	Create(ctx context.Context, message *model.ChatMessage) error
}

// Syncer 去抖的持久化同步器
// 每次消息列表变更后调用 ScheduleSave，在静默满一个去抖周期后才真正写出：
//   - 全量快照写入本地缓存
//   - 未落库的消息逐条插入数据库（只追加，从不整表重写）
//
// 连续的快速变更因此合并为一次写出
// 正在流式输出的占位消息通过 SetInFlight 排除在写出之外，
// 流结束后编排器调用 Flush，保证半截的助手消息不会成为落库版本
type Syncer struct {
	store     *Store
	snapshots SnapshotStore
	sink      MessageSink

	userID      int64
	snapshotKey string
	snapshotTTL time.Duration
	debounce    time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	closed   bool
	inFlight string // 正在流式输出的消息 ID，写出时跳过

	// saveMu 串行化整个写出过程
	// 定时器触发与 Flush 可能并发，不串行会把同一条消息落库两次
	saveMu sync.Mutex
}

// NewSyncer 创建 Syncer 实例
// 参数:
//   - store: 内存消息列表
//   - snapshots: 快照缓存
//   - sink: 数据库写入口
//   - userID: 用户ID
//   - snapshotKey: 快照键
//   - snapshotTTL: 快照有效期
//   - debounce: 去抖间隔
func NewSyncer(store *Store, snapshots SnapshotStore, sink MessageSink, userID int64, snapshotKey string, snapshotTTL, debounce time.Duration) *Syncer {
	return &Syncer{
		store:       store,
		snapshots:   snapshots,
		sink:        sink,
		userID:      userID,
		snapshotKey: snapshotKey,
		snapshotTTL: snapshotTTL,
		debounce:    debounce,
	}
}

// ScheduleSave 调度一次持久化
// 新的调用会取消尚未触发的定时器并重新计时
func (s *Syncer) ScheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

// Flush 立即执行持久化
// 取消挂起的定时器并同步写出当前状态
func (s *Syncer) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}
	s.save()
}

// Close 停止同步器
// 挂起的写出先执行一次，之后的 ScheduleSave 全部忽略
func (s *Syncer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.timer != nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if pending {
		s.save()
	}
}

// SetInFlight 标记正在流式输出的消息
// 被标记的消息在写出时跳过，传空串解除标记
func (s *Syncer) SetInFlight(id string) {
	s.mu.Lock()
	s.inFlight = id
	s.mu.Unlock()
}

// DeleteSnapshot 删除本地快照
// 开启新对话时调用，避免旧快照在兜底路径复活
func (s *Syncer) DeleteSnapshot(ctx context.Context) error {
	return s.snapshots.DeleteMessageSnapshot(ctx, s.snapshotKey)
}

// fire 定时器回调
func (s *Syncer) fire() {
	s.mu.Lock()
	s.timer = nil
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return
	}
	s.save()
}

// save 执行一次写出
// 持久化失败只记日志：本地快照仍是兜底的事实来源，用户无感知
func (s *Syncer) save() {
	// 整个读取-插入-标记序列持锁执行
	// 后进的调用会在前一次写出标记完 Persisted 之后才重新读取消息列表
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages := s.store.Messages()

	s.mu.Lock()
	inFlight := s.inFlight
	s.mu.Unlock()

	// 1. 全量快照
	if err := s.snapshots.SaveMessageSnapshot(ctx, s.snapshotKey, messages, s.snapshotTTL); err != nil {
		log.Printf("[WARN] save chat snapshot failed: key=%s err=%v", s.snapshotKey, err)
	}

	// 2. 未落库的消息按顺序逐条插入
	// 空白占位和正在流式输出的消息都跳过，等它们定型后的下一次写出
	for _, msg := range messages {
		if msg.Persisted || msg.IsBlank() || msg.ID == inFlight {
			continue
		}

		row := &model.ChatMessage{
			UserID:    s.userID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		}
		if err := s.sink.Create(ctx, row); err != nil {
			log.Printf("[WARN] persist chat message failed: user=%d err=%v", s.userID, err)
			return
		}
		s.store.MarkPersisted(msg.ID, row.ID)
	}
}
