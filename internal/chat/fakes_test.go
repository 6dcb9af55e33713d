package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"humanly-server/internal/llm"
	"humanly-server/internal/model"
)

// 测试用的内存假实现
// 与生产实现的差别只在存储介质，语义保持一致

// fakeFlags 内存版 FlagStore
type fakeFlags struct {
	mu    sync.Mutex
	flags map[string]string
	ttls  map[string]time.Duration // 记录每个标记写入时的有效期
}

func newFakeFlags() *fakeFlags {
	return &fakeFlags{
		flags: make(map[string]string),
		ttls:  make(map[string]time.Duration),
	}
}

func (f *fakeFlags) key(userID int64, name string) string {
	return fmt.Sprintf("%d/%s", userID, name)
}

func (f *fakeFlags) SetSessionFlag(ctx context.Context, userID int64, name, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[f.key(userID, name)] = value
	f.ttls[f.key(userID, name)] = ttl
	return nil
}

func (f *fakeFlags) ttlOf(userID int64, name string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[f.key(userID, name)]
}

func (f *fakeFlags) GetSessionFlag(ctx context.Context, userID int64, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags[f.key(userID, name)], nil
}

func (f *fakeFlags) DeleteSessionFlag(ctx context.Context, userID int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.flags, f.key(userID, name))
	return nil
}

// fakeSnapshots 内存版 SnapshotStore
type fakeSnapshots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{data: make(map[string][]byte)}
}

func (f *fakeSnapshots) SaveMessageSnapshot(ctx context.Context, key string, messages interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = raw
	return nil
}

func (f *fakeSnapshots) LoadMessageSnapshot(ctx context.Context, key string, dest interface{}) (bool, error) {
	f.mu.Lock()
	raw, ok := f.data[key]
	f.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (f *fakeSnapshots) DeleteMessageSnapshot(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

// fakeSource 内存版 MessageSource
type fakeSource struct {
	rows []model.ChatMessage
	err  error
}

func (f *fakeSource) GetLatestByUserID(ctx context.Context, userID int64, limit int) ([]model.ChatMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	rows := f.rows
	if len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

// fakeSink 内存版 MessageSink，记录每次插入
type fakeSink struct {
	mu      sync.Mutex
	created []model.ChatMessage
	nextID  int64
	err     error
	delay   time.Duration // 模拟慢速写库
}

func (f *fakeSink) Create(ctx context.Context, message *model.ChatMessage) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	message.ID = f.nextID
	f.created = append(f.created, *message)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// fakeCompleter 可编程的 Completer
type fakeCompleter struct {
	reply  string
	deltas []string
	err    error
	// 记录每次调用收到的窗口
	windows [][]llm.Message
}

func (f *fakeCompleter) Stream(ctx context.Context, messages []llm.Message, onDelta func(string)) (*llm.Envelope, error) {
	f.windows = append(f.windows, messages)
	if f.err != nil {
		return nil, f.err
	}
	for _, delta := range f.deltas {
		onDelta(delta)
	}
	return &llm.Envelope{Text: f.reply}, nil
}

// errNetwork 模拟网络类错误
var errNetwork = errors.New("connection reset by peer")
