package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSyncer(store *Store, snapshots *fakeSnapshots, sink *fakeSink, debounce time.Duration) *Syncer {
	return NewSyncer(store, snapshots, sink, 1, "user:1", time.Hour, debounce)
}

func TestSyncerDebouncesBurst(t *testing.T) {
	store := NewStore()
	snapshots := newFakeSnapshots()
	sink := &fakeSink{}
	syncer := newTestSyncer(store, snapshots, sink, 50*time.Millisecond)

	// 去抖窗口内的连续调度只产生一次写出
	store.AddUserMessage("消息")
	for i := 0; i < 10; i++ {
		syncer.ScheduleSave()
		time.Sleep(2 * time.Millisecond)
	}

	require.Equal(t, 0, sink.count(), "去抖期内不应写库")

	require.Eventually(t, func() bool {
		return sink.count() == 1
	}, time.Second, 10*time.Millisecond)

	// 已落库消息被标记，再次触发不重复插入
	syncer.ScheduleSave()
	time.Sleep(120 * time.Millisecond)
	require.Equal(t, 1, sink.count())
}

func TestSyncerTimerAndFlushWriteOnce(t *testing.T) {
	store := NewStore()
	sink := &fakeSink{delay: 80 * time.Millisecond}
	syncer := newTestSyncer(store, newFakeSnapshots(), sink, time.Millisecond)
	defer syncer.Close()

	store.AddUserMessage("只落一次")
	syncer.ScheduleSave()

	// 等定时器触发并进入慢速写库，此时与 Flush 形成并发
	time.Sleep(20 * time.Millisecond)
	syncer.Flush()

	// Flush 返回时两次写出都已结束：
	// 后到的一方必须看到前一方标记的 Persisted，同一条消息只插入一次
	require.Equal(t, 1, sink.count())
}

func TestSyncerFlushWritesImmediately(t *testing.T) {
	store := NewStore()
	snapshots := newFakeSnapshots()
	sink := &fakeSink{}
	syncer := newTestSyncer(store, snapshots, sink, time.Hour)

	id := store.AddUserMessage("立即落盘")
	syncer.ScheduleSave()
	syncer.Flush()

	require.Equal(t, 1, sink.count())
	require.Equal(t, "立即落盘", sink.created[0].Content)

	// 快照是全量的
	var cached []Message
	found, err := snapshots.LoadMessageSnapshot(context.Background(), "user:1", &cached)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, cached, 1)

	// 写库成功后内存消息被标记
	messages := store.Messages()
	require.Equal(t, id, messages[0].ID)
	require.True(t, messages[0].Persisted)
	require.Equal(t, sink.created[0].ID, messages[0].RemoteID)
}

func TestSyncerSkipsBlankAndPersisted(t *testing.T) {
	store := NewStore()
	sink := &fakeSink{}
	syncer := newTestSyncer(store, newFakeSnapshots(), sink, time.Hour)

	// 空白占位不落库
	store.AddAssistantMessage("")
	syncer.Flush()
	require.Equal(t, 0, sink.count())

	// 已落库的也不重复插入
	id := store.AddUserMessage("内容")
	store.MarkPersisted(id, 99)
	syncer.Flush()
	require.Equal(t, 0, sink.count())
}

func TestSyncerSnapshotSurvivesSinkFailure(t *testing.T) {
	store := NewStore()
	snapshots := newFakeSnapshots()
	sink := &fakeSink{err: errNetwork}
	syncer := newTestSyncer(store, snapshots, sink, time.Hour)

	store.AddUserMessage("数据库挂了")
	syncer.Flush()

	// 写库失败不影响快照，也不标记消息
	var cached []Message
	found, _ := snapshots.LoadMessageSnapshot(context.Background(), "user:1", &cached)
	require.True(t, found)
	require.Len(t, cached, 1)
	require.False(t, store.Messages()[0].Persisted)
}

func TestSyncerSkipsInFlightMessage(t *testing.T) {
	store := NewStore()
	sink := &fakeSink{}
	syncer := newTestSyncer(store, newFakeSnapshots(), sink, time.Hour)

	store.AddUserMessage("用户消息")
	id := store.AddAssistantMessage("流到一半的回")
	syncer.SetInFlight(id)

	// 流式期间写出：只有用户消息落库
	syncer.Flush()
	require.Equal(t, 1, sink.count())
	require.Equal(t, "用户消息", sink.created[0].Content)

	// 流结束解除标记后，定型的回复才落库
	syncer.SetInFlight("")
	store.AppendToMessage(id, "复")
	syncer.Flush()
	require.Equal(t, 2, sink.count())
	require.Equal(t, "流到一半的回复", sink.created[1].Content)
}

func TestSyncerCloseFlushesPending(t *testing.T) {
	store := NewStore()
	sink := &fakeSink{}
	syncer := newTestSyncer(store, newFakeSnapshots(), sink, time.Hour)

	store.AddUserMessage("关闭前的消息")
	syncer.ScheduleSave()
	syncer.Close()

	require.Equal(t, 1, sink.count())

	// 关闭后的调度全部忽略
	store.AddUserMessage("关闭后的消息")
	syncer.ScheduleSave()
	syncer.Flush()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, sink.count())
}
