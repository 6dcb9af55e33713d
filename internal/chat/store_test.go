package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreAppendKeepsOrder(t *testing.T) {
	store := NewStore()

	id1 := store.AddUserMessage("你好")
	id2 := store.AddAssistantMessage("你好，今天想聊点什么？")
	id3 := store.AddUserMessage("聊聊工作上的事")

	messages := store.Messages()
	require.Len(t, messages, 3)
	require.Equal(t, []string{id1, id2, id3},
		[]string{messages[0].ID, messages[1].ID, messages[2].ID})
	require.Equal(t, RoleUser, messages[0].Role)
	require.Equal(t, RoleAssistant, messages[1].Role)
}

func TestStoreUpdateReplacesInPlace(t *testing.T) {
	store := NewStore()
	store.AddUserMessage("第一条")
	id := store.AddAssistantMessage("")
	store.AddUserMessage("第三条")

	content := "完整回复"
	require.True(t, store.UpdateAssistantMessage(id, &content))

	messages := store.Messages()
	require.Len(t, messages, 3)
	// 位置和 ID 不变，只有内容变化
	require.Equal(t, id, messages[1].ID)
	require.Equal(t, "完整回复", messages[1].Content)
	require.Equal(t, "第一条", messages[0].Content)
	require.Equal(t, "第三条", messages[2].Content)
}

func TestStoreTombstoneRemovesExactlyOne(t *testing.T) {
	store := NewStore()
	keep1 := store.AddUserMessage("保留 1")
	victim := store.AddAssistantMessage("要撤回的回复")
	keep2 := store.AddUserMessage("保留 2")

	require.True(t, store.UpdateAssistantMessage(victim, nil))

	messages := store.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, keep1, messages[0].ID)
	require.Equal(t, keep2, messages[1].ID)

	// 已删除的消息再操作是无害的无操作
	require.False(t, store.UpdateAssistantMessage(victim, nil))
	require.False(t, store.AppendToMessage(victim, "x"))
	require.Len(t, store.Messages(), 2)
}

func TestStoreVisibleFiltersBlank(t *testing.T) {
	store := NewStore()
	store.AddUserMessage("有内容")
	store.AddAssistantMessage("")
	store.AddAssistantMessage("   ")

	require.Equal(t, 3, store.Len())
	visible := store.Visible()
	require.Len(t, visible, 1)
	require.Equal(t, "有内容", visible[0].Content)
}

func TestStoreAppendToMessage(t *testing.T) {
	store := NewStore()
	id := store.AddAssistantMessage("")

	require.True(t, store.AppendToMessage(id, "你"))
	require.True(t, store.AppendToMessage(id, "好"))

	last, ok := store.Last()
	require.True(t, ok)
	require.Equal(t, "你好", last.Content)
}

func TestStoreMarkPersisted(t *testing.T) {
	store := NewStore()
	id := store.AddUserMessage("待落库")

	store.MarkPersisted(id, 42)

	messages := store.Messages()
	require.True(t, messages[0].Persisted)
	require.Equal(t, int64(42), messages[0].RemoteID)
}

func TestStoreReplaceAndClear(t *testing.T) {
	store := NewStore()
	store.AddUserMessage("旧消息")

	store.Replace([]Message{
		{ID: "a", Role: RoleUser, Content: "历史 1"},
		{ID: "b", Role: RoleAssistant, Content: "历史 2"},
	})
	require.Equal(t, 2, store.Len())

	store.Clear()
	require.Equal(t, 0, store.Len())
	_, ok := store.Last()
	require.False(t, ok)
}
