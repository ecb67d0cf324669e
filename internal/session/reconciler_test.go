package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-desk-go/internal/model"
	"support-desk-go/pkg/log"
)

func init() {
	log.Init("error", "console", "")
}

func TestReconciler_LoadMissingReturnsEmptyShell(t *testing.T) {
	r := NewReconciler(NewMemoryStore())

	conv := r.Load(context.Background(), "nope", "org1", "u1")
	require.NotNil(t, conv)
	require.Empty(t, conv.Messages)
	require.True(t, conv.HasMore)
	require.Equal(t, 1, conv.CursorPage)
}

func TestReconciler_LoadCorruptDataFailsOpen(t *testing.T) {
	store := NewMemoryStore()
	store.PutRaw(Key("c1", "org1", "u1"), []byte("{{{not json"))
	r := NewReconciler(store)

	conv := r.Load(context.Background(), "c1", "org1", "u1")
	require.Empty(t, conv.Messages)
	require.True(t, conv.HasMore)
	require.Equal(t, 1, conv.CursorPage)
}

func TestReconciler_AppendLocalMonotonicTimestamp(t *testing.T) {
	r := NewReconciler(NewMemoryStore())
	// 固定时钟：墙钟不前进时时间戳仍须严格递增
	fixed := time.UnixMilli(1700000000000)
	r.now = func() time.Time { return fixed }

	conv := r.Load(context.Background(), "", "org1", "u1")
	m1 := r.AppendLocal(conv, "first")
	m2 := r.AppendLocal(conv, "second")
	m3 := r.AppendLocal(conv, "third")

	require.Equal(t, int64(1700000000000), m1.Timestamp)
	require.Equal(t, m1.Timestamp+1, m2.Timestamp)
	require.Equal(t, m2.Timestamp+1, m3.Timestamp)
	require.Equal(t, model.SenderCustomer, m1.SenderType)
}

func TestReconciler_CommitAndReload(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store)
	ctx := context.Background()

	conv := r.Load(ctx, "c1", "org1", "u1")
	r.AppendLocal(conv, "Hello")
	handle := r.BeginReply(conv)
	r.ApplyDelta(ctx, conv, handle, &model.StreamDelta{Content: "Hi"})
	r.ApplyDelta(ctx, conv, handle, &model.StreamDelta{Content: " there"})
	r.Commit(ctx, conv)

	reloaded := r.Load(ctx, "c1", "org1", "u1")
	require.Len(t, reloaded.Messages, 2)
	require.Equal(t, "Hello", reloaded.Messages[0].Text)
	require.Equal(t, model.SenderCustomer, reloaded.Messages[0].SenderType)
	require.Equal(t, "Hi there", reloaded.Messages[1].Text)
	require.Equal(t, model.SenderSystem, reloaded.Messages[1].SenderType)
}

// 会话 ID 迁移：临时本地 ID 被后端分配的 ID 取代后，
// 存储中只保留新键下的唯一条目；重复迁移是幂等的。
func TestReconciler_MigrationIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store)
	ctx := context.Background()

	provisional := "1700000000000"
	conv := r.Load(ctx, provisional, "org1", "u1")
	r.AppendLocal(conv, "Hello")
	r.Commit(ctx, conv)

	handle := r.BeginReply(conv)
	r.ApplyDelta(ctx, conv, handle, &model.StreamDelta{ChatID: "abc", Content: "Hi"})
	r.Commit(ctx, conv)

	// 旧键消失，新键存在
	oldRec, err := store.Load(ctx, Key(provisional, "org1", "u1"))
	require.NoError(t, err)
	require.Nil(t, oldRec)
	newRec, err := store.Load(ctx, Key("abc", "org1", "u1"))
	require.NoError(t, err)
	require.NotNil(t, newRec)
	require.Equal(t, "abc", newRec.ChatID)

	firstState := *newRec

	// 同一新 ID 再次触发迁移：状态不变
	r.ApplyDelta(ctx, conv, handle, &model.StreamDelta{ChatID: "abc", Content: ""})
	r.Commit(ctx, conv)

	again, err := store.Load(ctx, Key("abc", "org1", "u1"))
	require.NoError(t, err)
	require.Equal(t, firstState.ChatID, again.ChatID)
	require.Equal(t, len(firstState.Messages), len(again.Messages))

	keys, err := store.KeysByPrefix(ctx, "conversation:")
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestReconciler_DiscardEmptyReply(t *testing.T) {
	r := NewReconciler(NewMemoryStore())
	ctx := context.Background()

	conv := r.Load(ctx, "c1", "org1", "u1")
	r.AppendLocal(conv, "Hello")
	handle := r.BeginReply(conv)
	require.Len(t, conv.Messages, 2)

	// 未收到任何内容的占位回复被移除
	r.DiscardEmptyReply(conv, handle)
	require.Len(t, conv.Messages, 1)

	// 已有部分内容的回复保留，不回滚
	handle2 := r.BeginReply(conv)
	r.ApplyDelta(ctx, conv, handle2, &model.StreamDelta{Content: "Hi"})
	r.DiscardEmptyReply(conv, handle2)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, "Hi", conv.Messages[1].Text)
}

func TestReconciler_CommitSurvivesStoreFailure(t *testing.T) {
	store := NewMemoryStore()
	store.FailSaves = true
	r := NewReconciler(store)
	ctx := context.Background()

	var updates []Update
	r.Subscribe(func(u Update) { updates = append(updates, u) })

	conv := r.Load(ctx, "c1", "org1", "u1")
	r.AppendLocal(conv, "Hello")
	// 写失败不 panic、不报错，内存状态仍然有效，且仍然发出更新通知
	r.Commit(ctx, conv)
	require.Len(t, conv.Messages, 1)
	require.Len(t, updates, 1)
	require.Equal(t, "c1", updates[0].ChatID)
	require.Equal(t, "Hello", updates[0].Preview)
}

func TestReconciler_DeleteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	r := NewReconciler(store)
	ctx := context.Background()

	conv := r.Load(ctx, "c1", "org1", "u1")
	r.AppendLocal(conv, "Hello")
	r.Commit(ctx, conv)

	require.NoError(t, r.Delete(ctx, "c1", "org1", "u1"))
	rec, err := store.Load(ctx, Key("c1", "org1", "u1"))
	require.NoError(t, err)
	require.Nil(t, rec)

	// 再删一次不报错
	require.NoError(t, r.Delete(ctx, "c1", "org1", "u1"))
}

func TestReconciler_SubscribeReceivesUpdates(t *testing.T) {
	r := NewReconciler(NewMemoryStore())
	ctx := context.Background()

	var got []Update
	r.Subscribe(func(u Update) { got = append(got, u) })

	conv := r.Load(ctx, "c1", "org1", "u1")
	r.AppendLocal(conv, "这是一条很长很长很长很长很长很长很长很长的消息")
	r.Commit(ctx, conv)

	require.Len(t, got, 1)
	require.Equal(t, "org1", got[0].OrgID)
	require.Equal(t, "u1", got[0].UserID)
	// 预览截断到 20 个字符
	require.Equal(t, 20, len([]rune(got[0].Preview)))
}
