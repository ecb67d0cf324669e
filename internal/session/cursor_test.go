package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"support-desk-go/internal/model"
)

// fakeFetcher 按页返回预置消息，并记录收到的请求。
type fakeFetcher struct {
	pages    map[int][]model.Message
	hasMore  map[int]*bool
	err      error
	requests []int
}

func (f *fakeFetcher) FetchHistory(ctx context.Context, chatID string, page, pageSize int) ([]model.Message, *bool, error) {
	f.requests = append(f.requests, page)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.pages[page], f.hasMore[page], nil
}

func msg(id string, ts int64) model.Message {
	return model.Message{ID: id, SenderType: model.SenderSystem, Text: "m-" + id, Timestamp: ts}
}

func newReadyView(t *testing.T, conv *model.Conversation, f HistoryFetcher, pageSize int) *ChatView {
	t.Helper()
	v := NewChatView(conv, f, pageSize, 80)
	require.NoError(t, v.LoadInitial(context.Background()))
	require.Equal(t, StateReady, v.State())
	return v
}

func cachedConv(n int, startTS int64) *model.Conversation {
	conv := &model.Conversation{ChatID: "c1", OrgID: "org1", UserID: "u1", HasMore: true, CursorPage: 1}
	for i := 0; i < n; i++ {
		m := msg(fmt.Sprintf("cached-%d", i), startTS+int64(i))
		conv.Messages = append(conv.Messages, &m)
	}
	return conv
}

// 合并带重叠 ID 的较早页：15 条缓存 + 10 条返回（3 条重叠）= 22 条，
// 升序无重复，且缓存副本不被覆盖。
func TestChatView_FetchOlderMergesAndDedupes(t *testing.T) {
	conv := cachedConv(15, 1000)
	older := make([]model.Message, 0, 10)
	for i := 0; i < 7; i++ {
		older = append(older, msg(fmt.Sprintf("old-%d", i), int64(500+i)))
	}
	// 3 条与缓存重叠，文本不同，用于验证缓存副本优先
	for i := 0; i < 3; i++ {
		dup := msg(fmt.Sprintf("cached-%d", i), 1000+int64(i))
		dup.Text = "server-copy"
		older = append(older, dup)
	}

	f := &fakeFetcher{pages: map[int][]model.Message{2: older}, hasMore: map[int]*bool{}}
	v := newReadyView(t, conv, f, 10)

	require.NoError(t, v.FetchOlder(context.Background()))
	require.Equal(t, StateReady, v.State())
	require.Len(t, conv.Messages, 22)

	seen := map[string]bool{}
	for i, m := range conv.Messages {
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			require.LessOrEqual(t, conv.Messages[i-1].Timestamp, m.Timestamp)
		}
		// 重叠 ID 保留的是缓存里的文本
		require.NotEqual(t, "server-copy", m.Text)
	}

	// 返回满页且无显式标志：推断仍有更早历史；游标推进
	require.True(t, conv.HasMore)
	require.Equal(t, 2, conv.CursorPage)
	require.Equal(t, []int{2}, f.requests)
}

// 空页将 HasMore 置 false，且后续滚动到顶不再触发拉取。
func TestChatView_EmptyPageStopsPagination(t *testing.T) {
	conv := cachedConv(5, 1000)
	conv.CursorPage = 2
	f := &fakeFetcher{pages: map[int][]model.Message{}, hasMore: map[int]*bool{}}
	v := newReadyView(t, conv, f, 10)

	require.True(t, v.ShouldFetchMore(0))
	require.NoError(t, v.FetchOlder(context.Background()))
	require.False(t, conv.HasMore)
	require.False(t, v.ShouldFetchMore(0))

	// 再次调用直接短路，不发请求
	require.NoError(t, v.FetchOlder(context.Background()))
	require.Equal(t, []int{3}, f.requests)
}

// 显式 has_more 标志优先于整页推断。
func TestChatView_ExplicitHasMoreWins(t *testing.T) {
	conv := cachedConv(5, 1000)
	full := make([]model.Message, 10)
	for i := range full {
		full[i] = msg(fmt.Sprintf("p2-%d", i), int64(100+i))
	}
	no := false
	f := &fakeFetcher{pages: map[int][]model.Message{2: full}, hasMore: map[int]*bool{2: &no}}
	v := newReadyView(t, conv, f, 10)

	require.NoError(t, v.FetchOlder(context.Background()))
	require.False(t, conv.HasMore)
}

// 拉取失败：回到 Ready、HasMore 置 false 阻断重试风暴、游标不推进。
func TestChatView_FetchFailureStopsRetries(t *testing.T) {
	conv := cachedConv(5, 1000)
	f := &fakeFetcher{err: errors.New("upstream down")}
	v := NewChatView(conv, f, 10, 80)
	// 缓存里已有消息，LoadInitial 不发请求
	require.NoError(t, v.LoadInitial(context.Background()))

	err := v.FetchOlder(context.Background())
	require.Error(t, err)
	require.Equal(t, StateReady, v.State())
	require.False(t, conv.HasMore)
	require.Equal(t, 1, conv.CursorPage)
}

func TestChatView_ShouldFetchMoreGuards(t *testing.T) {
	conv := cachedConv(5, 1000)
	f := &fakeFetcher{pages: map[int][]model.Message{}, hasMore: map[int]*bool{}}
	v := newReadyView(t, conv, f, 10)

	require.True(t, v.ShouldFetchMore(0))
	require.True(t, v.ShouldFetchMore(80))
	// 距顶部超过阈值
	require.False(t, v.ShouldFetchMore(81))

	// 在途拉取期间不重复触发
	v.mu.Lock()
	v.inFlight = true
	v.mu.Unlock()
	require.False(t, v.ShouldFetchMore(0))
	v.mu.Lock()
	v.inFlight = false
	v.mu.Unlock()

	// 无更早历史
	conv.HasMore = false
	require.False(t, v.ShouldFetchMore(0))
}

// 会话切换后到达的分页结果被判定过期并丢弃。
func TestChatView_StaleResultDiscardedAfterSwitch(t *testing.T) {
	convA := cachedConv(3, 1000)
	fetched := make(chan struct{})
	release := make(chan struct{})
	f := &blockingFetcher{fetched: fetched, release: release}
	v := newReadyView(t, convA, f, 10)

	done := make(chan error, 1)
	go func() { done <- v.FetchOlder(context.Background()) }()
	<-fetched

	// 拉取在途时切换会话
	convB := cachedConv(2, 2000)
	convB.ChatID = "c2"
	v.SwitchConversation(convB)

	close(release)
	require.NoError(t, <-done)

	// 两个会话都未被过期结果污染
	require.Len(t, convA.Messages, 3)
	require.Len(t, convB.Messages, 2)
	require.Equal(t, StateIdle, v.State())
}

type blockingFetcher struct {
	fetched chan struct{}
	release chan struct{}
}

func (f *blockingFetcher) FetchHistory(ctx context.Context, chatID string, page, pageSize int) ([]model.Message, *bool, error) {
	close(f.fetched)
	<-f.release
	return []model.Message{msg("late", 1)}, nil, nil
}

func TestChatView_IllegalTransitions(t *testing.T) {
	conv := cachedConv(1, 1000)
	f := &fakeFetcher{pages: map[int][]model.Message{}, hasMore: map[int]*bool{}}
	v := NewChatView(conv, f, 10, 80)

	// Idle 状态下不允许直接进入流式
	require.Error(t, v.BeginStreaming())

	require.NoError(t, v.LoadInitial(context.Background()))
	require.NoError(t, v.BeginStreaming())
	// Streaming 状态下不允许再次发起初始加载
	require.Error(t, v.LoadInitial(context.Background()))
	require.NoError(t, v.EndStreaming())
}

func TestAdjustScroll(t *testing.T) {
	// 合并前高度 1200、偏移 40；插入新消息后高度 1800 ⇒ 偏移应为 640
	require.Equal(t, 640, AdjustScroll(1200, 1800, 40))
	// 高度不变则偏移不变
	require.Equal(t, 40, AdjustScroll(1200, 1200, 40))
}
