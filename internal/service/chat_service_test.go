package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"support-desk-go/internal/config"
	"support-desk-go/internal/model"
	"support-desk-go/internal/session"
	"support-desk-go/pkg/assistant"
	"support-desk-go/pkg/log"
)

func init() {
	log.Init("error", "console", "")
}

// collectWriter 把转发的增量收集到内存，模拟下游 SSE 写出器。
type collectWriter struct {
	deltas  []*model.StreamDelta
	failAll bool
}

func (w *collectWriter) WriteDelta(delta *model.StreamDelta) error {
	if w.failAll {
		return fmt.Errorf("client gone")
	}
	w.deltas = append(w.deltas, delta)
	return nil
}

// sseChunk 按助手后端的帧格式构造一行 data 帧。
func sseChunk(chatID, content string) string {
	return fmt.Sprintf(`data: {"chat_id":"%s","user_id":"u1","choices":[{"delta":{"content":"%s"}}]}`+"\n", chatID, content)
}

func newAssistantStub(t *testing.T, lines []string) assistant.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprint(w, line)
		}
	}))
	t.Cleanup(srv.Close)
	return assistant.NewClient(config.AssistantConfig{BaseURL: srv.URL})
}

func TestStreamReply_NewConversationMigratesAndPersists(t *testing.T) {
	client := newAssistantStub(t, []string{
		sseChunk("abc", "你好，"),
		sseChunk("abc", "有什么可以帮您？"),
		"data: [DONE]\n",
	})
	store := session.NewMemoryStore()
	svc := NewChatService(client, session.NewReconciler(store), 10, 80)

	w := &collectWriter{}
	chatID, err := svc.StreamReply(context.Background(), "tok", "org1", "u1", "", "帮我查订单", w)
	require.NoError(t, err)
	require.Equal(t, "abc", chatID)

	// 下游收到的每个增量都携带迁移后的会话 ID
	require.Len(t, w.deltas, 2)
	for _, d := range w.deltas {
		require.Equal(t, "abc", d.ChatID)
	}

	// 持久化条目只存在于最终键下
	keys, err := store.KeysByPrefix(context.Background(), "conversation:")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, session.Key("abc", "org1", "u1"), keys[0])

	rec, err := store.Load(context.Background(), keys[0])
	require.NoError(t, err)
	require.Len(t, rec.Messages, 2)
	require.Equal(t, model.SenderCustomer, rec.Messages[0].SenderType)
	require.Equal(t, "帮我查订单", rec.Messages[0].Text)
	require.Equal(t, model.SenderSystem, rec.Messages[1].SenderType)
	require.Equal(t, "你好，有什么可以帮您？", rec.Messages[1].Text)
	require.Greater(t, rec.Messages[1].Timestamp, rec.Messages[0].Timestamp)
}

func TestStreamReply_UpstreamFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()
	client := assistant.NewClient(config.AssistantConfig{BaseURL: srv.URL})

	store := session.NewMemoryStore()
	svc := NewChatService(client, session.NewReconciler(store), 10, 80)

	w := &collectWriter{}
	_, err := svc.StreamReply(context.Background(), "tok", "org1", "u1", "abc", "还在吗", w)
	require.Error(t, err)
	require.Empty(t, w.deltas)
}

func TestStreamReply_EmptyReplyDiscardedPartialKept(t *testing.T) {
	// 上游只发 [DONE]：占位回复从未收到内容，不应落盘
	client := newAssistantStub(t, []string{"data: [DONE]\n"})
	store := session.NewMemoryStore()
	svc := NewChatService(client, session.NewReconciler(store), 10, 80)

	chatID, err := svc.StreamReply(context.Background(), "tok", "org1", "u1", "abc", "在吗", &collectWriter{})
	require.NoError(t, err)
	require.Equal(t, "abc", chatID)

	rec, err := store.Load(context.Background(), session.Key("abc", "org1", "u1"))
	require.NoError(t, err)
	require.Len(t, rec.Messages, 1)
	require.Equal(t, model.SenderCustomer, rec.Messages[0].SenderType)
}

func TestStreamReply_DownstreamWriteFailureKeepsPartial(t *testing.T) {
	client := newAssistantStub(t, []string{
		sseChunk("abc", "部分回答"),
		sseChunk("abc", "（不会送达）"),
		"data: [DONE]\n",
	})
	store := session.NewMemoryStore()
	svc := NewChatService(client, session.NewReconciler(store), 10, 80)

	w := &collectWriter{failAll: true}
	_, err := svc.StreamReply(context.Background(), "tok", "org1", "u1", "abc", "问题", w)
	require.NoError(t, err)

	// 下游断开前已收到的增量仍然提交，不回滚
	rec, err := store.Load(context.Background(), session.Key("abc", "org1", "u1"))
	require.NoError(t, err)
	require.Len(t, rec.Messages, 2)
	require.Equal(t, "部分回答", rec.Messages[1].Text)
}

func TestHistory_LoadsFirstPageAndPrefetchesNearTop(t *testing.T) {
	pageCalls := make([]int, 0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/getallchats", r.URL.Path)
		page := r.URL.Query().Get("page")
		pageCalls = append(pageCalls, len(pageCalls)+1)
		switch page {
		case "1":
			fmt.Fprint(w, `{"messages":[
				{"id":"m3","sender_type":"customer","text":"three","timestamp":3000},
				{"id":"m4","sender_type":"system","text":"four","timestamp":4000}
			],"has_more":true}`)
		case "2":
			fmt.Fprint(w, `{"messages":[
				{"id":"m1","sender_type":"customer","text":"one","timestamp":1000},
				{"id":"m2","sender_type":"system","text":"two","timestamp":2000}
			],"has_more":false}`)
		default:
			t.Fatalf("unexpected page %s", page)
		}
	}))
	defer srv.Close()
	client := assistant.NewClient(config.AssistantConfig{BaseURL: srv.URL})

	store := session.NewMemoryStore()
	svc := NewChatService(client, session.NewReconciler(store), 2, 80)

	// scrollOffset 在阈值内，应加载第一页并顺带预取第二页
	conv, err := svc.History(context.Background(), "tok", "org1", "u1", "abc", 10)
	require.NoError(t, err)
	require.Len(t, pageCalls, 2)
	require.Len(t, conv.Messages, 4)
	require.Equal(t, "m1", conv.Messages[0].ID)
	require.Equal(t, "m4", conv.Messages[3].ID)
	require.False(t, conv.HasMore)
	require.Equal(t, 2, conv.CursorPage)

	// 结果已提交到缓存：再次加载不再访问上游
	conv2, err := svc.History(context.Background(), "tok", "org1", "u1", "abc", 1<<20)
	require.NoError(t, err)
	require.Len(t, pageCalls, 2)
	require.Len(t, conv2.Messages, 4)
}
