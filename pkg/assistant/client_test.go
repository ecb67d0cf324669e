package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"support-desk-go/internal/config"
	"support-desk-go/internal/model"
	"support-desk-go/pkg/log"
)

func init() {
	log.Init("error", "console", "")
}

func newTestClient(url string) Client {
	return NewClient(config.AssistantConfig{BaseURL: url, TimeoutSeconds: 5})
}

func TestStreamChat_RelaysDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Hello", body["question"])
		require.Equal(t, true, body["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"chat_id":"abc","user_id":"u1","choices":[{"delta":{"content":"Hi"}}]}`+"\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":" there"}}]}`+"\n")
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	dec, err := newTestClient(srv.URL).StreamChat(context.Background(), "tok-1", "Hello", "")
	require.NoError(t, err)
	defer dec.Close()

	d1, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, "Hi", d1.Content)
	require.Equal(t, "abc", d1.ChatID)

	d2, err := dec.Next()
	require.NoError(t, err)
	require.Equal(t, " there", d2.Content)

	_, err = dec.Next()
	require.Equal(t, io.EOF, err)
}

func TestStreamChat_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).StreamChat(context.Background(), "tok", "q", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "non-200")
}

func TestGetAllChats_ExplicitHasMore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/getallchats", r.URL.Path)
		require.Equal(t, "c1", r.URL.Query().Get("chat_id"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []model.Message{
				{ID: "m1", SenderType: model.SenderCustomer, Text: "hi", Timestamp: 100},
			},
			"has_more": false,
		})
	}))
	defer srv.Close()

	msgs, hasMore, err := newTestClient(srv.URL).GetAllChats(context.Background(), "tok", "c1", 2, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, hasMore)
	require.False(t, *hasMore)
}

func TestGetAllChats_MissingHasMoreIsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []model.Message{},
		})
	}))
	defer srv.Close()

	_, hasMore, err := newTestClient(srv.URL).GetAllChats(context.Background(), "tok", "c1", 1, 10)
	require.NoError(t, err)
	// 后端未显式返回 has_more 时交由调用方按整页推断
	require.Nil(t, hasMore)
}

func TestGetAllChatIDs_InfersFromFullPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"chat_ids": []string{"a", "b", "c"},
		})
	}))
	defer srv.Close()

	ids, hasMore, err := newTestClient(srv.URL).GetAllChatIDs(context.Background(), "tok", 1, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, ids)
	require.True(t, hasMore)
}

func TestDeleteChat(t *testing.T) {
	var gotChatID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/deletechat", r.URL.Path)
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotChatID = body["chat_id"]
		json.NewEncoder(w).Encode(map[string]string{"message": "Chat deleted successfully"})
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(srv.URL).DeleteChat(context.Background(), "tok", "c1"))
	require.Equal(t, "c1", gotChatID)
}
