// Package assistant 提供访问外部智能助手后端的 HTTP 客户端。
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"support-desk-go/internal/config"
	"support-desk-go/internal/model"
	"support-desk-go/internal/stream"
)

// Client 定义助手后端的访问接口。
// 所有调用都透传来自身份提供方的 bearer token，网关自身不持有上游凭证。
type Client interface {
	// StreamChat 发起流式问答，返回增量解码器；调用方负责 Close。
	StreamChat(ctx context.Context, token, question, chatID string) (*stream.Decoder, error)
	// GetAllChats 按页拉取某个会话的历史消息。
	// hasMore 为 nil 表示后端未显式返回该标志。
	GetAllChats(ctx context.Context, token, chatID string, page, pageSize int) (messages []model.Message, hasMore *bool, err error)
	// GetAllChatIDs 拉取当前组织的会话 ID 列表（侧边栏）。
	GetAllChatIDs(ctx context.Context, token string, page, pageSize int) (chatIDs []string, hasMore bool, err error)
	// DeleteChat 删除一个会话及其全部消息。
	DeleteChat(ctx context.Context, token, chatID string) error
}

type httpClient struct {
	cfg    config.AssistantConfig
	client *http.Client
}

// NewClient 创建一个助手后端客户端。
func NewClient(cfg config.AssistantConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 0 // 流式请求依赖调用方 context 控制生命周期
	}
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Question string `json:"question"`
	ChatID   string `json:"chat_id,omitempty"`
	Stream   bool   `json:"stream"`
}

func (c *httpClient) StreamChat(ctx context.Context, token, question, chatID string) (*stream.Decoder, error) {
	reqBody := chatRequest{Question: question, ChatID: chatID, Stream: true}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call chat api: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return stream.NewDecoder(resp.Body), nil
}

type historyResponse struct {
	Messages []model.Message `json:"messages"`
	HasMore  *bool           `json:"has_more"`
}

func (c *httpClient) GetAllChats(ctx context.Context, token, chatID string, page, pageSize int) ([]model.Message, *bool, error) {
	q := url.Values{}
	q.Set("chat_id", chatID)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out historyResponse
	if err := c.getJSON(ctx, token, "/getallchats?"+q.Encode(), &out); err != nil {
		return nil, nil, err
	}
	return out.Messages, out.HasMore, nil
}

type chatIDsResponse struct {
	ChatIDs []string `json:"chat_ids"`
	HasMore *bool    `json:"has_more"`
}

func (c *httpClient) GetAllChatIDs(ctx context.Context, token string, page, pageSize int) ([]string, bool, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out chatIDsResponse
	if err := c.getJSON(ctx, token, "/getallchatids?"+q.Encode(), &out); err != nil {
		return nil, false, err
	}
	hasMore := len(out.ChatIDs) == pageSize
	if out.HasMore != nil {
		hasMore = *out.HasMore
	}
	return out.ChatIDs, hasMore, nil
}

func (c *httpClient) DeleteChat(ctx context.Context, token, chatID string) error {
	reqBytes, err := json.Marshal(map[string]string{"chat_id": chatID})
	if err != nil {
		return fmt.Errorf("failed to marshal delete request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/deletechat", bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call delete api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

func (c *httpClient) getJSON(ctx context.Context, token, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call assistant api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("assistant api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode assistant response: %w", err)
	}
	return nil
}
