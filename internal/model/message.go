// Package model 包含了应用的数据模型定义。
package model

// SenderType 标识消息的发送方。
type SenderType string

const (
	// SenderCustomer 表示客户（用户）发送的消息。
	SenderCustomer SenderType = "customer"
	// SenderSystem 表示助手后端生成的消息。
	SenderSystem SenderType = "system"
)

// Message 代表会话中的一条消息。
// Text 在流式回复进行中可能为空串，随增量内容逐步填充。
type Message struct {
	ID         string     `json:"id"`
	SenderType SenderType `json:"sender_type"`
	Text       string     `json:"text"`
	// Timestamp 为毫秒级 Unix 时间戳；同一会话内按其升序排列，相同时间保持插入顺序。
	Timestamp int64 `json:"timestamp"`
}

// Conversation 是一个会话在内存中的权威视图。
// 归属由 (ChatID, OrgID, UserID) 三元组界定，持久化键也由三者组合派生。
type Conversation struct {
	ChatID string
	OrgID  string
	UserID string
	// Messages 中的元素是可变句柄：流式回复期间最后一条 system 消息会被原地追加内容。
	Messages []*Message
	// HasMore 表示是否还有更早的历史页未拉取。
	HasMore bool
	// CursorPage 是向前翻页游标：初始页为 1，下一次回溯拉取请求 CursorPage+1。
	CursorPage int
}

// Tail 返回消息列表末尾的消息，列表为空时返回 nil。
func (c *Conversation) Tail() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// ConversationRecord 是会话的持久化形态（JSON 序列化后写入存储）。
type ConversationRecord struct {
	ChatID     string    `json:"chatId"`
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	CursorPage int       `json:"cursorPage"`
	UpdatedAt  int64     `json:"updatedAt"`
}

// StreamDelta 是助手后端流式响应中的一个增量帧。
// ChatID/UserID 只在后端完成分配后出现；Content 可能为空。
type StreamDelta struct {
	ChatID  string `json:"chatId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
	// Done 表示已观测到流结束哨兵帧。
	Done bool `json:"done"`
}
