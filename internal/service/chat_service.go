package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"support-desk-go/internal/model"
	"support-desk-go/internal/session"
	"support-desk-go/pkg/assistant"
	"support-desk-go/pkg/log"
)

// DeltaWriter 抽象增量的下游出口（SSE 响应写出器）。
type DeltaWriter interface {
	WriteDelta(delta *model.StreamDelta) error
}

// ChatService 定义了会话网关的业务接口。
type ChatService interface {
	// StreamReply 发送一条客户消息，将助手回复增量转发给 w，
	// 并在流结束后持久化会话。返回最终（可能已迁移的）会话 ID。
	StreamReply(ctx context.Context, token, orgID, userID, chatID, question string, w DeltaWriter) (string, error)
	// History 加载会话历史；offsetTopPx 低于阈值时顺带预取更早一页。
	History(ctx context.Context, token, orgID, userID, chatID string, offsetTopPx int) (*model.Conversation, error)
	// ListChatIDs 返回当前用户可见的会话 ID 列表（侧边栏）。
	ListChatIDs(ctx context.Context, token string, page, pageSize int) ([]string, bool, error)
	// DeleteChat 删除上游会话并清理本地缓存。
	DeleteChat(ctx context.Context, token, orgID, userID, chatID string) error
}

type chatService struct {
	client     assistant.Client
	reconciler *session.Reconciler

	pageSize    int
	thresholdPx int
	now         func() time.Time
}

// NewChatService 创建一个 ChatService 实例。
func NewChatService(client assistant.Client, reconciler *session.Reconciler, pageSize, thresholdPx int) ChatService {
	if pageSize <= 0 {
		pageSize = 10
	}
	if thresholdPx <= 0 {
		thresholdPx = 80
	}
	return &chatService{
		client:      client,
		reconciler:  reconciler,
		pageSize:    pageSize,
		thresholdPx: thresholdPx,
		now:         time.Now,
	}
}

// StreamReply 实现一轮完整的问答：
// 本地追加客户消息 -> 占位回复 -> 转发上游增量 -> 提交会话。
// 新会话先使用毫秒时间戳的临时 ID，上游在首帧分配真实 ID 后由 Reconciler 迁移。
func (s *chatService) StreamReply(ctx context.Context, token, orgID, userID, chatID, question string, w DeltaWriter) (string, error) {
	upstreamChatID := chatID
	if chatID == "" {
		// 临时本地 ID，仅用于缓存键；不发送给上游
		chatID = strconv.FormatInt(s.now().UnixMilli(), 10)
	}

	conv := s.reconciler.Load(ctx, chatID, orgID, userID)
	s.reconciler.AppendLocal(conv, question)
	handle := s.reconciler.BeginReply(conv)

	dec, err := s.client.StreamChat(ctx, token, question, upstreamChatID)
	if err != nil {
		s.reconciler.DiscardEmptyReply(conv, handle)
		return conv.ChatID, fmt.Errorf("failed to open assistant stream: %w", err)
	}
	defer dec.Close()

	var streamErr error
	for {
		delta, err := dec.Next()
		if err != nil {
			// io.EOF 是正常结束（含 [DONE] 哨兵）；取消不视为错误
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				streamErr = err
			}
			break
		}

		s.reconciler.ApplyDelta(ctx, conv, handle, delta)
		// 下游收到的 ID 始终是迁移后的权威会话 ID
		out := &model.StreamDelta{
			ChatID:  conv.ChatID,
			UserID:  userID,
			Content: delta.Content,
			Done:    false,
		}
		if werr := w.WriteDelta(out); werr != nil {
			// 客户端断开：停止转发，已有的部分回答照常保留并提交
			log.Warnf("下游写入失败，终止转发: chatId=%s, err=%v", conv.ChatID, werr)
			break
		}
	}

	// 从未收到任何内容的占位回复不落盘
	s.reconciler.DiscardEmptyReply(conv, handle)

	// 请求被取消时 ctx 已不可用，持久化使用独立 context
	s.reconciler.Commit(context.Background(), conv)

	if streamErr != nil {
		return conv.ChatID, fmt.Errorf("assistant stream aborted: %w", streamErr)
	}
	return conv.ChatID, nil
}

// History 从缓存或上游装配会话视图，并按需预取更早历史。
func (s *chatService) History(ctx context.Context, token, orgID, userID, chatID string, offsetTopPx int) (*model.Conversation, error) {
	conv := s.reconciler.Load(ctx, chatID, orgID, userID)
	view := session.NewChatView(conv, &historyFetcher{client: s.client, token: token}, s.pageSize, s.thresholdPx)

	if err := view.LoadInitial(ctx); err != nil {
		return nil, err
	}
	if view.ShouldFetchMore(offsetTopPx) {
		// 预取失败不影响已加载的页：记告警，HasMore 已被置 false
		if err := view.FetchOlder(ctx); err != nil {
			log.Warnf("预取更早历史失败: chatId=%s, err=%v", chatID, err)
		}
	}

	s.reconciler.Commit(ctx, conv)
	return conv, nil
}

func (s *chatService) ListChatIDs(ctx context.Context, token string, page, pageSize int) ([]string, bool, error) {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	return s.client.GetAllChatIDs(ctx, token, page, pageSize)
}

// DeleteChat 先删上游再删缓存；上游失败时缓存保留，整体可重试。
func (s *chatService) DeleteChat(ctx context.Context, token, orgID, userID, chatID string) error {
	if err := s.client.DeleteChat(ctx, token, chatID); err != nil {
		return err
	}
	if err := s.reconciler.Delete(ctx, chatID, orgID, userID); err != nil {
		log.Warnf("清理会话缓存失败: chatId=%s, err=%v", chatID, err)
	}
	return nil
}

// historyFetcher 将 assistant.Client 适配为 session.HistoryFetcher，
// 把调用方的 bearer token 固定在闭包里。
type historyFetcher struct {
	client assistant.Client
	token  string
}

func (f *historyFetcher) FetchHistory(ctx context.Context, chatID string, page, pageSize int) ([]model.Message, *bool, error) {
	return f.client.GetAllChats(ctx, f.token, chatID, page, pageSize)
}
