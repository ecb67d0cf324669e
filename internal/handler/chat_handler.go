// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"support-desk-go/internal/middleware"
	"support-desk-go/internal/model"
	"support-desk-go/internal/service"
	"support-desk-go/pkg/log"
)

// ChatHandler 负责处理会话网关的 HTTP 端点。
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

type sendRequest struct {
	Question string `json:"question" binding:"required"`
	ChatID   string `json:"chatId"`
}

// sseWriter 将增量以 SSE 帧写出并立即刷新。
type sseWriter struct {
	c *gin.Context
}

func (w *sseWriter) WriteDelta(delta *model.StreamDelta) error {
	b, err := json.Marshal(delta)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", b); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// Send 发送一条客户消息并以 SSE 流转发助手回复。
// 新会话不带 chatId，最终会话 ID 在结束帧中返回。
func (h *ChatHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	w := &sseWriter{c: c}
	chatID, err := h.chatService.StreamReply(
		c.Request.Context(),
		middleware.RawTokenFrom(c),
		claims.OrgID, claims.UserID,
		req.ChatID, req.Question,
		w,
	)
	if err != nil {
		log.Errorf("流式回复失败: chatId=%s, err=%v", chatID, err)
		// 头已发出，错误只能作为流内帧传递
		_ = w.WriteDelta(&model.StreamDelta{ChatID: chatID, UserID: claims.UserID, Content: "", Done: true})
		return
	}

	// 结束帧携带最终（可能已迁移的）会话 ID
	_ = w.WriteDelta(&model.StreamDelta{ChatID: chatID, UserID: claims.UserID, Done: true})
}

// History 返回会话历史。scrollOffset 低于阈值时服务端顺带预取更早一页。
func (h *ChatHandler) History(c *gin.Context) {
	chatID := c.Query("chatId")
	if chatID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少 chatId 参数", "data": nil})
		return
	}
	offsetTopPx, _ := strconv.Atoi(c.DefaultQuery("scrollOffset", "-1"))
	if offsetTopPx < 0 {
		// 未携带滚动位置时视为远离顶部，不预取
		offsetTopPx = 1 << 20
	}

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conv, err := h.chatService.History(c.Request.Context(), middleware.RawTokenFrom(c), claims.OrgID, claims.UserID, chatID, offsetTopPx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": "获取会话历史失败", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"chatId":   conv.ChatID,
		"messages": conv.Messages,
		"hasMore":  conv.HasMore,
	}})
}

// ListChatIDs 返回当前用户的会话 ID 列表（侧边栏）。
func (h *ChatHandler) ListChatIDs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	ids, hasMore, err := h.chatService.ListChatIDs(c.Request.Context(), middleware.RawTokenFrom(c), page, pageSize)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": "获取会话列表失败", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{
		"chatIds": ids,
		"hasMore": hasMore,
	}})
}

type deleteChatRequest struct {
	ChatID string `json:"chatId" binding:"required"`
}

// DeleteChat 删除一个会话。
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	var req deleteChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求参数", "data": nil})
		return
	}

	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), middleware.RawTokenFrom(c), claims.OrgID, claims.UserID, req.ChatID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"code": http.StatusBadGateway, "message": "删除会话失败", "data": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}
