package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"support-desk-go/internal/middleware"
	"support-desk-go/internal/session"
	"support-desk-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// UpdatesHandler 通过 WebSocket 向在线客户端推送会话更新通知，
// 替代浏览器同源多标签页之间的 storage 事件广播。
type UpdatesHandler struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]connIdentity
}

type connIdentity struct {
	orgID  string
	userID string
}

// NewUpdatesHandler 创建推送处理器并订阅会话更新。
func NewUpdatesHandler(reconciler *session.Reconciler) *UpdatesHandler {
	h := &UpdatesHandler{conns: make(map[*websocket.Conn]connIdentity)}
	reconciler.Subscribe(h.broadcast)
	return h
}

// Handle 处理一个传入的 WebSocket 连接。
// 连接保持到客户端关闭为止，期间只做服务端到客户端的单向推送。
func (h *UpdatesHandler) Handle(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = connIdentity{orgID: claims.OrgID, userID: claims.UserID}
	h.mu.Unlock()

	log.Infof("会话更新推送连接已建立: userId=%s", claims.UserID)

	// 读循环只用于感知连接关闭
	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.conns, conn)
			h.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast 把一条会话更新推送给同组织同用户的全部连接。
func (h *UpdatesHandler) broadcast(u session.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, id := range h.conns {
		if id.orgID != u.OrgID || id.userID != u.UserID {
			continue
		}
		if err := conn.WriteJSON(u); err != nil {
			log.Warnf("推送会话更新失败，移除连接: userId=%s, err=%v", id.userID, err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
}
