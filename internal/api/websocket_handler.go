package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ws "github.com/wfunc/marco-listener/internal/websocket"
)

// WebSocketHandler WebSocket处理器
type WebSocketHandler struct {
	hub *ws.Hub
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// Lines 升级为WebSocket连接并推送串口数据
func (h *WebSocketHandler) Lines(c *gin.Context) {
	h.hub.ServeHTTP(c.Writer, c.Request)
}

// OnlineCount 获取在线连接数
func (h *WebSocketHandler) OnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"online_count": h.hub.GetOnlineCount(),
	})
}
