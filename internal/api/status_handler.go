package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/marco-listener/internal/listener"
)

// StatusHandler 运行状态
type StatusHandler struct {
	deps *Dependencies
}

// NewStatusHandler 创建状态处理器
func NewStatusHandler(deps *Dependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// Status 当前模式、串口与轮询统计
func (h *StatusHandler) Status(c *gin.Context) {
	resp := gin.H{
		"mode": h.deps.Mode,
		"port": h.deps.PortName,
	}
	if h.deps.Listener != nil {
		resp["stats"] = h.deps.Listener.Stats()
	}
	if h.deps.History != nil {
		resp["history"] = h.deps.History.Len()
	}
	if h.deps.Hub != nil {
		resp["ws_clients"] = h.deps.Hub.GetOnlineCount()
	}
	c.JSON(http.StatusOK, resp)
}

// Recent 最近收到的数据，limit 默认50
func (h *StatusHandler) Recent(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "limit 必须是非负整数",
		})
		return
	}

	events := []*listener.Event{}
	if h.deps.History != nil {
		events = h.deps.History.Recent(limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  events,
		"count": len(events),
	})
}
