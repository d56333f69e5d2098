package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/marco-listener/internal/protocol"
)

// DeviceController 向键盘下发指令
type DeviceController interface {
	SetKeyColor(key byte, hexColor string) error
	SetOLEDText(line byte, inverted byte, text string) error
}

// DeviceHandler 设备控制
type DeviceHandler struct {
	device DeviceController
}

// NewDeviceHandler 创建设备控制处理器
func NewDeviceHandler(device DeviceController) *DeviceHandler {
	return &DeviceHandler{device: device}
}

// RegisterRoutes 注册路由
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/keys/:index/color", h.SetKeyColor)
	router.POST("/oled", h.SetOLEDText)
}

// KeyColorRequest 按键颜色请求
type KeyColorRequest struct {
	Color string `json:"color" binding:"required,len=6,hexadecimal"`
}

// OLEDRequest 屏幕文字请求
type OLEDRequest struct {
	Line     uint8  `json:"line" binding:"max=15"`
	Inverted bool   `json:"inverted"`
	Text     string `json:"text" binding:"max=100"`
}

// SetKeyColor 设置按键颜色
func (h *DeviceHandler) SetKeyColor(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 || index >= protocol.NumKeys {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "按键序号越界",
			Details: c.Param("index"),
		})
		return
	}

	var req KeyColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if err := h.device.SetKeyColor(byte(index), req.Color); err != nil {
		respondError(c, "DEVICE_WRITE_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "已下发"})
}

// SetOLEDText 设置屏幕文字
func (h *DeviceHandler) SetOLEDText(c *gin.Context) {
	var req OLEDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	var inverted byte
	if req.Inverted {
		inverted = 1
	}
	if err := h.device.SetOLEDText(req.Line, inverted, req.Text); err != nil {
		respondError(c, "DEVICE_WRITE_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Message: "已下发"})
}
