package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/marco-listener/internal/middleware"
	"github.com/wfunc/marco-listener/internal/models"
	"github.com/wfunc/marco-listener/internal/service"
	"github.com/wfunc/marco-listener/internal/utils"
)

// SerialLogAPI 串口日志API
type SerialLogAPI struct {
	service *service.SerialLogService
}

// NewSerialLogAPI 创建串口日志API
func NewSerialLogAPI(service *service.SerialLogService) *SerialLogAPI {
	return &SerialLogAPI{
		service: service,
	}
}

// RegisterRoutes 注册路由，清理接口需要管理员令牌
func (api *SerialLogAPI) RegisterRoutes(router *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	logs := router.Group("/serial-logs")
	{
		logs.GET("", api.QueryLogs)            // 查询日志列表
		logs.GET("/latest", api.GetLatestLogs) // 获取最新日志
		logs.GET("/stats", api.GetStats)       // 获取统计信息
		logs.GET("/markers", api.GetMarkerLogs)
		logs.GET("/errors", api.GetErrorLogs)
		logs.GET("/export", api.ExportLogs)
		logs.POST("/cleanup", auth.RequireRole(utils.RoleAdmin), api.CleanupLogs)
	}
}

func bindQuery(c *gin.Context, defaultLimit int) (*models.SerialLogQuery, bool) {
	query := &models.SerialLogQuery{}
	if err := c.ShouldBindQuery(query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "查询参数错误",
			Details: err.Error(),
		})
		return nil, false
	}
	if query.Limit <= 0 {
		query.Limit = defaultLimit
	}
	return query, true
}

// parseTimeRange 解析 start_time/end_time（RFC3339），格式错误的忽略
func parseTimeRange(c *gin.Context) (startTime, endTime *time.Time) {
	if start := c.Query("start_time"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = &t
		}
	}
	if end := c.Query("end_time"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = &t
		}
	}
	return startTime, endTime
}

// QueryLogs 查询日志列表
func (api *SerialLogAPI) QueryLogs(c *gin.Context) {
	query, ok := bindQuery(c, 20)
	if !ok {
		return
	}

	logs, total, err := api.service.Query(query)
	if err != nil {
		respondError(c, "QUERY_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatestLogs 获取最新日志
func (api *SerialLogAPI) GetLatestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	logs, err := api.service.GetLatestLogs(limit, c.Query("port"))
	if err != nil {
		respondError(c, "QUERY_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// GetStats 获取统计信息
func (api *SerialLogAPI) GetStats(c *gin.Context) {
	startTime, endTime := parseTimeRange(c)

	stats, err := api.service.GetStats(startTime, endTime)
	if err != nil {
		respondError(c, "QUERY_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetMarkerLogs 获取命中标记的日志
func (api *SerialLogAPI) GetMarkerLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	startTime, endTime := parseTimeRange(c)

	logs, err := api.service.GetMarkerLogs(startTime, endTime, limit)
	if err != nil {
		respondError(c, "QUERY_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// GetErrorLogs 获取错误日志
func (api *SerialLogAPI) GetErrorLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	logs, err := api.service.GetErrorLogs(limit)
	if err != nil {
		respondError(c, "QUERY_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// CleanupLogs 清理旧日志
func (api *SerialLogAPI) CleanupLogs(c *gin.Context) {
	retentionDays, err := strconv.Atoi(c.DefaultPostForm("retention_days", "30"))
	if err != nil || retentionDays < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "保留天数必须大于0",
		})
		return
	}

	count, err := api.service.CleanupOldLogs(retentionDays)
	if err != nil {
		respondError(c, "CLEANUP_FAILED", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "清理成功",
		"deleted":        count,
		"retention_days": retentionDays,
	})
}

// ExportLogs 导出日志
func (api *SerialLogAPI) ExportLogs(c *gin.Context) {
	query, ok := bindQuery(c, 1000)
	if !ok {
		return
	}

	data, err := api.service.ExportLogs(query)
	if err != nil {
		respondError(c, "EXPORT_FAILED", err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=serial_logs_export.json")
	c.Data(http.StatusOK, "application/json", data)
}
