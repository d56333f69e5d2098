package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/marco-listener/internal/listener"
	"github.com/wfunc/marco-listener/internal/middleware"
	"github.com/wfunc/marco-listener/internal/service"
	ws "github.com/wfunc/marco-listener/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 运行模式
const (
	ModeListener = "listener"
	ModeHost     = "host"
)

// StatusProvider 提供轮询统计
type StatusProvider interface {
	Stats() listener.Stats
}

// Dependencies 路由依赖，除 Services 外均可为 nil
type Dependencies struct {
	DB            *gorm.DB
	Services      *service.Services
	Mode          string
	PortName      string
	Listener      StatusProvider
	History       *listener.History
	Device        DeviceController
	Hub           *ws.Hub
	WebSocketPath string
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	deps           *Dependencies
	authHandler    *AuthHandler
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(deps *Dependencies, log *zap.Logger) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:         engine,
		deps:           deps,
		authHandler:    NewAuthHandler(deps.Services.Auth),
		authMiddleware: middleware.NewAuthMiddleware(deps.Services.Auth),
		log:            log,
	}

	router.setupRoutes()

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/auth/token", r.authHandler.Token)

		status := NewStatusHandler(r.deps)
		lst := v1.Group("/listener")
		{
			lst.GET("/status", status.Status)
			lst.GET("/recent", status.Recent)
		}

		if r.deps.Services.SerialLog != nil {
			NewSerialLogAPI(r.deps.Services.SerialLog).RegisterRoutes(v1, r.authMiddleware)
		}

		if r.deps.Device != nil {
			device := v1.Group("/device")
			device.Use(r.authMiddleware.RequireAuth())
			NewDeviceHandler(r.deps.Device).RegisterRoutes(device)
		}
	}

	if r.deps.Hub != nil {
		path := r.deps.WebSocketPath
		if path == "" {
			path = "/ws/lines"
		}
		wsHandler := NewWebSocketHandler(r.deps.Hub)
		r.engine.GET(path, wsHandler.Lines)
		v1.GET("/ws/online", wsHandler.OnlineCount)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	database := "disabled"
	if r.deps.DB != nil {
		sqlDB, err := r.deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			r.log.Warn("健康检查：数据库不可用", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "数据库连接失败",
			})
			return
		}
		database = "ok"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"message":  "服务运行正常",
		"mode":     r.deps.Mode,
		"port":     r.deps.PortName,
		"database": database,
	})
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
