package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/marco-listener/internal/api"
	"github.com/wfunc/marco-listener/internal/config"
	"github.com/wfunc/marco-listener/internal/database"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/hardware"
	"github.com/wfunc/marco-listener/internal/host"
	"github.com/wfunc/marco-listener/internal/listener"
	"github.com/wfunc/marco-listener/internal/logger"
	"github.com/wfunc/marco-listener/internal/mqtt"
	"github.com/wfunc/marco-listener/internal/service"
	ws "github.com/wfunc/marco-listener/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	port     hardware.Port
	portName string
	db       *gorm.DB
	services *service.Services
	history  *listener.History
	hub      *ws.Hub
	mqtt     *mqtt.Publisher
	poller   *listener.Listener
	bridge   *host.Bridge
	device   *host.Device
	http     *http.Server

	// 串口循环异常退出时写入
	fatalCh chan error

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	setupSystem(&cfg.System)

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Error("服务器启动失败", zap.Error(err))
		server.Shutdown()
		os.Exit(1)
	}

	cause := server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	if cause != nil {
		fmt.Fprintf(os.Stderr, "串口循环终止: %v\n", cause)
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:     cfg,
		logger:  logger.GetLogger(),
		fatalCh: make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) mode() string {
	if s.cfg.Host.Enabled {
		return api.ModeHost
	}
	return api.ModeListener
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动串口监听服务...",
		zap.String("version", Version),
		zap.String("mode", s.mode()),
		zap.String("config", config.ConfigFile()),
	)

	if err := s.initComponents(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "初始化组件失败")
	}

	s.startServices()

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功", zap.String("port", s.portName))
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	if s.cfg.Database.Enabled {
		if err := s.initDatabase(); err != nil {
			return err
		}
	}

	s.services = service.NewServices(s.db, &s.cfg.Security, s.logger.Named("service"))
	s.history = listener.NewHistory(s.cfg.Listener.HistorySize)

	if s.cfg.WebSocket.Enabled {
		s.hub = ws.NewHub(s.cfg.WebSocket, logger.WithModule("websocket"))
	}

	if s.cfg.MQTT.Enabled {
		pub, err := mqtt.NewPublisher(s.cfg.MQTT)
		if err != nil {
			return err
		}
		// 代理不可用时只记录，串口监听照常运行
		if err := pub.Connect(); err != nil {
			s.logger.Warn("MQTT连接失败", zap.Error(err))
		}
		s.mqtt = pub
	}

	port, name, err := hardware.OpenFromConfig(&s.cfg.Serial, nil)
	if err != nil {
		return err
	}
	s.port = port
	s.portName = name

	sinks := s.sinks()
	if s.cfg.Host.Enabled {
		clips, err := host.NewClipboardManager(s.cfg.Host.ClipboardDir, host.SystemClipboard{})
		if err != nil {
			return err
		}
		s.device = host.NewDevice(port, name, &s.cfg.Serial, sinks)
		s.bridge = host.NewBridge(port, os.Stdout, name, s.cfg.Host.MaxLineSize, host.NewDispatcher(s.device, clips), sinks)
	} else {
		s.poller = listener.New(port, os.Stdout, listener.OptionsFrom(name, &s.cfg.Listener), sinks)
	}

	if s.cfg.Server.Enabled {
		s.initHTTP()
	}

	return nil
}

// sinks 按启用的组件组装事件接收方
func (s *Server) sinks() listener.Sinks {
	sinks := listener.Sinks{s.history}
	if s.services.SerialLog != nil {
		sinks = append(sinks, s.services.SerialLog)
	}
	if s.hub != nil {
		sinks = append(sinks, s.hub)
	}
	if s.mqtt != nil {
		sinks = append(sinks, s.mqtt)
	}
	return sinks
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}

	s.db = database.GetDB()
	return nil
}

func (s *Server) initHTTP() {
	gin.SetMode(s.cfg.Server.Mode)

	deps := &api.Dependencies{
		DB:            s.db,
		Services:      s.services,
		Mode:          s.mode(),
		PortName:      s.portName,
		History:       s.history,
		Hub:           s.hub,
		WebSocketPath: s.cfg.WebSocket.Path,
	}
	if s.poller != nil {
		deps.Listener = s.poller
	}
	if s.device != nil {
		deps.Device = s.device
	}

	router := api.NewRouter(deps, logger.WithModule("api"))
	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

// startServices 启动服务
func (s *Server) startServices() {
	if s.hub != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Run(s.ctx)
		}()
	}

	if s.mqtt != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.mqtt.Run(s.ctx)
		}()
	}

	if s.services.SerialLog != nil && s.cfg.Database.RetentionDays > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}

	if s.http != nil {
		go func() {
			s.logger.Info("HTTP服务启动", zap.String("addr", s.http.Addr))
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP服务异常退出", zap.Error(err))
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if s.bridge != nil {
			err = s.bridge.Run(s.ctx)
		} else {
			err = s.poller.Run(s.ctx)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			s.fatalCh <- err
		}
	}()
}

// cleanupLoop 每天清理一次过期的串口日志
func (s *Server) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		if n, err := s.services.SerialLog.CleanupOldLogs(s.cfg.Database.RetentionDays); err != nil {
			s.logger.Warn("清理串口日志失败", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("清理串口日志", zap.Int64("deleted", n))
		}

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// WaitForShutdown 等待退出信号或串口循环终止，返回终止原因
func (s *Server) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
		return nil
	case err := <-s.fatalCh:
		s.logger.Error("串口循环终止", zap.Error(err))
		return err
	}
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.http != nil {
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	s.closeComponents()

	if err := logger.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "同步日志失败: %v\n", err)
	}
	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() {
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			s.logger.Warn("关闭串口失败", zap.Error(err))
		}
	}

	if s.mqtt != nil {
		s.mqtt.Close()
	}

	// 先落盘剩余的串口日志，再关闭数据库
	if s.services != nil {
		s.services.Close()
	}
	if s.db != nil {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}

	if s.poller != nil {
		stats := s.poller.Stats()
		s.logger.Info("轮询统计",
			zap.Uint64("cycles", stats.Cycles),
			zap.Uint64("bytes", stats.Bytes),
			zap.Uint64("markers", stats.Markers))
	}
}

// reloadConfig 重新加载配置，目前只有日志级别可以热更新
func (s *Server) reloadConfig(newCfg *config.Config) {
	if newCfg.Log.Level == logger.Level() {
		return
	}
	if err := logger.SetLevel(newCfg.Log.Level); err != nil {
		s.logger.Warn("更新日志级别失败", zap.Error(err))
		return
	}
	s.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
}

// setupSystem 设置系统参数
func setupSystem(cfg *config.SystemConfig) {
	if cfg.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Timezone); err == nil {
			time.Local = loc
		}
	}

	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("串口监听服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
