package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/marco-listener/internal/listener"
	"github.com/wfunc/marco-listener/internal/logger"
	"github.com/wfunc/marco-listener/internal/models"
	"github.com/wfunc/marco-listener/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBatchSize     = 100
	defaultQueueSize     = 1000
)

// SerialLogService 串口日志服务，异步批量落库
type SerialLogService struct {
	repo          *repository.SerialLogRepository
	logger        *zap.Logger
	buffer        []*models.SerialLog
	bufferCh      chan *models.SerialLog
	stopCh        chan struct{}
	doneCh        chan struct{}
	closeOnce     sync.Once
	flushInterval time.Duration
	sessionID     string
}

// NewSerialLogService 创建串口日志服务
func NewSerialLogService(db *gorm.DB) *SerialLogService {
	return newSerialLogService(db, defaultFlushInterval)
}

func newSerialLogService(db *gorm.DB, flushInterval time.Duration) *SerialLogService {
	service := &SerialLogService{
		repo:          repository.NewSerialLogRepository(db),
		logger:        logger.WithModule("serial_log"),
		buffer:        make([]*models.SerialLog, 0, defaultBatchSize),
		bufferCh:      make(chan *models.SerialLog, defaultQueueSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		flushInterval: flushInterval,
		sessionID:     uuid.New().String(),
	}

	// 启动后台写入协程
	go service.backgroundWriter()

	return service
}

// backgroundWriter 后台写入协程
func (s *SerialLogService) backgroundWriter() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.buffer = append(s.buffer, log)
			// 如果缓冲区满了，立即写入
			if len(s.buffer) >= defaultBatchSize {
				s.flushBuffer()
			}

		case <-ticker.C:
			s.flushBuffer()

		case <-s.stopCh:
			// 退出前写入队列和缓冲区中剩余的日志
			for {
				select {
				case log := <-s.bufferCh:
					s.buffer = append(s.buffer, log)
					continue
				default:
				}
				break
			}
			s.flushBuffer()
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库
func (s *SerialLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.repo.CreateBatch(s.buffer); err != nil {
		s.logger.Error("批量写入串口日志失败", zap.Error(err))
	} else {
		s.logger.Debug("批量写入串口日志成功", zap.Int("count", len(s.buffer)))
	}

	// 交给仓库的切片不能复用
	s.buffer = make([]*models.SerialLog, 0, defaultBatchSize)
}

func (s *SerialLogService) enqueue(log *models.SerialLog) {
	log.SessionID = s.sessionID
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	log.Timestamp = log.CreatedAt.UnixMilli()

	select {
	case <-s.stopCh:
		return
	default:
	}

	// 异步写入
	select {
	case s.bufferCh <- log:
	default:
		s.logger.Warn("串口日志缓冲区满，丢弃日志")
	}
}

// HandleEvent 实现 listener.Sink
func (s *SerialLogService) HandleEvent(ev *listener.Event) {
	log := &models.SerialLog{
		CreatedAt:   ev.Time,
		Port:        ev.Port,
		Direction:   ev.Direction,
		Level:       models.SerialLogLevelInfo,
		RawData:     ev.Text,
		HexData:     ev.Hex(),
		BytesCount:  len(ev.Raw),
		Marker:      ev.Marker,
		Instruction: ev.Instruction,
		ErrorMsg:    ev.Error,
	}
	if ev.Error != "" {
		log.Level = models.SerialLogLevelError
	}
	s.enqueue(log)
}

// LogReceive 记录接收日志
func (s *SerialLogService) LogReceive(port string, data []byte, marker bool) {
	s.HandleEvent(&listener.Event{
		Time:      time.Now(),
		Port:      port,
		Direction: models.DirectionReceive,
		Text:      string(data),
		Raw:       data,
		Marker:    marker,
	})
}

// LogSend 记录下发日志
func (s *SerialLogService) LogSend(port string, data []byte, instruction string) {
	s.HandleEvent(&listener.Event{
		Time:        time.Now(),
		Port:        port,
		Direction:   models.DirectionSend,
		Text:        string(data),
		Raw:         data,
		Instruction: instruction,
	})
}

// LogError 记录错误日志
func (s *SerialLogService) LogError(port string, direction string, errorMsg string, rawData string) {
	s.enqueue(&models.SerialLog{
		Port:      port,
		Direction: direction,
		Level:     models.SerialLogLevelError,
		ErrorMsg:  errorMsg,
		RawData:   rawData,
	})
}

// Query 查询日志
func (s *SerialLogService) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *SerialLogService) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatestLogs 获取最新的日志
func (s *SerialLogService) GetLatestLogs(limit int, port string) ([]*models.SerialLog, error) {
	return s.repo.GetLatest(limit, port)
}

// GetMarkerLogs 获取标记日志
func (s *SerialLogService) GetMarkerLogs(startTime, endTime *time.Time, limit int) ([]*models.SerialLog, error) {
	return s.repo.GetMarkerLogs(startTime, endTime, limit)
}

// GetErrorLogs 获取错误日志
func (s *SerialLogService) GetErrorLogs(limit int) ([]*models.SerialLog, error) {
	return s.repo.GetErrorLogs(limit)
}

// CleanupOldLogs 清理旧日志
func (s *SerialLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	return s.repo.CleanupLogs(retentionDays)
}

// ExportLogs 导出日志为JSON格式
func (s *SerialLogService) ExportLogs(query *models.SerialLogQuery) ([]byte, error) {
	logs, _, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(logs, "", "  ")
}

// SessionID 当前进程的会话ID
func (s *SerialLogService) SessionID() string {
	return s.sessionID
}

// Close 关闭服务，等待剩余日志写入
func (s *SerialLogService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}
