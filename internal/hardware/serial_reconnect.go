package hardware

import (
	"errors"
	"strings"
	"sync"
	"time"

	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/logger"
	"go.uber.org/zap"
)

// Opener 打开（或重新打开）串口
type Opener func() (Port, error)

// ErrPortClosed 端口已被主动关闭
var ErrPortClosed = errors.New("serial port closed")

// ReconnectingPort 断线后自动重连的串口
type ReconnectingPort struct {
	open   Opener
	port   Port
	logger *zap.Logger

	initialInterval time.Duration
	maxInterval     time.Duration

	onReconnect func()

	closed bool
	stopCh chan struct{}
	mu     sync.Mutex
}

// NewReconnectingPort 创建自动重连串口，立即尝试首次连接
func NewReconnectingPort(open Opener) (*ReconnectingPort, error) {
	port, err := open()
	if err != nil {
		return nil, err
	}
	return &ReconnectingPort{
		open:            open,
		port:            port,
		logger:          logger.WithModule("serial"),
		initialInterval: 5 * time.Second,
		maxInterval:     30 * time.Second,
		stopCh:          make(chan struct{}),
	}, nil
}

// SetBackoff 设置重连间隔
func (r *ReconnectingPort) SetBackoff(initial, max time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialInterval = initial
	r.maxInterval = max
}

// OnReconnect 重连成功回调
func (r *ReconnectingPort) OnReconnect(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReconnect = fn
}

func (r *ReconnectingPort) current() (Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrPortClosed
	}
	return r.port, nil
}

// Read 读取数据，断线时阻塞重连后返回 (0, nil)
func (r *ReconnectingPort) Read(p []byte) (int, error) {
	port, err := r.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Read(p)
	if err != nil && IsDisconnectError(err) {
		if rerr := r.reconnect(port, err); rerr != nil {
			return n, rerr
		}
		return n, nil
	}
	return n, err
}

// Write 写入数据，断线时重连后重试一次
func (r *ReconnectingPort) Write(p []byte) (int, error) {
	port, err := r.current()
	if err != nil {
		return 0, err
	}
	n, err := port.Write(p)
	if err != nil && IsDisconnectError(err) {
		if rerr := r.reconnect(port, err); rerr != nil {
			return n, rerr
		}
		port, err = r.current()
		if err != nil {
			return 0, err
		}
		return port.Write(p)
	}
	return n, err
}

// Close 关闭串口并停止重连
func (r *ReconnectingPort) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	close(r.stopCh)
	if r.port != nil {
		return r.port.Close()
	}
	return nil
}

// reconnect 关闭失效的端口并按退避间隔重试打开
func (r *ReconnectingPort) reconnect(failed Port, cause error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrPortClosed
	}
	if r.port != failed {
		// 其他调用方已经完成重连
		r.mu.Unlock()
		return nil
	}
	failed.Close()
	r.port = nil
	interval := r.initialInterval
	maxInterval := r.maxInterval
	r.mu.Unlock()

	r.logger.Error("检测到串口断线", zap.Error(cause))

	retry := 0
	for {
		select {
		case <-r.stopCh:
			return ErrPortClosed
		case <-time.After(interval):
		}

		retry++
		port, err := r.open()
		if err == nil {
			r.mu.Lock()
			if r.closed {
				r.mu.Unlock()
				port.Close()
				return ErrPortClosed
			}
			r.port = port
			cb := r.onReconnect
			r.mu.Unlock()

			r.logger.Info("重连成功", zap.Int("retry_count", retry))
			if cb != nil {
				cb()
			}
			return nil
		}

		r.logger.Warn("重连失败，等待重试",
			zap.Error(err),
			zap.Int("retry", retry),
			zap.Duration("interval", interval))

		// 逐渐增加重连间隔
		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// IsDisconnectError 判断是否为断线类错误
func IsDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	if apperrors.Is(err, apperrors.ErrDeviceOffline) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "input/output error") ||
		strings.Contains(errStr, "device not configured") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "no such file") ||
		strings.Contains(errStr, "no such device") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "port has been closed")
}
