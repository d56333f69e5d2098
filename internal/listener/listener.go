// Package listener 轮询串口，打印收到的ASCII文本，并在文本包含标记串时打印一行提示。
package listener

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/marco-listener/internal/config"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/logger"
	"go.uber.org/zap"
)

// 默认值
const (
	DefaultMarker       = "Found I2C"
	DefaultMarkerLine   = "it's in there"
	DefaultPollInterval = 10 * time.Millisecond
	DefaultReadSize     = 4096
)

// Options 轮询参数
type Options struct {
	PortName     string
	Marker       string
	MarkerLine   string
	PollInterval time.Duration
	ReadSize     int
	StrictASCII  bool
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Marker:       DefaultMarker,
		MarkerLine:   DefaultMarkerLine,
		PollInterval: DefaultPollInterval,
		ReadSize:     DefaultReadSize,
		StrictASCII:  true,
	}
}

// OptionsFrom 从配置构建
func OptionsFrom(portName string, cfg *config.ListenerConfig) Options {
	return Options{
		PortName:     portName,
		Marker:       cfg.Marker,
		MarkerLine:   cfg.MarkerLine,
		PollInterval: cfg.PollInterval,
		ReadSize:     cfg.ReadSize,
		StrictASCII:  cfg.StrictASCII,
	}
}

// Stats 运行统计
type Stats struct {
	StartedAt  time.Time `json:"started_at"`
	Cycles     uint64    `json:"cycles"`
	DataCycles uint64    `json:"data_cycles"`
	Bytes      uint64    `json:"bytes"`
	Markers    uint64    `json:"markers"`
	LastDataAt time.Time `json:"last_data_at,omitempty"`
	Running    bool      `json:"running"`
}

// Listener 串口轮询器
type Listener struct {
	port   io.Reader
	out    io.Writer
	opts   Options
	sink   Sink
	logger *zap.Logger
	buf    []byte

	mu    sync.RWMutex
	stats Stats
}

// New 创建轮询器，out 为打印目标（通常是 os.Stdout）
func New(port io.Reader, out io.Writer, opts Options, sinks ...Sink) *Listener {
	def := DefaultOptions()
	if opts.Marker == "" {
		opts.Marker = def.Marker
	}
	if opts.MarkerLine == "" {
		opts.MarkerLine = def.MarkerLine
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = def.ReadSize
	}

	return &Listener{
		port:   port,
		out:    out,
		opts:   opts,
		sink:   Sinks(sinks),
		logger: logger.WithModule("listener"),
		buf:    make([]byte, opts.ReadSize),
	}
}

// Run 无限轮询，直到 ctx 取消（返回 ctx.Err()）或发生读取/解码错误
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	l.stats.StartedAt = time.Now()
	l.stats.Running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.stats.Running = false
		l.mu.Unlock()
	}()

	l.logger.Info("开始轮询串口",
		zap.String("port", l.opts.PortName),
		zap.String("marker", l.opts.Marker),
		zap.Duration("interval", l.opts.PollInterval))

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if _, err := l.Poll(); err != nil {
			l.logger.Error("轮询失败", zap.Error(err))
			return err
		}

		// 每个周期固定休眠，无论是否读到数据
		timer.Reset(l.opts.PollInterval)
		select {
		case <-ctx.Done():
			l.logger.Info("停止轮询", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Poll 执行一个轮询周期（不含休眠）。没有数据时返回 (nil, nil)。
// 读出错时先处理已读到的字节，再返回读错误。
func (l *Listener) Poll() (*Event, error) {
	raw, readErr := l.drain()

	l.mu.Lock()
	l.stats.Cycles++
	l.mu.Unlock()

	var ev *Event
	if len(raw) > 0 {
		var err error
		if ev, err = l.emit(raw); err != nil {
			return nil, err
		}
	}
	if readErr != nil {
		return ev, apperrors.Wrap(readErr, apperrors.ErrSerialPortRead)
	}
	return ev, nil
}

// emit 解码、打印并分发一段数据
func (l *Listener) emit(raw []byte) (*Event, error) {
	var text string
	if l.opts.StrictASCII {
		var err error
		text, err = DecodeASCII(raw)
		if err != nil {
			return nil, err
		}
	} else {
		text = DecodeASCIILenient(raw)
	}

	ev := &Event{
		Time:      time.Now(),
		Port:      l.opts.PortName,
		Direction: DirectionReceive,
		Text:      text,
		Raw:       raw,
		Marker:    strings.Contains(text, l.opts.Marker),
	}

	l.print(text)
	if ev.Marker {
		l.print(l.opts.MarkerLine)
	}

	l.mu.Lock()
	l.stats.DataCycles++
	l.stats.Bytes += uint64(len(raw))
	l.stats.LastDataAt = ev.Time
	if ev.Marker {
		l.stats.Markers++
	}
	l.mu.Unlock()

	l.sink.HandleEvent(ev)

	return ev, nil
}

// drain 读出当前所有待读数据。一次读满缓冲区说明可能还有剩余，继续读。
func (l *Listener) drain() ([]byte, error) {
	var raw []byte
	for {
		n, err := l.port.Read(l.buf)
		if n > 0 {
			raw = append(raw, l.buf[:n]...)
		}
		if err != nil {
			return raw, err
		}
		if n < len(l.buf) {
			return raw, nil
		}
	}
}

func (l *Listener) print(s string) {
	if _, err := fmt.Fprintln(l.out, s); err != nil {
		l.logger.Warn("输出失败", zap.Error(err))
	}
}

// Stats 统计快照
func (l *Listener) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// Options 当前参数
func (l *Listener) Options() Options {
	return l.opts
}
