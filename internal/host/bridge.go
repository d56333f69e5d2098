package host

import (
	"context"
	"fmt"
	"io"
	"time"

	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/listener"
	"github.com/wfunc/marco-listener/internal/logger"
	"github.com/wfunc/marco-listener/internal/protocol"
	"go.uber.org/zap"
)

// Bridge 从串口读取设备指令并执行
type Bridge struct {
	port       io.Reader
	out        io.Writer
	portName   string
	framer     *protocol.Framer
	dispatcher *Dispatcher
	sink       listener.Sink
	idle       time.Duration
	logger     *zap.Logger
}

// NewBridge 创建桥接，out 打印收到的每一行，sink 可为 nil
func NewBridge(port io.Reader, out io.Writer, portName string, maxLine int, dispatcher *Dispatcher, sink listener.Sink) *Bridge {
	return &Bridge{
		port:       port,
		out:        out,
		portName:   portName,
		framer:     protocol.NewFramer(maxLine),
		dispatcher: dispatcher,
		sink:       sink,
		idle:       10 * time.Millisecond,
		logger:     logger.WithModule("host"),
	}
}

// Run 循环读取，直到 ctx 取消或读取出错
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("宿主桥接启动", zap.String("port", b.portName))

	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := b.port.Read(buf)
		if n > 0 {
			b.feed(buf[:n])
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrSerialPortRead)
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.idle):
			}
		}
	}
}

func (b *Bridge) feed(data []byte) {
	lines, err := b.framer.Feed(data)
	for _, line := range lines {
		b.HandleLine(line)
	}
	if err != nil {
		b.logger.Warn("丢弃过长的数据行", zap.Error(err))
	}
}

// HandleLine 处理一行完整的文本（不含行尾）
func (b *Bridge) HandleLine(line string) {
	fmt.Fprintln(b.out, line)

	ev := &listener.Event{
		Time:      time.Now(),
		Port:      b.portName,
		Direction: listener.DirectionReceive,
		Text:      line,
		Raw:       []byte(line),
	}

	inst, ok, err := protocol.ParseInstruction(line)
	switch {
	case err != nil:
		ev.Error = err.Error()
		b.logger.Warn("无效的指令", zap.String("line", line), zap.Error(err))
	case ok:
		ev.Instruction = inst.Hex()
	}

	if b.sink != nil {
		b.sink.HandleEvent(ev)
	}

	if !ok {
		return
	}
	if err := b.dispatcher.Dispatch(inst); err != nil {
		b.logger.Error("指令执行失败", zap.Stringer("instruction", inst), zap.Error(err))
	}
}
