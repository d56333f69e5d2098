// Package host 实现宏键盘的宿主端：解析设备指令，维护按键剪贴板，回写按键颜色与屏幕文字。
package host

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/wfunc/marco-listener/internal/config"
	"github.com/wfunc/marco-listener/internal/hardware"
	"github.com/wfunc/marco-listener/internal/listener"
	"github.com/wfunc/marco-listener/internal/logger"
	"github.com/wfunc/marco-listener/internal/protocol"
	"go.uber.org/zap"
)

// Device 向键盘下发指令
type Device struct {
	mu            sync.Mutex
	port          io.Writer
	portName      string
	retryTimes    int
	retryInterval time.Duration
	sink          listener.Sink
	logger        *zap.Logger
}

// NewDevice 创建设备，sink 接收每条下发的指令，可为 nil
func NewDevice(port io.Writer, portName string, cfg *config.SerialConfig, sink listener.Sink) *Device {
	d := &Device{
		port:     port,
		portName: portName,
		sink:     sink,
		logger:   logger.WithModule("host"),
	}
	if cfg != nil {
		d.retryTimes = cfg.RetryTimes
		d.retryInterval = cfg.RetryInterval
	}
	return d
}

// Send 下发一条指令
func (d *Device) Send(inst *protocol.Instruction) error {
	data := inst.Serialize()

	d.mu.Lock()
	err := hardware.WriteWithRetry(d.port, data, d.retryTimes, d.retryInterval)
	d.mu.Unlock()

	logger.LogSerialCommand(inst.Hex(), inst.Extra, err == nil)

	if d.sink != nil {
		ev := &listener.Event{
			Time:        time.Now(),
			Port:        d.portName,
			Direction:   listener.DirectionSend,
			Text:        strings.TrimSuffix(string(data), protocol.LineEnding),
			Raw:         data,
			Instruction: inst.Hex(),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		d.sink.HandleEvent(ev)
	}

	if err != nil {
		d.logger.Error("指令下发失败", zap.Stringer("instruction", inst), zap.Error(err))
	}
	return err
}

// SetKeyColor 设置按键颜色
func (d *Device) SetKeyColor(key byte, hexColor string) error {
	return d.Send(protocol.KeyColor(key, hexColor))
}

// SetOLEDText 设置屏幕某一行文字，换行符替换为空格
func (d *Device) SetOLEDText(line byte, inverted byte, text string) error {
	return d.Send(protocol.OLEDText(line, inverted, oneLine(text)))
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(s)
}
