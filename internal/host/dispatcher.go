package host

import (
	"github.com/wfunc/marco-listener/internal/logger"
	"github.com/wfunc/marco-listener/internal/protocol"
	"go.uber.org/zap"
)

// 按键颜色
const (
	ColorPrimed = "ffffff"
	ColorOff    = "000000"
)

// ClipLine 显示剪贴板内容的屏幕行
const ClipLine byte = 1

// Dispatcher 执行设备发来的指令
type Dispatcher struct {
	device *Device
	clips  *ClipboardManager
	logger *zap.Logger
}

// NewDispatcher 创建分发器
func NewDispatcher(device *Device, clips *ClipboardManager) *Dispatcher {
	return &Dispatcher{
		device: device,
		clips:  clips,
		logger: logger.WithModule("host"),
	}
}

// Dispatch 执行一条指令，非剪贴板指令忽略
func (d *Dispatcher) Dispatch(inst *protocol.Instruction) error {
	switch inst.Code {
	case protocol.CodeClipboard:
		return d.clipboard(inst)
	default:
		d.logger.Debug("忽略指令", zap.Stringer("instruction", inst))
		return nil
	}
}

func (d *Dispatcher) clipboard(inst *protocol.Instruction) error {
	key := inst.Arg1

	switch inst.Arg2 {
	case protocol.ClipboardPrime:
		if err := d.clips.SetClip(int(key)); err != nil {
			return err
		}
		return d.device.SetKeyColor(key, ColorPrimed)

	case protocol.ClipboardCancelPrime:
		if err := d.device.SetKeyColor(key, ColorOff); err != nil {
			return err
		}
		clip, err := d.clips.System().ReadAll()
		if err != nil {
			return err
		}
		return d.device.SetOLEDText(ClipLine, 0, clip)

	case protocol.ClipboardRequestClip:
		clip, err := d.clips.GetClip(int(key))
		if err != nil {
			return err
		}
		if clip == "" {
			if clip, err = d.clips.System().ReadAll(); err != nil {
				return err
			}
		} else if err := d.clips.System().WriteAll(clip); err != nil {
			return err
		}
		return d.device.SetOLEDText(ClipLine, 0, clip)

	default:
		d.logger.Warn("未知的剪贴板操作", zap.Stringer("instruction", inst))
		return nil
	}
}
