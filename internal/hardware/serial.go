package hardware

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tarm/serial"
	"github.com/wfunc/marco-listener/internal/config"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/logger"
	bugst "go.bug.st/serial"
	"go.uber.org/zap"
)

// Port 串口抽象，读超时到期且无数据时返回 (0, nil)
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// 串口驱动
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
)

// PortConfig 串口打开参数
type PortConfig struct {
	Driver      string
	Name        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
}

// PortConfigFrom 从全局配置构建串口参数
func PortConfigFrom(cfg *config.SerialConfig) *PortConfig {
	return &PortConfig{
		Driver:      cfg.Driver,
		Name:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		DataBits:    cfg.DataBits,
		StopBits:    cfg.StopBits,
		Parity:      cfg.Parity,
		ReadTimeout: cfg.ReadTimeout,
	}
}

// String 形如 COM9@115200
func (c *PortConfig) String() string {
	return fmt.Sprintf("%s@%d", c.Name, c.BaudRate)
}

// OpenPort 按配置的驱动打开串口
func OpenPort(cfg *PortConfig) (Port, error) {
	if cfg.Name == "" {
		return nil, apperrors.New(apperrors.ErrSerialPortOpen, "串口设备名为空")
	}

	var (
		port Port
		err  error
	)
	switch cfg.Driver {
	case DriverBugst:
		port, err = openBugst(cfg)
	case DriverTarm, "":
		port, err = openTarm(cfg)
	default:
		return nil, apperrors.Newf(apperrors.ErrConfigValidate, "不支持的串口驱动: %s", cfg.Driver)
	}
	if err != nil {
		logger.WithModule("serial").Error("打开串口失败",
			zap.String("port", cfg.Name),
			zap.String("driver", cfg.Driver),
			zap.Error(err))
		return nil, apperrors.Wrapf(err, apperrors.ErrSerialPortOpen, "打开串口 %s 失败", cfg.Name)
	}

	logger.WithModule("serial").Info("串口连接成功",
		zap.String("port", cfg.Name),
		zap.String("driver", cfg.Driver),
		zap.Int("baud_rate", cfg.BaudRate))

	return port, nil
}

func openTarm(cfg *PortConfig) (Port, error) {
	parity := serial.ParityNone
	switch parseParity(cfg.Parity) {
	case 'O':
		parity = serial.ParityOdd
	case 'E':
		parity = serial.ParityEven
	case 'M':
		parity = serial.ParityMark
	case 'S':
		parity = serial.ParitySpace
	}

	stopBits := serial.Stop1
	if cfg.StopBits == 2 {
		stopBits = serial.Stop2
	}

	size := byte(cfg.DataBits)
	if size == 0 {
		size = serial.DefaultSize
	}

	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.BaudRate,
		Size:        size,
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &tarmPort{Port: p}, nil
}

// tarmPort tarm在posix下读超时会返回io.EOF，这里统一成 (0, nil)
type tarmPort struct {
	*serial.Port
}

func (p *tarmPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		return 0, nil
	}
	return n, err
}

func openBugst(cfg *PortConfig) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	switch parseParity(cfg.Parity) {
	case 'O':
		mode.Parity = bugst.OddParity
	case 'E':
		mode.Parity = bugst.EvenParity
	case 'M':
		mode.Parity = bugst.MarkParity
	case 'S':
		mode.Parity = bugst.SpaceParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	p, err := bugst.Open(cfg.Name, mode)
	if err != nil {
		return nil, err
	}
	if cfg.ReadTimeout > 0 {
		if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
			p.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	return p, nil
}

// parseParity 解析校验位，返回 N/O/E/M/S
func parseParity(s string) byte {
	switch strings.ToLower(s) {
	case "o", "odd":
		return 'O'
	case "e", "even":
		return 'E'
	case "m", "mark":
		return 'M'
	case "s", "space":
		return 'S'
	default:
		return 'N'
	}
}

// WriteFull 写入全部数据，写入字节数不足视为错误
func WriteFull(port io.Writer, data []byte) error {
	n, err := port.Write(data)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrSerialPortWrite)
	}
	if n != len(data) {
		return apperrors.Newf(apperrors.ErrShortWrite, "期望 %d 字节，实际 %d 字节", len(data), n)
	}
	return nil
}

// WriteWithRetry 带重试的写入，只有可重试的错误才会重试
func WriteWithRetry(port io.Writer, data []byte, retryTimes int, retryInterval time.Duration) error {
	if retryTimes < 1 {
		retryTimes = 1
	}

	var err error
	for i := 0; i < retryTimes; i++ {
		if err = WriteFull(port, data); err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return err
		}
		if i < retryTimes-1 {
			time.Sleep(retryInterval)
		}
	}
	return err
}

// OpenFromConfig 解析设备名并打开串口，auto_reconnect 时返回自动重连的串口
func OpenFromConfig(cfg *config.SerialConfig, lister PortLister) (Port, string, error) {
	name, err := ResolvePortName(lister, cfg.Port, cfg.KnownSerial)
	if err != nil {
		return nil, "", err
	}

	portCfg := PortConfigFrom(cfg)
	portCfg.Name = name
	open := func() (Port, error) { return OpenPort(portCfg) }

	if !cfg.AutoReconnect {
		port, err := open()
		return port, name, err
	}

	port, err := NewReconnectingPort(open)
	if err != nil {
		return nil, "", err
	}
	return port, name, nil
}
