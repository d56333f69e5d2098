package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/abiosoft/ishell"
	"github.com/wfunc/marco-listener/internal/config"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/hardware"
	"github.com/wfunc/marco-listener/internal/host"
	"github.com/wfunc/marco-listener/internal/protocol"
	"github.com/wfunc/marco-listener/internal/utils"
)

const sessionKey = "$session"

// session 串口在第一次下发指令时才打开
type session struct {
	cfg *config.Config

	mu     sync.Mutex
	port   hardware.Port
	device *host.Device
}

func newSession(cfg *config.Config) *session {
	return &session{cfg: cfg}
}

func (s *session) Device() (*host.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		return s.device, nil
	}

	port, name, err := hardware.OpenFromConfig(&s.cfg.Serial, nil)
	if err != nil {
		return nil, err
	}
	s.port = port
	s.device = host.NewDevice(port, name, &s.cfg.Serial, nil)
	return s.device, nil
}

func (s *session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		s.port.Close()
		s.port = nil
		s.device = nil
	}
}

func sessionFrom(c *ishell.Context) *session {
	return c.Get(sessionKey).(*session)
}

// withDevice 包装需要串口的命令
func withDevice(fn func(c *ishell.Context, dev *host.Device) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		dev, err := sessionFrom(c).Device()
		if err != nil {
			c.Err(err)
			return
		}
		if err := fn(c, dev); err != nil {
			c.Err(err)
		}
	}
}

func parseKey(s string) (byte, error) {
	key, err := strconv.Atoi(s)
	if err != nil || key < 0 || key >= protocol.NumKeys {
		return 0, apperrors.Newf(apperrors.ErrInvalidParam, "按键序号必须在 0-%d 之间: %s", protocol.NumKeys-1, s)
	}
	return byte(key), nil
}

func parseColor(s string) (string, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return "", apperrors.Newf(apperrors.ErrInvalidParam, "颜色必须是6位十六进制: %s", s)
	}
	if _, err := strconv.ParseUint(s, 16, 32); err != nil {
		return "", apperrors.Newf(apperrors.ErrInvalidParam, "颜色必须是6位十六进制: %s", s)
	}
	return s, nil
}

func parseLine(s string) (byte, error) {
	line, err := strconv.Atoi(s)
	if err != nil || line < 0 || line > 0xF {
		return 0, apperrors.Newf(apperrors.ErrInvalidParam, "屏幕行号必须在 0-15 之间: %s", s)
	}
	return byte(line), nil
}

var commands = []*ishell.Cmd{
	{
		Name:    "keycolor",
		Aliases: []string{"kc"},
		Help:    "KEY RRGGBB  设置按键颜色",
		Func: withDevice(func(c *ishell.Context, dev *host.Device) error {
			if len(c.Args) != 2 {
				return fmt.Errorf("用法: keycolor KEY RRGGBB")
			}
			key, err := parseKey(c.Args[0])
			if err != nil {
				return err
			}
			color, err := parseColor(c.Args[1])
			if err != nil {
				return err
			}
			return dev.SetKeyColor(key, color)
		}),
	},
	{
		Name: "keysoff",
		Help: "关闭所有按键灯",
		Func: withDevice(func(c *ishell.Context, dev *host.Device) error {
			for key := 0; key < protocol.NumKeys; key++ {
				if err := dev.SetKeyColor(byte(key), host.ColorOff); err != nil {
					return err
				}
			}
			return nil
		}),
	},
	{
		Name: "oled",
		Help: "LINE TEXT...  设置屏幕文字，oled.inv 反色显示",
		Func: withDevice(func(c *ishell.Context, dev *host.Device) error {
			return oledCmd(c, dev, 0)
		}),
	},
	{
		Name: "oled.inv",
		Help: "LINE TEXT...  反色设置屏幕文字",
		Func: withDevice(func(c *ishell.Context, dev *host.Device) error {
			return oledCmd(c, dev, 1)
		}),
	},
	{
		Name: "clips",
		Help: "列出保存的剪贴板槽位",
		Func: func(c *ishell.Context) {
			clips, err := host.NewClipboardManager(sessionFrom(c).cfg.Host.ClipboardDir, host.SystemClipboard{})
			if err != nil {
				c.Err(err)
				return
			}
			for i := 0; i < protocol.NumKeys; i++ {
				text, err := clips.GetClip(i)
				if err != nil {
					c.Err(err)
					return
				}
				if text != "" {
					c.Printf("%2d: %q\n", i, text)
				}
			}
		},
	},
	{
		Name: "ports",
		Help: "列出串口",
		Func: func(c *ishell.Context) {
			ports, err := hardware.DefaultPortLister()
			if err != nil {
				c.Err(err)
				return
			}
			for _, p := range ports {
				if p.IsUSB {
					c.Printf("%s  USB %s:%s  serial=%s\n", p.Name, p.VID, p.PID, p.SerialNumber)
				} else {
					c.Println(p.Name)
				}
			}
		},
	},
	{
		Name: "hash-password",
		Help: "生成 security.admin_password 使用的密码哈希",
		Func: func(c *ishell.Context) {
			c.Print("Password: ")
			password := c.ReadPassword()
			hash, err := utils.HashPassword(password)
			if err != nil {
				c.Err(err)
				return
			}
			c.Println(hash)
		},
	},
}

func oledCmd(c *ishell.Context, dev *host.Device, inverted byte) error {
	if len(c.Args) < 1 {
		return fmt.Errorf("用法: oled LINE TEXT...")
	}
	line, err := parseLine(c.Args[0])
	if err != nil {
		return err
	}
	return dev.SetOLEDText(line, inverted, strings.Join(c.Args[1:], " "))
}
