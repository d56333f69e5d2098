package hardware

import (
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"go.bug.st/serial/enumerator"
)

// PortLister 列出串口详情，测试时可替换
type PortLister func() ([]*enumerator.PortDetails, error)

// DefaultPortLister 使用系统枚举
var DefaultPortLister PortLister = enumerator.GetDetailedPortsList

// SelectPortBySerial 按USB序列号选择串口
func SelectPortBySerial(ports []*enumerator.PortDetails, serialNumber string) (string, error) {
	if len(ports) == 0 {
		return "", apperrors.New(apperrors.ErrDeviceNotFound, "没有可用的串口")
	}
	for _, p := range ports {
		if p.SerialNumber == serialNumber {
			return p.Name, nil
		}
	}
	return "", apperrors.Newf(apperrors.ErrDeviceNotFound,
		"没有串口匹配序列号 %s，编号最大的串口是 %s", serialNumber, ports[len(ports)-1].Name)
}

// ResolvePortName 配置了序列号时通过枚举查找，否则直接使用配置的设备名
func ResolvePortName(lister PortLister, name, serialNumber string) (string, error) {
	if serialNumber == "" {
		return name, nil
	}
	if lister == nil {
		lister = DefaultPortLister
	}
	ports, err := lister()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrDeviceNotFound, "枚举串口失败")
	}
	return SelectPortBySerial(ports, serialNumber)
}
