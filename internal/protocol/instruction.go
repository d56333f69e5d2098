// Package protocol 实现键盘与宿主之间的文本指令格式。
//
// 设备发出的指令形如 "[ARD::0xHHHH]"，宿主回写的指令形如 "[MTH::0xHHHH]附加参数"，
// 每行以 "\r\n" 结尾。16位指令字按半字节拆分为 指令码/参数1/参数2/参数3。
package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/wfunc/marco-listener/internal/errors"
)

// NumKeys 键盘按键数
const NumKeys = 12

// 指令码
const (
	CodeClipboard byte = 0x0
	CodeOLED      byte = 0xE
	CodeKeys      byte = 0xF
)

// 剪贴板子操作（位于参数2）
const (
	ClipboardPrime       byte = 0x1
	ClipboardCancelPrime byte = 0x2
	ClipboardRequestClip byte = 0x3
)

// 行格式
const (
	DevicePrefix = "[ARD::0x"
	HostPrefix   = "[MTH::"
	LineEnding   = "\r\n"
)

// Instruction 一条指令
type Instruction struct {
	Code  byte
	Arg1  byte
	Arg2  byte
	Arg3  byte
	Extra string // 附加参数，仅宿主发出的指令使用
}

// ParseInstruction 解析设备发出的一行文本。
// 不带指令前缀的行返回 (nil, false, nil)。
func ParseInstruction(line string) (*Instruction, bool, error) {
	line = strings.TrimSuffix(line, LineEnding)
	if !strings.HasPrefix(line, DevicePrefix) {
		return nil, false, nil
	}

	payload := strings.TrimSuffix(line[len(DevicePrefix):], "]")
	if len(payload) != 4 || !strings.HasSuffix(line, "]") {
		return nil, false, apperrors.Newf(apperrors.ErrInvalidInstruction, "unexpected bit width: %s", payload)
	}

	word, err := strconv.ParseUint(payload, 16, 16)
	if err != nil {
		return nil, false, apperrors.Wrapf(err, apperrors.ErrInvalidInstruction, "invalid hex: %s", payload)
	}

	return FromUint16(uint16(word)), true, nil
}

// FromUint16 按半字节拆分16位指令字
func FromUint16(word uint16) *Instruction {
	return &Instruction{
		Code: byte((word & 0xF000) >> 12),
		Arg1: byte((word & 0x0F00) >> 8),
		Arg2: byte((word & 0x00F0) >> 4),
		Arg3: byte(word & 0x000F),
	}
}

// Bytes 两字节大端表示
func (i *Instruction) Bytes() []byte {
	return []byte{(i.Code&0xF)<<4 | i.Arg1&0xF, (i.Arg2&0xF)<<4 | i.Arg3&0xF}
}

// Uint16 16位指令字
func (i *Instruction) Uint16() uint16 {
	return binary.BigEndian.Uint16(i.Bytes())
}

// Hex 形如 0x0A13
func (i *Instruction) Hex() string {
	return fmt.Sprintf("0x%04X", i.Uint16())
}

// Serialize 宿主发出的完整一行
func (i *Instruction) Serialize() []byte {
	return []byte(HostPrefix + i.Hex() + "]" + i.Extra + LineEnding)
}

// String 实现 fmt.Stringer
func (i *Instruction) String() string {
	if i.Extra != "" {
		return fmt.Sprintf("%s(%q)", i.Hex(), i.Extra)
	}
	return i.Hex()
}

// KeyColor 设置按键颜色的指令，颜色为6位十六进制RGB
func KeyColor(key byte, hexColor string) *Instruction {
	return &Instruction{
		Code:  CodeKeys,
		Arg1:  key,
		Arg3:  1,
		Extra: strings.ToUpper(hexColor),
	}
}

// OLEDText 设置屏幕某一行文字的指令
func OLEDText(line byte, inverted byte, text string) *Instruction {
	return &Instruction{
		Code:  CodeOLED,
		Arg1:  inverted,
		Arg2:  line,
		Arg3:  1,
		Extra: text,
	}
}
