package protocol

import (
	"bytes"

	apperrors "github.com/wfunc/marco-listener/internal/errors"
)

// DefaultMaxLineSize 设备单行上限
const DefaultMaxLineSize = 100

// Framer 把串口字节流切分为以 "\r\n" 结尾的行
type Framer struct {
	buf     []byte
	maxLine int
	// 溢出后丢弃数据直到下一个行尾
	skipping bool
}

// NewFramer 创建分帧器，maxLine<=0 时使用默认上限
func NewFramer(maxLine int) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineSize
	}
	return &Framer{maxLine: maxLine}
}

// Feed 写入新数据，返回已完整的行（不含行尾，跳过空行）。
// 未完成的行超过上限时返回 ErrLineTooLong，该行余下的字节一直丢弃到下一个行尾，
// 已切出的行照常返回。
func (f *Framer) Feed(data []byte) ([]string, error) {
	f.buf = append(f.buf, data...)

	var lines []string
	for {
		idx := bytes.Index(f.buf, []byte(LineEnding))
		if idx < 0 {
			break
		}
		if idx > 0 && !f.skipping {
			lines = append(lines, string(f.buf[:idx]))
		}
		f.skipping = false
		f.buf = f.buf[idx+len(LineEnding):]
	}

	if f.skipping {
		f.keepCarriageReturn()
		return lines, nil
	}

	if len(f.buf) > f.maxLine {
		dropped := len(f.buf) - f.keepCarriageReturn()
		f.skipping = true
		return lines, apperrors.Newf(apperrors.ErrLineTooLong, "丢弃 %d 字节", dropped)
	}

	// 避免底层数组无限增长
	if len(f.buf) == 0 {
		f.buf = nil
	}

	return lines, nil
}

// keepCarriageReturn 清空缓冲，只保留可能是半个行尾的 '\r'
func (f *Framer) keepCarriageReturn() int {
	if n := len(f.buf); n > 0 && f.buf[n-1] == '\r' {
		f.buf = append(f.buf[:0], '\r')
		return 1
	}
	f.buf = nil
	return 0
}

// Pending 当前未完成行的字节数
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset 丢弃未完成的行
func (f *Framer) Reset() {
	f.buf = nil
	f.skipping = false
}
