package listener

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/wfunc/marco-listener/internal/errors"
)

// DecodeASCII 严格按ASCII解码，遇到 >0x7F 的字节返回 ErrDecode
func DecodeASCII(b []byte) (string, error) {
	for i, c := range b {
		if c > 0x7F {
			return "", apperrors.Newf(apperrors.ErrDecode,
				"byte 0x%02X at offset %d is not ASCII", c, i)
		}
	}
	return string(b), nil
}

// DecodeASCIILenient 非ASCII字节替换为 U+FFFD
func DecodeASCIILenient(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c > 0x7F {
			sb.WriteRune(utf8.RuneError)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
