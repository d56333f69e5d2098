package host

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/atotto/clipboard"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/protocol"
)

// Clipboard 系统剪贴板
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard 操作系统剪贴板
type SystemClipboard struct{}

// ReadAll 读取剪贴板
func (SystemClipboard) ReadAll() (string, error) {
	if clipboard.Unsupported {
		return "", apperrors.New(apperrors.ErrClipboard, "当前系统不支持剪贴板")
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrClipboard)
	}
	return text, nil
}

// WriteAll 写入剪贴板
func (SystemClipboard) WriteAll(text string) error {
	if clipboard.Unsupported {
		return apperrors.New(apperrors.ErrClipboard, "当前系统不支持剪贴板")
	}
	if err := clipboard.WriteAll(text); err != nil {
		return apperrors.Wrap(err, apperrors.ErrClipboard)
	}
	return nil
}

// ClipboardManager 每个按键一个剪贴板槽位，内容保存在目录下的文件中
type ClipboardManager struct {
	mu     sync.Mutex
	dir    string
	system Clipboard
}

// NewClipboardManager 创建管理器，目录不存在时创建
func NewClipboardManager(dir string, system Clipboard) (*ClipboardManager, error) {
	if stat, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrClipboard)
		}
	} else if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrClipboard)
	} else if !stat.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrClipboard, "%s 不是目录", dir)
	}

	return &ClipboardManager{dir: dir, system: system}, nil
}

// SlotPath 槽位文件路径
func (m *ClipboardManager) SlotPath(index int) string {
	return filepath.Join(m.dir, fmt.Sprintf("clipboard%d.txt", index))
}

func checkIndex(index int) error {
	if index < 0 || index >= protocol.NumKeys {
		return apperrors.Newf(apperrors.ErrInvalidParam, "index %d out of bounds", index)
	}
	return nil
}

// SetClip 把系统剪贴板保存到槽位，覆盖原内容
func (m *ClipboardManager) SetClip(index int) error {
	if err := checkIndex(index); err != nil {
		return err
	}

	text, err := m.system.ReadAll()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.WriteFile(m.SlotPath(index), []byte(text), 0o644); err != nil {
		return apperrors.Wrap(err, apperrors.ErrClipboard)
	}
	return nil
}

// GetClip 读取槽位内容，从未保存过的槽位返回空字符串
func (m *ClipboardManager) GetClip(index int) (string, error) {
	if err := checkIndex(index); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := os.ReadFile(m.SlotPath(index))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrClipboard)
	}
	return string(data), nil
}

// System 系统剪贴板
func (m *ClipboardManager) System() Clipboard {
	return m.system
}
