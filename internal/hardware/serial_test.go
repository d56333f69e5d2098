package hardware

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/marco-listener/internal/config"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"go.bug.st/serial/enumerator"
)

// fakePort 测试用串口
type fakePort struct {
	mu       sync.Mutex
	reads    [][]byte
	readErr  error
	written  []byte
	writeN   int // >0 时模拟短写
	writeErr []error
	closed   bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		return 0, err
	}
	if len(f.reads) == 0 {
		return 0, nil
	}
	n := copy(p, f.reads[0])
	f.reads = f.reads[1:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writeErr) > 0 {
		err := f.writeErr[0]
		f.writeErr = f.writeErr[1:]
		if err != nil {
			return 0, err
		}
	}
	if f.writeN > 0 && f.writeN < len(p) {
		f.written = append(f.written, p[:f.writeN]...)
		return f.writeN, nil
	}
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestSelectPortBySerial(t *testing.T) {
	ports := []*enumerator.PortDetails{
		{Name: "/dev/ttyACM0", SerialNumber: "AAAA"},
		{Name: "/dev/ttyACM1", SerialNumber: "DF60BCA003370F35"},
		{Name: "/dev/ttyACM2", SerialNumber: "BBBB"},
	}

	name, err := SelectPortBySerial(ports, "DF60BCA003370F35")
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM1", name)

	// 未匹配时错误信息中包含编号最大的串口
	_, err = SelectPortBySerial(ports, "CCCC")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDeviceNotFound))
	assert.Contains(t, err.Error(), "/dev/ttyACM2")

	// 空列表
	_, err = SelectPortBySerial(nil, "AAAA")
	assert.True(t, apperrors.Is(err, apperrors.ErrDeviceNotFound))
}

func TestResolvePortName(t *testing.T) {
	lister := func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: "COM3", SerialNumber: "XYZ"}}, nil
	}

	// 未配置序列号时直接使用设备名，不调用枚举
	name, err := ResolvePortName(func() ([]*enumerator.PortDetails, error) {
		t.Fatal("不应该枚举串口")
		return nil, nil
	}, "COM9", "")
	require.NoError(t, err)
	assert.Equal(t, "COM9", name)

	name, err = ResolvePortName(lister, "COM9", "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "COM3", name)

	_, err = ResolvePortName(func() ([]*enumerator.PortDetails, error) {
		return nil, errors.New("boom")
	}, "COM9", "XYZ")
	assert.True(t, apperrors.Is(err, apperrors.ErrDeviceNotFound))
}

func TestParseParity(t *testing.T) {
	cases := map[string]byte{
		"":      'N',
		"N":     'N',
		"odd":   'O',
		"O":     'O',
		"E":     'E',
		"even":  'E',
		"mark":  'M',
		"space": 'S',
		"what":  'N',
	}
	for in, want := range cases {
		assert.Equal(t, want, parseParity(in), "parity %q", in)
	}
}

func TestOpenPortRejectsEmptyName(t *testing.T) {
	_, err := OpenPort(&PortConfig{Driver: DriverTarm})
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortOpen))

	_, err = OpenPort(&PortConfig{Driver: "usb", Name: "COM1"})
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

func TestWriteFull(t *testing.T) {
	p := &fakePort{}
	require.NoError(t, WriteFull(p, []byte("hello")))
	assert.Equal(t, "hello", string(p.written))

	// 短写
	p = &fakePort{writeN: 2}
	err := WriteFull(p, []byte("hello"))
	assert.True(t, apperrors.Is(err, apperrors.ErrShortWrite))
}

func TestWriteWithRetry(t *testing.T) {
	p := &fakePort{writeErr: []error{errors.New("busy"), errors.New("busy")}}
	err := WriteWithRetry(p, []byte("abc"), 3, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(p.written))

	// 重试次数用尽
	p = &fakePort{writeErr: []error{errors.New("busy"), errors.New("busy")}}
	err = WriteWithRetry(p, []byte("abc"), 2, time.Millisecond)
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortWrite))

	// 短写不重试
	p = &fakePort{writeN: 1}
	err = WriteWithRetry(p, []byte("abc"), 3, time.Millisecond)
	assert.True(t, apperrors.Is(err, apperrors.ErrShortWrite))
	assert.Equal(t, "a", string(p.written))
}

func TestIsDisconnectError(t *testing.T) {
	assert.False(t, IsDisconnectError(nil))
	assert.True(t, IsDisconnectError(errors.New("read /dev/ttyACM0: input/output error")))
	assert.True(t, IsDisconnectError(errors.New("Port has been closed")))
	assert.True(t, IsDisconnectError(apperrors.New(apperrors.ErrDeviceOffline)))
	assert.False(t, IsDisconnectError(errors.New("timeout")))
}

func TestReconnectingPort(t *testing.T) {
	first := &fakePort{readErr: errors.New("input/output error")}
	second := &fakePort{reads: [][]byte{[]byte("after")}}

	opens := 0
	rp, err := NewReconnectingPort(func() (Port, error) {
		opens++
		switch opens {
		case 1:
			return first, nil
		case 2:
			return nil, errors.New("no such file or directory")
		default:
			return second, nil
		}
	})
	require.NoError(t, err)
	rp.SetBackoff(time.Millisecond, 2*time.Millisecond)

	reconnected := false
	rp.OnReconnect(func() { reconnected = true })

	buf := make([]byte, 16)

	// 断线读取返回 (0, nil) 并完成重连
	n, err := rp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, first.closed)
	assert.True(t, reconnected)
	assert.Equal(t, 3, opens)

	n, err = rp.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "after", string(buf[:n]))

	require.NoError(t, rp.Close())
	assert.True(t, second.closed)

	_, err = rp.Read(buf)
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestReconnectingPortInitialFailure(t *testing.T) {
	_, err := NewReconnectingPort(func() (Port, error) {
		return nil, apperrors.New(apperrors.ErrSerialPortOpen)
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortOpen))
}

func TestOpenFromConfigResolvesBySerial(t *testing.T) {
	lister := func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{{Name: "/dev/ttyACM0", SerialNumber: "AAAA"}}, nil
	}

	_, _, err := OpenFromConfig(&config.SerialConfig{Port: "COM9", KnownSerial: "BBBB"}, lister)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDeviceNotFound))
	assert.Contains(t, err.Error(), "/dev/ttyACM0")

	// 驱动无效时不会真正打开设备
	_, _, err = OpenFromConfig(&config.SerialConfig{Driver: "usb", KnownSerial: "AAAA"}, lister)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))

	_, _, err = OpenFromConfig(&config.SerialConfig{Driver: "usb", Port: "COM9", AutoReconnect: true}, nil)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}
