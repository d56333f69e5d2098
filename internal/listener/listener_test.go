package listener

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
)

// scriptedPort 按顺序返回预设的数据块，用完后一直返回 (0, nil)
type scriptedPort struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error // 数据块用完后返回的错误
	reads  int
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if len(p.chunks) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, nil
	}
	chunk := p.chunks[0]
	n := copy(b, chunk)
	if n < len(chunk) {
		p.chunks[0] = chunk[n:]
	} else {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PortName = "COM9"
	opts.PollInterval = time.Millisecond
	return opts
}

func TestPollPrintsTextOncePerCycle(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("hello")}}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	ev, err := l.Poll()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "hello", ev.Text)
	assert.False(t, ev.Marker)
	assert.Equal(t, "hello\n", out.String())

	ev, err = l.Poll()
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, "hello\n", out.String())

	stats := l.Stats()
	assert.Equal(t, uint64(2), stats.Cycles)
	assert.Equal(t, uint64(1), stats.DataCycles)
	assert.Equal(t, uint64(5), stats.Bytes)
}

func TestPollPrintsMarkerLine(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("Scanning... Found I2C device at 0x3C")}}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	ev, err := l.Poll()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.True(t, ev.Marker)
	assert.Equal(t, "Scanning... Found I2C device at 0x3C\nit's in there\n", out.String())
	assert.Equal(t, uint64(1), l.Stats().Markers)
}

func TestPollMarkerPrintedOnceEvenWhenRepeated(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("Found I2C Found I2C")}}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	_, err := l.Poll()
	require.NoError(t, err)
	assert.Equal(t, "Found I2C Found I2C\nit's in there\n", out.String())
}

func TestPollMarkerIsCaseSensitive(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("found i2c")}}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	ev, err := l.Poll()
	require.NoError(t, err)
	assert.False(t, ev.Marker)
	assert.Equal(t, "found i2c\n", out.String())
}

func TestPollDrainsFullBuffer(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("abcdefghij")}}
	var out bytes.Buffer
	opts := testOptions()
	opts.ReadSize = 4
	l := New(port, &out, opts)

	ev, err := l.Poll()
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "abcdefghij", ev.Text)
	assert.Equal(t, "abcdefghij\n", out.String())
}

func TestPollPreservesEmbeddedNewlines(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("line1\r\nline2\r\n")}}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	_, err := l.Poll()
	require.NoError(t, err)
	assert.Equal(t, "line1\r\nline2\r\n\n", out.String())
}

func TestPollDecodeErrorStrict(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{{'o', 'k', 0xFF}}}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	ev, err := l.Poll()
	assert.Nil(t, ev)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDecode))
	assert.Empty(t, out.String())
}

func TestPollLenientReplacesInvalidBytes(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{{'o', 'k', 0xFF}}}
	var out bytes.Buffer
	opts := testOptions()
	opts.StrictASCII = false
	l := New(port, &out, opts)

	ev, err := l.Poll()
	require.NoError(t, err)
	assert.Equal(t, "ok�", ev.Text)
}

func TestPollReadError(t *testing.T) {
	port := &scriptedPort{err: errors.New("device disconnected")}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	_, err := l.Poll()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortRead))
}

func TestPollDispatchesToSinks(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("Found I2C")}}
	history := NewHistory(4)
	var got []*Event
	sink := SinkFunc(func(ev *Event) { got = append(got, ev) })

	l := New(port, io.Discard, testOptions(), history, nil, sink)
	_, err := l.Poll()
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "COM9", got[0].Port)
	assert.Equal(t, DirectionReceive, got[0].Direction)
	assert.Equal(t, "466f756e642049324", got[0].Hex()[:17])
	assert.Equal(t, 1, history.Len())
}

func TestRunStopsOnCancel(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("a"), []byte("b")}}
	var mu sync.Mutex
	var lines []string
	sink := SinkFunc(func(ev *Event) {
		mu.Lock()
		lines = append(lines, ev.Text)
		mu.Unlock()
	})
	l := New(port, io.Discard, testOptions(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lines) == 2
	}, time.Second, time.Millisecond)
	assert.True(t, l.Stats().Running)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, l.Stats().Running)
	assert.Equal(t, []string{"a", "b"}, lines)
}

func TestRunTerminatesOnDecodeError(t *testing.T) {
	port := &scriptedPort{chunks: [][]byte{[]byte("ok"), {0x80}}}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrDecode))
	assert.Equal(t, "ok\n", out.String())
}

func TestRunTerminatesOnReadError(t *testing.T) {
	port := &scriptedPort{err: io.ErrUnexpectedEOF}
	l := New(port, io.Discard, testOptions())

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// faultyPort 在同一次 Read 中返回数据和错误
type faultyPort struct {
	data []byte
	err  error
}

func (p *faultyPort) Read(b []byte) (int, error) {
	n := copy(b, p.data)
	p.data = p.data[n:]
	return n, p.err
}

func TestPollPrintsBytesReadBeforeFault(t *testing.T) {
	port := &faultyPort{data: []byte("Found I2C at 0x3C"), err: io.ErrUnexpectedEOF}
	var out bytes.Buffer
	l := New(port, &out, testOptions())

	ev, err := l.Poll()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, apperrors.Is(err, apperrors.ErrSerialPortRead))
	require.NotNil(t, ev)
	assert.True(t, ev.Marker)
	assert.Equal(t, "Found I2C at 0x3C\nit's in there\n", out.String())
	assert.Equal(t, uint64(17), l.Stats().Bytes)
}

func TestRunSleepsBetweenCycles(t *testing.T) {
	port := &scriptedPort{}
	opts := testOptions()
	opts.PollInterval = 20 * time.Millisecond
	l := New(port, io.Discard, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	_ = l.Run(ctx)

	cycles := l.Stats().Cycles
	assert.GreaterOrEqual(t, cycles, uint64(2))
	assert.LessOrEqual(t, cycles, uint64(7))
}

func TestNewAppliesDefaults(t *testing.T) {
	l := New(&scriptedPort{}, io.Discard, Options{})
	opts := l.Options()
	assert.Equal(t, DefaultMarker, opts.Marker)
	assert.Equal(t, DefaultMarkerLine, opts.MarkerLine)
	assert.Equal(t, DefaultPollInterval, opts.PollInterval)
	assert.Equal(t, DefaultReadSize, opts.ReadSize)
}

func TestHooksHaveNoEffect(t *testing.T) {
	port := &scriptedPort{}
	var out bytes.Buffer

	Acknowledge("0x01")
	assert.NoError(t, HandleRequest(context.Background(), []byte("body")))
	ReturnResponse([]byte("resp"))

	assert.Equal(t, 0, port.reads)
	assert.Empty(t, out.String())
}

func TestHistoryEviction(t *testing.T) {
	h := NewHistory(3)
	for _, s := range []string{"1", "2", "3", "4", "5"} {
		h.HandleEvent(&Event{Text: s})
	}
	assert.Equal(t, 3, h.Len())

	recent := h.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "3", recent[0].Text)
	assert.Equal(t, "5", recent[2].Text)

	recent = h.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "4", recent[0].Text)
}

func TestDecodeASCII(t *testing.T) {
	s, err := DecodeASCII([]byte("abc\x00\x7f"))
	require.NoError(t, err)
	assert.Equal(t, "abc\x00\x7f", s)

	_, err = DecodeASCII([]byte{'a', 0xC3, 0xA9})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offset 1")
}
