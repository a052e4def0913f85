package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-arimu/protocol"
)

func TestTransportSendFramesPayload(t *testing.T) {
	port := NewMockPort()
	tr := New(port, nil)
	defer tr.Close()

	require.NoError(t, tr.Send([]byte{byte(protocol.CmdDeleteFile), 'a', 0}))

	written := port.Written()
	require.Len(t, written, 1)
	assert.Equal(t, []byte{byte(protocol.CmdDeleteFile), 'a', 0}, written[0])

	err := tr.Send(nil)
	assert.ErrorIs(t, err, protocol.ErrEmptyPayload)
}

func TestTransportDispatchesEveryFrame(t *testing.T) {
	port := NewMockPort()

	var mu sync.Mutex
	var got [][]byte
	tr := New(port, func(payload []byte) {
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
	})
	defer tr.Close()

	frame := buildReplyFrame(protocol.CmdStatus, protocol.StateNormal, 0)
	stream := append([]byte{0x13, 0x37, 0xFF, 0x00}, frame...)
	stream = append(stream, frame...)
	// split mid-frame across reads
	port.Inject(stream[:7])
	port.Inject(stream[7:])

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestTransportCloseAndErr(t *testing.T) {
	port := NewMockPort()
	tr := New(port, nil)

	assert.NoError(t, tr.Err(), "running reader has no error")

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
	assert.ErrorIs(t, tr.Err(), ErrClosed)
	assert.ErrorIs(t, tr.Send([]byte{0x00}), ErrClosed)
}

type failingPort struct {
	err error
}

func (f *failingPort) Read([]byte) (int, error)    { return 0, f.err }
func (f *failingPort) Write(p []byte) (int, error) { return 0, f.err }
func (f *failingPort) Close() error                { return nil }

func TestTransportReaderError(t *testing.T) {
	boom := errors.New("device unplugged")
	logger := &MockLogger{}
	tr := New(&failingPort{err: boom}, nil, WithLogger(logger))

	<-tr.Done()
	assert.ErrorIs(t, tr.Err(), boom)

	err := tr.Send([]byte{0x00})
	assert.ErrorIs(t, err, boom)

	logger.mu.Lock()
	assert.Contains(t, logger.errorMsgs, "serial read failed")
	logger.mu.Unlock()
}

func TestTransportReaderEOFIsQuiet(t *testing.T) {
	logger := &MockLogger{}
	tr := New(&failingPort{err: io.EOF}, nil, WithLogger(logger))
	<-tr.Done()

	assert.ErrorIs(t, tr.Err(), io.EOF)
	logger.mu.Lock()
	assert.Empty(t, logger.errorMsgs)
	logger.mu.Unlock()
}

func TestNewPanicsOnNilPort(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil) })
}

func stubPorts(t *testing.T, fn func() ([]string, error)) {
	t.Helper()
	orig := portLister
	portLister = fn
	t.Cleanup(func() { portLister = orig })
}

func TestListPorts(t *testing.T) {
	stubPorts(t, func() ([]string, error) {
		return []string{"/dev/ttyACM1", "/dev/ttyACM0", "COM3"}, nil
	})

	ports, err := ListPorts()
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyACM1", "COM3"}, ports)

	stubPorts(t, func() ([]string, error) { return nil, errors.New("no access") })
	_, err = ListPorts()
	assert.ErrorContains(t, err, "list serial ports")
}

func TestWaitForPort(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	stubPorts(t, func() ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, nil
		}
		return []string{"/dev/ttyACM0"}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, WaitForPort(ctx, "/dev/ttyACM0", 5*time.Millisecond))

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := WaitForPort(ctx, "/dev/ttyUSB9", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpenSerialMissingPort(t *testing.T) {
	cfg := DefaultSerialConfig()
	cfg.Settle = 0
	_, err := OpenSerial("/dev/arimu-does-not-exist", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/arimu-does-not-exist")
	assert.True(t, IsPortNotFound(err))
}

func TestIsPortNotFound(t *testing.T) {
	assert.True(t, IsPortNotFound(fmt.Errorf("open COM9: %w", fs.ErrNotExist)))
	assert.False(t, IsPortNotFound(errors.New("device busy")))
	assert.False(t, IsPortNotFound(nil))
}

func TestIsTimeout(t *testing.T) {
	err := &TimeoutError{Command: protocol.CmdPing, Timeout: time.Second, Attempts: 6}
	assert.True(t, IsTimeout(err))
	assert.True(t, IsTimeout(errors.Join(errors.New("ctx"), err)))
	assert.False(t, IsTimeout(ErrClosed))
	assert.Equal(t, "PING: no reply within 1s after 6 attempt(s)", err.Error())
}
