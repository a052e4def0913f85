package transport

import (
	"io"
	"sync"

	"github.com/moffa90/go-arimu/protocol"
)

// MockPort simulates the unit side of a serial link for testing.
// Every frame written by the host is decoded and passed to Respond, whose
// returned raw byte slices are queued for the host to read.
type MockPort struct {
	Respond func(payload []byte) [][]byte

	mu      sync.Mutex
	written [][]byte

	in        chan []byte
	pending   []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewMockPort() *MockPort {
	return &MockPort{
		in:     make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

func (m *MockPort) Read(p []byte) (int, error) {
	if len(m.pending) == 0 {
		select {
		case b := <-m.in:
			m.pending = b
		case <-m.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *MockPort) Write(p []byte) (int, error) {
	select {
	case <-m.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	for _, payload := range protocol.Decode(p) {
		m.mu.Lock()
		m.written = append(m.written, payload)
		respond := m.Respond
		m.mu.Unlock()

		if respond != nil {
			for _, raw := range respond(payload) {
				m.in <- raw
			}
		}
	}
	return len(p), nil
}

func (m *MockPort) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

// Inject queues raw bytes as if the unit had sent them unprompted.
func (m *MockPort) Inject(raw []byte) {
	m.in <- raw
}

// Written returns every payload the host has sent.
func (m *MockPort) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// buildReplyFrame builds an inbound frame the way the unit firmware does.
func buildReplyFrame(cmd protocol.Command, state protocol.State, errs protocol.DeviceError, data ...byte) []byte {
	payload := append([]byte{byte(cmd), byte(state), byte(errs)}, data...)
	frame, err := protocol.EncodeFrame(payload)
	if err != nil {
		panic(err)
	}
	return frame
}

// MockLogger collects log messages for testing.
type MockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) {
	l.mu.Lock()
	l.debugMsgs = append(l.debugMsgs, msg)
	l.mu.Unlock()
}

func (l *MockLogger) Info(msg string, kv ...interface{}) {
	l.mu.Lock()
	l.infoMsgs = append(l.infoMsgs, msg)
	l.mu.Unlock()
}

func (l *MockLogger) Error(msg string, kv ...interface{}) {
	l.mu.Lock()
	l.errorMsgs = append(l.errorMsgs, msg)
	l.mu.Unlock()
}

func (l *MockLogger) debugs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.debugMsgs...)
}
