package simulator

import (
	"io"
	"sync"
)

// buffer is one direction of an in-memory serial link. Writes never block,
// which mirrors a UART with a generous driver buffer.
type buffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	data   []byte
	closed bool
}

func newBuffer() *buffer {
	b := &buffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *buffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.data) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, io.ErrClosedPipe
	}
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	return len(p), nil
}

func (b *buffer) close() {
	b.mu.Lock()
	b.closed = true
	b.cond.Broadcast()
	b.mu.Unlock()
}

// link is a full-duplex connection. Closing either end unplugs both.
type link struct {
	toDevice *buffer
	toHost   *buffer
	once     sync.Once
}

func newLink() *link {
	return &link{toDevice: newBuffer(), toHost: newBuffer()}
}

func (l *link) close() {
	l.once.Do(func() {
		l.toDevice.close()
		l.toHost.close()
	})
}

// hostEnd is the io.ReadWriteCloser handed to the host.
type hostEnd struct{ l *link }

func (h hostEnd) Read(p []byte) (int, error)  { return h.l.toHost.Read(p) }
func (h hostEnd) Write(p []byte) (int, error) { return h.l.toDevice.Write(p) }
func (h hostEnd) Close() error                { h.l.close(); return nil }
