package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-arimu/protocol"
)

const (
	readBufferSize = 512
	closeWait      = time.Second
)

// Transport owns one open connection to a unit. A reader goroutine feeds
// every inbound byte to a protocol.Parser and hands each decoded payload to
// the handler; writes are framed and serialized.
type Transport struct {
	port    io.ReadWriteCloser
	handler Handler
	config  Config

	writeMu sync.Mutex
	closing atomic.Bool
	done    chan struct{}
	err     error
}

// New creates a Transport over port and starts its reader.
// The handler is called on the reader goroutine for every valid frame.
func New(port io.ReadWriteCloser, handler Handler, opts ...Option) *Transport {
	if port == nil {
		panic("port cannot be nil")
	}
	if handler == nil {
		handler = func([]byte) {}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	t := &Transport{
		port:    port,
		handler: handler,
		config:  cfg,
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *Transport) readLoop() {
	defer close(t.done)

	parser := protocol.NewParser()
	buf := make([]byte, readBufferSize)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			parser.Write(buf[:n], t.handler)
		}
		if err != nil {
			if !t.closing.Load() {
				t.err = err
				if !errors.Is(err, io.EOF) {
					logError(t.config.Logger, "serial read failed", "error", err)
				}
			}
			return
		}
		if t.closing.Load() {
			return
		}
	}
}

// Send encodes payload into a frame and writes it. Only one write is in
// progress at a time.
func (t *Transport) Send(payload []byte) error {
	frame, err := protocol.EncodeFrame(payload)
	if err != nil {
		return err
	}
	if t.closing.Load() {
		return ErrClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	logDebug(t.config.Logger, "frame sent", "command", protocol.Command(payload[0]).String(), "bytes", len(frame))
	return nil
}

// Done is closed when the reader stops.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err returns why the reader stopped. It is nil while the reader is running
// and ErrClosed after Close.
func (t *Transport) Err() error {
	select {
	case <-t.done:
	default:
		return nil
	}
	if t.err != nil {
		return t.err
	}
	return ErrClosed
}

// Close closes the port and waits briefly for the reader to exit.
func (t *Transport) Close() error {
	if !t.closing.CompareAndSwap(false, true) {
		return nil
	}
	err := t.port.Close()

	select {
	case <-t.done:
	case <-time.After(closeWait):
		logError(t.config.Logger, "reader did not stop after close")
	}
	return err
}
