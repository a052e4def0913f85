package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/moffa90/go-arimu/protocol"
)

// Status is the device state and error bitmask from the most recent reply.
type Status struct {
	State  protocol.State
	Errors protocol.DeviceError

	// Seen is false until the first reply arrives
	Seen bool

	// At is when the reply was decoded
	At time.Time
}

// Correlator pairs commands with their replies over one Transport.
//
// At most one request is outstanding at any time. Inbound replies whose
// command matches the outstanding request are delivered to it; other replies
// go to the subscriber registered for their command, or are dropped.
type Correlator struct {
	transport *Transport
	config    Config

	mu          sync.Mutex
	pending     *pendingRequest
	subscribers map[protocol.Command]Subscriber
	status      Status
}

type pendingRequest struct {
	cmd     protocol.Command
	replies chan *protocol.Reply
	done    chan struct{}
	once    sync.Once
}

// NewCorrelator creates a Correlator and starts reading from port.
//
// Example:
//
//	port, _ := transport.OpenSerial("/dev/ttyACM0", transport.DefaultSerialConfig())
//	c := transport.NewCorrelator(port, transport.WithTimeout(2*time.Second))
//	reply, err := c.Request(ctx, protocol.CmdPing, 0)
func NewCorrelator(port io.ReadWriteCloser, opts ...Option) *Correlator {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Correlator{
		config:      cfg,
		subscribers: make(map[protocol.Command]Subscriber),
	}
	c.transport = New(port, c.dispatch, opts...)
	return c
}

// dispatch runs on the reader goroutine.
func (c *Correlator) dispatch(payload []byte) {
	reply, err := protocol.ParseReply(payload)
	if err != nil {
		logDebug(c.config.Logger, "dropping malformed reply", "error", err)
		return
	}

	c.mu.Lock()
	c.status = Status{State: reply.State, Errors: reply.Errors, Seen: true, At: time.Now()}
	p := c.pending
	sub := c.subscribers[reply.Command]
	c.mu.Unlock()

	if p != nil && p.cmd == reply.Command {
		select {
		case p.replies <- reply:
		case <-p.done:
		}
		return
	}
	if sub != nil {
		sub(reply)
		return
	}
	logDebug(c.config.Logger, "dropping unsolicited reply", "command", reply.Command.String(), "bytes", len(reply.Data))
}

// Begin arms the single pending request for cmd and sends it.
// The caller must Close the returned Exchange before issuing another request.
func (c *Correlator) Begin(ctx context.Context, cmd protocol.Command, args ...byte) (*Exchange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &pendingRequest{
		cmd:     cmd,
		replies: make(chan *protocol.Reply, c.config.ReplyBuffer),
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	if c.pending != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", cmd, ErrRequestPending)
	}
	c.pending = p
	c.mu.Unlock()

	if err := c.send(cmd, args); err != nil {
		c.release(p)
		return nil, err
	}

	return &Exchange{c: c, p: p}, nil
}

// Post sends cmd without waiting for a reply. It still honours the
// one-outstanding-request rule.
func (c *Correlator) Post(cmd protocol.Command, args ...byte) error {
	c.mu.Lock()
	busy := c.pending != nil
	c.mu.Unlock()
	if busy {
		return fmt.Errorf("%s: %w", cmd, ErrRequestPending)
	}
	return c.send(cmd, args)
}

func (c *Correlator) send(cmd protocol.Command, args []byte) error {
	payload := make([]byte, 0, 1+len(args))
	payload = append(payload, byte(cmd))
	payload = append(payload, args...)

	if err := c.transport.Send(payload); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	if c.config.CommandDelay > 0 {
		time.Sleep(c.config.CommandDelay)
	}
	return nil
}

func (c *Correlator) release(p *pendingRequest) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()
	p.once.Do(func() { close(p.done) })
}

// Request sends cmd and waits for one matching reply. On timeout the command
// is re-sent up to Retries more times; any other failure returns at once.
// A zero timeout uses the configured default.
func (c *Correlator) Request(ctx context.Context, cmd protocol.Command, timeout time.Duration, args ...byte) (*protocol.Reply, error) {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	attempts := c.config.Retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		x, err := c.Begin(ctx, cmd, args...)
		if err != nil {
			return nil, err
		}
		reply, err := x.Next(ctx, timeout)
		x.Close()

		if err == nil {
			return reply, nil
		}
		if !errors.Is(err, ErrTimeout) {
			return nil, err
		}
		logDebug(c.config.Logger, "request timed out", "command", cmd.String(), "attempt", attempt, "of", attempts)
	}

	return nil, &TimeoutError{Command: cmd, Timeout: timeout, Attempts: attempts}
}

// Subscribe registers fn for unsolicited replies carrying cmd and returns a
// function that removes it. A reply matching the outstanding request is
// never delivered to a subscriber.
func (c *Correlator) Subscribe(cmd protocol.Command, fn Subscriber) (unsubscribe func()) {
	c.mu.Lock()
	c.subscribers[cmd] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, cmd)
		c.mu.Unlock()
	}
}

// LastStatus returns the state and error bitmask of the most recent reply.
func (c *Correlator) LastStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Done is closed when the underlying reader stops.
func (c *Correlator) Done() <-chan struct{} {
	return c.transport.Done()
}

// Close closes the underlying Transport.
func (c *Correlator) Close() error {
	return c.transport.Close()
}

// Exchange is one armed request. Multi-frame replies are read with repeated
// calls to Next.
type Exchange struct {
	c *Correlator
	p *pendingRequest
}

// Command returns the command this exchange waits on.
func (x *Exchange) Command() protocol.Command {
	return x.p.cmd
}

// Next waits up to timeout for the next matching reply.
// An elapsed timeout returns a *TimeoutError.
func (x *Exchange) Next(ctx context.Context, timeout time.Duration) (*protocol.Reply, error) {
	if timeout <= 0 {
		timeout = x.c.config.Timeout
	}

	select {
	case reply := <-x.p.replies:
		return reply, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-x.p.replies:
		return reply, nil
	case <-timer.C:
		return nil, &TimeoutError{Command: x.p.cmd, Timeout: timeout, Attempts: 1}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-x.c.transport.Done():
		if err := x.c.transport.Err(); !errors.Is(err, ErrClosed) {
			return nil, fmt.Errorf("%s: %w: %w", x.p.cmd, ErrClosed, err)
		}
		return nil, fmt.Errorf("%s: %w", x.p.cmd, ErrClosed)
	}
}

// Drain discards replies until stop returns true for one of them or the line
// stays quiet for the given period. It returns the number of replies
// discarded. A nil stop drains until quiet.
func (x *Exchange) Drain(ctx context.Context, quiet time.Duration, stop func(*protocol.Reply) bool) (int, error) {
	discarded := 0
	for {
		reply, err := x.Next(ctx, quiet)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				return discarded, nil
			}
			return discarded, err
		}
		discarded++
		if stop != nil && stop(reply) {
			return discarded, nil
		}
	}
}

// Close releases the pending slot. Replies arriving afterwards are dropped.
func (x *Exchange) Close() {
	x.c.release(x.p)
}
