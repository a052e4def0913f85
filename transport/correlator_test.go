package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-arimu/protocol"
)

const testTimeout = 50 * time.Millisecond

func newTestCorrelator(t *testing.T, port *MockPort, opts ...Option) *Correlator {
	t.Helper()
	opts = append([]Option{WithTimeout(testTimeout), WithRetries(2)}, opts...)
	c := NewCorrelator(port, opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCorrelatorRequest(t *testing.T) {
	port := NewMockPort()
	port.Respond = func(payload []byte) [][]byte {
		if protocol.Command(payload[0]) == protocol.CmdPing {
			return [][]byte{buildReplyFrame(protocol.CmdPing, protocol.StateNormal, 0, []byte("ARIMU-01")...)}
		}
		return nil
	}
	c := newTestCorrelator(t, port)

	reply, err := c.Request(context.Background(), protocol.CmdPing, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdPing, reply.Command)
	assert.Equal(t, protocol.StateNormal, reply.State)
	assert.Equal(t, "ARIMU-01", string(reply.Data))

	status := c.LastStatus()
	assert.True(t, status.Seen)
	assert.Equal(t, protocol.StateNormal, status.State)
}

func TestCorrelatorRetries(t *testing.T) {
	tests := []struct {
		name       string
		drop       int32
		retries    int
		wantErr    bool
		wantWrites int
	}{
		{name: "first attempt", drop: 0, retries: 2, wantWrites: 1},
		{name: "recovers after two timeouts", drop: 2, retries: 2, wantWrites: 3},
		{name: "exhausts retries", drop: 10, retries: 2, wantErr: true, wantWrites: 3},
		{name: "no retries", drop: 1, retries: 0, wantErr: true, wantWrites: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dropped atomic.Int32
			port := NewMockPort()
			port.Respond = func(payload []byte) [][]byte {
				if dropped.Load() < tt.drop {
					dropped.Add(1)
					return nil
				}
				return [][]byte{buildReplyFrame(protocol.CmdStatus, protocol.StateNone, 0)}
			}
			c := newTestCorrelator(t, port, WithRetries(tt.retries))

			_, err := c.Request(context.Background(), protocol.CmdStatus, 0)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsTimeout(err))

				var te *TimeoutError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, tt.retries+1, te.Attempts)
				assert.Equal(t, protocol.CmdStatus, te.Command)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, port.Written(), tt.wantWrites)
		})
	}
}

func TestCorrelatorSingleOutstandingRequest(t *testing.T) {
	port := NewMockPort()
	c := newTestCorrelator(t, port)
	ctx := context.Background()

	x, err := c.Begin(ctx, protocol.CmdListFiles)
	require.NoError(t, err)

	_, err = c.Begin(ctx, protocol.CmdStatus)
	assert.ErrorIs(t, err, ErrRequestPending)

	err = c.Post(protocol.CmdDockingStationPing)
	assert.ErrorIs(t, err, ErrRequestPending)

	_, err = c.Request(ctx, protocol.CmdStatus, 0)
	assert.ErrorIs(t, err, ErrRequestPending)

	x.Close()
	x.Close() // idempotent

	x, err = c.Begin(ctx, protocol.CmdStatus)
	require.NoError(t, err)
	x.Close()
}

func TestCorrelatorCorruptedChecksumNeverDispatched(t *testing.T) {
	port := NewMockPort()
	port.Respond = func(payload []byte) [][]byte {
		bad := buildReplyFrame(protocol.CmdStatus, protocol.StateNormal, 0)
		bad[len(bad)-1]++
		return [][]byte{bad}
	}
	c := newTestCorrelator(t, port, WithRetries(0))

	_, err := c.Request(context.Background(), protocol.CmdStatus, 0)
	assert.True(t, IsTimeout(err))
	assert.False(t, c.LastStatus().Seen, "a corrupted frame must not reach the correlator")

	// a valid frame after the noise still resolves
	port.Respond = func(payload []byte) [][]byte {
		bad := buildReplyFrame(protocol.CmdStatus, protocol.StateBadError, 0)
		bad[len(bad)-1]++
		good := buildReplyFrame(protocol.CmdStatus, protocol.StateNormal, 0)
		return [][]byte{bad, good}
	}
	reply, err := c.Request(context.Background(), protocol.CmdStatus, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateNormal, reply.State)
}

func TestCorrelatorRoutesUnmatchedReplies(t *testing.T) {
	port := NewMockPort()
	c := newTestCorrelator(t, port)

	var mu sync.Mutex
	var streamed []*protocol.Reply
	unsubscribe := c.Subscribe(protocol.CmdStartStream, func(r *protocol.Reply) {
		mu.Lock()
		streamed = append(streamed, r)
		mu.Unlock()
	})

	// a stray reply for another command neither satisfies the request nor
	// reaches the stream subscriber
	port.Respond = func(payload []byte) [][]byte {
		return [][]byte{
			buildReplyFrame(protocol.CmdGetSubject, protocol.StateNormal, 0, 's'),
			buildReplyFrame(protocol.CmdStartStream, protocol.StateStreaming, 0, make([]byte, protocol.SampleSize)...),
			buildReplyFrame(protocol.CmdGetTime, protocol.StateStreaming, 0, make([]byte, protocol.TimeReplySize)...),
		}
	}

	reply, err := c.Request(context.Background(), protocol.CmdGetTime, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdGetTime, reply.Command)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(streamed) == 1
	}, time.Second, 5*time.Millisecond)

	unsubscribe()
	port.Inject(buildReplyFrame(protocol.CmdStartStream, protocol.StateStreaming, 0, make([]byte, protocol.SampleSize)...))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	assert.Len(t, streamed, 1)
	mu.Unlock()
}

func TestCorrelatorPendingRequestTakesPriorityOverSubscriber(t *testing.T) {
	port := NewMockPort()
	port.Respond = func(payload []byte) [][]byte {
		return [][]byte{buildReplyFrame(protocol.CmdStartStream, protocol.StateStreaming, 0)}
	}
	c := newTestCorrelator(t, port)

	var hits atomic.Int32
	c.Subscribe(protocol.CmdStartStream, func(*protocol.Reply) { hits.Add(1) })

	reply, err := c.Request(context.Background(), protocol.CmdStartStream, 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateStreaming, reply.State)
	assert.Zero(t, hits.Load())
}

func TestExchangeMultiFrameAndDrain(t *testing.T) {
	port := NewMockPort()
	port.Respond = func(payload []byte) [][]byte {
		var frames [][]byte
		for i := 0; i < 5; i++ {
			frames = append(frames, buildReplyFrame(protocol.CmdGetFileData, protocol.StateDockingStation, 0,
				byte(protocol.FlagFileContent), byte(i*50)))
		}
		return frames
	}
	c := newTestCorrelator(t, port)
	ctx := context.Background()

	x, err := c.Begin(ctx, protocol.CmdGetFileData, 'f', 0)
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdGetFileData, x.Command())

	first, err := x.Next(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0), first.Data[1])

	n, err := x.Drain(ctx, testTimeout, func(r *protocol.Reply) bool { return r.Data[1] == 150 })
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = x.Drain(ctx, testTimeout, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	x.Close()
}

func TestExchangeContextCancel(t *testing.T) {
	port := NewMockPort()
	c := newTestCorrelator(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	x, err := c.Begin(ctx, protocol.CmdStatus)
	require.NoError(t, err)
	defer x.Close()

	cancel()
	_, err = x.Next(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = c.Begin(ctx, protocol.CmdStatus)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExchangeAfterClose(t *testing.T) {
	port := NewMockPort()
	c := NewCorrelator(port, WithTimeout(time.Second))

	x, err := c.Begin(context.Background(), protocol.CmdStatus)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	_, err = x.Next(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)
	x.Close()

	_, err = c.Begin(context.Background(), protocol.CmdStatus)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCorrelatorLogsDroppedReplies(t *testing.T) {
	logger := &MockLogger{}
	port := NewMockPort()
	c := newTestCorrelator(t, port, WithLogger(logger))
	_ = c

	port.Inject(buildReplyFrame(protocol.CmdGetSubject, protocol.StateNormal, 0))
	port.Inject([]byte{0xFF, 0xFF, 0x02, 0x01, 0x01}) // too short for a reply

	require.Eventually(t, func() bool { return len(logger.debugs()) >= 2 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, logger.debugs(), "dropping unsolicited reply")
	assert.Contains(t, logger.debugs(), "dropping malformed reply")
}

func BenchmarkCorrelatorRequest(b *testing.B) {
	port := NewMockPort()
	port.Respond = func(payload []byte) [][]byte {
		return [][]byte{buildReplyFrame(protocol.CmdStatus, protocol.StateNormal, 0)}
	}
	c := NewCorrelator(port)
	defer c.Close()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Request(ctx, protocol.CmdStatus, 0); err != nil {
			b.Fatal(err)
		}
	}
}
