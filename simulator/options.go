package simulator

import (
	"time"

	"github.com/moffa90/go-arimu/protocol"
)

// Config holds the simulated unit configuration.
type Config struct {
	// ListChunk is the number of list characters sent per LISTFILES frame.
	// Names are split across frames wherever the boundary falls.
	ListChunk int

	// DataChunk is the number of file bytes per FILECONTENT frame
	DataChunk int

	// ListTerminator sends a zero-length reply after the closing bracket
	ListTerminator bool

	// StreamInterval is the period between telemetry samples
	StreamInterval time.Duration

	// Now is the host clock the unit's RTC is derived from
	Now func() time.Time

	// State and Errors are reported until a command changes them
	State  protocol.State
	Errors protocol.DeviceError

	Subject     string
	CurrentFile string

	drops         map[protocol.Command]int
	corrupts      map[protocol.Command]int
	stalls        map[string]int
	dockRefusals  int
	sizeOverrides map[string]uint32
}

func defaultConfig() Config {
	return Config{
		ListChunk:      48,
		DataChunk:      200,
		ListTerminator: true,
		StreamInterval: 10 * time.Millisecond,
		Now:            time.Now,
		State:          protocol.StateNormal,
		drops:          make(map[protocol.Command]int),
		corrupts:       make(map[protocol.Command]int),
		stalls:         make(map[string]int),
		sizeOverrides:  make(map[string]uint32),
	}
}

// Option is a functional option for configuring a Unit.
type Option func(*Config)

// WithListChunk sets how many list characters go in each LISTFILES frame.
func WithListChunk(n int) Option {
	return func(c *Config) {
		if n > 0 && n <= protocol.MaxPayloadSize-protocol.ReplyHeaderSize {
			c.ListChunk = n
		}
	}
}

// WithDataChunk sets how many file bytes go in each FILECONTENT frame.
func WithDataChunk(n int) Option {
	return func(c *Config) {
		if n > 0 && n <= protocol.MaxPayloadSize-protocol.ReplyHeaderSize-protocol.FileContentHeaderSize {
			c.DataChunk = n
		}
	}
}

// WithoutListTerminator ends listings at the closing bracket only.
func WithoutListTerminator() Option {
	return func(c *Config) {
		c.ListTerminator = false
	}
}

// WithClock sets the clock the unit's RTC is derived from.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Now = now
	}
}

// WithState sets the initial firmware state.
func WithState(s protocol.State) Option {
	return func(c *Config) {
		c.State = s
	}
}

// WithErrors sets the error bitmask reported in every reply.
func WithErrors(e protocol.DeviceError) Option {
	return func(c *Config) {
		c.Errors = e
	}
}

// WithSubject sets the initial subject name.
func WithSubject(name string) Option {
	return func(c *Config) {
		c.Subject = name
	}
}

// WithCurrentFile sets the name of the file the unit is recording to.
func WithCurrentFile(name string) Option {
	return func(c *Config) {
		c.CurrentFile = name
	}
}

// WithStreamInterval sets the telemetry period.
func WithStreamInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.StreamInterval = d
		}
	}
}

// WithDroppedReplies makes the unit ignore the next n requests for cmd.
func WithDroppedReplies(cmd protocol.Command, n int) Option {
	return func(c *Config) {
		c.drops[cmd] = n
	}
}

// WithCorruptedReplies flips the checksum of the first reply to each of the
// next n requests for cmd.
func WithCorruptedReplies(cmd protocol.Command, n int) Option {
	return func(c *Config) {
		c.corrupts[cmd] = n
	}
}

// WithStallAfter makes the unit stop sending name after the given number of
// content chunks.
func WithStallAfter(name string, chunks int) Option {
	return func(c *Config) {
		c.stalls[name] = chunks
	}
}

// WithDockingRefusals makes the next n STARTDOCKSTNCOMM requests leave the
// state unchanged.
func WithDockingRefusals(n int) Option {
	return func(c *Config) {
		c.dockRefusals = n
	}
}

// WithAdvertisedSize makes the FILEHEADER for name report size instead of the
// real length.
func WithAdvertisedSize(name string, size uint32) Option {
	return func(c *Config) {
		c.sizeOverrides[name] = size
	}
}
