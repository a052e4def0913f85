package session

import (
	"time"

	"github.com/moffa90/go-arimu/protocol"
	"github.com/moffa90/go-arimu/transport"
)

// Logger is the logging interface shared with package transport.
type Logger = transport.Logger

// Config holds the session configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger Logger

	// Timeout is the reply timeout for single-reply commands
	Timeout time.Duration

	// ListTimeout is the wait for each LISTFILES frame
	ListTimeout time.Duration

	// FileDataTimeout is the wait for each GETFILEDATA frame
	FileDataTimeout time.Duration

	// Retries is the number of additional attempts after a timeout
	Retries int

	// CommandDelay is slept after every command write
	CommandDelay time.Duration

	// NameMarker must appear in the PING reply of a genuine unit
	NameMarker string

	// Location is the time zone the unit's RTC is kept in
	Location *time.Location

	// MaxClockSkew is the largest echo difference SetTime accepts
	MaxClockSkew time.Duration

	// DrainQuiet is how long an abandoned transfer must stay silent before
	// the connection is reused
	DrainQuiet time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Timeout:         2 * time.Second,
		ListTimeout:     5 * time.Second,
		FileDataTimeout: 5 * time.Second,
		Retries:         5,
		NameMarker:      protocol.DeviceNameMarker,
		Location:        time.Local,
		MaxClockSkew:    time.Second,
		DrainQuiet:      250 * time.Millisecond,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithLogger sets a logger for session operations.
//
// Example:
//
//	sess := session.New(port, rw, session.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeout sets the reply timeout for single-reply commands.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithStreamTimeouts sets the per-frame waits for file listings and file data.
//
// Example:
//
//	sess := session.New(port, rw, session.WithStreamTimeouts(5*time.Second, 5*time.Second))
func WithStreamTimeouts(list, fileData time.Duration) Option {
	return func(c *Config) {
		if list > 0 {
			c.ListTimeout = list
		}
		if fileData > 0 {
			c.FileDataTimeout = fileData
		}
	}
}

// WithRetries sets the number of retry attempts after a timeout.
//
// Example:
//
//	sess := session.New(port, rw, session.WithRetries(3))
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithCommandDelay sets a pause applied after each command write.
func WithCommandDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.CommandDelay = delay
	}
}

// WithNameMarker sets the substring a genuine unit includes in its PING reply.
func WithNameMarker(marker string) Option {
	return func(c *Config) {
		c.NameMarker = marker
	}
}

// WithLocation sets the time zone the unit's RTC is kept in.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		if loc != nil {
			c.Location = loc
		}
	}
}

// WithMaxClockSkew sets the largest difference between the time sent and the
// time echoed by SETTIME that is still considered a success.
func WithMaxClockSkew(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxClockSkew = d
		}
	}
}

// WithDrainQuiet sets how long an abandoned transfer must stay silent.
func WithDrainQuiet(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.DrainQuiet = d
		}
	}
}
