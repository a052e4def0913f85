package transport

import "time"

// Config holds the transport and correlator configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger Logger

	// Timeout is the default wait for a matching reply
	Timeout time.Duration

	// Retries is the number of additional attempts after a timeout
	Retries int

	// CommandDelay is slept after every write (optional)
	CommandDelay time.Duration

	// ReplyBuffer is the number of matching replies queued for a slow consumer
	ReplyBuffer int
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Timeout:     2 * time.Second,
		Retries:     5,
		ReplyBuffer: 64,
	}
}

// Option is a functional option for configuring a Transport or Correlator.
type Option func(*Config)

// WithLogger sets a logger for transport operations.
//
// Example:
//
//	c := transport.NewCorrelator(port, transport.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTimeout sets the default reply timeout.
//
// Example:
//
//	c := transport.NewCorrelator(port, transport.WithTimeout(500*time.Millisecond))
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithRetries sets the number of retry attempts after a timeout.
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

// WithReplyBuffer sets how many replies may queue for one exchange
// before the reader blocks.
func WithReplyBuffer(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ReplyBuffer = n
		}
	}
}
