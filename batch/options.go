package batch

import (
	"io"
	"time"

	"github.com/moffa90/go-arimu/session"
	"github.com/moffa90/go-arimu/transport"
)

// Opener opens the connection to the unit on port.
type Opener func(port string) (io.ReadWriteCloser, error)

// Config holds the synchronizer configuration.
type Config struct {
	// OutDir is the local cache root; files land in OutDir/<subject>/<name>
	OutDir string

	// Retention is how old a cached recording must be before it is deleted
	// from the unit
	Retention time.Duration

	// WatchdogTick and WatchdogThreshold bound how long a download may go
	// without progress: it is abandoned after Threshold ticks
	WatchdogTick      time.Duration
	WatchdogThreshold int

	// MaintenanceInterval is the period of the time-sync loop
	MaintenanceInterval time.Duration

	// MaintenanceConcurrency is how many ports the time-sync loop visits at once
	MaintenanceConcurrency int

	// DoNotDelete skips the deletion pass
	DoNotDelete bool

	// SessionOptions are applied to every session after the defaults
	SessionOptions []session.Option

	// Opener opens ports (defaults to transport.OpenSerial)
	Opener Opener

	// ReportCallback receives status lines (optional)
	ReportCallback ReportCallback

	// ProgressCallback receives download progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Recorder journals every run (optional)
	Recorder Recorder

	// Now is the clock used for file ages and time sync
	Now func() time.Time
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		OutDir:                 "subjectdata",
		Retention:              10 * 24 * time.Hour,
		WatchdogTick:           time.Second,
		WatchdogThreshold:      10,
		MaintenanceInterval:    10 * time.Minute,
		MaintenanceConcurrency: 1,
		Opener:                 openSerial,
		Now:                    time.Now,
	}
}

func openSerial(port string) (io.ReadWriteCloser, error) {
	return transport.OpenSerial(port, transport.DefaultSerialConfig())
}

// Option is a functional option for configuring the Synchronizer.
type Option func(*Config)

// WithOutDir sets the local cache root.
//
// Example:
//
//	syncer := batch.New(batch.WithOutDir("/data/arimu"))
func WithOutDir(dir string) Option {
	return func(c *Config) {
		if dir != "" {
			c.OutDir = dir
		}
	}
}

// WithRetention sets the age past which cached recordings are deleted from
// the unit.
//
// Example:
//
//	syncer := batch.New(batch.WithRetention(14 * 24 * time.Hour))
func WithRetention(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Retention = d
		}
	}
}

// WithWatchdog sets the stall watchdog. A download that makes no progress
// for threshold ticks is abandoned.
func WithWatchdog(tick time.Duration, threshold int) Option {
	return func(c *Config) {
		if tick > 0 {
			c.WatchdogTick = tick
		}
		if threshold > 0 {
			c.WatchdogThreshold = threshold
		}
	}
}

// WithMaintenance sets the time-sync loop period and how many ports it
// visits concurrently.
//
// Example:
//
//	syncer := batch.New(batch.WithMaintenance(5*time.Minute, 2))
func WithMaintenance(interval time.Duration, concurrency int) Option {
	return func(c *Config) {
		if interval > 0 {
			c.MaintenanceInterval = interval
		}
		if concurrency > 0 {
			c.MaintenanceConcurrency = concurrency
		}
	}
}

// WithDoNotDelete disables deletion of recordings from the units.
func WithDoNotDelete(enable bool) Option {
	return func(c *Config) {
		c.DoNotDelete = enable
	}
}

// WithSessionOptions adds options for every device session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Config) {
		c.SessionOptions = append(c.SessionOptions, opts...)
	}
}

// WithOpener replaces the serial port opener.
//
// Example:
//
//	unit := simulator.New("ARIMU-01")
//	syncer := batch.New(batch.WithOpener(func(string) (io.ReadWriteCloser, error) {
//	    return unit.Port(), nil
//	}))
func WithOpener(open Opener) Option {
	return func(c *Config) {
		if open != nil {
			c.Opener = open
		}
	}
}

// WithReportCallback sets a callback for status lines.
//
// Example:
//
//	syncer := batch.New(batch.WithReportCallback(func(r batch.Report) {
//	    fmt.Println(r.Port, r.Text)
//	}))
func WithReportCallback(callback ReportCallback) Option {
	return func(c *Config) {
		c.ReportCallback = callback
	}
}

// WithProgressCallback sets a callback to track downloads.
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for synchronizer and session operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithRecorder sets the journal that records every run.
func WithRecorder(r Recorder) Option {
	return func(c *Config) {
		c.Recorder = r
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}
