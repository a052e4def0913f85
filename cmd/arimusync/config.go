package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/moffa90/go-arimu/protocol"
)

// options is the resolved command line configuration.
// Precedence is flag, then ARIMU_* environment, then config file, then default.
type options struct {
	Ports    []string
	OutDir   string
	Baud     int
	Settle   time.Duration
	Journal  string
	NoDelete bool

	Retention         time.Duration
	WatchdogTick      time.Duration
	WatchdogThreshold int

	Timeout time.Duration
	Retries int

	MaintenanceInterval    time.Duration
	MaintenanceConcurrency int

	LogLevel string
	LogJSON  bool

	Simulate  int
	ListPorts bool
	WaitPort  time.Duration
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("arimusync", pflag.ContinueOnError)
	fs.SortFlags = false

	fs.String("config", "", "config file (yaml, toml or json)")
	fs.StringSlice("ports", nil, "serial ports to synchronize, in order")
	fs.String("outdir", "subjectdata", "local cache root")
	fs.Int("baud", protocol.DefaultBaudRate, "serial baud rate")
	fs.Duration("settle", 2*time.Second, "wait after opening a port")
	fs.Duration("retention", 10*24*time.Hour, "age after which cached recordings are deleted from the unit")
	fs.Duration("watchdog.tick", time.Second, "watchdog tick")
	fs.Int("watchdog.threshold", 10, "ticks without progress before a download is abandoned")
	fs.Duration("timeout", 2*time.Second, "reply timeout")
	fs.Int("retries", 5, "retries after a reply timeout")
	fs.Duration("maintenance.interval", 10*time.Minute, "time-sync period after the batch")
	fs.Int("maintenance.concurrency", 1, "ports visited at once by the time-sync loop")
	fs.String("journal", "", "sqlite journal path (disabled when empty)")
	fs.String("log.level", "info", "log level (trace, debug, info, warn, error)")
	fs.Bool("log.json", false, "log JSON lines instead of console text")
	fs.Bool("no-delete", false, "never delete files from units")
	fs.Int("simulate", 0, "synchronize N simulated units instead of serial ports")
	fs.Bool("list-ports", false, "list serial ports and exit")
	fs.Duration("wait-port", 0, "wait up to this long for each port to appear")
	return fs
}

// loadConfig parses args and merges them with the environment and the
// optional config file.
func loadConfig(args []string) (*options, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("ARIMU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// config keys use underscores where flags use dashes
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	opts := &options{
		Ports:                  v.GetStringSlice("ports"),
		OutDir:                 v.GetString("outdir"),
		Baud:                   v.GetInt("baud"),
		Settle:                 v.GetDuration("settle"),
		Journal:                v.GetString("journal"),
		NoDelete:               v.GetBool("no_delete"),
		Retention:              v.GetDuration("retention"),
		WatchdogTick:           v.GetDuration("watchdog.tick"),
		WatchdogThreshold:      v.GetInt("watchdog.threshold"),
		Timeout:                v.GetDuration("timeout"),
		Retries:                v.GetInt("retries"),
		MaintenanceInterval:    v.GetDuration("maintenance.interval"),
		MaintenanceConcurrency: v.GetInt("maintenance.concurrency"),
		LogLevel:               v.GetString("log.level"),
		LogJSON:                v.GetBool("log.json"),
		Simulate:               v.GetInt("simulate"),
		ListPorts:              v.GetBool("list_ports"),
		WaitPort:               v.GetDuration("wait_port"),
	}
	if opts.Simulate == 0 && len(opts.Ports) == 0 {
		opts.Ports = fs.Args()
	}

	return opts, opts.validate()
}

func (o *options) validate() error {
	if o.ListPorts {
		return nil
	}
	if o.Simulate < 0 {
		return fmt.Errorf("simulate must not be negative, got %d", o.Simulate)
	}
	if o.Simulate == 0 && len(o.Ports) == 0 {
		return fmt.Errorf("no ports given")
	}
	if o.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", o.Baud)
	}
	if o.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", o.Retention)
	}
	if o.WatchdogTick <= 0 || o.WatchdogThreshold <= 0 {
		return fmt.Errorf("watchdog needs a positive tick and threshold")
	}
	if o.MaintenanceInterval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %s", o.MaintenanceInterval)
	}
	return nil
}
