// Command arimusync downloads recordings from ARIMU units docked on serial
// ports, deletes expired ones from the units and then keeps the unit clocks
// set until interrupted.
//
// Usage:
//
//	arimusync [flags] [port ...]
//	arimusync --config arimu.yaml
//	arimusync --simulate 2 --retention 48h
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/moffa90/go-arimu/batch"
	"github.com/moffa90/go-arimu/journal"
	"github.com/moffa90/go-arimu/session"
	"github.com/moffa90/go-arimu/transport"
)

func main() {
	opts, err := loadConfig(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "arimusync: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "arimusync: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	logger, err := newLogger(stderr, opts.LogLevel, opts.LogJSON)
	if err != nil {
		return err
	}

	if opts.ListPorts {
		return listPorts(stdout)
	}

	ports := opts.Ports
	opener := serialOpener(ctx, opts, logger)
	if opts.Simulate > 0 {
		fleet, simPorts := newSimulatedFleet(opts.Simulate, time.Now(), opts.Retention)
		defer fleet.Close()
		ports, opener = simPorts, fleet.open
	}

	out := &printer{w: stdout}
	syncOpts := []batch.Option{
		batch.WithOutDir(opts.OutDir),
		batch.WithRetention(opts.Retention),
		batch.WithWatchdog(opts.WatchdogTick, opts.WatchdogThreshold),
		batch.WithMaintenance(opts.MaintenanceInterval, opts.MaintenanceConcurrency),
		batch.WithDoNotDelete(opts.NoDelete),
		batch.WithOpener(opener),
		batch.WithLogger(logger),
		batch.WithReportCallback(out.report),
		batch.WithSessionOptions(
			session.WithTimeout(opts.Timeout),
			session.WithRetries(opts.Retries),
		),
	}

	if opts.Journal != "" {
		store, err := journal.Open(opts.Journal)
		if err != nil {
			return err
		}
		defer store.Close()
		syncOpts = append(syncOpts, batch.WithRecorder(store))
	}

	logger.Info("starting batch", "ports", len(ports), "outdir", opts.OutDir)
	result, err := batch.New(syncOpts...).Run(ctx, ports)
	out.finish()
	if result != nil {
		summarize(stdout, result)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// serialOpener opens ports with the configured line settings, first waiting
// for the port to appear when opts.WaitPort is set.
func serialOpener(ctx context.Context, opts *options, logger *zeroLogger) batch.Opener {
	cfg := transport.DefaultSerialConfig()
	cfg.BaudRate = opts.Baud
	cfg.Settle = opts.Settle

	return func(port string) (io.ReadWriteCloser, error) {
		if opts.WaitPort > 0 {
			logger.Debug("waiting for port", "port", port, "timeout", opts.WaitPort)
			wctx, cancel := context.WithTimeout(ctx, opts.WaitPort)
			defer cancel()
			if err := transport.WaitForPort(wctx, port, 250*time.Millisecond); err != nil {
				return nil, err
			}
		}
		rw, err := transport.OpenSerial(port, cfg)
		if transport.IsPortNotFound(err) {
			return nil, fmt.Errorf("port %s not found (see --list-ports): %w", port, err)
		}
		return rw, err
	}
}

func listPorts(w io.Writer) error {
	ports, err := transport.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(w, p)
	}
	return nil
}

func summarize(w io.Writer, result *batch.Result) {
	for _, d := range result.Devices {
		status := "ok"
		if d.Err != nil {
			status = d.Err.Error()
		}
		fmt.Fprintf(w, "%-16s %-14s got %d, not got %d, cached %d, deleted %d: %s\n",
			d.Port, d.Device, len(d.Got), len(d.NotGot), len(d.Cached), len(d.Deleted), status)
	}
}

// printer renders status reports on a terminal.
type printer struct {
	w     io.Writer
	mu    sync.Mutex
	lines int
}

func (p *printer) report(r batch.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch r.Kind {
	case batch.Append:
		fmt.Fprint(p.w, r.Text)
	case batch.Overwrite:
		fmt.Fprint(p.w, "\r\033[K"+r.Text)
	default:
		if p.lines > 0 {
			fmt.Fprintln(p.w)
		}
		fmt.Fprint(p.w, r.Text)
	}
	p.lines++
}

// finish terminates the last line.
func (p *printer) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lines > 0 {
		fmt.Fprintln(p.w)
		p.lines = 0
	}
}
