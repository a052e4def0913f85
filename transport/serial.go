package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"go.bug.st/serial"

	"github.com/moffa90/go-arimu/protocol"
)

// SerialConfig describes how a unit's serial port is opened.
type SerialConfig struct {
	// BaudRate defaults to protocol.DefaultBaudRate
	BaudRate int

	// ReadTimeout bounds each blocking read so Close is observed promptly
	ReadTimeout time.Duration

	// Settle is waited after opening; units reset when the port opens
	Settle time.Duration
}

// DefaultSerialConfig returns the 115200 8N1 configuration used by every unit.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:    protocol.DefaultBaudRate,
		ReadTimeout: 100 * time.Millisecond,
		Settle:      2 * time.Second,
	}
}

// OpenSerial opens the named port at 8N1.
//
// Example:
//
//	port, err := transport.OpenSerial("/dev/ttyACM0", transport.DefaultSerialConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
func OpenSerial(name string, cfg SerialConfig) (serial.Port, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = protocol.DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	if cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
		}
	}

	if cfg.Settle > 0 {
		time.Sleep(cfg.Settle)
		// discard boot chatter printed while the unit restarted
		_ = port.ResetInputBuffer()
	}

	return port, nil
}

// portLister is replaced in tests.
var portLister = serial.GetPortsList

// ListPorts returns the serial ports currently exposed by the host, sorted.
func ListPorts() ([]string, error) {
	ports, err := portLister()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// WaitForPort polls until name is listed or ctx is done.
func WaitForPort(ctx context.Context, name string, poll time.Duration) error {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		ports, err := ListPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			if p == name {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// IsPortNotFound reports whether err came from opening a port that does
// not exist. Unix opens fail with ENOENT rather than a serial.PortError.
func IsPortNotFound(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var pe *serial.PortError
	return errors.As(err, &pe) && pe.Code() == serial.PortNotFound
}
