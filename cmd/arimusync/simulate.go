package main

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/moffa90/go-arimu/simulator"
)

// simulatedFleet is a set of in-process units addressed by port name.
type simulatedFleet map[string]*simulator.Unit

// newSimulatedFleet builds n units. Each holds one fresh recording, one
// past retention and a file the synchronizer ignores.
func newSimulatedFleet(n int, now time.Time, retention time.Duration) (simulatedFleet, []string) {
	fleet := make(simulatedFleet, n)
	ports := make([]string, 0, n)

	for i := 1; i <= n; i++ {
		port := fmt.Sprintf("sim%d", i)
		subject := fmt.Sprintf("S%02d", i)
		unit := simulator.New(fmt.Sprintf("ARIMU-SIM-%02d", i), simulator.WithSubject(subject))

		fresh := fmt.Sprintf("%s_data_%d.bin", subject, now.Add(-time.Hour).Unix())
		stale := fmt.Sprintf("%s_data_%d.bin", subject, now.Add(-retention-time.Hour).Unix())
		unit.AddFile(fresh, bytes.Repeat([]byte{byte(i)}, 4096*i))
		unit.AddFile(stale, bytes.Repeat([]byte{byte(i)}, 512))
		unit.AddFile("config.txt", []byte("rate=100\n"))

		fleet[port] = unit
		ports = append(ports, port)
	}
	return fleet, ports
}

func (f simulatedFleet) open(port string) (io.ReadWriteCloser, error) {
	unit, ok := f[port]
	if !ok {
		return nil, fmt.Errorf("open %s: no such simulated unit", port)
	}
	return unit.Port(), nil
}

func (f simulatedFleet) Close() error {
	for _, unit := range f {
		unit.Close()
	}
	return nil
}
