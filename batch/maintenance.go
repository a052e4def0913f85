package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Maintain sets the clock of the unit on every port each
// MaintenanceInterval until ctx is cancelled. Up to MaintenanceConcurrency
// ports are visited at once; each port still sees one request at a time.
// Failures are reported and retried on the next pass.
func (s *Synchronizer) Maintain(ctx context.Context, ports []string) error {
	s.logInfo("maintenance started", "ports", len(ports), "interval", s.config.MaintenanceInterval.String())

	ticker := time.NewTicker(s.config.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logInfo("maintenance stopped")
			return nil
		case <-ticker.C:
		}

		s.MaintainOnce(ctx, ports)
	}
}

// MaintainOnce sets the clock of the unit on every port and returns the
// number of ports that succeeded.
func (s *Synchronizer) MaintainOnce(ctx context.Context, ports []string) int {
	var g errgroup.Group
	g.SetLimit(s.config.MaintenanceConcurrency)

	results := make([]bool, len(ports))
	for i, port := range ports {
		g.Go(func() error {
			results[i] = s.syncTime(ctx, port) == nil
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, r := range results {
		if r {
			ok++
		}
	}
	return ok
}

func (s *Synchronizer) syncTime(ctx context.Context, port string) error {
	sess, err := s.session(port)
	if err != nil {
		s.logError("maintenance open failed", "port", port, "error", err)
		s.report(Report{Port: port, State: AllDone, Kind: NewLine, Text: fmt.Sprintf("> %s: %v", port, err)})
		return err
	}
	defer sess.Close()

	id, err := sess.Connect(ctx)
	if err != nil {
		s.logError("maintenance connect failed", "port", port, "error", err)
		s.report(Report{Port: port, State: AllDone, Kind: NewLine, Text: fmt.Sprintf("> %s: %v", port, err)})
		return err
	}

	report, err := s.setTime(ctx, sess, id.Name)
	if err != nil {
		s.logError("maintenance time sync failed", "port", port, "error", err)
		s.report(Report{Port: port, State: AllDone, Kind: NewLine, Text: fmt.Sprintf("> %s: time not set: %v", port, err)})
		return err
	}

	s.report(Report{Port: port, State: AllDone, Kind: NewLine,
		Text: fmt.Sprintf("> %s time set to %s.", id.Name, report.DeviceTime.Format("2006-01-02 15:04:05.00"))})
	return nil
}
