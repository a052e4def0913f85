package session

import (
	"context"
	"fmt"

	"github.com/moffa90/go-arimu/protocol"
)

// StartStream starts IMU telemetry and calls fn for every sample until
// StopStream or Close. fn runs on the connection's reader goroutine and must
// return quickly.
func (s *Session) StartStream(ctx context.Context, fn func(protocol.Sample)) error {
	unsubscribe := s.link.Subscribe(protocol.CmdStartStream, func(reply *protocol.Reply) {
		sample, err := protocol.ParseStreamSample(reply.Data)
		if err != nil {
			s.logDebug("dropping stream frame", "port", s.port, "error", err)
			return
		}
		fn(*sample)
	})

	if _, err := s.request(ctx, false, protocol.CmdStartStream); err != nil {
		unsubscribe()
		return fmt.Errorf("start stream: %w", err)
	}

	// Subscribe replaces any earlier handler for the command, so an older
	// unsubscribe func is discarded rather than called.
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.logInfo("stream started", "port", s.port)
	return nil
}

// StopStream stops telemetry. Samples already in flight may still be
// delivered until the unit acknowledges.
func (s *Session) StopStream(ctx context.Context) error {
	_, err := s.request(ctx, false, protocol.CmdStopStream)

	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}

	if err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}
	s.logInfo("stream stopped", "port", s.port)
	return nil
}
