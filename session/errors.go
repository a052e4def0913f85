package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-arimu/protocol"
)

// ErrNoFile indicates that the requested file is not on the unit.
var ErrNoFile = errors.New("file not found on device")

// IdentityError indicates that the device on a port did not identify as a unit.
type IdentityError struct {
	Port   string
	Reply  string
	Marker string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s is not a unit: ping reply %q does not contain %q", e.Port, e.Reply, e.Marker)
}

// ModeSwitchError indicates that the unit did not enter the requested state.
type ModeSwitchError struct {
	Want protocol.State
	Got  protocol.State
}

func (e *ModeSwitchError) Error() string {
	return fmt.Sprintf("mode switch failed: want %s, device reports %s", e.Want, e.Got)
}

// ClockSkewError indicates that the time echoed by SETTIME is too far from
// the time sent.
type ClockSkewError struct {
	Sent   time.Time
	Echoed time.Time
	Max    time.Duration
}

func (e *ClockSkewError) Error() string {
	return fmt.Sprintf("device clock not set: echoed %s, sent %s (skew %s exceeds %s)",
		e.Echoed.Format(time.RFC3339Nano), e.Sent.Format(time.RFC3339Nano), e.Echoed.Sub(e.Sent), e.Max)
}
