package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-arimu/protocol"
)

var (
	// ErrTimeout matches every TimeoutError.
	ErrTimeout = errors.New("timed out waiting for reply")

	// ErrRequestPending is returned when a request is issued while another
	// is still outstanding on the same connection.
	ErrRequestPending = errors.New("another request is outstanding")

	// ErrClosed is returned after the connection has been closed or the
	// reader has stopped.
	ErrClosed = errors.New("connection closed")
)

// TimeoutError indicates that no matching reply arrived in time.
type TimeoutError struct {
	Command  protocol.Command
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply within %s after %d attempt(s)", e.Command, e.Timeout, e.Attempts)
}

// Is makes errors.Is(err, ErrTimeout) true for any TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsTimeout reports whether err is or wraps a reply timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
