package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrStalled indicates that a download made no progress for the
	// watchdog threshold.
	ErrStalled = errors.New("transfer stalled")

	// ErrSizeMismatch indicates that the bytes received differ from the size
	// announced in the file header.
	ErrSizeMismatch = errors.New("size mismatch")
)

// SizeMismatchError records a short or long transfer. It matches
// ErrSizeMismatch.
type SizeMismatchError struct {
	File     string
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch for %s: header announced %d bytes, received %d", e.File, e.Expected, e.Actual)
}

func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}
