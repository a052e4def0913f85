package batch

import (
	"context"
	"time"
)

// watchdog cancels a download that stops making progress.
type watchdog struct {
	tick      time.Duration
	threshold int
	progress  chan struct{}
}

func newWatchdog(tick time.Duration, threshold int) *watchdog {
	return &watchdog{
		tick:      tick,
		threshold: threshold,
		progress:  make(chan struct{}, 1),
	}
}

// kick resets the counter.
func (w *watchdog) kick() {
	select {
	case w.progress <- struct{}{}:
	default:
	}
}

// run counts ticks until ctx ends, calling cancel with ErrStalled once the
// counter reaches the threshold.
func (w *watchdog) run(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.progress:
			count = 0
		case <-ticker.C:
			count++
			if count >= w.threshold {
				cancel(ErrStalled)
				return
			}
		}
	}
}
