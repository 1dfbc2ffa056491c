package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// SleepContext waits d on clk, returning early with the context's error if ctx is done first.
// A non-positive d returns immediately.
func SleepContext(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MillisSince returns the whole milliseconds elapsed on clk since start, clamped at zero.
func MillisSince(clk clock.Clock, start time.Time) uint64 {
	elapsed := clk.Since(start)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / time.Millisecond)
}
