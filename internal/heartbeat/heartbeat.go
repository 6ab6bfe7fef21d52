// Package heartbeat runs the periodic heartbeat report loop.
package heartbeat

import (
	"context"
	"errors"
	"time"
)

// ErrInterval is returned for a non-positive interval.
var ErrInterval = errors.New("heartbeat: interval must be positive")

// Beat sends one heartbeat. now is the time the iteration started.
type Beat func(ctx context.Context, now time.Time)

// Run calls beat, waits interval, and repeats until ctx is cancelled.
// The wait starts after beat returns, so a slow delivery stretches the
// period instead of overlapping the next beat. Cancellation is noticed
// at the top of each iteration and during the wait; Run then returns nil.
func Run(ctx context.Context, interval time.Duration, beat Beat) error {
	if interval <= 0 {
		return ErrInterval
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		beat(ctx, time.Now())

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}
