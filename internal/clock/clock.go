package clock

import (
	"context"
	"time"
)

// Clock provides time abstraction for deterministic tests.
// Params: none.
// Returns: current wall-clock time and cancellable sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock reads current UTC time from system clock.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until ctx is done.
// Params: context and sleep duration.
// Returns: context error when interrupted.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
