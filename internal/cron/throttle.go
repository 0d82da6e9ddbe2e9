package cron

import (
	"context"
	"time"
)

// Throttle lets Batch items through, then pauses for Delay before the next
// batch. A Throttle is used by a single task run and is not safe for
// concurrent use.
type Throttle struct {
	Batch int
	Delay time.Duration

	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error

	n int
}

func NewThrottle(batch int, delay time.Duration) *Throttle {
	return &Throttle{Batch: batch, Delay: delay, Sleep: sleepContext}
}

// Wait must be called before each item.
func (t *Throttle) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Batch > 0 && t.n >= t.Batch {
		sleep := t.Sleep
		if sleep == nil {
			sleep = sleepContext
		}
		if err := sleep(ctx, t.Delay); err != nil {
			return err
		}
		t.n = 0
	}
	t.n++
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
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

// IsWithin reports whether the whole days between last and now, rounded up,
// fall inside [minDays, maxDays].
func IsWithin(minDays, maxDays int, last, now time.Time) bool {
	diff := now.Sub(last)
	if diff < 0 {
		diff = -diff
	}
	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) != 0 {
		days++
	}
	return days >= minDays && days <= maxDays
}
