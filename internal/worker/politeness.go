package worker

import (
	"context"
	"time"
)

// Pauser waits between requests of one session.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser sleeps for the delay or until ctx is done.
type TimerPauser struct{}

// Pause blocks for delay; non-positive delays return immediately.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
