package shared

import (
	"context"
	"time"
)

// Clock abstracts wall-clock reads so expiry decisions can be tested with
// fixed times.
type Clock interface {
	Now() time.Time
}

// SleepFunc abstracts retry delays. Implementations must respect context
// cancellation.
type SleepFunc func(ctx context.Context, d time.Duration)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
