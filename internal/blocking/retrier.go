package blocking

import (
	"context"
	"log/slog"
	"time"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/shared"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
)

// Retrier invokes the stop-blocking capability with bounded retries.
// Failing to stop blocking leaves the user locked out of their device, so
// transient delivery failures are retried; exhaustion is silent and the
// marker stays in place so a later guard cycle can try again.
type Retrier struct {
	repo        store.Repository
	stopper     Stopper
	maxAttempts int
	baseDelay   time.Duration
	attemptTTL  time.Duration
	sleep       shared.SleepFunc

	// onDone observes completion of a retry sequence. Production callers
	// never block on it; it exists for tests.
	onDone func(deviceID string, stopped bool)
}

// RetrierOption customizes a Retrier.
type RetrierOption func(*Retrier)

// WithSleep replaces the inter-attempt delay implementation.
func WithSleep(sleep shared.SleepFunc) RetrierOption {
	return func(r *Retrier) { r.sleep = sleep }
}

// WithDoneHook registers a completion observer.
func WithDoneHook(hook func(deviceID string, stopped bool)) RetrierOption {
	return func(r *Retrier) { r.onDone = hook }
}

// NewRetrier creates a Retrier. maxAttempts must be >= 1; baseDelay is the
// wait after the first failed attempt and doubles per attempt.
func NewRetrier(repo store.Repository, stopper Stopper, maxAttempts int, baseDelay, attemptTTL time.Duration, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		repo:        repo,
		stopper:     stopper,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		attemptTTL:  attemptTTL,
		sleep:       shared.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StopWithRetry attempts to stop app blocking for the device, retrying with
// exponential backoff. On success the blocking marker is cleared. All
// failures are swallowed: the guard must never fail a startup or foreground
// check over a blocking-control error.
func (r *Retrier) StopWithRetry(ctx context.Context, deviceID string) {
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		err := r.stopOnce(ctx, deviceID)
		if err == nil {
			if clearErr := r.repo.ClearBlockingMarker(ctx, deviceID); clearErr != nil {
				slog.Warn("Failed to clear blocking marker after stop",
					"device_id", deviceID,
					"error", clearErr)
			}
			slog.Info("App blocking stopped", "device_id", deviceID, "attempt", attempt+1)
			r.done(deviceID, true)
			return
		}

		slog.Warn("Stop blocking attempt failed",
			"device_id", deviceID,
			"attempt", attempt+1,
			"error", err)

		if attempt < r.maxAttempts-1 {
			delay := r.baseDelay * time.Duration(1<<attempt) // 500ms, 1s, ...
			r.sleep(ctx, delay)
			if ctx.Err() != nil {
				r.done(deviceID, false)
				return
			}
		}
	}

	// Marker is left in place; the next startup/foreground/sweep cycle
	// retries from scratch.
	slog.Warn("Giving up on stop blocking, marker retained",
		"device_id", deviceID,
		"attempts", r.maxAttempts)
	r.done(deviceID, false)
}

// StopAsync runs StopWithRetry on a detached goroutine. The triggering
// check never waits on delivery.
func (r *Retrier) StopAsync(deviceID string) {
	go r.StopWithRetry(context.Background(), deviceID)
}

func (r *Retrier) stopOnce(ctx context.Context, deviceID string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTTL)
	defer cancel()
	return r.stopper.StopAppBlocking(attemptCtx, deviceID)
}

func (r *Retrier) done(deviceID string, stopped bool) {
	if r.onDone != nil {
		r.onDone(deviceID, stopped)
	}
}
