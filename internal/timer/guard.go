package timer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/blocking"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/shared"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
)

// Guard runs the expiry check at the three trigger points: service startup
// (once), each device foreground-resume event, and the periodic sweep. All
// failure paths degrade to "do nothing this cycle" — the guard never
// surfaces an error to its callers.
type Guard struct {
	repo       store.Repository
	retrier    *blocking.Retrier
	maxSession time.Duration
	clock      shared.Clock

	startupDone sync.Once

	// checkLocks serializes checks per device so a foreground event firing
	// immediately after startup cannot race the startup sweep over the
	// same record.
	checkLocks sync.Map
}

// NewGuard creates an expiry guard.
func NewGuard(repo store.Repository, retrier *blocking.Retrier, maxSession time.Duration, clock shared.Clock) *Guard {
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &Guard{
		repo:       repo,
		retrier:    retrier,
		maxSession: maxSession,
		clock:      clock,
	}
}

// CheckOnStartup sweeps all devices with persisted timer state. Repeated
// calls are no-ops; only the first invocation runs.
func (g *Guard) CheckOnStartup(ctx context.Context) {
	g.startupDone.Do(func() {
		slog.Info("Running startup expiry check")
		g.Sweep(ctx)
	})
}

// Sweep evaluates every device holding a timer record or blocking marker.
func (g *Guard) Sweep(ctx context.Context) {
	deviceIDs, err := g.repo.ListDevicesWithTimerState(ctx)
	if err != nil {
		slog.Error("Expiry sweep failed to list devices", "error", err)
		return
	}

	for _, deviceID := range deviceIDs {
		if ctx.Err() != nil {
			return
		}
		g.CheckDevice(ctx, deviceID)
	}
}

// CheckDevice evaluates a single device's persisted timer state and, when
// required, kicks off the asynchronous stop-blocking sequence. It is safe
// to call from any trigger; concurrent checks for the same device are
// coalesced into one.
func (g *Guard) CheckDevice(ctx context.Context, deviceID string) {
	lock, _ := g.checkLocks.LoadOrStore(deviceID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Debug("Expiry check already in progress", "device_id", deviceID)
		return
	}
	defer func() {
		mutex.Unlock()
		g.checkLocks.Delete(deviceID)
	}()

	rec, err := g.repo.GetTimerRecord(ctx, deviceID)
	if err != nil && !errdefs.IsNotFound(err) {
		// Unreadable state is treated as no state; never fatal.
		slog.Warn("Failed to read timer record", "device_id", deviceID, "error", err)
		rec = nil
	}

	markerPresent, err := g.repo.BlockingMarkerPresent(ctx, deviceID)
	if err != nil {
		slog.Warn("Failed to read blocking marker", "device_id", deviceID, "error", err)
		markerPresent = false
	}

	out := Evaluate(rec, markerPresent, g.clock.Now(), g.maxSession)
	if out.Reason != ReasonNone {
		slog.Info("Expiry check requires action",
			"device_id", deviceID,
			"reason", out.Reason)
	}

	if out.RecordChanged {
		if err := g.repo.PutTimerRecord(ctx, deviceID, out.Record); err != nil {
			// Best-effort: stale state for one more cycle beats crashing
			// the check.
			slog.Warn("Failed to persist healed timer record",
				"device_id", deviceID,
				"error", err)
		}
	}

	if out.ClearMarker {
		if err := g.repo.ClearBlockingMarker(ctx, deviceID); err != nil {
			slog.Warn("Failed to clear orphaned blocking marker",
				"device_id", deviceID,
				"error", err)
		}
	}

	if out.StopBlocking {
		g.retrier.StopAsync(deviceID)
	}
}
