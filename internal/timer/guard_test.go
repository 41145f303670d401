package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/blocking"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type stubStopper struct {
	calls atomic.Int32
}

func (s *stubStopper) StopAppBlocking(_ context.Context, _ string) error {
	s.calls.Add(1)
	return nil
}

type guardFixture struct {
	repo    *store.MemoryStore
	guard   *Guard
	stopper *stubStopper
	done    chan bool
}

func newGuardFixture(t *testing.T, now time.Time) *guardFixture {
	t.Helper()
	f := &guardFixture{
		repo:    store.NewMemory(),
		stopper: &stubStopper{},
		done:    make(chan bool, 8),
	}
	retrier := blocking.NewRetrier(f.repo, f.stopper, 3, time.Millisecond, time.Second,
		blocking.WithSleep(func(_ context.Context, _ time.Duration) {}),
		blocking.WithDoneHook(func(_ string, stopped bool) { f.done <- stopped }),
	)
	f.guard = NewGuard(f.repo, retrier, testMaxSession, fixedClock{now: now})
	return f
}

func (f *guardFixture) waitStop(t *testing.T) bool {
	t.Helper()
	select {
	case stopped := <-f.done:
		return stopped
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for stop-blocking sequence")
		return false
	}
}

func TestCheckDeviceExpiredCountdown(t *testing.T) {
	now := time.Now()
	f := newGuardFixture(t, now)
	ctx := context.Background()

	rec := runningRecord(1500*time.Second, 1500, false, now)
	if err := f.repo.PutTimerRecord(ctx, "dev-a", rec); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	if err := f.repo.SetBlockingMarker(ctx, "dev-a", now); err != nil {
		t.Fatalf("Failed to seed marker: %v", err)
	}

	f.guard.CheckDevice(ctx, "dev-a")

	if !f.waitStop(t) {
		t.Error("Expected stop-blocking to succeed")
	}
	if got := f.stopper.calls.Load(); got != 1 {
		t.Errorf("Expected 1 stop call, got %d", got)
	}

	healed, err := f.repo.GetTimerRecord(ctx, "dev-a")
	if err != nil {
		t.Fatalf("Failed to read healed record: %v", err)
	}
	if healed.IsRunning || healed.StartTime != nil {
		t.Errorf("Expected healed record, got %+v", healed)
	}

	present, err := f.repo.BlockingMarkerPresent(ctx, "dev-a")
	if err != nil {
		t.Fatalf("Failed to read marker: %v", err)
	}
	if present {
		t.Error("Expected marker cleared after successful stop")
	}
}

func TestCheckDeviceOrphanedMarker(t *testing.T) {
	now := time.Now()
	f := newGuardFixture(t, now)
	ctx := context.Background()

	if err := f.repo.PutTimerRecord(ctx, "dev-a", &domain.TimerRecord{IsRunning: false}); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	if err := f.repo.SetBlockingMarker(ctx, "dev-a", now); err != nil {
		t.Fatalf("Failed to seed marker: %v", err)
	}

	f.guard.CheckDevice(ctx, "dev-a")

	// Orphan handling clears the marker synchronously, before the stop
	// command is even delivered.
	present, err := f.repo.BlockingMarkerPresent(ctx, "dev-a")
	if err != nil {
		t.Fatalf("Failed to read marker: %v", err)
	}
	if present {
		t.Error("Expected orphaned marker cleared")
	}

	f.waitStop(t)
	if got := f.stopper.calls.Load(); got != 1 {
		t.Errorf("Expected 1 stop call, got %d", got)
	}
}

func TestCheckDeviceUnparsableRecord(t *testing.T) {
	now := time.Now()
	f := newGuardFixture(t, now)
	ctx := context.Background()

	f.repo.PutRawTimerRecord("dev-a", "{not json")

	f.guard.CheckDevice(ctx, "dev-a")

	if got := f.stopper.calls.Load(); got != 0 {
		t.Errorf("Expected no stop calls for unparsable state, got %d", got)
	}
	if _, err := f.repo.GetTimerRecord(ctx, "dev-a"); !errdefs.IsNotFound(err) {
		t.Errorf("Expected unparsable record to stay not-found, got %v", err)
	}
}

func TestCheckDeviceRunningSessionUntouched(t *testing.T) {
	now := time.Now()
	f := newGuardFixture(t, now)
	ctx := context.Background()

	rec := runningRecord(100*time.Second, 1500, false, now)
	if err := f.repo.PutTimerRecord(ctx, "dev-a", rec); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	if err := f.repo.SetBlockingMarker(ctx, "dev-a", now); err != nil {
		t.Fatalf("Failed to seed marker: %v", err)
	}

	f.guard.CheckDevice(ctx, "dev-a")

	if got := f.stopper.calls.Load(); got != 0 {
		t.Errorf("Expected no stop calls mid-session, got %d", got)
	}
	present, err := f.repo.BlockingMarkerPresent(ctx, "dev-a")
	if err != nil {
		t.Fatalf("Failed to read marker: %v", err)
	}
	if !present {
		t.Error("Expected marker retained while session is running")
	}
}

func TestCheckOnStartupRunsOnce(t *testing.T) {
	now := time.Now()
	f := newGuardFixture(t, now)
	ctx := context.Background()

	if err := f.repo.PutTimerRecord(ctx, "dev-a", &domain.TimerRecord{IsRunning: false}); err != nil {
		t.Fatalf("Failed to seed record: %v", err)
	}
	if err := f.repo.SetBlockingMarker(ctx, "dev-a", now); err != nil {
		t.Fatalf("Failed to seed marker: %v", err)
	}

	f.guard.CheckOnStartup(ctx)
	f.waitStop(t)

	present, err := f.repo.BlockingMarkerPresent(ctx, "dev-a")
	if err != nil {
		t.Fatalf("Failed to read marker: %v", err)
	}
	if present {
		t.Error("Expected startup check to clear the orphaned marker")
	}

	// Re-arm the orphan; a second startup call must be a no-op, while an
	// explicit sweep still picks it up.
	if err := f.repo.SetBlockingMarker(ctx, "dev-a", now); err != nil {
		t.Fatalf("Failed to re-arm marker: %v", err)
	}

	f.guard.CheckOnStartup(ctx)
	present, err = f.repo.BlockingMarkerPresent(ctx, "dev-a")
	if err != nil {
		t.Fatalf("Failed to read marker: %v", err)
	}
	if !present {
		t.Error("Expected second startup call to be a no-op")
	}

	f.guard.Sweep(ctx)
	f.waitStop(t)
	present, err = f.repo.BlockingMarkerPresent(ctx, "dev-a")
	if err != nil {
		t.Fatalf("Failed to read marker: %v", err)
	}
	if present {
		t.Error("Expected sweep to clear the re-armed marker")
	}
}
