package blocking

import (
	"context"
	"log/slog"
	"time"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
)

// MarkBlockingActive records that device-level app blocking is engaged.
// Called by the timer start path. Storage errors are logged and swallowed;
// a missing marker only delays orphan detection by one cycle.
func MarkBlockingActive(ctx context.Context, repo store.Repository, deviceID string) {
	if err := repo.SetBlockingMarker(ctx, deviceID, time.Now()); err != nil {
		slog.Warn("Failed to set blocking marker", "device_id", deviceID, "error", err)
	}
}

// MarkBlockingStopped clears the blocking marker. Called by the timer
// stop/complete paths. Fail-silent like MarkBlockingActive.
func MarkBlockingStopped(ctx context.Context, repo store.Repository, deviceID string) {
	if err := repo.ClearBlockingMarker(ctx, deviceID); err != nil {
		slog.Warn("Failed to clear blocking marker", "device_id", deviceID, "error", err)
	}
}
