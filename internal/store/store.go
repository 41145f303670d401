// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
)

// Repository defines the interface for persisting device, timer, and
// gamification data.
//
// Lookups for rows that do not exist return an error satisfying
// errdefs.IsNotFound rather than a nil result.
type Repository interface {
	// GetDevice retrieves a device by its ID.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// UpsertDevice creates or updates a device record.
	UpsertDevice(ctx context.Context, device *domain.Device) error

	// UpdateLastSeen updates the last_seen_at timestamp for a device.
	UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error

	// GetTimerRecord retrieves the persisted timer blob for a device.
	// A missing or unparsable blob returns a not-found error; callers on
	// guard paths treat that as "no persisted state".
	GetTimerRecord(ctx context.Context, deviceID string) (*domain.TimerRecord, error)

	// PutTimerRecord persists the timer blob for a device.
	PutTimerRecord(ctx context.Context, deviceID string, rec *domain.TimerRecord) error

	// DeleteTimerRecord removes the timer blob for a device.
	DeleteTimerRecord(ctx context.Context, deviceID string) error

	// BlockingMarkerPresent reports whether the device has an active
	// blocking marker. Only presence matters; the stored timestamp is not
	// interpreted.
	BlockingMarkerPresent(ctx context.Context, deviceID string) (bool, error)

	// SetBlockingMarker writes the blocking marker for a device.
	SetBlockingMarker(ctx context.Context, deviceID string, at time.Time) error

	// ClearBlockingMarker removes the blocking marker for a device.
	// Clearing an absent marker is not an error.
	ClearBlockingMarker(ctx context.Context, deviceID string) error

	// InsertSession records a finished focus session.
	InsertSession(ctx context.Context, session *domain.FocusSession) error

	// ListSessions returns the most recent sessions for a device,
	// newest first.
	ListSessions(ctx context.Context, deviceID string, limit int) ([]*domain.FocusSession, error)

	// DailyTotals aggregates per-day session counts and focus time over the
	// last `days` calendar days.
	DailyTotals(ctx context.Context, deviceID string, days int) ([]domain.DailyTotal, error)

	// GetProgress retrieves gamification state for a device.
	GetProgress(ctx context.Context, deviceID string) (*domain.Progress, error)

	// UpsertProgress creates or updates gamification state.
	UpsertProgress(ctx context.Context, progress *domain.Progress) error

	// ListDevicesWithTimerState returns IDs of devices holding a timer
	// record or blocking marker, for the guard sweep.
	ListDevicesWithTimerState(ctx context.Context) ([]string, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
