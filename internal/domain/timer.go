// Package domain contains core domain types for the focus service.
package domain

import (
	"time"
)

// Storage keys for per-device timer state. The names are carried over from
// the mobile client so blobs written by older builds stay readable.
const (
	TimerRecordKey    = "petIsland_unifiedTimer"
	BlockingMarkerKey = "petIsland_blockingActive"
)

// CountupCapSeconds is the hard ceiling for open-ended (countup) sessions.
const CountupCapSeconds = 6 * 60 * 60

// TimerRecord is the persisted state of a device's focus timer. It is the
// only source of truth for whether a session is running; the service never
// keeps an in-memory countdown.
type TimerRecord struct {
	IsRunning bool `json:"isRunning"`

	// StartTime is milliseconds since epoch. Nil whenever IsRunning is false.
	StartTime *int64 `json:"startTime,omitempty"`

	SessionDurationSeconds int  `json:"sessionDurationSeconds"`
	IsCountup              bool `json:"isCountup"`

	// ElapsedTimeSeconds is authoritative only when the timer is not running.
	ElapsedTimeSeconds *int `json:"elapsedTimeSeconds,omitempty"`

	// RemainingTimeSeconds is set on countdown pause/expiry.
	RemainingTimeSeconds *int `json:"remainingTimeSeconds,omitempty"`
}

// StartedAt returns the session start time. ok is false when the record has
// no start timestamp.
func (r *TimerRecord) StartedAt() (time.Time, bool) {
	if r.StartTime == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*r.StartTime), true
}

// ElapsedSeconds returns the whole seconds elapsed since the session start,
// truncated. A negative result means the clock moved backward.
func (r *TimerRecord) ElapsedSeconds(now time.Time) int64 {
	start, ok := r.StartedAt()
	if !ok {
		return 0
	}
	return now.Sub(start).Milliseconds() / 1000
}

// Corrupted reports whether the record violates the running-implies-start
// invariant.
func (r *TimerRecord) Corrupted() bool {
	return r.IsRunning && r.StartTime == nil
}

// IntPtr is a convenience for populating the optional integer fields.
func IntPtr(v int) *int { return &v }

// Int64Ptr is a convenience for populating StartTime.
func Int64Ptr(v int64) *int64 { return &v }
