// Package timer implements the persisted-timer expiry guard: the decision
// logic that inspects a device's timer record after a restart or foreground
// resume, self-heals corrupted state, and requests a stop of device-level
// app blocking when a session has ended without the app noticing.
package timer

import (
	"time"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
)

// Reason labels why an evaluation requested action, for logging.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonOrphanedBlocking Reason = "orphaned_blocking"
	ReasonCorruptedState   Reason = "corrupted_state"
	ReasonCountdownExpired Reason = "countdown_expired"
	ReasonCountupExpired   Reason = "countup_expired"
)

// Outcome is the result of evaluating a timer record against the current
// wall clock.
type Outcome struct {
	// StopBlocking is true when device-level app blocking must be stopped.
	StopBlocking bool

	// ClearMarker is true when the blocking marker itself is stale and
	// should be removed regardless of stop delivery (the orphan case).
	ClearMarker bool

	// RecordChanged is true when Record differs from the input and must be
	// persisted.
	RecordChanged bool

	// Record is the updated record. Nil when the input was nil.
	Record *domain.TimerRecord

	Reason Reason
}

// Evaluate decides whether a persisted timer record represents an expired
// or orphaned session. It is pure: the input record is never mutated, and
// the decision depends only on the arguments.
//
// maxSession is the corrupted-state ceiling: any running record older than
// it (or started in the future) is reset rather than honored, so clock
// drift or tampering can never lock a device out indefinitely.
func Evaluate(rec *domain.TimerRecord, markerPresent bool, now time.Time, maxSession time.Duration) Outcome {
	// Absent state is not an error; there is simply nothing to expire.
	if rec == nil {
		return Outcome{}
	}

	out := Outcome{Record: rec}

	if !rec.IsRunning || rec.StartTime == nil {
		// No session is running. A present marker means blocking outlived
		// its session — an orphan left by a killed or crashed app.
		if markerPresent {
			out.StopBlocking = true
			out.ClearMarker = true
			out.Reason = ReasonOrphanedBlocking
		}
		return out
	}

	elapsed := rec.ElapsedSeconds(now)

	if elapsed < 0 || elapsed > int64(maxSession/time.Second) {
		updated := *rec
		updated.IsRunning = false
		updated.StartTime = nil
		out.Record = &updated
		out.RecordChanged = true
		out.StopBlocking = true
		out.Reason = ReasonCorruptedState
		return out
	}

	if rec.IsCountup {
		if elapsed >= domain.CountupCapSeconds {
			updated := *rec
			updated.IsRunning = false
			updated.StartTime = nil
			updated.ElapsedTimeSeconds = domain.IntPtr(domain.CountupCapSeconds)
			out.Record = &updated
			out.RecordChanged = true
			out.StopBlocking = true
			out.Reason = ReasonCountupExpired
		}
		return out
	}

	if elapsed >= int64(rec.SessionDurationSeconds) {
		updated := *rec
		updated.IsRunning = false
		updated.StartTime = nil
		updated.ElapsedTimeSeconds = domain.IntPtr(rec.SessionDurationSeconds)
		updated.RemainingTimeSeconds = domain.IntPtr(0)
		out.Record = &updated
		out.RecordChanged = true
		out.StopBlocking = true
		out.Reason = ReasonCountdownExpired
	}
	return out
}
