package timer

import (
	"testing"
	"time"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
)

const testMaxSession = 24 * time.Hour

func runningRecord(startedAgo time.Duration, durationSeconds int, countup bool, now time.Time) *domain.TimerRecord {
	return &domain.TimerRecord{
		IsRunning:              true,
		StartTime:              domain.Int64Ptr(now.Add(-startedAgo).UnixMilli()),
		SessionDurationSeconds: durationSeconds,
		IsCountup:              countup,
	}
}

func TestEvaluateNilRecord(t *testing.T) {
	out := Evaluate(nil, true, time.Now(), testMaxSession)
	if out.StopBlocking || out.ClearMarker || out.RecordChanged {
		t.Errorf("Expected no action for nil record, got %+v", out)
	}
}

func TestEvaluateIdleRecord(t *testing.T) {
	rec := &domain.TimerRecord{IsRunning: false}

	out := Evaluate(rec, false, time.Now(), testMaxSession)
	if out.StopBlocking || out.ClearMarker || out.RecordChanged {
		t.Errorf("Expected no action for idle record without marker, got %+v", out)
	}
	if out.Record != rec {
		t.Error("Expected unchanged record to be returned as-is")
	}
}

func TestEvaluateOrphanedBlocking(t *testing.T) {
	rec := &domain.TimerRecord{IsRunning: false}

	out := Evaluate(rec, true, time.Now(), testMaxSession)
	if !out.StopBlocking {
		t.Error("Expected stop blocking for orphaned marker")
	}
	if !out.ClearMarker {
		t.Error("Expected marker clear for orphaned marker")
	}
	if out.RecordChanged {
		t.Error("Orphan handling must not touch the record")
	}
	if out.Reason != ReasonOrphanedBlocking {
		t.Errorf("Expected reason %q, got %q", ReasonOrphanedBlocking, out.Reason)
	}
}

func TestEvaluateCountdownBoundary(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		elapsed    time.Duration
		wantExpiry bool
	}{
		{"one second short", 1499 * time.Second, false},
		{"exactly at duration", 1500 * time.Second, true},
		{"past duration", 2000 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := runningRecord(tt.elapsed, 1500, false, now)
			out := Evaluate(rec, false, now, testMaxSession)

			if out.StopBlocking != tt.wantExpiry {
				t.Errorf("StopBlocking = %v, want %v", out.StopBlocking, tt.wantExpiry)
			}
			if !tt.wantExpiry {
				if out.RecordChanged {
					t.Error("Record must not change before expiry")
				}
				return
			}

			if out.Reason != ReasonCountdownExpired {
				t.Errorf("Expected reason %q, got %q", ReasonCountdownExpired, out.Reason)
			}
			if out.Record.IsRunning {
				t.Error("Expected IsRunning cleared on expiry")
			}
			if out.Record.StartTime != nil {
				t.Error("Expected StartTime cleared on expiry")
			}
			if out.Record.RemainingTimeSeconds == nil || *out.Record.RemainingTimeSeconds != 0 {
				t.Errorf("Expected remaining time 0, got %v", out.Record.RemainingTimeSeconds)
			}
		})
	}
}

func TestEvaluateCountupBoundary(t *testing.T) {
	now := time.Now()

	rec := runningRecord(21599*time.Second, 0, true, now)
	out := Evaluate(rec, false, now, testMaxSession)
	if out.StopBlocking || out.RecordChanged {
		t.Errorf("Expected no action one second below the cap, got %+v", out)
	}

	rec = runningRecord(21600*time.Second, 0, true, now)
	out = Evaluate(rec, false, now, testMaxSession)
	if !out.StopBlocking || !out.RecordChanged {
		t.Fatalf("Expected expiry at the cap, got %+v", out)
	}
	if out.Reason != ReasonCountupExpired {
		t.Errorf("Expected reason %q, got %q", ReasonCountupExpired, out.Reason)
	}
	if out.Record.ElapsedTimeSeconds == nil || *out.Record.ElapsedTimeSeconds != domain.CountupCapSeconds {
		t.Errorf("Expected elapsed pinned to %d, got %v", domain.CountupCapSeconds, out.Record.ElapsedTimeSeconds)
	}
	if out.Record.IsRunning || out.Record.StartTime != nil {
		t.Error("Expected running state cleared at the cap")
	}
}

func TestEvaluateCorruptedState(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		rec  *domain.TimerRecord
	}{
		{
			// Clock moved backward: start time is in the future.
			name: "negative elapsed",
			rec: &domain.TimerRecord{
				IsRunning:              true,
				StartTime:              domain.Int64Ptr(now.Add(5 * time.Second).UnixMilli()),
				SessionDurationSeconds: 1500,
			},
		},
		{
			name: "elapsed beyond ceiling",
			rec:  runningRecord(30*24*time.Hour, 1500, false, now),
		},
		{
			name: "elapsed beyond ceiling countup",
			rec:  runningRecord(48*time.Hour, 0, true, now),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(tt.rec, false, now, testMaxSession)
			if !out.StopBlocking {
				t.Error("Expected stop blocking for corrupted state")
			}
			if out.Reason != ReasonCorruptedState {
				t.Errorf("Expected reason %q, got %q", ReasonCorruptedState, out.Reason)
			}
			if !out.RecordChanged {
				t.Fatal("Expected record reset for corrupted state")
			}
			if out.Record.IsRunning || out.Record.StartTime != nil {
				t.Error("Expected running state cleared")
			}
		})
	}
}

func TestEvaluateDoesNotMutateInput(t *testing.T) {
	now := time.Now()
	rec := runningRecord(1500*time.Second, 1500, false, now)

	out := Evaluate(rec, false, now, testMaxSession)
	if !out.RecordChanged {
		t.Fatal("Expected expiry")
	}
	if !rec.IsRunning || rec.StartTime == nil {
		t.Error("Evaluate mutated its input record")
	}
}

func TestEvaluateIdempotentOnClearedRecord(t *testing.T) {
	now := time.Now()
	rec := runningRecord(1500*time.Second, 1500, false, now)

	first := Evaluate(rec, false, now, testMaxSession)
	if !first.StopBlocking {
		t.Fatal("Expected expiry on first evaluation")
	}

	// Re-evaluating the already-cleared record reports no action, twice.
	for i := 0; i < 2; i++ {
		again := Evaluate(first.Record, false, now, testMaxSession)
		if again.StopBlocking || again.RecordChanged || again.ClearMarker {
			t.Errorf("Evaluation %d on cleared record expected no action, got %+v", i+1, again)
		}
	}
}
