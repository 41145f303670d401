package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/blocking"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/identity"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/rewards"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// timerLocks serializes timer mutations per device. The persisted record is
// read, computed, and written back in one critical section to keep the
// lost-update window closed against concurrent requests.
var timerLocks sync.Map

// TimerHandler handles timer lifecycle endpoints.
type TimerHandler struct {
	*Handler
}

// NewTimerHandler creates a new timer handler.
func NewTimerHandler(base *Handler) *TimerHandler {
	return &TimerHandler{Handler: base}
}

// RegisterRoutes registers timer and lifecycle routes.
func (h *TimerHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/timer", func(r chi.Router) {
		r.Get("/", h.GetTimer)
		r.Post("/start", h.Start)
		r.Post("/pause", h.Pause)
		r.Post("/complete", h.Complete)
		r.Post("/abandon", h.Abandon)
	})
	r.Post("/api/lifecycle/foreground", h.Foreground)
}

func lockDevice(deviceID string) func() {
	lock, _ := timerLocks.LoadOrStore(deviceID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	mutex.Lock()
	return mutex.Unlock
}

type startRequest struct {
	DurationSeconds int  `json:"duration_seconds"`
	Countup         bool `json:"countup"`
}

// Start begins a focus session: it writes the running timer record and
// marks device-level blocking active.
func (h *TimerHandler) Start(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	unlock := lockDevice(deviceID)
	defer unlock()

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Countup {
		if req.DurationSeconds <= 0 {
			Error(w, http.StatusBadRequest, "duration_seconds must be > 0")
			return
		}
		if time.Duration(req.DurationSeconds)*time.Second > h.cfg.MaxSessionDuration {
			Error(w, http.StatusBadRequest, "duration_seconds exceeds maximum session length")
			return
		}
	}

	ctx := r.Context()
	if rec, err := h.repo.GetTimerRecord(ctx, deviceID); err == nil && rec.IsRunning {
		Error(w, http.StatusConflict, "session_in_progress")
		return
	}

	rec := &domain.TimerRecord{
		IsRunning:              true,
		StartTime:              domain.Int64Ptr(time.Now().UnixMilli()),
		SessionDurationSeconds: req.DurationSeconds,
		IsCountup:              req.Countup,
	}
	if err := h.repo.PutTimerRecord(ctx, deviceID, rec); err != nil {
		slog.Error("Failed to persist timer record", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	blocking.MarkBlockingActive(ctx, h.repo, deviceID)

	slog.Info("Session started",
		"device_id", deviceID,
		"countup", req.Countup,
		"duration_seconds", req.DurationSeconds)
	JSON(w, http.StatusOK, rec)
}

// Pause suspends a running session. Blocking is released for the pause;
// the guard treats a paused record with a lingering marker as an orphan,
// so the marker must go with it.
func (h *TimerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	unlock := lockDevice(deviceID)
	defer unlock()

	ctx := r.Context()
	rec, err := h.repo.GetTimerRecord(ctx, deviceID)
	if err != nil || !rec.IsRunning {
		Error(w, http.StatusConflict, "no_running_session")
		return
	}

	elapsed := int(rec.ElapsedSeconds(time.Now()))
	if elapsed < 0 {
		elapsed = 0
	}

	rec.IsRunning = false
	rec.StartTime = nil
	rec.ElapsedTimeSeconds = domain.IntPtr(elapsed)
	if !rec.IsCountup {
		remaining := rec.SessionDurationSeconds - elapsed
		if remaining < 0 {
			remaining = 0
		}
		rec.RemainingTimeSeconds = domain.IntPtr(remaining)
	}

	if err := h.repo.PutTimerRecord(ctx, deviceID, rec); err != nil {
		slog.Error("Failed to persist paused record", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to pause session")
		return
	}

	blocking.MarkBlockingStopped(ctx, h.repo, deviceID)

	slog.Info("Session paused", "device_id", deviceID, "elapsed_seconds", elapsed)
	JSON(w, http.StatusOK, rec)
}

// Complete finishes a session, records it, and applies rewards.
func (h *TimerHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.finishSession(w, r, true)
}

// Abandon ends a session early without completion rewards.
func (h *TimerHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	h.finishSession(w, r, false)
}

func (h *TimerHandler) finishSession(w http.ResponseWriter, r *http.Request, completed bool) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	unlock := lockDevice(deviceID)
	defer unlock()

	ctx := r.Context()
	now := time.Now()

	rec, err := h.repo.GetTimerRecord(ctx, deviceID)
	if err != nil {
		Error(w, http.StatusConflict, "no_session")
		return
	}

	actual, startedAt := sessionElapsed(rec, now)
	mode := domain.ModeCountdown
	if rec.IsCountup {
		mode = domain.ModeCountup
	}

	session := &domain.FocusSession{
		ID:             uuid.NewString(),
		DeviceID:       deviceID,
		Mode:           mode,
		PlannedSeconds: rec.SessionDurationSeconds,
		ActualSeconds:  actual,
		Completed:      completed,
		StartedAt:      startedAt,
		EndedAt:        now,
	}

	rec.IsRunning = false
	rec.StartTime = nil
	rec.ElapsedTimeSeconds = domain.IntPtr(actual)
	if !rec.IsCountup {
		rec.RemainingTimeSeconds = domain.IntPtr(0)
	}
	if err := h.repo.PutTimerRecord(ctx, deviceID, rec); err != nil {
		slog.Error("Failed to persist finished record", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to finish session")
		return
	}

	blocking.MarkBlockingStopped(ctx, h.repo, deviceID)

	if err := h.repo.InsertSession(ctx, session); err != nil {
		slog.Error("Failed to record session", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to record session")
		return
	}

	result := h.applyRewards(ctx, deviceID, session, now)

	slog.Info("Session finished",
		"device_id", deviceID,
		"completed", completed,
		"actual_seconds", actual)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session": session,
		"rewards": result,
	})
}

func (h *TimerHandler) applyRewards(ctx context.Context, deviceID string, session *domain.FocusSession, now time.Time) *rewards.Result {
	progress, err := h.repo.GetProgress(ctx, deviceID)
	if errdefs.IsNotFound(err) {
		progress = &domain.Progress{DeviceID: deviceID, Level: 1, CreatedAt: now}
		err = nil
	}
	if err != nil {
		slog.Error("Failed to load progress", "device_id", deviceID, "error", err)
		return nil
	}

	result := h.engine.Apply(progress, session, now)
	if err := h.repo.UpsertProgress(ctx, progress); err != nil {
		slog.Error("Failed to persist progress", "device_id", deviceID, "error", err)
	}

	// Best-effort celebration push; a closed channel just means the device
	// sees its rewards on next sync.
	if err := h.dm.Send(ctx, deviceID, map[string]interface{}{
		"type":    "rewards",
		"rewards": result,
	}); err != nil {
		slog.Debug("Reward push skipped", "device_id", deviceID, "error", err)
	}

	return &result
}

// sessionElapsed derives the session's focused seconds and start time from
// a record in either running or paused shape.
func sessionElapsed(rec *domain.TimerRecord, now time.Time) (int, time.Time) {
	if start, ok := rec.StartedAt(); ok {
		elapsed := int(rec.ElapsedSeconds(now))
		if elapsed < 0 {
			elapsed = 0
		}
		if rec.IsCountup && elapsed > domain.CountupCapSeconds {
			elapsed = domain.CountupCapSeconds
		}
		if !rec.IsCountup && elapsed > rec.SessionDurationSeconds {
			elapsed = rec.SessionDurationSeconds
		}
		return elapsed, start
	}

	elapsed := 0
	if rec.ElapsedTimeSeconds != nil {
		elapsed = *rec.ElapsedTimeSeconds
	}
	return elapsed, now.Add(-time.Duration(elapsed) * time.Second)
}

// GetTimer returns the device's persisted timer record.
func (h *TimerHandler) GetTimer(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	rec, err := h.repo.GetTimerRecord(r.Context(), deviceID)
	if errdefs.IsNotFound(err) {
		JSON(w, http.StatusOK, &domain.TimerRecord{})
		return
	}
	if err != nil {
		slog.Error("Failed to read timer record", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to read timer")
		return
	}
	JSON(w, http.StatusOK, rec)
}

// Foreground is the app-became-active trigger: it re-runs the expiry guard
// for this device and returns the (possibly healed) record.
func (h *TimerHandler) Foreground(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	h.guard.CheckDevice(r.Context(), deviceID)

	rec, err := h.repo.GetTimerRecord(r.Context(), deviceID)
	if err != nil {
		rec = &domain.TimerRecord{}
	}
	JSON(w, http.StatusOK, rec)
}
