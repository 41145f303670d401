package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/containerd/errdefs"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/identity"
	"github.com/go-chi/chi/v5"
)

// RewardsHandler handles progress, pet, and analytics endpoints.
type RewardsHandler struct {
	*Handler
}

// NewRewardsHandler creates a new rewards handler.
func NewRewardsHandler(base *Handler) *RewardsHandler {
	return &RewardsHandler{Handler: base}
}

// RegisterRoutes registers rewards and analytics routes.
func (h *RewardsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/progress", h.GetProgress)
		r.Get("/pets", h.GetPets)
		r.Get("/sessions", h.GetSessions)
		r.Get("/stats/daily", h.GetDailyStats)
	})
}

// GetMe returns the current device's information.
func (h *RewardsHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	if deviceID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	device, err := h.repo.GetDevice(r.Context(), deviceID)
	if err != nil {
		Error(w, http.StatusUnauthorized, "device not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"device_id":    device.DeviceID,
		"name":         device.Name,
		"last_seen_at": device.LastSeenAt,
		"connected":    h.dm.Connected(deviceID),
	})
}

// GetProgress returns the device's gamification state.
func (h *RewardsHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	progress, err := h.repo.GetProgress(r.Context(), deviceID)
	if errdefs.IsNotFound(err) {
		JSON(w, http.StatusOK, &domain.Progress{DeviceID: deviceID, Level: 1})
		return
	}
	if err != nil {
		slog.Error("Failed to load progress", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	JSON(w, http.StatusOK, progress)
}

// GetPets returns the pet catalog annotated with unlock state.
func (h *RewardsHandler) GetPets(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	progress, err := h.repo.GetProgress(r.Context(), deviceID)
	if err != nil && !errdefs.IsNotFound(err) {
		slog.Error("Failed to load progress", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load pets")
		return
	}
	if progress == nil {
		progress = &domain.Progress{DeviceID: deviceID, Level: 1}
	}

	type petView struct {
		domain.Pet
		Unlocked bool `json:"unlocked"`
	}
	catalog := h.engine.Catalog()
	pets := make([]petView, 0, len(catalog))
	for _, pet := range catalog {
		pets = append(pets, petView{Pet: pet, Unlocked: progress.HasPet(pet.Name)})
	}

	JSON(w, http.StatusOK, map[string]interface{}{"pets": pets})
}

// GetSessions returns recent focus sessions, newest first.
func (h *RewardsHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	sessions, err := h.repo.ListSessions(r.Context(), deviceID, limit)
	if err != nil {
		slog.Error("Failed to list sessions", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*domain.FocusSession{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetDailyStats returns per-day focus aggregates for the trailing window.
func (h *RewardsHandler) GetDailyStats(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	totals, err := h.repo.DailyTotals(r.Context(), deviceID, days)
	if err != nil {
		slog.Error("Failed to aggregate daily stats", "device_id", deviceID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to aggregate stats")
		return
	}
	if totals == nil {
		totals = []domain.DailyTotal{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"days":         days,
		"generated_at": time.Now().UTC(),
		"totals":       totals,
	})
}
