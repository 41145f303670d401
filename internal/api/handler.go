// Package api provides HTTP handlers for the focus service API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/config"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/push"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/rewards"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/timer"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo   store.Repository
	dm     *push.DeviceManager
	engine *rewards.Engine
	guard  *timer.Guard
	cfg    *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, dm *push.DeviceManager, engine *rewards.Engine, guard *timer.Guard, cfg *config.Config) *Handler {
	return &Handler{
		repo:   repo,
		dm:     dm,
		engine: engine,
		guard:  guard,
		cfg:    cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
