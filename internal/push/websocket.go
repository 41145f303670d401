package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/identity"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/timer"
)

// Handler upgrades /ws/device connections and pumps lifecycle messages from
// the client into the expiry guard.
type Handler struct {
	dm            *DeviceManager
	guard         *timer.Guard
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new device channel handler.
func NewHandler(dm *DeviceManager, guard *timer.Guard, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		dm:            dm,
		guard:         guard,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientMessage is what the device sends over the channel.
type clientMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := identity.DeviceIDFromContext(r.Context())
	slog.Info("Device channel request", "device_id", deviceID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "device_id", deviceID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "channel ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "device_id", deviceID)
		}
	}()

	h.dm.Register(deviceID, ws)
	defer h.dm.Unregister(deviceID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// A fresh connection means the device just came online; its persisted
	// timer may have expired while it was gone.
	h.guard.CheckDevice(ctx, deviceID)

	h.readLoop(ctx, ws, deviceID)
	slog.Info("Device channel ended", "device_id", deviceID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, deviceID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			slog.Debug("Device channel read ended", "device_id", deviceID, "error", err)
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("Ignoring malformed channel message", "device_id", deviceID, "error", err)
			continue
		}

		switch msg.Type {
		case "foreground":
			// Platform "became active" event: every transition is checked
			// independently, no one-shot guard here.
			h.guard.CheckDevice(ctx, deviceID)
		case "ping":
			if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"pong"}`)); err != nil {
				slog.Debug("Failed to answer ping", "device_id", deviceID, "error", err)
			}
		default:
			slog.Debug("Unknown channel message type", "device_id", deviceID, "type", msg.Type)
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Device channel origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
