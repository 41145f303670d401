// Package identity provides anonymous per-device identity primitives.
// There are no accounts; a device is identified by a generated ID carried
// in a long-lived cookie, or by an explicit header from the native shell.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/containerd/errdefs"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
)

const (
	DeviceCookieName = "petisland_device_id"
	DeviceHeaderName = "X-Device-ID"
	deviceCookieAge  = 365 * 24 * time.Hour
)

type contextKey int

const deviceIDKey contextKey = iota

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

// DeviceIDFromContext extracts the device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithDeviceID returns ctx carrying the device ID. Exposed for tests.
func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

func generateDeviceID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	return "dev_" + hex.EncodeToString(buf), nil
}

func isValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

func deriveName(deviceID string) string {
	if len(deviceID) > 12 {
		return "island-" + deviceID[len(deviceID)-8:]
	}
	return "island"
}

func ensureDevice(ctx context.Context, repo store.Repository, deviceID string) error {
	_, err := repo.GetDevice(ctx, deviceID)
	if err == nil {
		return repo.UpdateLastSeen(ctx, deviceID, time.Now())
	}
	if !errdefs.IsNotFound(err) {
		return err
	}

	now := time.Now()
	return repo.UpsertDevice(ctx, &domain.Device{
		DeviceID:   deviceID,
		Name:       deriveName(deviceID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setDeviceCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieAge.Seconds()),
		Expires:  time.Now().Add(deviceCookieAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func deviceIDFromRequest(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	// The native shell sends an explicit header; browsers fall back to the
	// cookie.
	if id := r.Header.Get(DeviceHeaderName); isValidDeviceID(id) {
		return id, nil
	}

	if c, err := r.Cookie(DeviceCookieName); err == nil && isValidDeviceID(c.Value) {
		setDeviceCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateDeviceID()
	if err != nil {
		return "", err
	}
	setDeviceCookie(w, id, isDev)
	return id, nil
}

// Middleware injects anonymous per-device identity into the request context
// and ensures a device row exists.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := deviceIDFromRequest(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish device identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureDevice(r.Context(), repo, deviceID); err != nil {
				http.Error(w, `{"error":"failed to initialize device"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithDeviceID(r.Context(), deviceID)))
		})
	}
}
