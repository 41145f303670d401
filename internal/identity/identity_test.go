package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebschkv/phone-pet-paradise-sub011/internal/store"
)

const knownDeviceID = "dev_0123456789abcdef0123456789abcdef"

func TestGenerateDeviceID(t *testing.T) {
	id, err := generateDeviceID()
	if err != nil {
		t.Fatalf("Failed to generate device ID: %v", err)
	}
	if !isValidDeviceID(id) {
		t.Errorf("Generated ID does not match its own format: %q", id)
	}

	other, err := generateDeviceID()
	if err != nil {
		t.Fatalf("Failed to generate second ID: %v", err)
	}
	if id == other {
		t.Error("Consecutive IDs must differ")
	}
}

func TestIsValidDeviceID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{knownDeviceID, true},
		{"", false},
		{"dev_", false},
		{"dev_0123456789abcdef0123456789abcde", false},  // too short
		{"dev_0123456789abcdef0123456789abcdefa", false}, // too long
		{"dev_0123456789ABCDEF0123456789ABCDEF", false},  // uppercase
		{"usr_0123456789abcdef0123456789abcdef", false},
		{"../../etc/passwd", false},
	}

	for _, tt := range tests {
		if got := isValidDeviceID(tt.id); got != tt.valid {
			t.Errorf("isValidDeviceID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}

func TestDeviceIDFromContext(t *testing.T) {
	if got := DeviceIDFromContext(context.Background()); got != "" {
		t.Errorf("Expected empty ID from bare context, got %q", got)
	}

	ctx := ContextWithDeviceID(context.Background(), knownDeviceID)
	if got := DeviceIDFromContext(ctx); got != knownDeviceID {
		t.Errorf("DeviceIDFromContext = %q, want %q", got, knownDeviceID)
	}
}

func middlewareProbe(repo *store.MemoryStore) (http.Handler, *string) {
	var seen string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = DeviceIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return handler, &seen
}

func TestMiddlewareGeneratesIdentity(t *testing.T) {
	repo := store.NewMemory()
	handler, seen := middlewareProbe(repo)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/timer", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Middleware returned %d", w.Code)
	}
	if !isValidDeviceID(*seen) {
		t.Errorf("Handler saw invalid device ID: %q", *seen)
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == DeviceCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("Expected device cookie to be set")
	}
	if cookie.Value != *seen {
		t.Errorf("Cookie value %q does not match context ID %q", cookie.Value, *seen)
	}
	if !cookie.HttpOnly {
		t.Error("Device cookie must be HttpOnly")
	}

	if _, err := repo.GetDevice(context.Background(), *seen); err != nil {
		t.Errorf("Expected device row created, got %v", err)
	}
}

func TestMiddlewareReusesCookie(t *testing.T) {
	repo := store.NewMemory()
	handler, seen := middlewareProbe(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/timer", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: knownDeviceID})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if *seen != knownDeviceID {
		t.Errorf("Handler saw %q, want cookie identity %q", *seen, knownDeviceID)
	}
}

func TestMiddlewarePrefersHeader(t *testing.T) {
	repo := store.NewMemory()
	handler, seen := middlewareProbe(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/timer", nil)
	req.Header.Set(DeviceHeaderName, knownDeviceID)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "dev_ffffffffffffffffffffffffffffffff"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if *seen != knownDeviceID {
		t.Errorf("Handler saw %q, want header identity %q", *seen, knownDeviceID)
	}
}

func TestMiddlewareRejectsMalformedCookie(t *testing.T) {
	repo := store.NewMemory()
	handler, seen := middlewareProbe(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/timer", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookieName, Value: "not-a-device-id"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if *seen == "not-a-device-id" {
		t.Error("Malformed cookie identity must not be accepted")
	}
	if !isValidDeviceID(*seen) {
		t.Errorf("Expected a fresh generated ID, got %q", *seen)
	}
}

func TestDeriveName(t *testing.T) {
	if got := deriveName(knownDeviceID); got != "island-89abcdef" {
		t.Errorf("deriveName = %q, want island-89abcdef", got)
	}
	if got := deriveName("short"); got != "island" {
		t.Errorf("deriveName(short) = %q, want island", got)
	}
}
