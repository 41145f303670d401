package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func TestSendOfflineDevice(t *testing.T) {
	m := NewDeviceManager()

	if m.Connected("dev-a") {
		t.Error("Expected no channel for unknown device")
	}

	err := m.Send(context.Background(), "dev-a", map[string]string{"type": "ping"})
	if err == nil {
		t.Fatal("Expected error sending to offline device")
	}

	if err := m.StopAppBlocking(context.Background(), "dev-a"); err == nil {
		t.Fatal("Expected stop command to fail for offline device")
	}
}

func dialTestChannel(t *testing.T, m *DeviceManager, deviceID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Errorf("Failed to accept: %v", err)
			return
		}
		m.Register(deviceID, conn)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })

	// Registration happens in the server handler; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for !m.Connected(deviceID) {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for channel registration")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestStopAppBlockingDelivery(t *testing.T) {
	m := NewDeviceManager()
	conn := dialTestChannel(t, m, "dev-a")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.StopAppBlocking(ctx, "dev-a"); err != nil {
		t.Fatalf("Failed to push stop command: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read pushed message: %v", err)
	}

	var msg map[string]string
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to decode pushed message: %v", err)
	}
	if msg["type"] != "stop_blocking" {
		t.Errorf("Pushed type = %q, want stop_blocking", msg["type"])
	}
}

func TestUnregisterOnlyRemovesCurrentConn(t *testing.T) {
	m := NewDeviceManager()
	dialTestChannel(t, m, "dev-a")

	m.mu.RLock()
	current := m.active["dev-a"]
	m.mu.RUnlock()

	// Unregistering a stale conn pointer must not drop the live channel.
	m.Unregister("dev-a", nil)
	if !m.Connected("dev-a") {
		t.Error("Stale unregister removed the live channel")
	}

	m.Unregister("dev-a", current)
	if m.Connected("dev-a") {
		t.Error("Expected channel removed after unregister")
	}
}

func TestCloseDevice(t *testing.T) {
	m := NewDeviceManager()
	dialTestChannel(t, m, "dev-a")

	m.CloseDevice("dev-a")
	if m.Connected("dev-a") {
		t.Error("Expected channel removed after close")
	}

	// Closing an absent device is a no-op.
	m.CloseDevice("dev-b")
}
