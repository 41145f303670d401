// Package push provides the WebSocket device channel: one live connection
// per device, used to push reward and timer events and to deliver the
// stop-blocking command.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// DeviceManager tracks the active WebSocket connection for each device.
type DeviceManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewDeviceManager creates a new device manager.
func NewDeviceManager() *DeviceManager {
	return &DeviceManager{
		active: make(map[string]*websocket.Conn),
	}
}

// Register adds a new connection for a device, replacing any previous one.
func (m *DeviceManager) Register(deviceID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.active[deviceID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}

	m.active[deviceID] = conn
	slog.Info("Device channel registered", "device_id", deviceID)
}

// Unregister removes a connection for a device if it is still the current one.
func (m *DeviceManager) Unregister(deviceID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[deviceID]; exists && current == conn {
		delete(m.active, deviceID)
		slog.Info("Device channel unregistered", "device_id", deviceID)
	}
}

// Connected reports whether the device has a live channel.
func (m *DeviceManager) Connected(deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[deviceID]
	return ok
}

// Send delivers a JSON message to the device's live channel. It fails when
// the device is offline or the write fails; callers own any retry policy.
func (m *DeviceManager) Send(ctx context.Context, deviceID string, v interface{}) error {
	m.mu.RLock()
	conn, ok := m.active[deviceID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("device %s has no active channel", deviceID)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal push message: %w", err)
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write push message: %w", err)
	}
	return nil
}

// StopAppBlocking implements blocking.Stopper by pushing a stop_blocking
// command over the device channel.
func (m *DeviceManager) StopAppBlocking(ctx context.Context, deviceID string) error {
	return m.Send(ctx, deviceID, map[string]string{"type": "stop_blocking"})
}

// CloseDevice forcefully terminates the device's channel.
func (m *DeviceManager) CloseDevice(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.active[deviceID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
	delete(m.active, deviceID)
	slog.Info("Device channel closed", "device_id", deviceID)
}
