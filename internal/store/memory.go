package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"github.com/glebschkv/phone-pet-paradise-sub011/internal/domain"
)

// MemoryStore implements Repository with in-memory maps. It backs tests and
// is a drop-in stand-in when no durable storage is wanted.
type MemoryStore struct {
	mu       sync.RWMutex
	devices  map[string]domain.Device
	kv       map[string]map[string]string // device_id -> key -> value
	sessions map[string][]domain.FocusSession
	progress map[string]domain.Progress
	closed   bool
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		devices:  make(map[string]domain.Device),
		kv:       make(map[string]map[string]string),
		sessions: make(map[string][]domain.FocusSession),
		progress: make(map[string]domain.Progress),
	}
}

// GetDevice retrieves a device by its ID.
func (m *MemoryStore) GetDevice(_ context.Context, deviceID string) (*domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, errdefs.ErrNotFound)
	}
	out := d
	return &out, nil
}

// UpsertDevice creates or updates a device record.
func (m *MemoryStore) UpsertDevice(_ context.Context, device *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device.DeviceID] = *device
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a device.
func (m *MemoryStore) UpdateLastSeen(_ context.Context, deviceID string, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return nil
	}
	d.LastSeenAt = lastSeen
	d.UpdatedAt = time.Now()
	m.devices[deviceID] = d
	return nil
}

// GetTimerRecord retrieves the persisted timer blob for a device.
func (m *MemoryStore) GetTimerRecord(_ context.Context, deviceID string) (*domain.TimerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.kv[deviceID][domain.TimerRecordKey]
	if !ok {
		return nil, fmt.Errorf("timer record for %s: %w", deviceID, errdefs.ErrNotFound)
	}
	var rec domain.TimerRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("timer record for %s unparsable: %w", deviceID, errdefs.ErrNotFound)
	}
	return &rec, nil
}

// PutTimerRecord persists the timer blob for a device.
func (m *MemoryStore) PutTimerRecord(_ context.Context, deviceID string, rec *domain.TimerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal timer record: %w", err)
	}
	m.putKV(deviceID, domain.TimerRecordKey, string(data))
	return nil
}

// DeleteTimerRecord removes the timer blob for a device.
func (m *MemoryStore) DeleteTimerRecord(_ context.Context, deviceID string) error {
	m.deleteKV(deviceID, domain.TimerRecordKey)
	return nil
}

// PutRawTimerRecord stores an arbitrary blob under the timer key. Test
// helper for exercising unparsable-state paths.
func (m *MemoryStore) PutRawTimerRecord(deviceID, raw string) {
	m.putKV(deviceID, domain.TimerRecordKey, raw)
}

// BlockingMarkerPresent reports whether the device has an active blocking marker.
func (m *MemoryStore) BlockingMarkerPresent(_ context.Context, deviceID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.kv[deviceID][domain.BlockingMarkerKey]
	return ok, nil
}

// SetBlockingMarker writes the blocking marker for a device.
func (m *MemoryStore) SetBlockingMarker(_ context.Context, deviceID string, at time.Time) error {
	m.putKV(deviceID, domain.BlockingMarkerKey, strconv.FormatInt(at.UnixMilli(), 10))
	return nil
}

// ClearBlockingMarker removes the blocking marker for a device.
func (m *MemoryStore) ClearBlockingMarker(_ context.Context, deviceID string) error {
	m.deleteKV(deviceID, domain.BlockingMarkerKey)
	return nil
}

func (m *MemoryStore) putKV(deviceID, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.kv[deviceID] == nil {
		m.kv[deviceID] = make(map[string]string)
	}
	m.kv[deviceID][key] = value
}

func (m *MemoryStore) deleteKV(deviceID, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keys, ok := m.kv[deviceID]; ok {
		delete(keys, key)
		if len(keys) == 0 {
			delete(m.kv, deviceID)
		}
	}
}

// InsertSession records a finished focus session.
func (m *MemoryStore) InsertSession(_ context.Context, session *domain.FocusSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.DeviceID] = append(m.sessions[session.DeviceID], *session)
	return nil
}

// ListSessions returns the most recent sessions for a device, newest first.
func (m *MemoryStore) ListSessions(_ context.Context, deviceID string, limit int) ([]*domain.FocusSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sessions[deviceID]
	out := make([]*domain.FocusSession, 0, len(all))
	for i := range all {
		s := all[i]
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DailyTotals aggregates per-day session counts and focus time.
func (m *MemoryStore) DailyTotals(_ context.Context, deviceID string, days int) ([]domain.DailyTotal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since := time.Now().AddDate(0, 0, -days)
	byDay := make(map[string]*domain.DailyTotal)
	for _, s := range m.sessions[deviceID] {
		if s.EndedAt.Before(since) {
			continue
		}
		day := s.EndedAt.Local().Format("2006-01-02")
		t, ok := byDay[day]
		if !ok {
			t = &domain.DailyTotal{Date: day}
			byDay[day] = t
		}
		t.Sessions++
		t.FocusSeconds += s.ActualSeconds
	}

	totals := make([]domain.DailyTotal, 0, len(byDay))
	for _, t := range byDay {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Date < totals[j].Date })
	return totals, nil
}

// GetProgress retrieves gamification state for a device.
func (m *MemoryStore) GetProgress(_ context.Context, deviceID string) (*domain.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[deviceID]
	if !ok {
		return nil, fmt.Errorf("progress for %s: %w", deviceID, errdefs.ErrNotFound)
	}
	out := p
	out.UnlockedPets = append([]string(nil), p.UnlockedPets...)
	return &out, nil
}

// UpsertProgress creates or updates gamification state.
func (m *MemoryStore) UpsertProgress(_ context.Context, progress *domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *progress
	p.UnlockedPets = append([]string(nil), progress.UnlockedPets...)
	m.progress[progress.DeviceID] = p
	return nil
}

// ListDevicesWithTimerState returns IDs of devices holding a timer record
// or blocking marker.
func (m *MemoryStore) ListDevicesWithTimerState(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for deviceID, keys := range m.kv {
		if _, ok := keys[domain.TimerRecordKey]; ok {
			ids = append(ids, deviceID)
			continue
		}
		if _, ok := keys[domain.BlockingMarkerKey]; ok {
			ids = append(ids, deviceID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Ping verifies the store is usable.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store closed")
	}
	return nil
}

// Close marks the store as closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
