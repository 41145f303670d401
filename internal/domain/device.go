package domain

import (
	"time"
)

// Device represents an anonymous installation of the app. Devices are
// identified by a generated ID carried in a cookie or header; there are no
// accounts.
type Device struct {
	DeviceID   string    `json:"device_id"`
	Name       string    `json:"name"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IdleFor returns how long the device has gone without contact.
func (d *Device) IdleFor(now time.Time) time.Duration {
	if d.LastSeenAt.IsZero() {
		return 0
	}
	idle := now.Sub(d.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
