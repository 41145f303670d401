package domain

import (
	"time"
)

// Progress is a device's gamification state: experience, currency, pets,
// and the daily streak.
type Progress struct {
	DeviceID       string    `json:"device_id"`
	XP             int       `json:"xp"`
	Level          int       `json:"level"`
	Coins          int       `json:"coins"`
	CurrentStreak  int       `json:"current_streak"`
	LongestStreak  int       `json:"longest_streak"`
	LastActiveDate string    `json:"last_active_date"` // YYYY-MM-DD, empty if never active
	UnlockedPets   []string  `json:"unlocked_pets"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasPet reports whether the named pet is already unlocked.
func (p *Progress) HasPet(name string) bool {
	for _, n := range p.UnlockedPets {
		if n == name {
			return true
		}
	}
	return false
}

// Pet is an unlockable companion. Pets unlock when a device reaches their
// level threshold.
type Pet struct {
	Name        string `json:"name"`
	Species     string `json:"species"`
	UnlockLevel int    `json:"unlock_level"`
}
