package domain

import (
	"time"
)

// SessionMode distinguishes fixed-duration sessions from open-ended ones.
type SessionMode string

const (
	ModeCountdown SessionMode = "countdown"
	ModeCountup   SessionMode = "countup"
)

// FocusSession is a finished focus interval, recorded for history,
// analytics, and reward computation.
type FocusSession struct {
	ID             string      `json:"id"`
	DeviceID       string      `json:"device_id"`
	Mode           SessionMode `json:"mode"`
	PlannedSeconds int         `json:"planned_seconds"`
	ActualSeconds  int         `json:"actual_seconds"`
	Completed      bool        `json:"completed"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        time.Time   `json:"ended_at"`
}

// FocusMinutes returns the session length in whole minutes.
func (s *FocusSession) FocusMinutes() int {
	return s.ActualSeconds / 60
}

// DailyTotal is an analytics aggregate of one calendar day.
type DailyTotal struct {
	Date         string `json:"date"` // YYYY-MM-DD
	Sessions     int    `json:"sessions"`
	FocusSeconds int    `json:"focus_seconds"`
}
