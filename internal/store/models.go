// File: internal/store/models.go
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// AccountStatus describes where an account sits in the login workflow.
type AccountStatus string

const (
	StatusWaiting       AccountStatus = "waiting"
	StatusSuccess       AccountStatus = "success"
	StatusFailed        AccountStatus = "failed"
	StatusPartialFailed AccountStatus = "partial_failed"
)

// SessionStatus describes the terminal state of a persisted session record.
type SessionStatus string

const (
	SessionActive      SessionStatus = "active"
	SessionCompleted   SessionStatus = "completed"
	SessionInterrupted SessionStatus = "interrupted"
)

// Account is one set of credentials the engine drives through the dual
// platform login. Username is globally unique.
type Account struct {
	Username    string        `json:"username"`
	Password    string        `json:"-"`
	Status      AccountStatus `json:"status"`
	BrowserOpen bool          `json:"browser_open"`
	LoginTime   *time.Time    `json:"login_time,omitempty"`
	Message     string        `json:"message"`
	LastUpdated time.Time     `json:"last_updated"`
}

// AccountUpdate is a partial update; nil fields are left untouched.
type AccountUpdate struct {
	Status      *AccountStatus
	BrowserOpen *bool
	LoginTime   *time.Time
	Message     *string
}

// Session is the durable projection of one live browser session.
type Session struct {
	ID        string        `json:"id"`
	Username  string        `json:"username"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Duration  int           `json:"duration"` // whole minutes
	IsActive  bool          `json:"is_active"`
	Status    SessionStatus `json:"status"`
}

// LogEntry is one append-only audit record. Username is empty for
// system-level events.
type LogEntry struct {
	Username  string         `json:"username,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
	Reason    string         `json:"reason"`
	Details   map[string]any `json:"details,omitempty"`
}

// DailyStats summarizes a single account's sessions for one day.
type DailyStats struct {
	TotalDuration  int `json:"total_duration"` // minutes
	ActiveSessions int `json:"active_sessions"`
}

// Helpers for building AccountUpdate values without address-of dances.

func StatusPtr(s AccountStatus) *AccountStatus { return &s }
func BoolPtr(b bool) *bool                     { return &b }
func StringPtr(s string) *string               { return &s }
func TimePtr(t time.Time) *time.Time           { return &t }
