package models

import (
	"time"

	"github.com/google/uuid"
)

// UserLogLevel controls how much of a principal's activity is recorded.
// Stealth is the lowest tier: logins via a stealth key leave no trace in
// the user status row at all.
type UserLogLevel int

const (
	LogLevelStealth UserLogLevel = iota
	LogLevelRequests
	LogLevelMessageEntry
	LogLevelFull
)

var logLevelNames = map[UserLogLevel]string{
	LogLevelStealth:      "stealth",
	LogLevelRequests:     "requests",
	LogLevelMessageEntry: "message_entry",
	LogLevelFull:         "full",
}

func (l UserLogLevel) String() string {
	if name, ok := logLevelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseUserLogLevel maps a config token to a log level, defaulting to
// message_entry.
func ParseUserLogLevel(s string) UserLogLevel {
	for level, name := range logLevelNames {
		if name == s {
			return level
		}
	}
	return LogLevelMessageEntry
}

// APIKey is a machine credential bound to a user, optionally pinning a
// role and restricting validity to a time window.
type APIKey struct {
	ID        string
	Key       uuid.UUID
	UserRef   string
	RoleRef   *string // pinned role override; nil means the user's own roles apply
	IsActive  bool
	ValidFrom *time.Time
	ValidTo   *time.Time
	LogLevel  UserLogLevel
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidAt reports whether the key's validity window covers the given
// instant. Keys without a window are always valid.
func (k *APIKey) ValidAt(now time.Time) bool {
	if k.ValidFrom != nil && now.Before(*k.ValidFrom) {
		return false
	}
	if k.ValidTo != nil && now.After(*k.ValidTo) {
		return false
	}
	return true
}
