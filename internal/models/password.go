package models

import "time"

// Password is one row of a user's password history, keyed by
// (UserRef, SerialNumber). Exactly one row's serial number equals the
// owning UserStatus's CurrentPasswordSerialNumber - that is "the" current
// password. Rows are immutable once superseded; a password change always
// creates a new row.
type Password struct {
	UserRef          string
	SerialNumber     int
	PasswordHash     []byte
	PasswordCreation time.Time
	PasswordExpiry   time.Time
	UserExpiry       time.Time

	// Pending self-service reset, cleared on the next successful primary
	// match.
	ResetPasswordHash     []byte
	WhenLastPasswordReset *time.Time
}

// ExpiredAt reports whether the password has expired at the given instant.
func (p *Password) ExpiredAt(now time.Time) bool {
	return !p.PasswordExpiry.After(now)
}

// ResetValidAt reports whether a pending reset hash exists and is still
// inside its validity window.
func (p *Password) ResetValidAt(now time.Time, validity time.Duration) bool {
	if len(p.ResetPasswordHash) == 0 || p.WhenLastPasswordReset == nil {
		return false
	}
	return p.WhenLastPasswordReset.Add(validity).After(now)
}
