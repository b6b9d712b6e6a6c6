package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Credential outcomes. These are results of an authentication attempt,
	// not fatal conditions; the coordinator maps them to a denial.
	ErrWrongPassword    = errors.New("wrong password")
	ErrAccountFrozen    = errors.New("account temporarily frozen")
	ErrNotAuthenticated = errors.New("not authenticated")

	// Reference data problems. ErrUserNotFound is a normal denial; a user
	// that exists but has no status or current password row indicates
	// corrupted reference data and propagates as a hard error.
	ErrUserNotFound       = errors.New("user not found")
	ErrUserStatusNotFound = errors.New("user status record not found")
	ErrPasswordNotFound   = errors.New("current password record not found")

	ErrIdentityProviderMismatch = errors.New("identity provider mismatch")
	ErrInvalidConfiguration     = errors.New("invalid auth configuration")
	ErrRateLimitExceeded        = errors.New("rate limit exceeded")
)

// Policy violation reason codes
const (
	PolicyReasonTooShort     = "too_short"
	PolicyReasonBlacklisted  = "blacklisted"
	PolicyReasonRecentlyUsed = "recently_used"
	PolicyReasonReuseBlocked = "reuse_blocked"
)

// PasswordPolicyError reports why a candidate password was rejected.
// The reason code is machine-readable; Detail is for logs only and is
// never returned to callers verbatim.
type PasswordPolicyError struct {
	Reason string
	Detail string
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf("password validation failed: %s", e.Reason)
}

// IsCredentialFailure reports whether err represents a "this credential did
// not work" outcome rather than an unexpected internal failure.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrWrongPassword) ||
		errors.Is(err, ErrAccountFrozen) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrIdentityProviderMismatch) ||
		errors.Is(err, ErrUserNotFound)
}
