package models

import "time"

// User is the master data record for a login identity. It is created by
// provisioning and mutated only by login reconciliation (name, email and
// identity provider auto-update for federated logins).
type User struct {
	Ref              string  // surrogate key
	UserID           string  // login id, case-sensitive, unique across tenants
	ExternalID       *string // subject id at the external identity provider
	TenantID         string
	RoleRef          *string // fixed role assignment, overrides role memberships
	Name             string
	EmailAddress     *string
	IdentityProvider *string
	IsActive         bool
	ExternalAuth     bool // user may authenticate via federated token
	OnlyExternalAuth bool // password authentication disabled
	// ResourceIsWildcard is the administrative escape hatch: a user with no
	// role memberships but this flag set sees all tenants.
	ResourceIsWildcard bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UserStatus is the mutable per-user login state: one row per user,
// created lazily on the first successful login of any kind.
//
// Invariants: CurrentPasswordSerialNumber only increases; the throttle
// timestamp is cleared on any successful password match.
type UserStatus struct {
	UserRef                     string
	CurrentPasswordSerialNumber int
	NumberOfIncorrectAttempts   int
	AccountThrottledUntil       *time.Time

	PrevLogin           *time.Time
	LastLogin           *time.Time
	PrevLoginByPassword *time.Time
	LastLoginByPassword *time.Time
	PrevLoginByAPIKey   *time.Time
	LastLoginByAPIKey   *time.Time
	PrevLoginByToken    *time.Time
	LastLoginByToken    *time.Time
}

// ThrottledAt reports whether the account is inside an active throttle
// window at the given instant. An elapsed window counts as not throttled;
// the field itself is cleared lazily on the next successful match.
func (s *UserStatus) ThrottledAt(now time.Time) bool {
	return s.AccountThrottledUntil != nil && s.AccountThrottledUntil.After(now)
}

// RecordLogin rolls the last-login timestamps forward for the given
// method.
func (s *UserStatus) RecordLogin(now time.Time, method AuthMethod) {
	s.PrevLogin = s.LastLogin
	now = now.UTC()
	s.LastLogin = &now
	switch method {
	case AuthMethodPassword:
		s.PrevLoginByPassword = s.LastLoginByPassword
		s.LastLoginByPassword = &now
	case AuthMethodAPIKey:
		s.PrevLoginByAPIKey = s.LastLoginByAPIKey
		s.LastLoginByAPIKey = &now
	case AuthMethodExternalToken:
		s.PrevLoginByToken = s.LastLoginByToken
		s.LastLoginByToken = &now
	}
}
