package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthMethod identifies which credential type produced an AuthResult.
type AuthMethod string

const (
	AuthMethodPassword      AuthMethod = "password"
	AuthMethodAPIKey        AuthMethod = "api_key"
	AuthMethodExternalToken AuthMethod = "external_token"
)

// AuthResult is the unified outcome of a successful authentication.
type AuthResult struct {
	User     *User
	TenantID string
	Status   *UserStatus // nil for stealth API key logins
	APIKey   *APIKey     // set for API key logins
	Method   AuthMethod

	// RoleRef is the pinned role for this session: the API key's override
	// if present, otherwise the user's fixed role, otherwise nil.
	RoleRef *string

	// AuthExpires hints when the credential itself expires (password
	// expiry or API key validity end).
	AuthExpires *time.Time

	// MustChangePassword is the soft "password expired" signal: the login
	// succeeded but the caller has to set a new password.
	MustChangePassword bool

	// TenantNotUnique is set when the resolved tenant is the global one,
	// meaning the user may switch into further tenants.
	TenantNotUnique bool

	// PrevLogin / PrevLoginByMethod carry the timestamps from before this
	// login, for "last seen" display.
	PrevLogin         *time.Time
	PrevLoginByMethod *time.Time

	// IncorrectAttempts is the failure counter value before this login
	// reset it.
	IncorrectAttempts int
}

// SessionClaims is the JWT claim set issued by the transport layer after
// a successful authentication.
type SessionClaims struct {
	UserID   string  `json:"uid"`
	UserRef  string  `json:"urf"`
	TenantID string  `json:"tid"`
	RoleRef  *string `json:"rol,omitempty"`
	Method   string  `json:"mth"`
	jwt.RegisteredClaims
}
