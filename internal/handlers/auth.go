package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mvollmer/gatehouse/internal/auth"
	"github.com/mvollmer/gatehouse/internal/models"
	pkghttp "github.com/mvollmer/gatehouse/pkg/http"
)

// AuthCoordinatorInterface defines the interface for the auth resolution core
type AuthCoordinatorInterface interface {
	AuthenticateByPassword(ctx context.Context, now time.Time, userID, password, newPassword string) (*models.AuthResult, error)
	AuthenticateByAPIKey(ctx context.Context, now time.Time, rawKey string) (*models.AuthResult, error)
	AuthenticateByExternalToken(ctx context.Context, now time.Time, claims models.ExternalTokenClaims) (*models.AuthResult, error)
	ChangePassword(ctx context.Context, now time.Time, userID, currentPassword, newPassword string) error
	ResetPasswordRequest(ctx context.Context, now time.Time, userID, email string) error
	GetEffectivePermissions(ctx context.Context, userRef, tenantID string, roleRef *string) []models.PermissionEntry
	GetVisibleTenants(ctx context.Context, userRef string) ([]models.TenantDescription, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	coordinator    AuthCoordinatorInterface
	tokens         *auth.TokenManager
	tokenValidator auth.ExternalTokenValidator
	revoker        *auth.Revoker
	timingDelay    *auth.TimingDelay
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(coordinator AuthCoordinatorInterface, tokens *auth.TokenManager, tokenValidator auth.ExternalTokenValidator, revoker *auth.Revoker, timingDelay *auth.TimingDelay) *AuthHandler {
	return &AuthHandler{
		coordinator:    coordinator,
		tokens:         tokens,
		tokenValidator: tokenValidator,
		revoker:        revoker,
		timingDelay:    timingDelay,
	}
}

// Request DTOs

// LoginRequest represents the request body for password login
type LoginRequest struct {
	UserID      string `json:"user_id" validate:"required,min=1,max=80"`
	Password    string `json:"password" validate:"required"`
	NewPassword string `json:"new_password,omitempty"`
}

// APIKeyLoginRequest represents the request body for API key login
type APIKeyLoginRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// TokenLoginRequest represents the request body for federated token login
type TokenLoginRequest struct {
	Token string `json:"token" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ResetPasswordRequest represents the request body for a reset request
type ResetPasswordRequest struct {
	UserID string `json:"user_id" validate:"required,min=1,max=80"`
	Email  string `json:"email" validate:"required,email"`
}

// InvalidateSessionsRequest is the peer-to-peer invalidation payload
type InvalidateSessionsRequest struct {
	UserRef string `json:"user_ref" validate:"required"`
	Reason  string `json:"reason"`
}

// LoginResponse carries the session token and the login bookkeeping the
// caller may want to display.
type LoginResponse struct {
	Token              string     `json:"token"`
	ExpiresAt          time.Time  `json:"expires_at"`
	TenantID           string     `json:"tenant_id"`
	TenantNotUnique    bool       `json:"tenant_not_unique"`
	MustChangePassword bool       `json:"must_change_password"`
	PrevLogin          *time.Time `json:"prev_login,omitempty"`
	PrevLoginByMethod  *time.Time `json:"prev_login_by_method,omitempty"`
	IncorrectAttempts  int        `json:"incorrect_attempts,omitempty"`
}

// Login handles password login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	start := time.Now()
	result, err := h.coordinator.AuthenticateByPassword(r.Context(), start, req.UserID, req.Password, req.NewPassword)
	if err != nil {
		h.timingDelay.WaitFrom(start, false)
		pkghttp.WriteAuthFailure(w, err)
		return
	}
	h.timingDelay.WaitFrom(start, true)
	h.writeLoginResponse(w, result, start)
}

// LoginAPIKey handles API key login
func (h *AuthHandler) LoginAPIKey(w http.ResponseWriter, r *http.Request) {
	var req APIKeyLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	start := time.Now()
	result, err := h.coordinator.AuthenticateByAPIKey(r.Context(), start, req.APIKey)
	if err != nil {
		h.timingDelay.WaitFrom(start, false)
		pkghttp.WriteAuthFailure(w, err)
		return
	}
	h.timingDelay.WaitFrom(start, true)
	h.writeLoginResponse(w, result, start)
}

// LoginExternalToken handles federated token login
func (h *AuthHandler) LoginExternalToken(w http.ResponseWriter, r *http.Request) {
	var req TokenLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if h.tokenValidator == nil {
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	claims, err := h.tokenValidator.Validate(req.Token)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	start := time.Now()
	result, err := h.coordinator.AuthenticateByExternalToken(r.Context(), start, claims)
	if err != nil {
		h.timingDelay.WaitFrom(start, false)
		pkghttp.WriteAuthFailure(w, err)
		return
	}
	h.timingDelay.WaitFrom(start, true)
	h.writeLoginResponse(w, result, start)
}

// ChangePassword handles a password change for the authenticated session
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	now := time.Now()
	if err := h.coordinator.ChangePassword(r.Context(), now, session.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		var policyErr *models.PasswordPolicyError
		if errors.As(err, &policyErr) {
			pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "password_policy_violation", "New password rejected", policyErr.Reason)
			return
		}
		pkghttp.WriteAuthFailure(w, err)
		return
	}

	// Cut off this server's own sessions too; the coordinator already
	// fanned out to the peers.
	h.revoker.Revoke(session.UserRef, now)
	w.WriteHeader(http.StatusNoContent)
}

// ResetPassword handles a self-service reset request. The response is
// 202 regardless of whether the account exists or the email matched.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.coordinator.ResetPasswordRequest(r.Context(), time.Now(), req.UserID, req.Email); err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) {
			pkghttp.WriteTooManyRequests(w, "Reset already requested, try again later")
			return
		}
		pkghttp.WriteInternalError(w, "Unable to process reset request")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetTenants returns the tenants visible to the authenticated user
func (h *AuthHandler) GetTenants(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	tenants, err := h.coordinator.GetVisibleTenants(r.Context(), session.UserRef)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			pkghttp.WriteUnauthorized(w, "Unknown user")
			return
		}
		pkghttp.WriteInternalError(w, "Unable to resolve tenants")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants})
}

// GetPermissions returns the effective permission set of the session
func (h *AuthHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	entries := h.coordinator.GetEffectivePermissions(r.Context(), session.UserRef, session.TenantID, session.RoleRef)
	writeJSON(w, http.StatusOK, map[string]interface{}{"permissions": entries})
}

// InvalidateSessions is the peer-facing endpoint of the invalidation
// fan-out.
func (h *AuthHandler) InvalidateSessions(w http.ResponseWriter, r *http.Request) {
	var req InvalidateSessionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	h.revoker.Revoke(req.UserRef, time.Now())
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeLoginResponse(w http.ResponseWriter, result *models.AuthResult, now time.Time) {
	token, expiresAt, err := h.tokens.IssueSessionToken(result, now)
	if err != nil {
		pkghttp.WriteInternalError(w, "Unable to issue session token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:              token,
		ExpiresAt:          expiresAt,
		TenantID:           result.TenantID,
		TenantNotUnique:    result.TenantNotUnique,
		MustChangePassword: result.MustChangePassword,
		PrevLogin:          result.PrevLogin,
		PrevLoginByMethod:  result.PrevLoginByMethod,
		IncorrectAttempts:  result.IncorrectAttempts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
