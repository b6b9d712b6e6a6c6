package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mvollmer/gatehouse/internal/locks"
	"github.com/mvollmer/gatehouse/internal/models"
	"github.com/mvollmer/gatehouse/pkg/logger"
)

// CoordinatorConfig holds the cross-cutting policy the coordinator
// enforces on top of the individual authenticators.
type CoordinatorConfig struct {
	ResetRequestInterval time.Duration
	ResetValidity        time.Duration
}

// AuthCoordinator is the single surface this core presents upward. It
// owns per-user serialization for mutating flows and fans out session
// invalidation after credential changes; all verification logic lives in
// the per-method authenticators.
type AuthCoordinator struct {
	passwords   *PasswordAuthenticator
	apiKeys     *APIKeyAuthenticator
	tokens      *ExternalTokenAuthenticator
	tenants     *TenantVisibilityResolver
	permissions *PermissionAggregator
	tracker     *AccountStatusTracker
	users       UserRepository
	passwordRep PasswordRepository
	email       EmailService
	invalidator *SessionInvalidator
	userLocks   *locks.Arena
	cfg         CoordinatorConfig
	logger      *slog.Logger
}

func NewAuthCoordinator(
	passwords *PasswordAuthenticator,
	apiKeys *APIKeyAuthenticator,
	tokens *ExternalTokenAuthenticator,
	tenants *TenantVisibilityResolver,
	permissions *PermissionAggregator,
	tracker *AccountStatusTracker,
	users UserRepository,
	passwordRep PasswordRepository,
	email EmailService,
	invalidator *SessionInvalidator,
	userLocks *locks.Arena,
	cfg CoordinatorConfig,
	logger *slog.Logger,
) *AuthCoordinator {
	return &AuthCoordinator{
		passwords:   passwords,
		apiKeys:     apiKeys,
		tokens:      tokens,
		tenants:     tenants,
		permissions: permissions,
		tracker:     tracker,
		users:       users,
		passwordRep: passwordRep,
		email:       email,
		invalidator: invalidator,
		userLocks:   userLocks,
		cfg:         cfg,
		logger:      logger,
	}
}

// AuthenticateByPassword verifies a password login. A non-blank
// newPassword is applied in the same unit of work, which is the only way
// in when the current password has expired.
func (c *AuthCoordinator) AuthenticateByPassword(ctx context.Context, now time.Time, userID, password, newPassword string) (*models.AuthResult, error) {
	unlock := c.userLocks.Lock(userID)
	defer unlock()
	return c.passwords.Authenticate(ctx, now, userID, password, newPassword)
}

// AuthenticateByAPIKey verifies a machine credential.
func (c *AuthCoordinator) AuthenticateByAPIKey(ctx context.Context, now time.Time, rawKey string) (*models.AuthResult, error) {
	return c.apiKeys.Authenticate(ctx, now, rawKey)
}

// AuthenticateByExternalToken binds validated federated claims to a
// local user.
func (c *AuthCoordinator) AuthenticateByExternalToken(ctx context.Context, now time.Time, claims models.ExternalTokenClaims) (*models.AuthResult, error) {
	return c.tokens.Authenticate(ctx, now, claims)
}

// ChangePassword verifies the current password and replaces it with the
// new one, then invalidates the user's sessions on all peers. Only one
// change per user runs at a time.
func (c *AuthCoordinator) ChangePassword(ctx context.Context, now time.Time, userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return &models.PasswordPolicyError{Reason: models.PolicyReasonTooShort, Detail: "new password must not be blank"}
	}

	unlock := c.userLocks.Lock(userID)
	defer unlock()

	result, err := c.passwords.Authenticate(ctx, now, userID, currentPassword, newPassword)
	if err != nil {
		return err
	}

	c.invalidator.Invalidate(ctx, result.User.Ref, "password_change")
	return nil
}

// ResetPasswordRequest generates a one-time password, stores its hash on
// the current password row and emails it to the user's registered
// address. The supplied email must match the stored one; requests are
// limited to one per user per configured interval. All outcomes short of
// an infrastructure failure are reported as success to the caller so the
// endpoint does not leak which accounts exist.
func (c *AuthCoordinator) ResetPasswordRequest(ctx context.Context, now time.Time, userID, email string) error {
	unlock := c.userLocks.Lock(userID)
	defer unlock()

	user, err := c.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.logger.Info("password reset requested for unknown user")
			return nil
		}
		return fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive || user.OnlyExternalAuth {
		c.logger.Info("password reset refused for user",
			slog.String("user_id", user.UserID))
		return nil
	}
	if user.EmailAddress == nil || !strings.EqualFold(*user.EmailAddress, email) {
		c.logger.Info("password reset email mismatch",
			slog.String("user_id", user.UserID),
			slog.String("supplied_email", logger.SanitizedEmail(email)))
		return nil
	}

	status, err := c.tracker.Load(ctx, user.Ref)
	if err != nil {
		return err
	}

	current, err := c.passwordRep.GetBySerial(ctx, user.Ref, status.CurrentPasswordSerialNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrPasswordNotFound
		}
		return fmt.Errorf("failed to load current password: %w", err)
	}
	if current.WhenLastPasswordReset != nil && current.WhenLastPasswordReset.Add(c.cfg.ResetRequestInterval).After(now) {
		c.logger.Info("password reset rate limit hit",
			slog.String("user_id", user.UserID))
		return models.ErrRateLimitExceeded
	}

	generated, err := c.passwords.RequestReset(ctx, now, user, status)
	if err != nil {
		return err
	}

	return c.email.SendPasswordReset(ctx, *user.EmailAddress, user.UserID, generated, now.Add(c.cfg.ResetValidity))
}

// GetEffectivePermissions returns the merged permission set for the
// session's user within its tenant, honoring a pinned role.
func (c *AuthCoordinator) GetEffectivePermissions(ctx context.Context, userRef, tenantID string, roleRef *string) []models.PermissionEntry {
	return c.permissions.EffectivePermissions(ctx, userRef, tenantID, roleRef)
}

// GetVisibleTenants returns the tenants the user may select.
func (c *AuthCoordinator) GetVisibleTenants(ctx context.Context, userRef string) ([]models.TenantDescription, error) {
	return c.tenants.AllowedTenants(ctx, userRef)
}
