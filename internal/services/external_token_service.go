package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mvollmer/gatehouse/internal/models"
	"github.com/mvollmer/gatehouse/pkg/logger"
)

// ReconcileConfig guards which fields of the local user record a
// federated login is allowed to update.
type ReconcileConfig struct {
	UpdateIdentityProvider  bool
	EnforceIdentityProvider bool
	UpdateExternalID        bool
	UpdateNameAndEmail      bool
}

const (
	// maxExternalIDLength matches the external_id column width.
	maxExternalIDLength = 36
	// maxNameLength matches the name column width.
	maxNameLength = 80
)

// ExternalTokenAuthenticator binds an already-validated federated claim
// set to a local user record. Signature verification happens upstream;
// this component only decides whether the claims identify a local user
// and reconciles claim data onto the record.
type ExternalTokenAuthenticator struct {
	users   UserRepository
	tracker *AccountStatusTracker
	cfg     ReconcileConfig
	logger  *slog.Logger
	audit   *logger.AuditLogger
}

func NewExternalTokenAuthenticator(users UserRepository, tracker *AccountStatusTracker, cfg ReconcileConfig, log *slog.Logger, audit *logger.AuditLogger) *ExternalTokenAuthenticator {
	return &ExternalTokenAuthenticator{
		users:   users,
		tracker: tracker,
		cfg:     cfg,
		logger:  log,
		audit:   audit,
	}
}

// Authenticate resolves the claims to a local user, reconciles claim
// fields onto the record and records the login. An unmatched claim set
// returns ErrNotAuthenticated so the caller may try another method.
func (a *ExternalTokenAuthenticator) Authenticate(ctx context.Context, now time.Time, claims models.ExternalTokenClaims) (*models.AuthResult, error) {
	user, err := a.resolve(ctx, claims)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		a.logger.Info("federated claims match no active local user",
			slog.String("upn", claims.UPN),
			slog.String("idp", claims.IDP))
		return nil, models.ErrNotAuthenticated
	}

	if !user.ExternalAuth {
		a.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "login_denied",
			UserID:        user.UserID,
			TenantID:      user.TenantID,
			Method:        string(models.AuthMethodExternalToken),
			Success:       false,
			FailureReason: "external_auth_disabled",
		})
		return nil, models.ErrNotAuthenticated
	}

	if err := a.reconcile(ctx, user, claims); err != nil {
		return nil, err
	}

	status, err := a.tracker.LoadOrCreate(ctx, user.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load login status: %w", err)
	}
	result := &models.AuthResult{
		User:              user,
		TenantID:          user.TenantID,
		Status:            status,
		Method:            models.AuthMethodExternalToken,
		RoleRef:           user.RoleRef,
		TenantNotUnique:   user.TenantID == models.GlobalTenantID,
		PrevLogin:         status.LastLogin,
		PrevLoginByMethod: status.LastLoginByToken,
		IncorrectAttempts: status.NumberOfIncorrectAttempts,
	}
	if err := a.tracker.RecordSuccess(ctx, status, now, models.AuthMethodExternalToken); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	a.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login_success",
		UserID:    user.UserID,
		TenantID:  user.TenantID,
		Method:    string(models.AuthMethodExternalToken),
		Success:   true,
	})
	return result, nil
}

// resolve tries the oid binding first, then the corroborated UPN binding.
// A nil user with nil error means "no match".
func (a *ExternalTokenAuthenticator) resolve(ctx context.Context, claims models.ExternalTokenClaims) (*models.User, error) {
	if claims.OID != "" {
		user, err := a.users.GetActiveByExternalID(ctx, claims.OID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user by external id: %w", err)
		}
	}

	localPart, domain, ok := splitUPN(claims.UPN)
	if !ok {
		return nil, nil
	}
	user, err := a.users.GetByUserID(ctx, localPart)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up user by id: %w", err)
	}

	// The localpart match alone is not proof of identity. Either the
	// stored identity provider must match the issuing one, or the user's
	// email domain must match the UPN domain.
	if user.IdentityProvider != nil && *user.IdentityProvider != "" {
		if *user.IdentityProvider == claims.IDP {
			return user, nil
		}
		a.logger.Info("identity provider mismatch on UPN match",
			slog.String("user_id", user.UserID),
			slog.String("claim_idp", claims.IDP))
		return nil, nil
	}
	if user.EmailAddress != nil {
		if _, emailDomain, ok := splitUPN(*user.EmailAddress); ok && emailDomain == domain {
			return user, nil
		}
	}
	a.logger.Info("UPN match not corroborated",
		slog.String("user_id", user.UserID),
		slog.String("upn_domain", domain))
	return nil, nil
}

// reconcile copies claim data onto the user record where configuration
// allows, persisting only when something changed.
func (a *ExternalTokenAuthenticator) reconcile(ctx context.Context, user *models.User, claims models.ExternalTokenClaims) error {
	changed := false

	if user.IdentityProvider == nil || *user.IdentityProvider == "" {
		if a.cfg.UpdateIdentityProvider && claims.IDP != "" {
			idp := claims.IDP
			user.IdentityProvider = &idp
			changed = true
		}
	} else if a.cfg.EnforceIdentityProvider && *user.IdentityProvider != claims.IDP {
		a.audit.LogAuthAttempt(logger.AuditEvent{
			EventType:     "login_denied",
			UserID:        user.UserID,
			TenantID:      user.TenantID,
			Method:        string(models.AuthMethodExternalToken),
			Success:       false,
			FailureReason: "identity_provider_mismatch",
		})
		return models.ErrIdentityProviderMismatch
	}

	if a.cfg.UpdateExternalID && user.ExternalID == nil && claims.OID != "" && len(claims.OID) <= maxExternalIDLength {
		oid := claims.OID
		user.ExternalID = &oid
		changed = true
	}

	if a.cfg.UpdateNameAndEmail {
		if name := truncate(claims.Name, maxNameLength); name != "" && name != user.Name {
			user.Name = name
			changed = true
		}
		if claims.EmailAddress != "" && (user.EmailAddress == nil || *user.EmailAddress != claims.EmailAddress) {
			email := claims.EmailAddress
			user.EmailAddress = &email
			changed = true
		}
	}

	if !changed {
		return nil
	}
	if _, err := a.users.Update(ctx, user); err != nil {
		// Reconciliation is best-effort; a stale name must not block the
		// login itself.
		a.logger.Warn("failed to persist claim reconciliation",
			slog.String("user_id", user.UserID),
			slog.Any("error", err))
	}
	return nil
}

// splitUPN splits localpart@domain, requiring both sides non-empty.
func splitUPN(s string) (local, domain string, ok bool) {
	i := strings.LastIndex(s, "@")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
