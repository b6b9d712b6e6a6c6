package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mvollmer/gatehouse/internal/models"
	"github.com/mvollmer/gatehouse/pkg/logger"
)

// APIKeyRepository defines the interface for API key lookups
type APIKeyRepository interface {
	GetByKey(ctx context.Context, key uuid.UUID) (*models.APIKey, error)
}

// APIKeyAuthenticator verifies machine credentials. An API key may pin a
// role for the session and never participates in the attempt-counter
// state machine.
type APIKeyAuthenticator struct {
	keys    APIKeyRepository
	users   UserRepository
	tracker *AccountStatusTracker
	logger  *slog.Logger
	audit   *logger.AuditLogger
}

func NewAPIKeyAuthenticator(keys APIKeyRepository, users UserRepository, tracker *AccountStatusTracker, log *slog.Logger, audit *logger.AuditLogger) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		keys:    keys,
		users:   users,
		tracker: tracker,
		logger:  log,
		audit:   audit,
	}
}

// Authenticate resolves the key value to an active key within its
// validity window and an active bound user. Logins via a stealth key
// mutate no status row at all.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, now time.Time, rawKey string) (*models.AuthResult, error) {
	key, err := uuid.Parse(rawKey)
	if err != nil {
		a.logger.Info("API key rejected, not a valid key format",
			slog.String("key_prefix", logger.SafeKeyPrefix(rawKey)))
		return nil, models.ErrNotAuthenticated
	}

	apiKey, err := a.keys.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			a.logger.Info("API key rejected, unknown key",
				slog.String("key_prefix", logger.SafeKeyPrefix(rawKey)))
			return nil, models.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	if !apiKey.IsActive || !apiKey.ValidAt(now) {
		a.logger.Info("API key rejected, inactive or outside validity window",
			slog.String("key_prefix", logger.SafeKeyPrefix(rawKey)))
		return nil, models.ErrNotAuthenticated
	}

	user, err := a.users.GetByRef(ctx, apiKey.UserRef)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			a.logger.Error("API key bound to missing user",
				slog.String("api_key_id", apiKey.ID))
			return nil, models.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		a.logger.Info("API key rejected, bound user inactive",
			slog.String("user_id", user.UserID))
		return nil, models.ErrNotAuthenticated
	}

	// The key's role override pins the session role; otherwise the
	// user's own fixed role applies.
	roleRef := apiKey.RoleRef
	if roleRef == nil {
		roleRef = user.RoleRef
	}

	result := &models.AuthResult{
		User:            user,
		TenantID:        user.TenantID,
		APIKey:          apiKey,
		Method:          models.AuthMethodAPIKey,
		RoleRef:         roleRef,
		AuthExpires:     apiKey.ValidTo,
		TenantNotUnique: user.TenantID == models.GlobalTenantID,
	}

	if apiKey.LogLevel == models.LogLevelStealth {
		// Stealth keys leave no trace: no status row is created or
		// touched, and nothing is audited beyond this debug line.
		a.logger.Debug("stealth API key login",
			slog.String("api_key_id", apiKey.ID))
		return result, nil
	}

	status, err := a.tracker.LoadOrCreate(ctx, user.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load login status: %w", err)
	}
	result.Status = status
	result.PrevLogin = status.LastLogin
	result.PrevLoginByMethod = status.LastLoginByAPIKey
	result.IncorrectAttempts = status.NumberOfIncorrectAttempts
	if err := a.tracker.RecordSuccess(ctx, status, now, models.AuthMethodAPIKey); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	a.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login_success",
		UserID:    user.UserID,
		TenantID:  user.TenantID,
		Method:    string(models.AuthMethodAPIKey),
		Success:   true,
	})
	return result, nil
}
