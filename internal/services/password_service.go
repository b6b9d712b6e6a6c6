package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mvollmer/gatehouse/internal/models"
	pkgauth "github.com/mvollmer/gatehouse/pkg/auth"
	pkglogger "github.com/mvollmer/gatehouse/pkg/logger"
)

// UserRepository defines the interface for user master data access
type UserRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.User, error)
	GetByRef(ctx context.Context, ref string) (*models.User, error)
	GetActiveByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
}

// mustChangeGrace bounds the session issued on an expired-password login.
// It has to be long enough to reach the change-password endpoint but no
// longer, since the credential itself is already past its expiry.
const mustChangeGrace = 15 * time.Minute

// PasswordConfig holds the lifecycle policy for password rows.
type PasswordConfig struct {
	ExpiryDays        int
	MaxInactivityDays int
	ResetValidity     time.Duration
}

// PasswordAuthenticator verifies password and reset-password credentials
// and drives the account status tracker and policy enforcer.
type PasswordAuthenticator struct {
	users     UserRepository
	passwords PasswordRepository
	tracker   *AccountStatusTracker
	policy    *PasswordPolicyEnforcer
	hasher    PasswordHasher
	cfg       PasswordConfig
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
}

func NewPasswordAuthenticator(
	users UserRepository,
	passwords PasswordRepository,
	tracker *AccountStatusTracker,
	policy *PasswordPolicyEnforcer,
	hasher PasswordHasher,
	cfg PasswordConfig,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		users:     users,
		passwords: passwords,
		tracker:   tracker,
		policy:    policy,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger,
		audit:     audit,
	}
}

// Authenticate verifies the supplied password for the user. A non-blank
// newPassword changes the password in the same transaction-scoped unit,
// which is mandatory when the current one has expired.
func (s *PasswordAuthenticator) Authenticate(ctx context.Context, now time.Time, userID, suppliedPassword, newPassword string) (*models.AuthResult, error) {
	user, err := s.users.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password authentication failed, unknown user")
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive || user.OnlyExternalAuth {
		s.logger.Info("password authentication refused for user",
			slog.String("user_id", user.UserID),
			slog.Bool("is_active", user.IsActive),
			slog.Bool("only_external_auth", user.OnlyExternalAuth))
		return nil, models.ErrUserNotFound
	}

	status, err := s.tracker.Load(ctx, user.Ref)
	if err != nil {
		return nil, err
	}
	// Throttle check happens before any hash computation.
	if err := s.tracker.CheckThrottle(status, now); err != nil {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.UserID,
			Method:        string(models.AuthMethodPassword),
			FailureReason: "account_frozen",
		})
		return nil, err
	}

	current, err := s.passwords.GetBySerial(ctx, user.Ref, status.CurrentPasswordSerialNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrPasswordNotFound
		}
		return nil, fmt.Errorf("failed to load current password: %w", err)
	}

	hash := s.hasher.Hash(user.UserID, suppliedPassword)

	result := &models.AuthResult{
		User:              user,
		TenantID:          user.TenantID,
		Method:            models.AuthMethodPassword,
		RoleRef:           user.RoleRef,
		PrevLogin:         status.LastLogin,
		PrevLoginByMethod: status.LastLoginByPassword,
		IncorrectAttempts: status.NumberOfIncorrectAttempts,
	}

	if pkgauth.Equal(current.PasswordHash, hash) {
		return s.primaryMatch(ctx, now, user, status, current, newPassword, result)
	}

	if current.ResetValidAt(now, s.cfg.ResetValidity) && pkgauth.Equal(current.ResetPasswordHash, hash) {
		return s.resetMatch(ctx, now, user, status, suppliedPassword, result)
	}

	// No match: count the failure, possibly opening a throttle window.
	if err := s.tracker.RecordFailure(ctx, status, now); err != nil {
		return nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        user.UserID,
		Method:        string(models.AuthMethodPassword),
		FailureReason: "wrong_password",
	})
	result.Status = status
	result.IncorrectAttempts = status.NumberOfIncorrectAttempts
	return result, models.ErrWrongPassword
}

func (s *PasswordAuthenticator) primaryMatch(ctx context.Context, now time.Time, user *models.User, status *models.UserStatus,
	current *models.Password, newPassword string, result *models.AuthResult) (*models.AuthResult, error) {

	gotNewPassword := strings.TrimSpace(newPassword) != ""
	expired := current.ExpiredAt(now)

	authExpires := current.PasswordExpiry

	switch {
	case !expired && !gotNewPassword:
		// plain success
	case gotNewPassword:
		replacement, err := s.ChangeToNewPassword(ctx, now, user, status, newPassword)
		if err != nil {
			return nil, err
		}
		authExpires = replacement.PasswordExpiry
	default:
		// expired and no replacement supplied: success, but the caller
		// has to change the password before doing anything else. The
		// expiry already lies in the past, so grant a short grace
		// window; otherwise the issued session would be dead on arrival.
		result.MustChangePassword = true
		authExpires = now.Add(mustChangeGrace)
	}

	// A pending self-service reset is obsolete once the real password
	// matched again.
	if len(current.ResetPasswordHash) > 0 {
		current.ResetPasswordHash = nil
		current.WhenLastPasswordReset = nil
		if err := s.passwords.SaveResetFields(ctx, current); err != nil {
			return nil, fmt.Errorf("failed to clear pending reset: %w", err)
		}
	}

	if err := s.tracker.RecordSuccess(ctx, status, now, models.AuthMethodPassword); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.UserID,
		TenantID:  user.TenantID,
		Method:    string(models.AuthMethodPassword),
		Success:   true,
	})

	result.Status = status
	result.AuthExpires = &authExpires
	return result, nil
}

func (s *PasswordAuthenticator) resetMatch(ctx context.Context, now time.Time, user *models.User, status *models.UserStatus,
	suppliedPassword string, result *models.AuthResult) (*models.AuthResult, error) {

	// The supplied one-time password becomes the new current password.
	// Policy checks are skipped here, matching the provisioning path: the
	// value was generated by us.
	replacement, err := s.SetPassword(ctx, now, user, status, suppliedPassword)
	if err != nil {
		return nil, err
	}

	if err := s.tracker.RecordSuccess(ctx, status, now, models.AuthMethodPassword); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.UserID,
		TenantID:  user.TenantID,
		Method:    string(models.AuthMethodPassword),
		Success:   true,
		Metadata:  map[string]string{"via": "reset_password"},
	})

	result.Status = status
	authExpires := replacement.PasswordExpiry
	result.MustChangePassword = replacement.ExpiredAt(now)
	if result.MustChangePassword {
		authExpires = now.Add(mustChangeGrace)
	}
	result.AuthExpires = &authExpires
	return result, nil
}

// ChangeToNewPassword validates the candidate against the password policy
// and installs it as the new current password.
func (s *PasswordAuthenticator) ChangeToNewPassword(ctx context.Context, now time.Time, user *models.User, status *models.UserStatus, newPassword string) (*models.Password, error) {
	if err := s.policy.Validate(ctx, now, user, newPassword); err != nil {
		s.audit.LogPasswordChange("password_change", user.UserID, false)
		return nil, err
	}
	replacement, err := s.SetPassword(ctx, now, user, status, newPassword)
	if err != nil {
		return nil, err
	}
	s.audit.LogPasswordChange("password_change", user.UserID, true)
	return replacement, nil
}

// SetPassword creates the next password row (serial = current+1) and
// advances the status serial. No policy checks; callers that accept
// user-chosen values go through ChangeToNewPassword.
func (s *PasswordAuthenticator) SetPassword(ctx context.Context, now time.Time, user *models.User, status *models.UserStatus, plaintext string) (*models.Password, error) {
	status.CurrentPasswordSerialNumber++

	row := &models.Password{
		UserRef:          user.Ref,
		SerialNumber:     status.CurrentPasswordSerialNumber,
		PasswordHash:     s.hasher.Hash(user.UserID, plaintext),
		PasswordCreation: now,
		PasswordExpiry:   now.AddDate(0, 0, s.cfg.ExpiryDays),
		UserExpiry:       now.AddDate(0, 0, s.cfg.MaxInactivityDays),
	}
	if err := s.passwords.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to store new password: %w", err)
	}

	s.logger.Debug("password changed", slog.String("user_id", user.UserID),
		slog.Int("serial", row.SerialNumber))
	return row, nil
}

// RequestReset stores a one-time reset hash on the current password row
// and returns the generated plaintext for delivery to the user. Callers
// enforce the per-user rate limit and email match.
func (s *PasswordAuthenticator) RequestReset(ctx context.Context, now time.Time, user *models.User, status *models.UserStatus) (string, error) {
	current, err := s.passwords.GetBySerial(ctx, user.Ref, status.CurrentPasswordSerialNumber)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrPasswordNotFound
		}
		return "", fmt.Errorf("failed to load current password: %w", err)
	}

	generated, err := pkgauth.GenerateRandomPassword()
	if err != nil {
		return "", err
	}

	current.ResetPasswordHash = s.hasher.Hash(user.UserID, generated)
	current.WhenLastPasswordReset = &now
	if err := s.passwords.SaveResetFields(ctx, current); err != nil {
		return "", fmt.Errorf("failed to store reset hash: %w", err)
	}

	s.audit.LogPasswordChange("password_reset_requested", user.UserID, true)
	return generated, nil
}
