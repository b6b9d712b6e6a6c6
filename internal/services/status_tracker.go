package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mvollmer/gatehouse/internal/models"
)

// UserStatusRepository defines the interface for login-state persistence.
// Mutate applies fn to the freshly loaded row and persists the outcome as
// one atomic unit; implementations serialize concurrent callers per row.
type UserStatusRepository interface {
	GetByUserRef(ctx context.Context, userRef string) (*models.UserStatus, error)
	Mutate(ctx context.Context, userRef string, fn func(*models.UserStatus) error) (*models.UserStatus, error)
}

// ThrottleConfig holds the lockout policy. The historical values are 5
// attempts and a 5 minute window.
type ThrottleConfig struct {
	MaxIncorrectAttempts int
	ThrottleDuration     time.Duration
}

// AccountStatusTracker owns the per-user login state machine: attempt
// counting, throttle windows and last-login bookkeeping.
type AccountStatusTracker struct {
	statuses UserStatusRepository
	cfg      ThrottleConfig
	logger   *slog.Logger
}

func NewAccountStatusTracker(statuses UserStatusRepository, cfg ThrottleConfig, logger *slog.Logger) *AccountStatusTracker {
	return &AccountStatusTracker{
		statuses: statuses,
		cfg:      cfg,
		logger:   logger,
	}
}

// Load returns the status row for the user, or ErrUserStatusNotFound.
func (t *AccountStatusTracker) Load(ctx context.Context, userRef string) (*models.UserStatus, error) {
	status, err := t.statuses.GetByUserRef(ctx, userRef)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUserStatusNotFound
		}
		return nil, err
	}
	return status, nil
}

// LoadOrCreate returns the status row, creating a fresh in-memory one if
// none exists yet. The row reaches the database only when a later success
// persists it.
func (t *AccountStatusTracker) LoadOrCreate(ctx context.Context, userRef string) (*models.UserStatus, error) {
	status, err := t.statuses.GetByUserRef(ctx, userRef)
	if err == nil {
		return status, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	return &models.UserStatus{UserRef: userRef}, nil
}

// CheckThrottle rejects the attempt while an active throttle window is
// open. This runs before any hash computation so a locked account leaks
// no timing signal about password correctness.
func (t *AccountStatusTracker) CheckThrottle(status *models.UserStatus, now time.Time) error {
	if status.ThrottledAt(now) {
		t.logger.Info("authentication rejected, account throttled",
			slog.String("user_ref", status.UserRef),
			slog.Time("throttled_until", *status.AccountThrottledUntil))
		return models.ErrAccountFrozen
	}
	return nil
}

// RecordFailure increments the attempt counter, opening a throttle window
// when the threshold is reached. The increment is applied to the row as
// it sits in the database, not to the copy loaded before hash
// verification, so concurrent failures each count.
func (t *AccountStatusTracker) RecordFailure(ctx context.Context, status *models.UserStatus, now time.Time) error {
	updated, err := t.statuses.Mutate(ctx, status.UserRef, func(s *models.UserStatus) error {
		s.NumberOfIncorrectAttempts++
		if s.NumberOfIncorrectAttempts >= t.cfg.MaxIncorrectAttempts {
			until := now.Add(t.cfg.ThrottleDuration)
			s.AccountThrottledUntil = &until
		}
		return nil
	})
	if err != nil {
		return err
	}

	*status = *updated
	if status.AccountThrottledUntil != nil {
		t.logger.Warn("account throttled after repeated failures",
			slog.String("user_ref", status.UserRef),
			slog.Int("attempts", status.NumberOfIncorrectAttempts),
			slog.Time("until", *status.AccountThrottledUntil))
	}
	return nil
}

// RecordSuccess records a successful login for the given method.
// Password and external-token logins additionally reset the attempt
// counter and clear the throttle window; API key logins leave the
// counter untouched. A serial number advanced by the caller (password
// change in the same unit) carries into the persisted row.
func (t *AccountStatusTracker) RecordSuccess(ctx context.Context, status *models.UserStatus, now time.Time, method models.AuthMethod) error {
	updated, err := t.statuses.Mutate(ctx, status.UserRef, func(s *models.UserStatus) error {
		if s.CurrentPasswordSerialNumber < status.CurrentPasswordSerialNumber {
			s.CurrentPasswordSerialNumber = status.CurrentPasswordSerialNumber
		}
		if method == models.AuthMethodPassword || method == models.AuthMethodExternalToken {
			s.NumberOfIncorrectAttempts = 0
			s.AccountThrottledUntil = nil
		}
		s.RecordLogin(now, method)
		return nil
	})
	if err != nil {
		return err
	}

	*status = *updated
	return nil
}
