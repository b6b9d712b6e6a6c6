package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvollmer/gatehouse/internal/models"
)

func testThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxIncorrectAttempts: 5,
		ThrottleDuration:     5 * time.Minute,
	}
}

// seededStatusRepo backs the mock with a persistent row so Mutate
// operates on stored state, the way the real repository does.
func seededStatusRepo(row *models.UserStatus) *MockUserStatusRepository {
	return &MockUserStatusRepository{
		GetByUserRefFunc: func(ctx context.Context, userRef string) (*models.UserStatus, error) {
			return row, nil
		},
	}
}

func TestAccountStatusTracker_RecordFailure_OpensWindowAtThreshold(t *testing.T) {
	row := &models.UserStatus{UserRef: "ref1"}
	statusRepo := seededStatusRepo(row)
	tracker := NewAccountStatusTracker(statusRepo, testThrottleConfig(), slog.Default())

	now := time.Now()
	status := &models.UserStatus{UserRef: "ref1"}

	for i := 1; i <= 4; i++ {
		require.NoError(t, tracker.RecordFailure(context.Background(), status, now))
		assert.Equal(t, i, status.NumberOfIncorrectAttempts)
		assert.Nil(t, status.AccountThrottledUntil)
	}

	require.NoError(t, tracker.RecordFailure(context.Background(), status, now))
	assert.Equal(t, 5, status.NumberOfIncorrectAttempts)
	require.NotNil(t, status.AccountThrottledUntil)
	assert.Equal(t, now.Add(5*time.Minute), *status.AccountThrottledUntil)
	assert.Len(t, statusRepo.Saved, 5)
}

func TestAccountStatusTracker_RecordFailure_CountsAgainstStoredRow(t *testing.T) {
	// The caller's copy was loaded before hash verification and may be
	// stale. The increment must hit the stored row, so failures from
	// concurrent logins on other nodes are not lost.
	row := &models.UserStatus{UserRef: "ref1", NumberOfIncorrectAttempts: 4}
	statusRepo := seededStatusRepo(row)
	tracker := NewAccountStatusTracker(statusRepo, testThrottleConfig(), slog.Default())

	now := time.Now()
	stale := &models.UserStatus{UserRef: "ref1"}

	require.NoError(t, tracker.RecordFailure(context.Background(), stale, now))

	assert.Equal(t, 5, row.NumberOfIncorrectAttempts)
	require.NotNil(t, row.AccountThrottledUntil)
	assert.Equal(t, 5, stale.NumberOfIncorrectAttempts)
	require.NotNil(t, stale.AccountThrottledUntil)
	assert.Len(t, statusRepo.Saved, 1)
}

func TestAccountStatusTracker_CheckThrottle_RejectsInsideWindow(t *testing.T) {
	tracker := NewAccountStatusTracker(&MockUserStatusRepository{}, testThrottleConfig(), slog.Default())

	now := time.Now()
	until := now.Add(3 * time.Minute)
	status := &models.UserStatus{UserRef: "ref1", AccountThrottledUntil: &until}

	err := tracker.CheckThrottle(status, now)
	assert.Equal(t, models.ErrAccountFrozen, err)
}

func TestAccountStatusTracker_CheckThrottle_AllowsAfterWindowElapsed(t *testing.T) {
	tracker := NewAccountStatusTracker(&MockUserStatusRepository{}, testThrottleConfig(), slog.Default())

	now := time.Now()
	until := now.Add(-1 * time.Second)
	status := &models.UserStatus{UserRef: "ref1", AccountThrottledUntil: &until}

	assert.NoError(t, tracker.CheckThrottle(status, now))
}

func TestAccountStatusTracker_RecordSuccess_PasswordResetsCounter(t *testing.T) {
	now := time.Now()
	until := now.Add(3 * time.Minute)
	row := &models.UserStatus{
		UserRef:                   "ref1",
		NumberOfIncorrectAttempts: 4,
		AccountThrottledUntil:     &until,
	}
	statusRepo := seededStatusRepo(row)
	tracker := NewAccountStatusTracker(statusRepo, testThrottleConfig(), slog.Default())

	status := &models.UserStatus{UserRef: "ref1"}
	require.NoError(t, tracker.RecordSuccess(context.Background(), status, now, models.AuthMethodPassword))

	assert.Equal(t, 0, status.NumberOfIncorrectAttempts)
	assert.Nil(t, status.AccountThrottledUntil)
	require.NotNil(t, status.LastLogin)
	require.NotNil(t, status.LastLoginByPassword)
	assert.Len(t, statusRepo.Saved, 1)
}

func TestAccountStatusTracker_RecordSuccess_APIKeyKeepsCounter(t *testing.T) {
	row := &models.UserStatus{UserRef: "ref1", NumberOfIncorrectAttempts: 3}
	statusRepo := seededStatusRepo(row)
	tracker := NewAccountStatusTracker(statusRepo, testThrottleConfig(), slog.Default())

	now := time.Now()
	status := &models.UserStatus{UserRef: "ref1"}
	require.NoError(t, tracker.RecordSuccess(context.Background(), status, now, models.AuthMethodAPIKey))

	assert.Equal(t, 3, status.NumberOfIncorrectAttempts)
	require.NotNil(t, status.LastLoginByAPIKey)
	assert.Nil(t, status.LastLoginByPassword)
}

func TestAccountStatusTracker_RecordSuccess_CarriesAdvancedSerial(t *testing.T) {
	// A password change in the same login advances the serial on the
	// caller's copy. The persisted row must pick it up, and must never
	// move backwards when the stored row is already ahead.
	row := &models.UserStatus{UserRef: "ref1", CurrentPasswordSerialNumber: 3}
	statusRepo := seededStatusRepo(row)
	tracker := NewAccountStatusTracker(statusRepo, testThrottleConfig(), slog.Default())

	now := time.Now()
	status := &models.UserStatus{UserRef: "ref1", CurrentPasswordSerialNumber: 4}
	require.NoError(t, tracker.RecordSuccess(context.Background(), status, now, models.AuthMethodPassword))
	assert.Equal(t, 4, row.CurrentPasswordSerialNumber)

	row.CurrentPasswordSerialNumber = 6
	require.NoError(t, tracker.RecordSuccess(context.Background(), status, now, models.AuthMethodPassword))
	assert.Equal(t, 6, status.CurrentPasswordSerialNumber)
}

func TestAccountStatusTracker_RecordSuccess_TracksPrevLogin(t *testing.T) {
	row := &models.UserStatus{UserRef: "ref1"}
	statusRepo := seededStatusRepo(row)
	tracker := NewAccountStatusTracker(statusRepo, testThrottleConfig(), slog.Default())

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(48 * time.Hour)
	status := &models.UserStatus{UserRef: "ref1"}

	require.NoError(t, tracker.RecordSuccess(context.Background(), status, first, models.AuthMethodPassword))
	require.NoError(t, tracker.RecordSuccess(context.Background(), status, second, models.AuthMethodPassword))

	require.NotNil(t, status.PrevLogin)
	assert.Equal(t, first, *status.PrevLogin)
	assert.Equal(t, second, *status.LastLogin)
}

func TestAccountStatusTracker_Load_MapsMissingRow(t *testing.T) {
	tracker := NewAccountStatusTracker(&MockUserStatusRepository{}, testThrottleConfig(), slog.Default())

	_, err := tracker.Load(context.Background(), "nope")
	assert.Equal(t, models.ErrUserStatusNotFound, err)
}

func TestAccountStatusTracker_LoadOrCreate_ReturnsFreshRow(t *testing.T) {
	tracker := NewAccountStatusTracker(&MockUserStatusRepository{}, testThrottleConfig(), slog.Default())

	status, err := tracker.LoadOrCreate(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Equal(t, "ref1", status.UserRef)
	assert.Equal(t, 0, status.NumberOfIncorrectAttempts)
}
