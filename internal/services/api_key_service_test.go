package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvollmer/gatehouse/internal/models"
	pkglogger "github.com/mvollmer/gatehouse/pkg/logger"
)

func newAPIKeyFixture(keys *MockAPIKeyRepository, users *MockUserRepository) (*APIKeyAuthenticator, *MockUserStatusRepository) {
	logger := slog.Default()
	statuses := &MockUserStatusRepository{}
	tracker := NewAccountStatusTracker(statuses, testThrottleConfig(), logger)
	auth := NewAPIKeyAuthenticator(keys, users, tracker, logger, pkglogger.NewAuditLogger(logger))
	return auth, statuses
}

func TestAPIKeyAuthenticator_Success(t *testing.T) {
	keyValue := uuid.New()
	owner := NewTestUser("ref-owner", "owner", "acme")

	keys := &MockAPIKeyRepository{
		GetByKeyFunc: func(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
			if key == keyValue {
				return &models.APIKey{
					ID:       "key1",
					Key:      keyValue,
					UserRef:  "ref-owner",
					IsActive: true,
					LogLevel: models.LogLevelFull,
				}, nil
			}
			return nil, models.ErrNotFound
		},
	}
	users := &MockUserRepository{
		GetByRefFunc: func(ctx context.Context, ref string) (*models.User, error) {
			return owner, nil
		},
	}
	auth, statuses := newAPIKeyFixture(keys, users)

	result, err := auth.Authenticate(context.Background(), time.Now(), keyValue.String())

	require.NoError(t, err)
	assert.Equal(t, models.AuthMethodAPIKey, result.Method)
	assert.Equal(t, "owner", result.User.UserID)
	require.Len(t, statuses.Saved, 1)
	assert.NotNil(t, statuses.Saved[0].LastLoginByAPIKey)
}

func TestAPIKeyAuthenticator_StealthKeyMutatesNoStatus(t *testing.T) {
	keyValue := uuid.New()
	owner := NewTestUser("ref-owner", "owner", "acme")

	keys := &MockAPIKeyRepository{
		GetByKeyFunc: func(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
			return &models.APIKey{
				ID:       "key1",
				Key:      keyValue,
				UserRef:  "ref-owner",
				IsActive: true,
				LogLevel: models.LogLevelStealth,
			}, nil
		},
	}
	users := &MockUserRepository{
		GetByRefFunc: func(ctx context.Context, ref string) (*models.User, error) {
			return owner, nil
		},
	}

	statusReads := 0
	auth, statuses := newAPIKeyFixture(keys, users)
	statuses.GetByUserRefFunc = func(ctx context.Context, userRef string) (*models.UserStatus, error) {
		statusReads++
		return nil, models.ErrNotFound
	}

	result, err := auth.Authenticate(context.Background(), time.Now(), keyValue.String())

	require.NoError(t, err)
	assert.Nil(t, result.Status)
	assert.Equal(t, 0, statusReads)
	assert.Empty(t, statuses.Saved)
}

func TestAPIKeyAuthenticator_RoleOverride(t *testing.T) {
	keyValue := uuid.New()
	owner := NewTestUser("ref-owner", "owner", "acme")
	owner.RoleRef = strptr("user-role")

	keys := &MockAPIKeyRepository{
		GetByKeyFunc: func(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
			return &models.APIKey{
				ID:       "key1",
				Key:      keyValue,
				UserRef:  "ref-owner",
				RoleRef:  strptr("pinned-role"),
				IsActive: true,
				LogLevel: models.LogLevelRequests,
			}, nil
		},
	}
	users := &MockUserRepository{
		GetByRefFunc: func(ctx context.Context, ref string) (*models.User, error) {
			return owner, nil
		},
	}
	auth, _ := newAPIKeyFixture(keys, users)

	result, err := auth.Authenticate(context.Background(), time.Now(), keyValue.String())

	require.NoError(t, err)
	require.NotNil(t, result.RoleRef)
	assert.Equal(t, "pinned-role", *result.RoleRef)
}

func TestAPIKeyAuthenticator_ExpiredKeyRejected(t *testing.T) {
	keyValue := uuid.New()
	expired := time.Now().Add(-time.Hour)

	keys := &MockAPIKeyRepository{
		GetByKeyFunc: func(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
			return &models.APIKey{
				ID:       "key1",
				Key:      keyValue,
				UserRef:  "ref-owner",
				IsActive: true,
				ValidTo:  &expired,
			}, nil
		},
	}
	auth, _ := newAPIKeyFixture(keys, &MockUserRepository{})

	_, err := auth.Authenticate(context.Background(), time.Now(), keyValue.String())
	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestAPIKeyAuthenticator_InactiveKeyRejected(t *testing.T) {
	keyValue := uuid.New()

	keys := &MockAPIKeyRepository{
		GetByKeyFunc: func(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
			return &models.APIKey{ID: "key1", Key: keyValue, UserRef: "ref-owner", IsActive: false}, nil
		},
	}
	auth, _ := newAPIKeyFixture(keys, &MockUserRepository{})

	_, err := auth.Authenticate(context.Background(), time.Now(), keyValue.String())
	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestAPIKeyAuthenticator_UnknownKeyRejected(t *testing.T) {
	auth, _ := newAPIKeyFixture(&MockAPIKeyRepository{}, &MockUserRepository{})

	_, err := auth.Authenticate(context.Background(), time.Now(), uuid.New().String())
	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestAPIKeyAuthenticator_MalformedKeyRejected(t *testing.T) {
	auth, _ := newAPIKeyFixture(&MockAPIKeyRepository{}, &MockUserRepository{})

	_, err := auth.Authenticate(context.Background(), time.Now(), "not-a-uuid")
	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestAPIKeyAuthenticator_InactiveUserRejected(t *testing.T) {
	keyValue := uuid.New()
	owner := NewTestUser("ref-owner", "owner", "acme")
	owner.IsActive = false

	keys := &MockAPIKeyRepository{
		GetByKeyFunc: func(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
			return &models.APIKey{ID: "key1", Key: keyValue, UserRef: "ref-owner", IsActive: true}, nil
		},
	}
	users := &MockUserRepository{
		GetByRefFunc: func(ctx context.Context, ref string) (*models.User, error) {
			return owner, nil
		},
	}
	auth, _ := newAPIKeyFixture(keys, users)

	_, err := auth.Authenticate(context.Background(), time.Now(), keyValue.String())
	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestAPIKeyAuthenticator_ValidToBecomesExpiryHint(t *testing.T) {
	keyValue := uuid.New()
	owner := NewTestUser("ref-owner", "owner", "acme")
	validTo := time.Now().Add(72 * time.Hour)

	keys := &MockAPIKeyRepository{
		GetByKeyFunc: func(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
			return &models.APIKey{
				ID:       "key1",
				Key:      keyValue,
				UserRef:  "ref-owner",
				IsActive: true,
				ValidTo:  &validTo,
				LogLevel: models.LogLevelRequests,
			}, nil
		},
	}
	users := &MockUserRepository{
		GetByRefFunc: func(ctx context.Context, ref string) (*models.User, error) {
			return owner, nil
		},
	}
	auth, _ := newAPIKeyFixture(keys, users)

	result, err := auth.Authenticate(context.Background(), time.Now(), keyValue.String())

	require.NoError(t, err)
	require.NotNil(t, result.AuthExpires)
	assert.Equal(t, validTo, *result.AuthExpires)
}
