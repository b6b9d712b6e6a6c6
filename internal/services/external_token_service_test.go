package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvollmer/gatehouse/internal/models"
	pkglogger "github.com/mvollmer/gatehouse/pkg/logger"
)

func newTokenFixture(users *MockUserRepository, cfg ReconcileConfig) (*ExternalTokenAuthenticator, *MockUserStatusRepository) {
	logger := slog.Default()
	statuses := &MockUserStatusRepository{}
	tracker := NewAccountStatusTracker(statuses, testThrottleConfig(), logger)
	auth := NewExternalTokenAuthenticator(users, tracker, cfg, logger, pkglogger.NewAuditLogger(logger))
	return auth, statuses
}

func TestExternalTokenAuthenticator_MatchByExternalID(t *testing.T) {
	carol := NewTestUser("ref-carol", "carol", "acme")
	carol.ExternalAuth = true
	carol.ExternalID = strptr("oid-123")

	users := &MockUserRepository{
		GetActiveByExternalIDFunc: func(ctx context.Context, externalID string) (*models.User, error) {
			if externalID == "oid-123" {
				return carol, nil
			}
			return nil, models.ErrNotFound
		},
	}
	auth, statuses := newTokenFixture(users, ReconcileConfig{})

	result, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		OID: "oid-123",
		UPN: "carol@example.com",
		IDP: "https://idp.example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "carol", result.User.UserID)
	assert.Equal(t, models.AuthMethodExternalToken, result.Method)
	require.Len(t, statuses.Saved, 1)
	assert.NotNil(t, statuses.Saved[0].LastLoginByToken)
}

func TestExternalTokenAuthenticator_UPNCorroboratedByIdentityProvider(t *testing.T) {
	dave := NewTestUser("ref-dave", "dave", "acme")
	dave.ExternalAuth = true
	dave.IdentityProvider = strptr("https://idp.example.com")

	users := &MockUserRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.User, error) {
			if userID == "dave" {
				return dave, nil
			}
			return nil, models.ErrNotFound
		},
	}
	auth, _ := newTokenFixture(users, ReconcileConfig{})

	result, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		UPN: "dave@somewhere.net",
		IDP: "https://idp.example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "dave", result.User.UserID)
}

func TestExternalTokenAuthenticator_UPNCorroboratedByEmailDomain(t *testing.T) {
	erin := NewTestUser("ref-erin", "erin", "acme")
	erin.ExternalAuth = true
	erin.EmailAddress = strptr("erin@example.com")

	users := &MockUserRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.User, error) {
			return erin, nil
		},
	}
	auth, _ := newTokenFixture(users, ReconcileConfig{})

	result, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		UPN: "erin@example.com",
		IDP: "https://idp.example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "erin", result.User.UserID)
}

func TestExternalTokenAuthenticator_UPNDomainMismatchRejected(t *testing.T) {
	bob := NewTestUser("ref-bob", "bob", "acme")
	bob.ExternalAuth = true
	bob.EmailAddress = strptr("bob@example.org")

	users := &MockUserRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.User, error) {
			return bob, nil
		},
	}
	auth, statuses := newTokenFixture(users, ReconcileConfig{})

	_, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		UPN: "bob@example.com",
		IDP: "https://idp.example.com",
	})

	assert.Equal(t, models.ErrNotAuthenticated, err)
	assert.Empty(t, statuses.Saved)
}

func TestExternalTokenAuthenticator_IdentityProviderMismatchRejected(t *testing.T) {
	dave := NewTestUser("ref-dave", "dave", "acme")
	dave.ExternalAuth = true
	dave.IdentityProvider = strptr("https://idp.example.com")

	users := &MockUserRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.User, error) {
			return dave, nil
		},
	}
	auth, _ := newTokenFixture(users, ReconcileConfig{})

	_, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		UPN: "dave@somewhere.net",
		IDP: "https://other-idp.example.net",
	})

	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestExternalTokenAuthenticator_NoMatchReturnsSoftFailure(t *testing.T) {
	auth, _ := newTokenFixture(&MockUserRepository{}, ReconcileConfig{})

	_, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		OID: "oid-unknown",
		UPN: "ghost@example.com",
	})

	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestExternalTokenAuthenticator_ExternalAuthDisabled(t *testing.T) {
	frank := NewTestUser("ref-frank", "frank", "acme")
	frank.ExternalID = strptr("oid-frank")

	users := &MockUserRepository{
		GetActiveByExternalIDFunc: func(ctx context.Context, externalID string) (*models.User, error) {
			return frank, nil
		},
	}
	auth, _ := newTokenFixture(users, ReconcileConfig{})

	_, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{OID: "oid-frank"})
	assert.Equal(t, models.ErrNotAuthenticated, err)
}

func TestExternalTokenAuthenticator_ReconcilesMissingFields(t *testing.T) {
	grace := NewTestUser("ref-grace", "grace", "acme")
	grace.ExternalAuth = true
	grace.EmailAddress = strptr("grace@example.com")

	var updated *models.User
	users := &MockUserRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.User, error) {
			return grace, nil
		},
		UpdateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			updated = user
			return user, nil
		},
	}
	auth, _ := newTokenFixture(users, ReconcileConfig{
		UpdateIdentityProvider: true,
		UpdateExternalID:       true,
		UpdateNameAndEmail:     true,
	})

	_, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		OID:          "oid-grace",
		UPN:          "grace@example.com",
		IDP:          "https://idp.example.com",
		Name:         "Grace Hopper",
		EmailAddress: "grace@example.com",
	})

	require.NoError(t, err)
	require.NotNil(t, updated)
	require.NotNil(t, updated.IdentityProvider)
	assert.Equal(t, "https://idp.example.com", *updated.IdentityProvider)
	require.NotNil(t, updated.ExternalID)
	assert.Equal(t, "oid-grace", *updated.ExternalID)
	assert.Equal(t, "Grace Hopper", updated.Name)
}

func TestExternalTokenAuthenticator_OversizedExternalIDNotAdopted(t *testing.T) {
	hank := NewTestUser("ref-hank", "hank", "acme")
	hank.ExternalAuth = true
	hank.IdentityProvider = strptr("https://idp.example.com")

	users := &MockUserRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.User, error) {
			return hank, nil
		},
	}
	auth, _ := newTokenFixture(users, ReconcileConfig{UpdateExternalID: true})

	longOID := "0123456789012345678901234567890123456789" // 40 chars
	_, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		OID: longOID,
		UPN: "hank@example.com",
		IDP: "https://idp.example.com",
	})

	require.NoError(t, err)
	assert.Nil(t, hank.ExternalID)
}

func TestExternalTokenAuthenticator_EnforcedIdentityProviderMismatch(t *testing.T) {
	ivy := NewTestUser("ref-ivy", "ivy", "acme")
	ivy.ExternalAuth = true
	ivy.ExternalID = strptr("oid-ivy")
	ivy.IdentityProvider = strptr("https://idp.example.com")

	users := &MockUserRepository{
		GetActiveByExternalIDFunc: func(ctx context.Context, externalID string) (*models.User, error) {
			return ivy, nil
		},
	}
	auth, _ := newTokenFixture(users, ReconcileConfig{EnforceIdentityProvider: true})

	_, err := auth.Authenticate(context.Background(), time.Now(), models.ExternalTokenClaims{
		OID: "oid-ivy",
		IDP: "https://rogue-idp.example.net",
	})

	assert.Equal(t, models.ErrIdentityProviderMismatch, err)
}

func TestSplitUPN(t *testing.T) {
	local, domain, ok := splitUPN("alice@example.com")
	require.True(t, ok)
	assert.Equal(t, "alice", local)
	assert.Equal(t, "example.com", domain)

	_, _, ok = splitUPN("no-at-sign")
	assert.False(t, ok)

	_, _, ok = splitUPN("@example.com")
	assert.False(t, ok)

	_, _, ok = splitUPN("alice@")
	assert.False(t, ok)
}
