package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvollmer/gatehouse/internal/models"
	pkgauth "github.com/mvollmer/gatehouse/pkg/auth"
)

func policyReason(t *testing.T, err error) string {
	t.Helper()
	var policyErr *models.PasswordPolicyError
	require.ErrorAs(t, err, &policyErr)
	return policyErr.Reason
}

func TestPasswordPolicyEnforcer_MinimumLength(t *testing.T) {
	hasher := pkgauth.NewHasherWithIterations(1)
	enforcer := NewPasswordPolicyEnforcer(&MockPasswordRepository{}, hasher,
		PolicyConfig{MinimumLength: 8}, slog.Default())
	user := NewTestUser("ref1", "alice", "acme")

	err := enforcer.Validate(context.Background(), time.Now(), user, "seven77")
	assert.Equal(t, models.PolicyReasonTooShort, policyReason(t, err))

	assert.NoError(t, enforcer.Validate(context.Background(), time.Now(), user, "eight888"))
}

func TestPasswordPolicyEnforcer_BlacklistExact(t *testing.T) {
	hasher := pkgauth.NewHasherWithIterations(1)
	enforcer := NewPasswordPolicyEnforcer(&MockPasswordRepository{}, hasher,
		PolicyConfig{Blacklist: []string{"password1"}, BlacklistCaseInsensitive: true}, slog.Default())
	user := NewTestUser("ref1", "alice", "acme")

	err := enforcer.Validate(context.Background(), time.Now(), user, "PASSWORD1")
	assert.Equal(t, models.PolicyReasonBlacklisted, policyReason(t, err))

	assert.NoError(t, enforcer.Validate(context.Background(), time.Now(), user, "password12"))
}

func TestPasswordPolicyEnforcer_BlacklistPrefix(t *testing.T) {
	hasher := pkgauth.NewHasherWithIterations(1)
	enforcer := NewPasswordPolicyEnforcer(&MockPasswordRepository{}, hasher,
		PolicyConfig{Blacklist: []string{"qwerty"}, BlacklistPrefixMode: true}, slog.Default())
	user := NewTestUser("ref1", "alice", "acme")

	err := enforcer.Validate(context.Background(), time.Now(), user, "qwerty12345")
	assert.Equal(t, models.PolicyReasonBlacklisted, policyReason(t, err))

	assert.NoError(t, enforcer.Validate(context.Background(), time.Now(), user, "uiop12345"))
}

func TestPasswordPolicyEnforcer_History(t *testing.T) {
	hasher := pkgauth.NewHasherWithIterations(1)
	user := NewTestUser("ref1", "alice", "acme")

	// Serial 5 is current; with depth 3 the repository returns serials
	// 5, 4 and 3. Serial 1 has aged out of the window.
	history := []*models.Password{
		{UserRef: "ref1", SerialNumber: 5, PasswordHash: hasher.Hash("alice", "pass-five")},
		{UserRef: "ref1", SerialNumber: 4, PasswordHash: hasher.Hash("alice", "pass-four")},
		{UserRef: "ref1", SerialNumber: 3, PasswordHash: hasher.Hash("alice", "pass-three")},
	}
	passwords := &MockPasswordRepository{
		ListRecentFunc: func(ctx context.Context, userRef string, n int) ([]*models.Password, error) {
			require.Equal(t, 3, n)
			return history, nil
		},
	}
	enforcer := NewPasswordPolicyEnforcer(passwords, hasher,
		PolicyConfig{HistoryDepth: 3}, slog.Default())

	// Two changes ago: still inside the window.
	err := enforcer.Validate(context.Background(), time.Now(), user, "pass-three")
	assert.Equal(t, models.PolicyReasonRecentlyUsed, policyReason(t, err))

	// Four changes ago: outside the window, acceptable again.
	assert.NoError(t, enforcer.Validate(context.Background(), time.Now(), user, "pass-one"))
}

func TestPasswordPolicyEnforcer_ReuseBlockingPeriod(t *testing.T) {
	hasher := pkgauth.NewHasherWithIterations(1)
	user := NewTestUser("ref1", "alice", "acme")
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	candidateHash := hasher.Hash("alice", "recycled")
	passwords := &MockPasswordRepository{
		GetByHashFunc: func(ctx context.Context, userRef string, hash []byte) (*models.Password, error) {
			if pkgauth.Equal(hash, candidateHash) {
				return &models.Password{
					UserRef:          "ref1",
					SerialNumber:     2,
					PasswordHash:     candidateHash,
					PasswordCreation: now.AddDate(0, 0, -100),
				}, nil
			}
			return nil, models.ErrNotFound
		},
	}
	enforcer := NewPasswordPolicyEnforcer(passwords, hasher,
		PolicyConfig{ReuseBlockingDays: 180}, slog.Default())

	// Used 100 days ago with a 180 day blocking period: still blocked.
	err := enforcer.Validate(context.Background(), now, user, "recycled")
	assert.Equal(t, models.PolicyReasonReuseBlocked, policyReason(t, err))

	// Never used before: fine.
	assert.NoError(t, enforcer.Validate(context.Background(), now, user, "fresh value"))

	// Same hash but the blocking period has elapsed.
	shortEnforcer := NewPasswordPolicyEnforcer(passwords, hasher,
		PolicyConfig{ReuseBlockingDays: 90}, slog.Default())
	assert.NoError(t, shortEnforcer.Validate(context.Background(), now, user, "recycled"))
}

func TestBlacklistMatches(t *testing.T) {
	tests := []struct {
		name       string
		entry      string
		candidate  string
		prefixMode bool
		want       bool
	}{
		{"exact match", "hunter2", "hunter2", false, true},
		{"exact non-match", "hunter2", "hunter21", false, false},
		{"prefix match", "hunter", "hunter2000", true, true},
		{"prefix self match", "hunter", "hunter", true, true},
		{"prefix non-match below", "hunter", "huntR", true, false},
		{"prefix non-match disjoint", "hunter", "zebra", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BlacklistMatches(tt.entry, tt.candidate, tt.prefixMode))
		})
	}
}
