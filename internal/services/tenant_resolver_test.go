package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvollmer/gatehouse/internal/models"
)

var testTenants = map[string]*models.Tenant{
	"acme":  {ID: "acme", Name: "Acme Corp", IsActive: true},
	"globex": {ID: "globex", Name: "Globex", IsActive: true},
	"umbrella": {ID: "umbrella", Name: "Umbrella", IsActive: true},
}

func newTenantFixture(user *models.User) (*TenantVisibilityResolver, *MockRoleRepository) {
	users := &MockUserRepository{
		GetByRefFunc: func(ctx context.Context, ref string) (*models.User, error) {
			if user != nil && ref == user.Ref {
				return user, nil
			}
			return nil, models.ErrNotFound
		},
	}
	tenants := &MockTenantRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Tenant, error) {
			if t, ok := testTenants[id]; ok {
				return t, nil
			}
			return nil, models.ErrNotFound
		},
		ListByIDsFunc: func(ctx context.Context, ids []string) ([]*models.Tenant, error) {
			out := make([]*models.Tenant, 0, len(ids))
			for _, id := range ids {
				if t, ok := testTenants[id]; ok {
					out = append(out, t)
				}
			}
			return out, nil
		},
		ListAllFunc: func(ctx context.Context) ([]*models.Tenant, error) {
			return []*models.Tenant{testTenants["acme"], testTenants["globex"], testTenants["umbrella"]}, nil
		},
	}
	roles := &MockRoleRepository{}
	resolver := NewTenantVisibilityResolver(users, tenants, roles, slog.Default())
	return resolver, roles
}

func tenantIDs(descs []models.TenantDescription) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.TenantID)
	}
	return out
}

func TestTenantVisibilityResolver_UserAssignmentWins(t *testing.T) {
	user := NewTestUser("ref1", "alice", "acme")
	resolver, _ := newTenantFixture(user)

	descs, err := resolver.AllowedTenants(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, tenantIDs(descs))
}

func TestTenantVisibilityResolver_FixedRoleSpecificTenant(t *testing.T) {
	user := NewTestUser("ref1", "alice", models.GlobalTenantID)
	user.RoleRef = strptr("role1")
	resolver, roles := newTenantFixture(user)
	roles.GetByRefFunc = func(ctx context.Context, ref string) (*models.Role, error) {
		return &models.Role{Ref: "role1", RoleID: "auditor", TenantID: "globex"}, nil
	}

	descs, err := resolver.AllowedTenants(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Equal(t, []string{"globex"}, tenantIDs(descs))
}

func TestTenantVisibilityResolver_GlobalFixedRoleSeesAll(t *testing.T) {
	user := NewTestUser("ref1", "alice", models.GlobalTenantID)
	user.RoleRef = strptr("role1")
	resolver, roles := newTenantFixture(user)
	roles.GetByRefFunc = func(ctx context.Context, ref string) (*models.Role, error) {
		return &models.Role{Ref: "role1", RoleID: "admin", TenantID: models.GlobalTenantID}, nil
	}

	descs, err := resolver.AllowedTenants(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Len(t, descs, 3)
}

func TestTenantVisibilityResolver_DoubleGlobalPairShortCircuits(t *testing.T) {
	user := NewTestUser("ref1", "alice", models.GlobalTenantID)
	resolver, roles := newTenantFixture(user)
	roles.ListTenantPairsFunc = func(ctx context.Context, userRef string) ([]models.TenantPair, error) {
		return []models.TenantPair{
			{AssignmentTenantID: "acme", RoleTenantID: "acme"},
			{AssignmentTenantID: models.GlobalTenantID, RoleTenantID: models.GlobalTenantID},
		}, nil
	}

	descs, err := resolver.AllowedTenants(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Len(t, descs, 3)
}

func TestTenantVisibilityResolver_PairsAccumulateEffectiveTenants(t *testing.T) {
	user := NewTestUser("ref1", "alice", models.GlobalTenantID)
	resolver, roles := newTenantFixture(user)
	roles.ListTenantPairsFunc = func(ctx context.Context, userRef string) ([]models.TenantPair, error) {
		return []models.TenantPair{
			{AssignmentTenantID: "acme", RoleTenantID: models.GlobalTenantID},
			{AssignmentTenantID: models.GlobalTenantID, RoleTenantID: "globex"},
			{AssignmentTenantID: "acme", RoleTenantID: "acme"},
		}, nil
	}

	descs, err := resolver.AllowedTenants(context.Background(), "ref1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"acme", "globex"}, tenantIDs(descs))
}

func TestTenantVisibilityResolver_NoMembershipsWildcardEscapeHatch(t *testing.T) {
	user := NewTestUser("ref1", "alice", models.GlobalTenantID)
	user.ResourceIsWildcard = true
	resolver, _ := newTenantFixture(user)

	descs, err := resolver.AllowedTenants(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Len(t, descs, 3)
}

func TestTenantVisibilityResolver_NoMembershipsNoAccessYet(t *testing.T) {
	user := NewTestUser("ref1", "alice", models.GlobalTenantID)
	resolver, _ := newTenantFixture(user)

	descs, err := resolver.AllowedTenants(context.Background(), "ref1")
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestTenantVisibilityResolver_UnknownUser(t *testing.T) {
	resolver, _ := newTenantFixture(nil)

	_, err := resolver.AllowedTenants(context.Background(), "ghost")
	assert.Equal(t, models.ErrUserNotFound, err)
}
