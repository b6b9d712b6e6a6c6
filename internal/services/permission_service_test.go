package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvollmer/gatehouse/internal/models"
)

func TestMergeSorted_UnionsSameResource(t *testing.T) {
	merged := MergeSorted([]models.PermissionEntry{
		{ResourceID: "R", Permissions: 0b01},
		{ResourceID: "R", Permissions: 0b10},
	})
	require.Len(t, merged, 1)
	assert.Equal(t, models.Permissions(0b11), merged[0].Permissions)
}

func TestMergeSorted_Idempotent(t *testing.T) {
	entries := []models.PermissionEntry{
		{ResourceID: "A", Permissions: models.PermRead},
		{ResourceID: "A", Permissions: models.PermRead | models.PermUpdate},
		{ResourceID: "B", Permissions: models.PermExecute},
	}
	once := MergeSorted(entries)
	twice := MergeSorted(once)
	assert.Equal(t, once, twice)
}

func TestMergeSorted_Commutative(t *testing.T) {
	ab := MergeSorted([]models.PermissionEntry{
		{ResourceID: "R", Permissions: 0b01},
		{ResourceID: "R", Permissions: 0b10},
	})
	ba := MergeSorted([]models.PermissionEntry{
		{ResourceID: "R", Permissions: 0b10},
		{ResourceID: "R", Permissions: 0b01},
	})
	assert.Equal(t, ab, ba)
}

func TestMergeSorted_PreservesOrderAcrossResources(t *testing.T) {
	merged := MergeSorted([]models.PermissionEntry{
		{ResourceID: "a.read", Permissions: models.PermRead},
		{ResourceID: "a.read", Permissions: models.PermSearch},
		{ResourceID: "b.write", Permissions: models.PermUpdate},
		{ResourceID: "c.exec", Permissions: models.PermExecute},
		{ResourceID: "c.exec", Permissions: models.PermAdmin},
	})
	require.Len(t, merged, 3)
	assert.Equal(t, "a.read", merged[0].ResourceID)
	assert.Equal(t, models.PermRead|models.PermSearch, merged[0].Permissions)
	assert.Equal(t, "b.write", merged[1].ResourceID)
	assert.Equal(t, "c.exec", merged[2].ResourceID)
	assert.Equal(t, models.PermExecute|models.PermAdmin, merged[2].Permissions)
}

func TestMergeSorted_Empty(t *testing.T) {
	assert.Empty(t, MergeSorted(nil))
}

func TestPermissionAggregator_RoleRestricted(t *testing.T) {
	perms := &MockPermissionRepository{
		ListForRoleFunc: func(ctx context.Context, roleRef string, tenantID string) ([]models.PermissionEntry, error) {
			assert.Equal(t, "role1", roleRef)
			return []models.PermissionEntry{
				{ResourceID: "reports", Permissions: models.PermRead},
			}, nil
		},
	}
	agg := NewPermissionAggregator(perms, slog.Default())

	entries := agg.EffectivePermissions(context.Background(), "ref1", "acme", strptr("role1"))
	require.Len(t, entries, 1)
	assert.Equal(t, "reports", entries[0].ResourceID)
}

func TestPermissionAggregator_UnrestrictedMergesAcrossRoles(t *testing.T) {
	perms := &MockPermissionRepository{
		ListForUserFunc: func(ctx context.Context, userRef string, tenantID string) ([]models.PermissionEntry, error) {
			return []models.PermissionEntry{
				{ResourceID: "orders", Permissions: models.PermRead},
				{ResourceID: "orders", Permissions: models.PermCreate},
				{ResourceID: "reports", Permissions: models.PermRead},
			}, nil
		},
	}
	agg := NewPermissionAggregator(perms, slog.Default())

	entries := agg.EffectivePermissions(context.Background(), "ref1", "acme", nil)
	require.Len(t, entries, 2)
	assert.Equal(t, models.PermRead|models.PermCreate, entries[0].Permissions)
}

func TestPermissionAggregator_FailsClosed(t *testing.T) {
	perms := &MockPermissionRepository{
		ListForUserFunc: func(ctx context.Context, userRef string, tenantID string) ([]models.PermissionEntry, error) {
			return nil, models.ErrInternalServer
		},
	}
	agg := NewPermissionAggregator(perms, slog.Default())

	entries := agg.EffectivePermissions(context.Background(), "ref1", "acme", nil)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}
