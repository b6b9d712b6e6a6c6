package services

import (
	"context"
	"log/slog"

	"github.com/mvollmer/gatehouse/internal/models"
)

// PermissionRepository defines the interface for permission lookups
type PermissionRepository interface {
	ListForRole(ctx context.Context, roleRef string, tenantID string) ([]models.PermissionEntry, error)
	ListForUser(ctx context.Context, userRef string, tenantID string) ([]models.PermissionEntry, error)
}

// PermissionAggregator computes the effective permission set for an
// authenticated session. Sessions bound to a role see exactly that role's
// grants; unrestricted sessions see the union of every grant reachable
// through their role memberships.
type PermissionAggregator struct {
	permissions PermissionRepository
	logger      *slog.Logger
}

func NewPermissionAggregator(permissions PermissionRepository, logger *slog.Logger) *PermissionAggregator {
	return &PermissionAggregator{
		permissions: permissions,
		logger:      logger,
	}
}

// EffectivePermissions returns the merged permission entries for the user
// within the tenant. Lookups cover both the tenant itself and global
// grants. Any backend failure degrades to an empty set: a session must
// never gain access because the permission store was unreachable.
func (a *PermissionAggregator) EffectivePermissions(ctx context.Context, userRef string, tenantID string, roleRef *string) []models.PermissionEntry {
	var entries []models.PermissionEntry
	var err error
	if roleRef != nil {
		entries, err = a.permissions.ListForRole(ctx, *roleRef, tenantID)
	} else {
		entries, err = a.permissions.ListForUser(ctx, userRef, tenantID)
	}
	if err != nil {
		a.logger.Error("permission lookup failed, denying all",
			slog.String("user_ref", userRef),
			slog.String("tenant_id", tenantID),
			slog.Any("error", err))
		return []models.PermissionEntry{}
	}
	return MergeSorted(entries)
}

// MergeSorted collapses a resource-ordered entry list by OR-ing together
// the permission masks of entries sharing a resource ID. Input must be
// sorted by ResourceID; output preserves that order with one entry per
// resource.
func MergeSorted(entries []models.PermissionEntry) []models.PermissionEntry {
	merged := make([]models.PermissionEntry, 0, len(entries))
	for _, e := range entries {
		if n := len(merged); n > 0 && merged[n-1].ResourceID == e.ResourceID {
			merged[n-1].Permissions = merged[n-1].Permissions.Union(e.Permissions)
			continue
		}
		merged = append(merged, e)
	}
	return merged
}
