package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mvollmer/gatehouse/internal/models"
)

// TenantRepository defines the interface for tenant lookups
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	ListByIDs(ctx context.Context, ids []string) ([]*models.Tenant, error)
	ListAll(ctx context.Context) ([]*models.Tenant, error)
}

// RoleRepository defines the interface for role lookups
type RoleRepository interface {
	GetByRef(ctx context.Context, ref string) (*models.Role, error)
	ListTenantPairs(ctx context.Context, userRef string) ([]models.TenantPair, error)
}

// TenantVisibilityResolver computes the set of tenants a user may operate
// in. The branches are evaluated in strict priority order: the user's own
// tenant assignment, then the fixed role, then the role memberships.
type TenantVisibilityResolver struct {
	users   UserRepository
	tenants TenantRepository
	roles   RoleRepository
	logger  *slog.Logger
}

func NewTenantVisibilityResolver(users UserRepository, tenants TenantRepository, roles RoleRepository, logger *slog.Logger) *TenantVisibilityResolver {
	return &TenantVisibilityResolver{
		users:   users,
		tenants: tenants,
		roles:   roles,
		logger:  logger,
	}
}

// AllowedTenants returns the tenants visible to the user. An empty result
// means "no access yet", not an error.
func (r *TenantVisibilityResolver) AllowedTenants(ctx context.Context, userRef string) ([]models.TenantDescription, error) {
	user, err := r.users.GetByRef(ctx, userRef)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	// 1. Non-global tenant assignment pins the user to exactly that
	// tenant.
	if user.TenantID != models.GlobalTenantID {
		tenant, err := r.tenants.GetByID(ctx, user.TenantID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				r.logger.Error("user maps to non-existent tenant",
					slog.String("user_id", user.UserID),
					slog.String("tenant_id", user.TenantID))
				return []models.TenantDescription{}, nil
			}
			return nil, fmt.Errorf("failed to load tenant: %w", err)
		}
		r.logger.Debug("single tenant via user assignment",
			slog.String("user_id", user.UserID),
			slog.String("tenant_id", tenant.ID))
		return []models.TenantDescription{tenant.Description()}, nil
	}

	// 2. A fixed role decides: its tenant if specific, all tenants if the
	// role itself is global.
	if user.RoleRef != nil {
		role, err := r.roles.GetByRef(ctx, *user.RoleRef)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				r.logger.Error("user maps to non-existent role",
					slog.String("user_id", user.UserID),
					slog.String("role_ref", *user.RoleRef))
				return []models.TenantDescription{}, nil
			}
			return nil, fmt.Errorf("failed to load role: %w", err)
		}
		if role.TenantID != models.GlobalTenantID {
			tenant, err := r.tenants.GetByID(ctx, role.TenantID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					r.logger.Error("role maps to non-existent tenant",
						slog.String("user_id", user.UserID),
						slog.String("role_id", role.RoleID),
						slog.String("tenant_id", role.TenantID))
					return []models.TenantDescription{}, nil
				}
				return nil, fmt.Errorf("failed to load tenant: %w", err)
			}
			r.logger.Debug("single tenant via fixed role",
				slog.String("user_id", user.UserID),
				slog.String("tenant_id", tenant.ID))
			return []models.TenantDescription{tenant.Description()}, nil
		}
		r.logger.Debug("all tenants via global fixed role",
			slog.String("user_id", user.UserID),
			slog.String("role_id", role.RoleID))
		return r.allTenants(ctx)
	}

	// 3. Role memberships: collect the effective tenant of each pair; a
	// double-global pair short-circuits to all tenants.
	pairs, err := r.roles.ListTenantPairs(ctx, userRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load role memberships: %w", err)
	}
	r.logger.Debug("resolving tenants via role memberships",
		slog.String("user_id", user.UserID),
		slog.Int("assignments", len(pairs)))

	tenantIDs := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		if pair.DoubleGlobal() {
			r.logger.Debug("all tenants via unrestricted global role assignment",
				slog.String("user_id", user.UserID))
			return r.allTenants(ctx)
		}
		tenantIDs[pair.EffectiveTenantID()] = struct{}{}
	}

	if len(tenantIDs) == 0 {
		// No role memberships at all. The wildcard-resource flag is the
		// administrative escape hatch; otherwise the user is simply not
		// provisioned yet.
		if user.ResourceIsWildcard {
			return r.allTenants(ctx)
		}
		return []models.TenantDescription{}, nil
	}

	ids := make([]string, 0, len(tenantIDs))
	for id := range tenantIDs {
		ids = append(ids, id)
	}
	tenants, err := r.tenants.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenants: %w", err)
	}
	return describeAll(tenants), nil
}

func (r *TenantVisibilityResolver) allTenants(ctx context.Context) ([]models.TenantDescription, error) {
	tenants, err := r.tenants.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return describeAll(tenants), nil
}

func describeAll(tenants []*models.Tenant) []models.TenantDescription {
	out := make([]models.TenantDescription, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, t.Description())
	}
	return out
}
