package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/models"
)

type PermissionGrantRepository struct {
	db *database.DB
}

func NewPermissionGrantRepository(db *database.DB) *PermissionGrantRepository {
	return &PermissionGrantRepository{db: db}
}

func scanPermissionRows(rows pgx.Rows) ([]models.PermissionEntry, error) {
	defer rows.Close()

	entries := make([]models.PermissionEntry, 0)
	for rows.Next() {
		var e models.PermissionEntry
		var bits int64
		if err := rows.Scan(&e.ResourceID, &bits); err != nil {
			return nil, fmt.Errorf("failed to scan permission entry: %w", err)
		}
		e.Permissions = models.Permissions(bits)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating permission rows: %w", err)
	}
	return entries, nil
}

// tenantScope covers the tenant itself plus global grants.
func tenantScope(tenantID string) []string {
	if tenantID == models.GlobalTenantID {
		return []string{models.GlobalTenantID}
	}
	return []string{tenantID, models.GlobalTenantID}
}

// ListForRole returns the grants of a single role within the tenant and
// globally, sorted by resource id. Entries for the same resource may
// repeat across the two scopes; the aggregator merges them.
func (r *PermissionGrantRepository) ListForRole(ctx context.Context, roleRef string, tenantID string) ([]models.PermissionEntry, error) {
	query := `
		SELECT rp.resource_id, rp.permissions
		FROM role_permissions rp
		WHERE rp.role_ref = $1
		  AND rp.tenant_id = ANY($2)
		ORDER BY rp.resource_id
	`

	rows, err := r.db.Pool.Query(ctx, query, roleRef, tenantScope(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query role grants: %w", err)
	}
	return scanPermissionRows(rows)
}

// ListForUser returns the grants of every role the user holds within the
// tenant and globally, sorted by resource id.
func (r *PermissionGrantRepository) ListForUser(ctx context.Context, userRef string, tenantID string) ([]models.PermissionEntry, error) {
	query := `
		SELECT rp.resource_id, rp.permissions
		FROM role_permissions rp
		JOIN user_tenant_roles utr ON utr.role_ref = rp.role_ref
		WHERE utr.user_ref = $1
		  AND rp.tenant_id = ANY($2)
		  AND utr.tenant_id = ANY($2)
		ORDER BY rp.resource_id
	`

	rows, err := r.db.Pool.Query(ctx, query, userRef, tenantScope(tenantID))
	if err != nil {
		return nil, fmt.Errorf("failed to query user grants: %w", err)
	}
	return scanPermissionRows(rows)
}
