package repositories

import (
	"context"
	"fmt"

	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/models"
)

type RoleRepository struct {
	db *database.DB
}

func NewRoleRepository(db *database.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

const roleColumns = `ref, role_id, tenant_id, name, is_active, created_at, updated_at`

func scanRoleRow(scanner rowScanner) (*models.Role, error) {
	var role models.Role
	err := scanner.Scan(&role.Ref, &role.RoleID, &role.TenantID, &role.Name,
		&role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &role, nil
}

func (r *RoleRepository) GetByRef(ctx context.Context, ref string) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE ref = $1`
	return scanRoleRow(r.db.Pool.QueryRow(ctx, query, ref))
}

// ListTenantPairs returns the (assignment tenant, role tenant) pairs of
// all role memberships of the user.
func (r *RoleRepository) ListTenantPairs(ctx context.Context, userRef string) ([]models.TenantPair, error) {
	query := `
		SELECT utr.tenant_id, ro.tenant_id
		FROM user_tenant_roles utr
		JOIN roles ro ON ro.ref = utr.role_ref
		WHERE utr.user_ref = $1
	`

	rows, err := r.db.Pool.Query(ctx, query, userRef)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant pairs: %w", err)
	}
	defer rows.Close()

	pairs := make([]models.TenantPair, 0)
	for rows.Next() {
		var p models.TenantPair
		if err := rows.Scan(&p.AssignmentTenantID, &p.RoleTenantID); err != nil {
			return nil, fmt.Errorf("failed to scan tenant pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant pairs: %w", err)
	}
	return pairs, nil
}
