package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `ref, user_id, external_id, tenant_id, role_ref, name, email_address,
	identity_provider, is_active, external_auth, only_external_auth, resource_is_wildcard,
	created_at, updated_at`

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User

	err := scanner.Scan(
		&user.Ref, &user.UserID, &user.ExternalID, &user.TenantID, &user.RoleRef,
		&user.Name, &user.EmailAddress, &user.IdentityProvider,
		&user.IsActive, &user.ExternalAuth, &user.OnlyExternalAuth, &user.ResourceIsWildcard,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &user, nil
}

// GetByUserID looks up a user by login id, case-sensitive and ignoring
// tenant.
func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, userID))
}

// GetByRef looks up a user by surrogate key.
func (r *UserRepository) GetByRef(ctx context.Context, ref string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ref = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, ref))
}

// GetActiveByExternalID looks up an active user by its external identity
// provider subject id.
func (r *UserRepository) GetActiveByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1 AND is_active`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, externalID))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Ref == "" {
		user.Ref = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + userColumns

	return scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.Ref, user.UserID, user.ExternalID, user.TenantID, user.RoleRef,
		user.Name, user.EmailAddress, user.IdentityProvider,
		user.IsActive, user.ExternalAuth, user.OnlyExternalAuth, user.ResourceIsWildcard,
		user.CreatedAt, user.UpdatedAt,
	))
}

// Update persists the mutable identity fields. Login reconciliation is
// the only caller besides provisioning.
func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users SET external_id = $1, name = $2, email_address = $3,
			identity_provider = $4, is_active = $5, role_ref = $6, updated_at = $7
		WHERE ref = $8
		RETURNING ` + userColumns

	updated, err := scanUserRow(r.db.Pool.QueryRow(ctx, query,
		user.ExternalID, user.Name, user.EmailAddress,
		user.IdentityProvider, user.IsActive, user.RoleRef, user.UpdatedAt,
		user.Ref,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update user %s: %w", user.UserID, err)
	}
	return updated, nil
}
