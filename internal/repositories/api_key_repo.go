package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/models"
)

type APIKeyRepository struct {
	db *database.DB
}

func NewAPIKeyRepository(db *database.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

const apiKeyColumns = `id, key, user_ref, role_ref, is_active, valid_from, valid_to,
	log_level, name, created_at, updated_at`

func scanAPIKeyRow(scanner rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	var logLevel string

	err := scanner.Scan(
		&k.ID, &k.Key, &k.UserRef, &k.RoleRef, &k.IsActive,
		&k.ValidFrom, &k.ValidTo, &logLevel, &k.Name,
		&k.CreatedAt, &k.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	k.LogLevel = models.ParseUserLogLevel(logLevel)
	return &k, nil
}

// GetByKey looks up an API key record by exact key value.
func (r *APIKeyRepository) GetByKey(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key = $1`
	return scanAPIKeyRow(r.db.Pool.QueryRow(ctx, query, key))
}

func (r *APIKeyRepository) Create(ctx context.Context, k *models.APIKey) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	now := time.Now()
	k.CreatedAt = now
	k.UpdatedAt = now

	query := `
		INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		k.ID, k.Key, k.UserRef, k.RoleRef, k.IsActive,
		k.ValidFrom, k.ValidTo, k.LogLevel.String(), k.Name,
		k.CreatedAt, k.UpdatedAt,
	)
	return database.MapPostgresError(err)
}

// Deactivate revokes a key without deleting its record.
func (r *APIKeyRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET is_active = FALSE, updated_at = $1 WHERE id = $2`

	tag, err := r.db.Pool.Exec(ctx, query, time.Now(), id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
