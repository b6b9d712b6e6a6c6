package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/models"
)

type PasswordRepository struct {
	db *database.DB
}

func NewPasswordRepository(db *database.DB) *PasswordRepository {
	return &PasswordRepository{db: db}
}

const passwordColumns = `user_ref, serial_number, password_hash, password_creation,
	password_expiry, user_expiry, reset_password_hash, when_last_password_reset`

func scanPasswordRow(scanner rowScanner) (*models.Password, error) {
	var p models.Password

	err := scanner.Scan(
		&p.UserRef, &p.SerialNumber, &p.PasswordHash, &p.PasswordCreation,
		&p.PasswordExpiry, &p.UserExpiry, &p.ResetPasswordHash, &p.WhenLastPasswordReset,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &p, nil
}

func scanPasswordRows(rows pgx.Rows) ([]*models.Password, error) {
	defer rows.Close()

	passwords := make([]*models.Password, 0)
	for rows.Next() {
		p, err := scanPasswordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan password row: %w", err)
		}
		passwords = append(passwords, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating password rows: %w", err)
	}
	return passwords, nil
}

// GetBySerial returns the password row with the given serial number.
func (r *PasswordRepository) GetBySerial(ctx context.Context, userRef string, serial int) (*models.Password, error) {
	query := `SELECT ` + passwordColumns + ` FROM passwords WHERE user_ref = $1 AND serial_number = $2`
	return scanPasswordRow(r.db.Pool.QueryRow(ctx, query, userRef, serial))
}

// ListRecent returns the last n password rows, most recent serial first.
func (r *PasswordRepository) ListRecent(ctx context.Context, userRef string, n int) ([]*models.Password, error) {
	query := `SELECT ` + passwordColumns + ` FROM passwords
		WHERE user_ref = $1 ORDER BY serial_number DESC LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, userRef, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query password history: %w", err)
	}
	return scanPasswordRows(rows)
}

// GetByHash returns the most recent row whose hash equals the given one,
// or ErrNotFound.
func (r *PasswordRepository) GetByHash(ctx context.Context, userRef string, hash []byte) (*models.Password, error) {
	query := `SELECT ` + passwordColumns + ` FROM passwords
		WHERE user_ref = $1 AND password_hash = $2 ORDER BY serial_number DESC LIMIT 1`
	return scanPasswordRow(r.db.Pool.QueryRow(ctx, query, userRef, hash))
}

// Create inserts a new password row. Rows are never updated in place
// except for the pending-reset fields, see SaveResetFields.
func (r *PasswordRepository) Create(ctx context.Context, p *models.Password) error {
	query := `
		INSERT INTO passwords (` + passwordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		p.UserRef, p.SerialNumber, p.PasswordHash, p.PasswordCreation,
		p.PasswordExpiry, p.UserExpiry, p.ResetPasswordHash, p.WhenLastPasswordReset,
	)
	return database.MapPostgresError(err)
}

// SaveResetFields persists only the pending-reset hash and timestamp of
// an existing row, for setting and clearing self-service resets.
func (r *PasswordRepository) SaveResetFields(ctx context.Context, p *models.Password) error {
	query := `
		UPDATE passwords SET reset_password_hash = $1, when_last_password_reset = $2
		WHERE user_ref = $3 AND serial_number = $4
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		p.ResetPasswordHash, p.WhenLastPasswordReset, p.UserRef, p.SerialNumber,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearExpiredResets drops pending reset hashes whose validity window
// ended before the cutoff. Returns the number of rows cleared.
func (r *PasswordRepository) ClearExpiredResets(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE passwords SET reset_password_hash = NULL, when_last_password_reset = NULL
		WHERE reset_password_hash IS NOT NULL AND when_last_password_reset < $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return int(tag.RowsAffected()), nil
}
