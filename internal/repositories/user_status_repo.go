package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/models"
)

type UserStatusRepository struct {
	db *database.DB
}

func NewUserStatusRepository(db *database.DB) *UserStatusRepository {
	return &UserStatusRepository{db: db}
}

const statusColumns = `user_ref, current_password_serial_number, number_of_incorrect_attempts,
	account_throttled_until, prev_login, last_login,
	prev_login_by_password, last_login_by_password,
	prev_login_by_api_key, last_login_by_api_key,
	prev_login_by_token, last_login_by_token`

func scanStatusRow(scanner rowScanner) (*models.UserStatus, error) {
	var s models.UserStatus

	err := scanner.Scan(
		&s.UserRef, &s.CurrentPasswordSerialNumber, &s.NumberOfIncorrectAttempts,
		&s.AccountThrottledUntil, &s.PrevLogin, &s.LastLogin,
		&s.PrevLoginByPassword, &s.LastLoginByPassword,
		&s.PrevLoginByAPIKey, &s.LastLoginByAPIKey,
		&s.PrevLoginByToken, &s.LastLoginByToken,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func (r *UserStatusRepository) GetByUserRef(ctx context.Context, userRef string) (*models.UserStatus, error) {
	query := `SELECT ` + statusColumns + ` FROM user_status WHERE user_ref = $1`
	return scanStatusRow(r.db.Pool.QueryRow(ctx, query, userRef))
}

// statusExecer covers both the pool and an open transaction.
type statusExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func saveStatus(ctx context.Context, q statusExecer, status *models.UserStatus) error {
	query := `
		INSERT INTO user_status (` + statusColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_ref) DO UPDATE SET
			current_password_serial_number = EXCLUDED.current_password_serial_number,
			number_of_incorrect_attempts = EXCLUDED.number_of_incorrect_attempts,
			account_throttled_until = EXCLUDED.account_throttled_until,
			prev_login = EXCLUDED.prev_login,
			last_login = EXCLUDED.last_login,
			prev_login_by_password = EXCLUDED.prev_login_by_password,
			last_login_by_password = EXCLUDED.last_login_by_password,
			prev_login_by_api_key = EXCLUDED.prev_login_by_api_key,
			last_login_by_api_key = EXCLUDED.last_login_by_api_key,
			prev_login_by_token = EXCLUDED.prev_login_by_token,
			last_login_by_token = EXCLUDED.last_login_by_token
	`

	_, err := q.Exec(ctx, query,
		status.UserRef, status.CurrentPasswordSerialNumber, status.NumberOfIncorrectAttempts,
		status.AccountThrottledUntil, status.PrevLogin, status.LastLogin,
		status.PrevLoginByPassword, status.LastLoginByPassword,
		status.PrevLoginByAPIKey, status.LastLoginByAPIKey,
		status.PrevLoginByToken, status.LastLoginByToken,
	)
	return database.MapPostgresError(err)
}

// Save upserts the status row outside any transaction. Provisioning and
// test seeding use this; login flows go through Mutate.
func (r *UserStatusRepository) Save(ctx context.Context, status *models.UserStatus) error {
	return saveStatus(ctx, r.db.Pool, status)
}

// Mutate runs fn against the row locked FOR UPDATE and persists the
// outcome, all in one transaction. Concurrent callers serialize on the
// row lock, so the attempt counter and throttle window never lose an
// update even across processes. A missing row starts from a fresh
// status; its first persist commits atomically with the mutation.
func (r *UserStatusRepository) Mutate(ctx context.Context, userRef string, fn func(*models.UserStatus) error) (*models.UserStatus, error) {
	var out *models.UserStatus

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + statusColumns + ` FROM user_status WHERE user_ref = $1 FOR UPDATE`
		status, err := scanStatusRow(tx.QueryRow(ctx, query, userRef))
		if errors.Is(err, models.ErrNotFound) {
			status = &models.UserStatus{UserRef: userRef}
		} else if err != nil {
			return err
		}

		if err := fn(status); err != nil {
			return err
		}
		if err := saveStatus(ctx, tx, status); err != nil {
			return err
		}
		out = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
