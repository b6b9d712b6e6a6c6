package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/models"
	"github.com/mvollmer/gatehouse/migrations"
	"github.com/mvollmer/gatehouse/pkg/auth"
)

// TestDB manages the PostgreSQL testcontainer and database handles
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("gatehouse"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, connStr); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         database.NewFromPool(pool, logger),
	}, nil
}

// runMigrations applies the embedded goose migrations over a plain
// database/sql connection.
func runMigrations(ctx context.Context, connStr string) error {
	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates the mutable tables for test isolation. The
// global tenant row survives the truncate and is re-seeded.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"api_keys",
		"passwords",
		"user_status",
		"role_permissions",
		"user_tenant_roles",
		"users",
		"roles",
		"tenants",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	_, err := db.Pool.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, 'global')`, models.GlobalTenantID)
	return err
}

// SeedTenant inserts a tenant row
func SeedTenant(ctx context.Context, pool *pgxpool.Pool, id, name string) error {
	_, err := pool.Exec(ctx,
		`INSERT INTO tenants (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		id, name)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// SeedUser inserts an active password-capable user and returns its ref
func SeedUser(ctx context.Context, pool *pgxpool.Pool, userID, tenantID, email string) (string, error) {
	ref := uuid.NewString()

	query := `
		INSERT INTO users (ref, user_id, tenant_id, name, email_address, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
	`
	if _, err := pool.Exec(ctx, query, ref, userID, tenantID, "Integration "+userID, email); err != nil {
		return "", fmt.Errorf("failed to insert user: %w", err)
	}
	return ref, nil
}

// SeedPassword inserts a password row and points the user's status row at
// it as the current serial.
func SeedPassword(ctx context.Context, pool *pgxpool.Pool, hasher *auth.Hasher, userRef, userID, password string, serial int) error {
	now := time.Now().UTC()
	hash := hasher.Hash(userID, password)

	query := `
		INSERT INTO passwords (user_ref, serial_number, password_hash, password_creation, password_expiry, user_expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := pool.Exec(ctx, query, userRef, serial, hash,
		now, now.AddDate(0, 0, 90), now.AddDate(1, 0, 0))
	if err != nil {
		return fmt.Errorf("failed to insert password: %w", err)
	}

	statusQuery := `
		INSERT INTO user_status (user_ref, current_password_serial_number)
		VALUES ($1, $2)
		ON CONFLICT (user_ref) DO UPDATE SET current_password_serial_number = EXCLUDED.current_password_serial_number
	`
	if _, err := pool.Exec(ctx, statusQuery, userRef, serial); err != nil {
		return fmt.Errorf("failed to upsert user status: %w", err)
	}
	return nil
}

// SeedRole inserts a role and returns its ref
func SeedRole(ctx context.Context, pool *pgxpool.Pool, roleID, tenantID string) (string, error) {
	ref := uuid.NewString()

	query := `INSERT INTO roles (ref, role_id, tenant_id, name) VALUES ($1, $2, $3, $4)`
	if _, err := pool.Exec(ctx, query, ref, roleID, tenantID, roleID); err != nil {
		return "", fmt.Errorf("failed to insert role: %w", err)
	}
	return ref, nil
}

// SeedRoleMembership links a user to a role within a tenant
func SeedRoleMembership(ctx context.Context, pool *pgxpool.Pool, userRef, tenantID, roleRef string) error {
	query := `INSERT INTO user_tenant_roles (user_ref, tenant_id, role_ref) VALUES ($1, $2, $3)`
	if _, err := pool.Exec(ctx, query, userRef, tenantID, roleRef); err != nil {
		return fmt.Errorf("failed to insert role membership: %w", err)
	}
	return nil
}

// SeedGrant attaches a permission grant to a role
func SeedGrant(ctx context.Context, pool *pgxpool.Pool, roleRef, tenantID, resourceID string, permissions models.Permissions) error {
	query := `INSERT INTO role_permissions (role_ref, tenant_id, resource_id, permissions) VALUES ($1, $2, $3, $4)`
	if _, err := pool.Exec(ctx, query, roleRef, tenantID, resourceID, int64(permissions)); err != nil {
		return fmt.Errorf("failed to insert permission grant: %w", err)
	}
	return nil
}

// SeedAPIKey inserts an active API key bound to the user and returns the
// key value.
func SeedAPIKey(ctx context.Context, pool *pgxpool.Pool, userRef string, logLevel models.UserLogLevel) (uuid.UUID, error) {
	key := uuid.New()

	query := `
		INSERT INTO api_keys (id, key, user_ref, is_active, log_level, name)
		VALUES ($1, $2, $3, TRUE, $4, 'integration test key')
	`
	if _, err := pool.Exec(ctx, query, uuid.NewString(), key, userRef, logLevel.String()); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert api key: %w", err)
	}
	return key, nil
}
