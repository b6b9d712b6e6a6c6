package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mvollmer/gatehouse/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByUserIDFunc           func(ctx context.Context, userID string) (*models.User, error)
	GetByRefFunc              func(ctx context.Context, ref string) (*models.User, error)
	GetActiveByExternalIDFunc func(ctx context.Context, externalID string) (*models.User, error)
	UpdateFunc                func(ctx context.Context, user *models.User) (*models.User, error)
}

func (m *MockUserRepository) GetByUserID(ctx context.Context, userID string) (*models.User, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByRef(ctx context.Context, ref string) (*models.User, error) {
	if m.GetByRefFunc != nil {
		return m.GetByRefFunc(ctx, ref)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetActiveByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	if m.GetActiveByExternalIDFunc != nil {
		return m.GetActiveByExternalIDFunc(ctx, externalID)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, user)
	}
	return user, nil
}

// MockUserStatusRepository implements UserStatusRepository for testing
type MockUserStatusRepository struct {
	GetByUserRefFunc func(ctx context.Context, userRef string) (*models.UserStatus, error)
	MutateFunc       func(ctx context.Context, userRef string, fn func(*models.UserStatus) error) (*models.UserStatus, error)
	SaveFunc         func(ctx context.Context, status *models.UserStatus) error

	// Saved collects every status persisted through the default
	// Mutate implementation.
	Saved []*models.UserStatus
}

func (m *MockUserStatusRepository) GetByUserRef(ctx context.Context, userRef string) (*models.UserStatus, error) {
	if m.GetByUserRefFunc != nil {
		return m.GetByUserRefFunc(ctx, userRef)
	}
	return nil, models.ErrNotFound
}

// Mutate defaults to load-apply-save against GetByUserRef, starting from
// a fresh row when none exists, mirroring the pgx implementation.
func (m *MockUserStatusRepository) Mutate(ctx context.Context, userRef string, fn func(*models.UserStatus) error) (*models.UserStatus, error) {
	if m.MutateFunc != nil {
		return m.MutateFunc(ctx, userRef, fn)
	}

	status, err := m.GetByUserRef(ctx, userRef)
	if errors.Is(err, models.ErrNotFound) {
		status = &models.UserStatus{UserRef: userRef}
	} else if err != nil {
		return nil, err
	}

	if err := fn(status); err != nil {
		return nil, err
	}
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, status); err != nil {
			return nil, err
		}
	} else {
		m.Saved = append(m.Saved, status)
	}
	return status, nil
}

// MockPasswordRepository implements PasswordRepository for testing
type MockPasswordRepository struct {
	GetBySerialFunc     func(ctx context.Context, userRef string, serial int) (*models.Password, error)
	ListRecentFunc      func(ctx context.Context, userRef string, n int) ([]*models.Password, error)
	GetByHashFunc       func(ctx context.Context, userRef string, hash []byte) (*models.Password, error)
	CreateFunc          func(ctx context.Context, p *models.Password) error
	SaveResetFieldsFunc func(ctx context.Context, p *models.Password) error

	Created []*models.Password
}

func (m *MockPasswordRepository) GetBySerial(ctx context.Context, userRef string, serial int) (*models.Password, error) {
	if m.GetBySerialFunc != nil {
		return m.GetBySerialFunc(ctx, userRef, serial)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasswordRepository) ListRecent(ctx context.Context, userRef string, n int) ([]*models.Password, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, userRef, n)
	}
	return []*models.Password{}, nil
}

func (m *MockPasswordRepository) GetByHash(ctx context.Context, userRef string, hash []byte) (*models.Password, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, userRef, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockPasswordRepository) Create(ctx context.Context, p *models.Password) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	m.Created = append(m.Created, p)
	return nil
}

func (m *MockPasswordRepository) SaveResetFields(ctx context.Context, p *models.Password) error {
	if m.SaveResetFieldsFunc != nil {
		return m.SaveResetFieldsFunc(ctx, p)
	}
	return nil
}

// MockTenantRepository implements TenantRepository for testing
type MockTenantRepository struct {
	GetByIDFunc   func(ctx context.Context, id string) (*models.Tenant, error)
	ListByIDsFunc func(ctx context.Context, ids []string) ([]*models.Tenant, error)
	ListAllFunc   func(ctx context.Context) ([]*models.Tenant, error)
}

func (m *MockTenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockTenantRepository) ListByIDs(ctx context.Context, ids []string) ([]*models.Tenant, error) {
	if m.ListByIDsFunc != nil {
		return m.ListByIDsFunc(ctx, ids)
	}
	return []*models.Tenant{}, nil
}

func (m *MockTenantRepository) ListAll(ctx context.Context) ([]*models.Tenant, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	return []*models.Tenant{}, nil
}

// MockRoleRepository implements RoleRepository for testing
type MockRoleRepository struct {
	GetByRefFunc        func(ctx context.Context, ref string) (*models.Role, error)
	ListTenantPairsFunc func(ctx context.Context, userRef string) ([]models.TenantPair, error)
}

func (m *MockRoleRepository) GetByRef(ctx context.Context, ref string) (*models.Role, error) {
	if m.GetByRefFunc != nil {
		return m.GetByRefFunc(ctx, ref)
	}
	return nil, models.ErrNotFound
}

func (m *MockRoleRepository) ListTenantPairs(ctx context.Context, userRef string) ([]models.TenantPair, error) {
	if m.ListTenantPairsFunc != nil {
		return m.ListTenantPairsFunc(ctx, userRef)
	}
	return []models.TenantPair{}, nil
}

// MockPermissionRepository implements PermissionRepository for testing
type MockPermissionRepository struct {
	ListForRoleFunc func(ctx context.Context, roleRef string, tenantID string) ([]models.PermissionEntry, error)
	ListForUserFunc func(ctx context.Context, userRef string, tenantID string) ([]models.PermissionEntry, error)
}

func (m *MockPermissionRepository) ListForRole(ctx context.Context, roleRef string, tenantID string) ([]models.PermissionEntry, error) {
	if m.ListForRoleFunc != nil {
		return m.ListForRoleFunc(ctx, roleRef, tenantID)
	}
	return []models.PermissionEntry{}, nil
}

func (m *MockPermissionRepository) ListForUser(ctx context.Context, userRef string, tenantID string) ([]models.PermissionEntry, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userRef, tenantID)
	}
	return []models.PermissionEntry{}, nil
}

// MockAPIKeyRepository implements APIKeyRepository for testing
type MockAPIKeyRepository struct {
	GetByKeyFunc func(ctx context.Context, key uuid.UUID) (*models.APIKey, error)
}

func (m *MockAPIKeyRepository) GetByKey(ctx context.Context, key uuid.UUID) (*models.APIKey, error) {
	if m.GetByKeyFunc != nil {
		return m.GetByKeyFunc(ctx, key)
	}
	return nil, models.ErrNotFound
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetFunc func(ctx context.Context, email, userID, resetPassword string, validUntil time.Time) error

	SentTo        []string
	SentPasswords []string
}

func (m *MockEmailService) SendPasswordReset(ctx context.Context, email, userID, resetPassword string, validUntil time.Time) error {
	if m.SendPasswordResetFunc != nil {
		return m.SendPasswordResetFunc(ctx, email, userID, resetPassword, validUntil)
	}
	m.SentTo = append(m.SentTo, email)
	m.SentPasswords = append(m.SentPasswords, resetPassword)
	return nil
}

// NewTestUser creates a user with sensible defaults for tests
func NewTestUser(ref, userID, tenantID string) *models.User {
	return &models.User{
		Ref:       ref,
		UserID:    userID,
		TenantID:  tenantID,
		Name:      "Test User",
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

func strptr(s string) *string { return &s }

func timeptr(t time.Time) *time.Time { return &t }
