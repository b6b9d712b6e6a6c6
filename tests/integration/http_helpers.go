package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mvollmer/gatehouse/internal/auth"
	"github.com/mvollmer/gatehouse/internal/database"
	"github.com/mvollmer/gatehouse/internal/handlers"
	"github.com/mvollmer/gatehouse/internal/locks"
	middlewareCustom "github.com/mvollmer/gatehouse/internal/middleware"
	"github.com/mvollmer/gatehouse/internal/repositories"
	"github.com/mvollmer/gatehouse/internal/routes"
	"github.com/mvollmer/gatehouse/internal/services"
	pkgauth "github.com/mvollmer/gatehouse/pkg/auth"
	pkglogger "github.com/mvollmer/gatehouse/pkg/logger"
)

const testJWTSecret = "integration-test-secret-32-chars!!"

// SentReset is a captured password reset email
type SentReset struct {
	To            string
	UserID        string
	ResetPassword string
	ValidUntil    time.Time
}

// CaptureEmailService records reset emails for test assertions
type CaptureEmailService struct {
	mu   sync.Mutex
	Sent []SentReset
}

func (m *CaptureEmailService) SendPasswordReset(ctx context.Context, email, userID, resetPassword string, validUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentReset{
		To:            email,
		UserID:        userID,
		ResetPassword: resetPassword,
		ValidUntil:    validUntil,
	})
	return nil
}

// LastReset returns the most recent captured reset, or nil
func (m *CaptureEmailService) LastReset() *SentReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

// TestServer wraps httptest.Server with the full service stack
type TestServer struct {
	Server  *httptest.Server
	DB      *database.DB
	Emails  *CaptureEmailService
	Hasher  *pkgauth.Hasher
	Revoker *auth.Revoker
}

// NewTestServer wires the complete stack against a real database, with
// email capture instead of SES and timing delays disabled.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditLogger := pkglogger.NewAuditLogger(logger)
	hasher := pkgauth.NewHasher()

	userRepo := repositories.NewUserRepository(db)
	statusRepo := repositories.NewUserStatusRepository(db)
	passwordRepo := repositories.NewPasswordRepository(db)
	tenantRepo := repositories.NewTenantRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	grantRepo := repositories.NewPermissionGrantRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)

	tracker := services.NewAccountStatusTracker(statusRepo, services.ThrottleConfig{
		MaxIncorrectAttempts: 5,
		ThrottleDuration:     5 * time.Minute,
	}, logger)

	policy := services.NewPasswordPolicyEnforcer(passwordRepo, hasher, services.PolicyConfig{
		MinimumLength: 8,
		HistoryDepth:  3,
	}, logger)

	passwordAuth := services.NewPasswordAuthenticator(
		userRepo, passwordRepo, tracker, policy, hasher,
		services.PasswordConfig{
			ExpiryDays:        90,
			MaxInactivityDays: 365,
			ResetValidity:     24 * time.Hour,
		},
		logger, auditLogger,
	)

	apiKeyAuth := services.NewAPIKeyAuthenticator(apiKeyRepo, userRepo, tracker, logger, auditLogger)

	tokenAuth := services.NewExternalTokenAuthenticator(userRepo, tracker, services.ReconcileConfig{
		UpdateIdentityProvider: true,
		UpdateExternalID:       true,
		UpdateNameAndEmail:     true,
	}, logger, auditLogger)

	resolver := services.NewTenantVisibilityResolver(userRepo, tenantRepo, roleRepo, logger)
	aggregator := services.NewPermissionAggregator(grantRepo, logger)

	emails := &CaptureEmailService{}
	invalidator := services.NewSessionInvalidator(nil, "", time.Second, logger)
	userLocks := locks.NewArena(10 * time.Minute)

	coordinator := services.NewAuthCoordinator(
		passwordAuth, apiKeyAuth, tokenAuth,
		resolver, aggregator, tracker,
		userRepo, passwordRepo,
		emails, invalidator, userLocks,
		services.CoordinatorConfig{
			ResetRequestInterval: time.Minute,
			ResetValidity:        24 * time.Hour,
		},
		logger,
	)

	tokenManager := auth.NewTokenManager(testJWTSecret, time.Hour)
	revoker := auth.NewRevoker(time.Hour)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	authHandler := handlers.NewAuthHandler(coordinator, tokenManager, nil, revoker, timingDelay)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(middlewareCustom.RealIP(nil))
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(r, authHandler, tokenManager, revoker, "")

	return &TestServer{
		Server:  httptest.NewServer(r),
		DB:      db,
		Emails:  emails,
		Hasher:  hasher,
		Revoker: revoker,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a session token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// ParseJSONResponse parses the JSON response body into target
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractToken extracts the session token from a login response
func ExtractToken(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}
	return loginResp.Token, nil
}
