package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mvollmer/gatehouse/internal/models"
)

// TokenManager signs and validates session tokens. The token carries the
// resolved session context (user, tenant, pinned role, method); holders
// never re-run credential verification during the token's lifetime.
type TokenManager struct {
	secret        string
	sessionExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, sessionExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:        secret,
		sessionExpiry: sessionExpiry,
	}
}

// IssueSessionToken creates a signed session token from an authentication
// result. The credential's own expiry caps the session lifetime when it
// is shorter.
func (tm *TokenManager) IssueSessionToken(result *models.AuthResult, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(tm.sessionExpiry)
	if result.AuthExpires != nil && result.AuthExpires.Before(expiresAt) {
		expiresAt = *result.AuthExpires
	}

	claims := &models.SessionClaims{
		UserID:   result.User.UserID,
		UserRef:  result.User.Ref,
		TenantID: result.TenantID,
		RoleRef:  result.RoleRef,
		Method:   string(result.Method),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateSessionToken verifies a token and returns its claims
func (tm *TokenManager) ValidateSessionToken(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if claims.UserRef == "" || claims.TenantID == "" {
		return nil, models.ErrUnauthorized
	}
	return claims, nil
}
