package auth

import (
	"net/http"
	"sync"
	"time"
)

// Revoker tracks per-user session revocation cut-offs. Tokens are
// stateless, so revocation works by rejecting tokens issued before the
// recorded cut-off. Entries are dropped once every token issued before
// them has expired anyway.
type Revoker struct {
	mu        sync.Mutex
	revokedAt map[string]time.Time
	tokenTTL  time.Duration
}

func NewRevoker(tokenTTL time.Duration) *Revoker {
	return &Revoker{
		revokedAt: make(map[string]time.Time),
		tokenTTL:  tokenTTL,
	}
}

// Revoke invalidates every session token of the user issued before now.
func (r *Revoker) Revoke(userRef string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokedAt[userRef] = now
}

// IsRevoked reports whether a token issued at issuedAt is cut off.
func (r *Revoker) IsRevoked(userRef string, issuedAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff, ok := r.revokedAt[userRef]
	if !ok {
		return false
	}
	return issuedAt.Before(cutoff)
}

// Sweep drops entries older than the token lifetime and returns how many
// were removed.
func (r *Revoker) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for userRef, cutoff := range r.revokedAt {
		if now.Sub(cutoff) > r.tokenTTL {
			delete(r.revokedAt, userRef)
			removed++
		}
	}
	return removed
}

// MiddlewareWithRevocation validates session tokens like Middleware and
// additionally rejects tokens issued before the user's revocation
// cut-off.
func MiddlewareWithRevocation(tm *TokenManager, revoker *Revoker) func(next http.Handler) http.Handler {
	base := Middleware(tm)
	return func(next http.Handler) http.Handler {
		return base(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "missing session", http.StatusUnauthorized)
				return
			}
			if claims.IssuedAt != nil && revoker.IsRevoked(claims.UserRef, claims.IssuedAt.Time) {
				http.Error(w, "session revoked", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
