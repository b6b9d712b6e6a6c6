package middleware

import (
	"crypto/subtle"
	"net/http"

	pkghttp "github.com/mvollmer/gatehouse/pkg/http"
)

// PeerAuth returns a middleware that authenticates peer-to-peer calls
// with a shared secret header. An empty secret means peer fan-out is not
// configured, so every call is rejected rather than waved through.
func PeerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplied := r.Header.Get(pkghttp.HeaderPeerSecret)
			if secret == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(secret)) != 1 {
				pkghttp.WriteUnauthorized(w, "Authentication failed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
