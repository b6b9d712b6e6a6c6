package middleware

import (
	"net/http"

	pkghttp "github.com/mvollmer/gatehouse/pkg/http"
)

// RealIP rewrites RemoteAddr to the actual client address. Forwarding
// headers are honored only when the direct peer is a trusted proxy, so a
// client cannot spoof its way past IP-keyed rate limits.
func RealIP(config *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.RemoteAddr = pkghttp.ExtractClientIP(r, config)
			next.ServeHTTP(w, r)
		})
	}
}
