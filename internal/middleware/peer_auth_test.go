package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkghttp "github.com/mvollmer/gatehouse/pkg/http"
)

func peerAuthResponse(t *testing.T, secret, supplied string) *httptest.ResponseRecorder {
	t.Helper()

	handler := PeerAuth(secret)(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/sessions/invalidate", nil)
	if supplied != "" {
		req.Header.Set(pkghttp.HeaderPeerSecret, supplied)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPeerAuth_AcceptsMatchingSecret(t *testing.T) {
	rec := peerAuthResponse(t, "fanout-secret", "fanout-secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPeerAuth_RejectsWrongSecret(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, peerAuthResponse(t, "fanout-secret", "guess").Code)
	assert.Equal(t, http.StatusUnauthorized, peerAuthResponse(t, "fanout-secret", "").Code)
}

func TestPeerAuth_RejectsEverythingWhenUnconfigured(t *testing.T) {
	// No secret configured means the endpoint has no legitimate callers.
	assert.Equal(t, http.StatusUnauthorized, peerAuthResponse(t, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, peerAuthResponse(t, "", "anything").Code)
}
