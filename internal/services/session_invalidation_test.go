package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkghttp "github.com/mvollmer/gatehouse/pkg/http"
)

func TestSessionInvalidator_NotifiesAllPeers(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/internal/v1/sessions/invalidate", r.URL.Path)

		var req invalidationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ref-alice", req.UserRef)
		assert.Equal(t, "password_change", req.Reason)
		assert.Equal(t, "fanout-secret", r.Header.Get(pkghttp.HeaderPeerSecret))

		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	peer1 := httptest.NewServer(handler)
	defer peer1.Close()
	peer2 := httptest.NewServer(handler)
	defer peer2.Close()

	inv := NewSessionInvalidator([]string{peer1.URL, peer2.URL}, "fanout-secret", 2*time.Second, slog.Default())

	acked := inv.Invalidate(context.Background(), "ref-alice", "password_change")
	assert.Equal(t, 2, acked)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSessionInvalidator_PeerFailureDoesNotAbortOthers(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	inv := NewSessionInvalidator(
		[]string{broken.URL, "http://127.0.0.1:1", healthy.URL},
		"fanout-secret", 2*time.Second, slog.Default())

	acked := inv.Invalidate(context.Background(), "ref-alice", "logout")
	assert.Equal(t, 1, acked)
}

func TestSessionInvalidator_NoPeersConfigured(t *testing.T) {
	inv := NewSessionInvalidator(nil, "", time.Second, slog.Default())
	assert.Equal(t, 0, inv.Invalidate(context.Background(), "ref-alice", "logout"))
}
