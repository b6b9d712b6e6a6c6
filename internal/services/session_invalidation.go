package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	pkghttp "github.com/mvollmer/gatehouse/pkg/http"
)

// SessionInvalidator propagates a logout or password change to
// cooperating servers so cached sessions die everywhere. Fan-out is
// fire-and-forget: each peer is called independently with its own
// timeout, and a failing peer never aborts the others.
type SessionInvalidator struct {
	peers   []string
	secret  string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

func NewSessionInvalidator(peers []string, secret string, timeout time.Duration, logger *slog.Logger) *SessionInvalidator {
	return &SessionInvalidator{
		peers:   peers,
		secret:  secret,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type invalidationRequest struct {
	UserRef string `json:"user_ref"`
	Reason  string `json:"reason"`
}

// Invalidate notifies every configured peer that sessions for the user
// are no longer valid. Returns the number of peers that acknowledged.
func (s *SessionInvalidator) Invalidate(ctx context.Context, userRef, reason string) int {
	if len(s.peers) == 0 {
		return 0
	}

	body, err := json.Marshal(invalidationRequest{UserRef: userRef, Reason: reason})
	if err != nil {
		s.logger.Error("failed to encode invalidation request", slog.Any("error", err))
		return 0
	}

	var wg sync.WaitGroup
	acked := make([]bool, len(s.peers))
	for i, peer := range s.peers {
		wg.Add(1)
		go func(i int, peer string) {
			defer wg.Done()
			acked[i] = s.notifyPeer(ctx, peer, body)
		}(i, peer)
	}
	wg.Wait()

	count := 0
	for _, ok := range acked {
		if ok {
			count++
		}
	}
	s.logger.Info("session invalidation fan-out complete",
		slog.String("user_ref", userRef),
		slog.String("reason", reason),
		slog.Int("peers", len(s.peers)),
		slog.Int("acknowledged", count))
	return count
}

func (s *SessionInvalidator) notifyPeer(ctx context.Context, peer string, body []byte) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/internal/v1/sessions/invalidate", peer)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("failed to build invalidation request",
			slog.String("peer", peer),
			slog.Any("error", err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(pkghttp.HeaderPeerSecret, s.secret)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("session invalidation peer unreachable",
			slog.String("peer", peer),
			slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("session invalidation peer rejected request",
			slog.String("peer", peer),
			slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}
