package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/mvollmer/gatehouse/internal/auth"
	"github.com/mvollmer/gatehouse/internal/locks"
)

// ResetPruner clears self-service reset hashes whose validity window has
// passed.
type ResetPruner interface {
	ClearExpiredResets(ctx context.Context, cutoff time.Time) (int, error)
}

// SweepManager periodically evicts idle per-user locks, expired session
// revocation entries and stale pending reset hashes. The in-memory
// structures are unbounded otherwise.
type SweepManager struct {
	userLocks     *locks.Arena
	revoker       *auth.Revoker
	resetPruner   ResetPruner
	resetValidity time.Duration
	logger        *slog.Logger
	interval      time.Duration
	stopCh        chan struct{}
}

// NewSweepManager creates a new sweep manager
func NewSweepManager(
	userLocks *locks.Arena,
	revoker *auth.Revoker,
	resetPruner ResetPruner,
	resetValidity time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *SweepManager {
	return &SweepManager{
		userLocks:     userLocks,
		revoker:       revoker,
		resetPruner:   resetPruner,
		resetValidity: resetValidity,
		logger:        logger,
		interval:      interval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic sweep task
func (sm *SweepManager) Start(ctx context.Context) {
	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.runSweep(ctx)
		case <-sm.stopCh:
			sm.logger.Info("sweep manager stopped")
			return
		case <-ctx.Done():
			sm.logger.Info("sweep manager context cancelled")
			return
		}
	}
}

func (sm *SweepManager) runSweep(ctx context.Context) {
	locksEvicted := sm.userLocks.Sweep()
	revocationsDropped := sm.revoker.Sweep(time.Now())

	resetsCleared := 0
	if sm.resetPruner != nil {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		cleared, err := sm.resetPruner.ClearExpiredResets(sweepCtx, time.Now().Add(-sm.resetValidity))
		cancel()
		if err != nil {
			sm.logger.Error("failed to clear expired reset hashes", slog.Any("error", err))
		} else {
			resetsCleared = cleared
		}
	}

	if locksEvicted > 0 || revocationsDropped > 0 || resetsCleared > 0 {
		sm.logger.Info("sweep completed",
			slog.Int("locks_evicted", locksEvicted),
			slog.Int("revocations_dropped", revocationsDropped),
			slog.Int("resets_cleared", resetsCleared))
	}
}

// Stop signals the sweep manager to stop
func (sm *SweepManager) Stop() {
	close(sm.stopCh)
}
