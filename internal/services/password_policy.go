package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mvollmer/gatehouse/internal/models"
	pkgauth "github.com/mvollmer/gatehouse/pkg/auth"
)

// PasswordRepository defines the interface for password-history persistence
type PasswordRepository interface {
	GetBySerial(ctx context.Context, userRef string, serial int) (*models.Password, error)
	ListRecent(ctx context.Context, userRef string, n int) ([]*models.Password, error)
	GetByHash(ctx context.Context, userRef string, hash []byte) (*models.Password, error)
	Create(ctx context.Context, p *models.Password) error
	SaveResetFields(ctx context.Context, p *models.Password) error
}

// PasswordHasher derives the digest for a (user, plaintext) pair.
type PasswordHasher interface {
	Hash(userID, plaintext string) []byte
}

// highSentinel closes the half-open lexicographic range used for prefix
// blacklist matching: a candidate falls under entry e iff
// e <= candidate < e+highSentinel.
const highSentinel = "￿"

// PolicyConfig mirrors config.PasswordPolicyConfig; each check is
// disabled when its value is zero or absent.
type PolicyConfig struct {
	MinimumLength            int
	Blacklist                []string
	BlacklistPrefixMode      bool
	BlacklistCaseInsensitive bool
	HistoryDepth             int
	ReuseBlockingDays        int
}

// PasswordPolicyEnforcer validates candidate passwords against the
// configured length, blacklist, history and reuse-blocking rules.
type PasswordPolicyEnforcer struct {
	passwords PasswordRepository
	hasher    PasswordHasher
	cfg       PolicyConfig
	logger    *slog.Logger
}

func NewPasswordPolicyEnforcer(passwords PasswordRepository, hasher PasswordHasher, cfg PolicyConfig, logger *slog.Logger) *PasswordPolicyEnforcer {
	return &PasswordPolicyEnforcer{
		passwords: passwords,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Validate runs all enabled checks in order; the first violation wins.
func (e *PasswordPolicyEnforcer) Validate(ctx context.Context, now time.Time, user *models.User, candidate string) error {
	if e.cfg.MinimumLength > 0 && len(candidate) < e.cfg.MinimumLength {
		e.logger.Info("password rejected, below minimum length",
			slog.String("user_id", user.UserID),
			slog.Int("minimum", e.cfg.MinimumLength))
		return &models.PasswordPolicyError{
			Reason: models.PolicyReasonTooShort,
			Detail: fmt.Sprintf("minimum length is %d", e.cfg.MinimumLength),
		}
	}

	if len(e.cfg.Blacklist) > 0 {
		needle := candidate
		if e.cfg.BlacklistCaseInsensitive {
			needle = strings.ToUpper(needle)
		}
		for _, entry := range e.cfg.Blacklist {
			if e.cfg.BlacklistCaseInsensitive {
				entry = strings.ToUpper(entry)
			}
			if BlacklistMatches(entry, needle, e.cfg.BlacklistPrefixMode) {
				e.logger.Info("password rejected, blacklisted", slog.String("user_id", user.UserID))
				return &models.PasswordPolicyError{
					Reason: models.PolicyReasonBlacklisted,
					Detail: "candidate matches blacklist",
				}
			}
		}
	}

	candidateHash := e.hasher.Hash(user.UserID, candidate)

	if e.cfg.HistoryDepth > 0 {
		recent, err := e.passwords.ListRecent(ctx, user.Ref, e.cfg.HistoryDepth)
		if err != nil {
			return fmt.Errorf("failed to load password history: %w", err)
		}
		for _, old := range recent {
			if pkgauth.Equal(old.PasswordHash, candidateHash) {
				e.logger.Info("password rejected, matches recent history",
					slog.String("user_id", user.UserID),
					slog.Int("history_depth", e.cfg.HistoryDepth))
				return &models.PasswordPolicyError{
					Reason: models.PolicyReasonRecentlyUsed,
					Detail: fmt.Sprintf("matches one of the last %d passwords", e.cfg.HistoryDepth),
				}
			}
		}
	}

	if e.cfg.ReuseBlockingDays > 0 {
		prior, err := e.passwords.GetByHash(ctx, user.Ref, candidateHash)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to check password reuse: %w", err)
		}
		if err == nil {
			reusableFrom := prior.PasswordCreation.AddDate(0, 0, e.cfg.ReuseBlockingDays)
			if reusableFrom.After(now) {
				e.logger.Info("password rejected, reuse still blocked",
					slog.String("user_id", user.UserID),
					slog.Time("reusable_from", reusableFrom))
				return &models.PasswordPolicyError{
					Reason: models.PolicyReasonReuseBlocked,
					Detail: fmt.Sprintf("reusable from %s", reusableFrom.Format(time.RFC3339)),
				}
			}
		}
	}

	return nil
}

// BlacklistMatches reports whether candidate is forbidden by entry. In
// exact mode the two must be equal; in prefix mode candidate must fall in
// the half-open range [entry, entry+highSentinel), which realizes a
// prefix match without wildcard scanning.
func BlacklistMatches(entry, candidate string, prefixMode bool) bool {
	if !prefixMode {
		return candidate == entry
	}
	return candidate >= entry && candidate < entry+highSentinel
}
