package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/repository"
)

type DBTokenBlocklist struct {
	repo repository.RevokedTokenRepository
	now  func() time.Time
}

func NewDBTokenBlocklist(repo repository.RevokedTokenRepository) *DBTokenBlocklist {
	return &DBTokenBlocklist{repo: repo, now: time.Now}
}

func (b *DBTokenBlocklist) Block(ctx context.Context, tokenID string, userID uint, until time.Time) (bool, error) {
	inserted, err := b.repo.Revoke(ctx, &domain.RevokedToken{TokenID: tokenID, UserID: userID, ExpiresAt: until.UTC()})
	observability.RecordTokenBlocklistEvent(ctx, "db", "block", blockOutcome(inserted, err))
	return inserted, err
}

func (b *DBTokenBlocklist) IsBlocked(ctx context.Context, tokenID string) (bool, error) {
	blocked, err := b.repo.IsRevoked(ctx, tokenID, b.now().UTC())
	observability.RecordTokenBlocklistEvent(ctx, "db", "check", outcomeOf(err))
	return blocked, err
}

// Cleanup removes rows whose tokens can no longer be presented.
func (b *DBTokenBlocklist) Cleanup(ctx context.Context, batchSize int) (int64, error) {
	return b.repo.DeleteExpired(ctx, b.now().UTC(), batchSize)
}

func blockOutcome(inserted bool, err error) string {
	if err == nil && !inserted {
		return "already_blocked"
	}
	return outcomeOf(err)
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func (b *DBTokenBlocklist) RunCleanupLoop(ctx context.Context, interval time.Duration, batchSize int, logger *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := b.Cleanup(ctx, batchSize)
			if err != nil {
				if logger != nil {
					logger.Warn("revoked token cleanup failed", "error", err)
				}
				continue
			}
			if deleted > 0 && logger != nil {
				logger.Info("revoked token cleanup removed expired rows", "deleted", deleted)
			}
		}
	}
}
