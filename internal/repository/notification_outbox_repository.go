package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationOutboxRepository interface {
	Enqueue(ctx context.Context, msg *domain.NotificationOutbox) error
	// ClaimDue leases up to limit due rows to the caller by pushing their
	// next_attempt_at to now+lease. Rows another dispatcher already claimed
	// are skipped, so each row goes to one dispatcher per lease.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.NotificationOutbox, error)
	MarkSent(ctx context.Context, id uint, at time.Time) error
	MarkRetry(ctx context.Context, id uint, attempts int, nextAttemptAt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id uint, attempts int, lastErr string) error
	PurgeSent(ctx context.Context, before time.Time, batchSize int) (int64, error)
}

type GormNotificationOutboxRepository struct {
	db *gorm.DB
}

func NewNotificationOutboxRepository(db *gorm.DB) NotificationOutboxRepository {
	return &GormNotificationOutboxRepository{db: db}
}

func (r *GormNotificationOutboxRepository) Enqueue(ctx context.Context, msg *domain.NotificationOutbox) error {
	if msg.Status == "" {
		msg.Status = domain.NotificationPending
	}
	if msg.NextAttemptAt.IsZero() {
		msg.NextAttemptAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *GormNotificationOutboxRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.NotificationOutbox, error) {
	if limit <= 0 {
		limit = 50
	}
	db := r.db.WithContext(ctx)
	if db.Dialector.Name() != "postgres" {
		// SQLite serializes writers, so the conditional update alone decides
		// the winner.
		return claimDue(db, now, lease, limit, false)
	}
	var claimed []domain.NotificationOutbox
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		claimed, err = claimDue(tx, now, lease, limit, true)
		return err
	})
	return claimed, err
}

func claimDue(db *gorm.DB, now time.Time, lease time.Duration, limit int, skipLocked bool) ([]domain.NotificationOutbox, error) {
	q := db.Where("status = ? AND next_attempt_at <= ?", domain.NotificationPending, now).
		Order("id ASC").
		Limit(limit)
	if skipLocked {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []domain.NotificationOutbox
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	until := now.Add(lease)
	claimed := rows[:0]
	for _, row := range rows {
		res := db.Model(&domain.NotificationOutbox{}).
			Where("id = ? AND status = ? AND next_attempt_at <= ?", row.ID, domain.NotificationPending, now).
			Updates(map[string]any{"next_attempt_at": until, "updated_at": now})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			row.NextAttemptAt = until
			claimed = append(claimed, row)
		}
	}
	return claimed, nil
}

func (r *GormNotificationOutboxRepository) MarkSent(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.NotificationOutbox{}).
		Where("id = ? AND status = ?", id, domain.NotificationPending).
		Updates(map[string]any{
			"status":     domain.NotificationSent,
			"sent_at":    at,
			"token":      "",
			"last_error": "",
			"updated_at": at,
		}).Error
}

func (r *GormNotificationOutboxRepository) MarkRetry(ctx context.Context, id uint, attempts int, nextAttemptAt time.Time, lastErr string) error {
	return r.db.WithContext(ctx).Model(&domain.NotificationOutbox{}).
		Where("id = ? AND status = ?", id, domain.NotificationPending).
		Updates(map[string]any{
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
			"last_error":      truncate(lastErr, 1024),
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *GormNotificationOutboxRepository) MarkFailed(ctx context.Context, id uint, attempts int, lastErr string) error {
	return r.db.WithContext(ctx).Model(&domain.NotificationOutbox{}).
		Where("id = ? AND status = ?", id, domain.NotificationPending).
		Updates(map[string]any{
			"status":     domain.NotificationFailed,
			"attempts":   attempts,
			"token":      "",
			"last_error": truncate(lastErr, 1024),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *GormNotificationOutboxRepository) PurgeSent(ctx context.Context, before time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	scoped := r.db.WithContext(ctx)
	sub := scoped.Model(&domain.NotificationOutbox{}).
		Select("id").
		Where("status = ? AND sent_at <= ?", domain.NotificationSent, before).
		Order("id ASC").
		Limit(batchSize)
	res := scoped.
		Where("id IN (?)", sub).
		Delete(&domain.NotificationOutbox{})
	return res.RowsAffected, res.Error
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
