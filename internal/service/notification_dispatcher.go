package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	maxNotificationBackoff   = 15 * time.Minute
	defaultNotificationLease = 2 * time.Minute
)

type DispatchStats struct {
	Sent    int
	Retried int
	Failed  int
}

type DispatcherOptions struct {
	BatchSize   int
	MaxAttempts int
	Retention   time.Duration
	// ClaimLease is how long a claimed row stays hidden from other
	// dispatchers before it is offered again.
	ClaimLease time.Duration
}

// NotificationDispatcher delivers committed outbox rows.
type NotificationDispatcher struct {
	outbox   repository.NotificationOutboxRepository
	sender   NotificationSender
	renderer *NotificationRenderer
	opts     DispatcherOptions
	logger   *slog.Logger
	now      func() time.Time
	sf       singleflight.Group
}

func NewNotificationDispatcher(
	outbox repository.NotificationOutboxRepository,
	sender NotificationSender,
	renderer *NotificationRenderer,
	opts DispatcherOptions,
	logger *slog.Logger,
) *NotificationDispatcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = defaultNotificationLease
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationDispatcher{
		outbox:   outbox,
		sender:   sender,
		renderer: renderer,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// DispatchPending sends one batch of due rows. Concurrent callers in one
// process share a single run; other replicas skip rows claimed here.
func (d *NotificationDispatcher) DispatchPending(ctx context.Context) (DispatchStats, error) {
	v, err, shared := d.sf.Do("dispatch", func() (interface{}, error) {
		return d.dispatchBatch(ctx)
	})
	if shared {
		observability.RecordNotificationEvent(ctx, "batch", "shared")
	}
	stats, _ := v.(DispatchStats)
	return stats, err
}

func (d *NotificationDispatcher) dispatchBatch(ctx context.Context) (DispatchStats, error) {
	var stats DispatchStats
	rows, err := d.outbox.ClaimDue(ctx, d.now().UTC(), d.opts.ClaimLease, d.opts.BatchSize)
	if err != nil {
		return stats, err
	}
	for _, row := range rows {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		sendErr := d.deliver(ctx, row)
		if sendErr == nil {
			if err := d.outbox.MarkSent(ctx, row.ID, d.now().UTC()); err != nil {
				return stats, err
			}
			stats.Sent++
			observability.RecordNotificationEvent(ctx, string(row.Kind), "sent")
			continue
		}

		attempts := row.Attempts + 1
		if attempts >= d.opts.MaxAttempts {
			if err := d.outbox.MarkFailed(ctx, row.ID, attempts, sendErr.Error()); err != nil {
				return stats, err
			}
			stats.Failed++
			observability.RecordNotificationEvent(ctx, string(row.Kind), "failed")
			d.logger.ErrorContext(ctx, "notification delivery gave up",
				"outbox_id", row.ID, "kind", row.Kind, "attempts", attempts, "error", sendErr)
			continue
		}
		next := d.now().UTC().Add(notificationBackoff(attempts))
		if err := d.outbox.MarkRetry(ctx, row.ID, attempts, next, sendErr.Error()); err != nil {
			return stats, err
		}
		stats.Retried++
		observability.RecordNotificationEvent(ctx, string(row.Kind), "retry")
		d.logger.WarnContext(ctx, "notification delivery failed, retry scheduled",
			"outbox_id", row.ID, "kind", row.Kind, "attempts", attempts, "next_attempt_at", next, "error", sendErr)
	}
	return stats, nil
}

func (d *NotificationDispatcher) deliver(ctx context.Context, row domain.NotificationOutbox) error {
	msg, err := d.renderer.Render(row)
	if err != nil {
		return err
	}
	return d.sender.Send(ctx, msg)
}

// PurgeSent drops delivered rows older than the retention window.
func (d *NotificationDispatcher) PurgeSent(ctx context.Context) (int64, error) {
	if d.opts.Retention <= 0 {
		return 0, nil
	}
	return d.outbox.PurgeSent(ctx, d.now().UTC().Add(-d.opts.Retention), d.opts.BatchSize*10)
}

func (d *NotificationDispatcher) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := d.DispatchPending(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.logger.Warn("notification dispatch failed", "error", err)
				continue
			}
			if stats.Sent+stats.Retried+stats.Failed > 0 {
				d.logger.Info("notification dispatch finished",
					"sent", stats.Sent, "retried", stats.Retried, "failed", stats.Failed)
			}
			if purged, err := d.PurgeSent(ctx); err != nil {
				d.logger.Warn("notification outbox purge failed", "error", err)
			} else if purged > 0 {
				d.logger.Info("notification outbox purge removed sent rows", "deleted", purged)
			}
		}
	}
}

// notificationBackoff is 2^attempts seconds, capped.
func notificationBackoff(attempts int) time.Duration {
	if attempts <= 0 {
		return time.Second
	}
	if attempts >= 10 {
		return maxNotificationBackoff
	}
	d := time.Duration(1<<attempts) * time.Second
	if d > maxNotificationBackoff {
		return maxNotificationBackoff
	}
	return d
}
