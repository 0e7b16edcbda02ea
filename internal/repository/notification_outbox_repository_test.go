package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
)

func TestNotificationOutboxRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newRepositoryDBForTest(t)
	repo := NewNotificationOutboxRepository(db)
	now := time.Now().UTC()

	due := &domain.NotificationOutbox{Kind: domain.NotificationVerify, UserID: 1, Email: "a@example.com", Name: "A", Token: "tok"}
	later := &domain.NotificationOutbox{Kind: domain.NotificationRecover, UserID: 2, Email: "b@example.com", Name: "B", NextAttemptAt: now.Add(time.Hour)}
	for _, m := range []*domain.NotificationOutbox{due, later} {
		if err := repo.Enqueue(ctx, m); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	rows, err := repo.ClaimDue(ctx, now.Add(time.Second), time.Minute, 10)
	if err != nil {
		t.Fatalf("claim due: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != due.ID {
		t.Fatalf("expected only the due row, got %+v", rows)
	}

	if err := repo.MarkSent(ctx, due.ID, now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	var sent domain.NotificationOutbox
	if err := db.First(&sent, due.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if sent.Status != domain.NotificationSent || sent.Token != "" || sent.SentAt == nil {
		t.Fatalf("expected sent row with token cleared, got %+v", sent)
	}

	if err := repo.MarkFailed(ctx, later.ID, 5, "smtp down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	var failed domain.NotificationOutbox
	if err := db.First(&failed, later.ID).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if failed.Status != domain.NotificationFailed || failed.Attempts != 5 || failed.LastError != "smtp down" {
		t.Fatalf("unexpected failed row: %+v", failed)
	}

	deleted, err := repo.PurgeSent(ctx, now.Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one purged row, got %d", deleted)
	}
}

func TestNotificationOutboxClaimDueLeasesRows(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationOutboxRepository(newRepositoryDBForTest(t))
	now := time.Now().UTC()
	for _, email := range []string{"a@example.com", "b@example.com"} {
		if err := repo.Enqueue(ctx, &domain.NotificationOutbox{Kind: domain.NotificationVerify, Email: email, NextAttemptAt: now.Add(-time.Second)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	first, err := repo.ClaimDue(ctx, now, time.Minute, 10)
	if err != nil || len(first) != 2 {
		t.Fatalf("expected both rows claimed, got %d err=%v", len(first), err)
	}
	again, err := repo.ClaimDue(ctx, now, time.Minute, 10)
	if err != nil || len(again) != 0 {
		t.Fatalf("expected leased rows to be skipped, got %d err=%v", len(again), err)
	}
	expired, err := repo.ClaimDue(ctx, now.Add(2*time.Minute), time.Minute, 10)
	if err != nil || len(expired) != 2 {
		t.Fatalf("expected rows back after the lease ran out, got %d err=%v", len(expired), err)
	}
}

func TestNotificationOutboxConcurrentClaimsDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationOutboxRepository(newRepositoryDBForTest(t))
	now := time.Now().UTC()
	const rows = 6
	for i := 0; i < rows; i++ {
		if err := repo.Enqueue(ctx, &domain.NotificationOutbox{Kind: domain.NotificationRecover, Email: "c@example.com", NextAttemptAt: now.Add(-time.Second)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[uint]int{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.ClaimDue(ctx, now, time.Minute, rows)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, row := range claimed {
				seen[row.ID]++
			}
		}()
	}
	wg.Wait()

	if len(seen) != rows {
		t.Fatalf("expected all %d rows claimed, got %d", rows, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("row %d claimed %d times", id, n)
		}
	}
}

func TestRevokedTokenRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRevokedTokenRepository(newRepositoryDBForTest(t))
	now := time.Now().UTC()

	if inserted, err := repo.Revoke(ctx, &domain.RevokedToken{TokenID: "jti-1", UserID: 1, ExpiresAt: now.Add(time.Hour)}); err != nil || !inserted {
		t.Fatalf("revoke: inserted=%v err=%v", inserted, err)
	}
	// second revoke of the same jti reports it was already there
	if inserted, err := repo.Revoke(ctx, &domain.RevokedToken{TokenID: "jti-1", UserID: 1, ExpiresAt: now.Add(time.Hour)}); err != nil || inserted {
		t.Fatalf("revoke again: inserted=%v err=%v", inserted, err)
	}
	if _, err := repo.Revoke(ctx, &domain.RevokedToken{TokenID: "jti-old", UserID: 1, ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("revoke expired: %v", err)
	}

	revoked, err := repo.IsRevoked(ctx, "jti-1", now)
	if err != nil || !revoked {
		t.Fatalf("expected jti-1 revoked, got %v err=%v", revoked, err)
	}
	revoked, err = repo.IsRevoked(ctx, "jti-2", now)
	if err != nil || revoked {
		t.Fatalf("expected jti-2 not revoked, got %v err=%v", revoked, err)
	}

	deleted, err := repo.DeleteExpired(ctx, now, 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one expired row deleted, got %d", deleted)
	}
}
