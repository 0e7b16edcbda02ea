package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Store groups the repositories that take part in the auth state machine so a
// caller can run several writes inside one database transaction.
type Store interface {
	Users() UserRepository
	VerificationTokens() VerificationTokenRepository
	Outbox() NotificationOutboxRepository
	// Transaction runs fn against a Store bound to a single transaction. A
	// non-nil error from fn (or a panic) rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type GormStore struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (s *GormStore) Users() UserRepository { return NewUserRepository(s.db) }

func (s *GormStore) VerificationTokens() VerificationTokenRepository {
	return NewVerificationTokenRepository(s.db)
}

func (s *GormStore) Outbox() NotificationOutboxRepository {
	return NewNotificationOutboxRepository(s.db)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique constraint") ||
		strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "unique violation")
}
