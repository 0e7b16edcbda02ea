package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/account-auth-service/internal/domain"

	"gorm.io/gorm"
)

var ErrVerificationTokenNotFound = errors.New("verification token not found")

type VerificationTokenRepository interface {
	Create(ctx context.Context, token *domain.VerificationToken) error
	FindByHash(ctx context.Context, hash string, purpose domain.TokenPurpose) (*domain.VerificationToken, error)
	// Consume deletes the token row. It reports ErrVerificationTokenNotFound
	// when another request already removed it.
	Consume(ctx context.Context, tokenID uint) error
}

type GormVerificationTokenRepository struct {
	db *gorm.DB
}

func NewVerificationTokenRepository(db *gorm.DB) VerificationTokenRepository {
	return &GormVerificationTokenRepository{db: db}
}

func (r *GormVerificationTokenRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *GormVerificationTokenRepository) FindByHash(ctx context.Context, hash string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	var token domain.VerificationToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND purpose = ?", hash, purpose).
		First(&token).Error
	if err != nil {
		return nil, translateNotFound(err, ErrVerificationTokenNotFound)
	}
	return &token, nil
}

func (r *GormVerificationTokenRepository) Consume(ctx context.Context, tokenID uint) error {
	res := r.db.WithContext(ctx).
		Where("id = ?", tokenID).
		Delete(&domain.VerificationToken{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVerificationTokenNotFound
	}
	return nil
}
