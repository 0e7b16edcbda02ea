package repository

import (
	"context"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RevokedTokenRepository interface {
	// Revoke reports whether this call inserted the row.
	Revoke(ctx context.Context, token *domain.RevokedToken) (bool, error)
	IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type GormRevokedTokenRepository struct {
	db *gorm.DB
}

func NewRevokedTokenRepository(db *gorm.DB) RevokedTokenRepository {
	return &GormRevokedTokenRepository{db: db}
}

func (r *GormRevokedTokenRepository) Revoke(ctx context.Context, token *domain.RevokedToken) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(token)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormRevokedTokenRepository) IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RevokedToken{}).
		Where("token_id = ? AND expires_at > ?", tokenID, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRevokedTokenRepository) DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	scoped := r.db.WithContext(ctx)
	sub := scoped.Model(&domain.RevokedToken{}).
		Select("token_id").
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Limit(batchSize)
	res := scoped.
		Where("token_id IN (?)", sub).
		Delete(&domain.RevokedToken{})
	return res.RowsAffected, res.Error
}
