package database

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/security"

	"gorm.io/gorm"
)

// SeedUser is a demo account created verified so it can log in straight away.
type SeedUser struct {
	Name     string
	Email    string
	Password string
}

var DefaultSeedUsers = []SeedUser{
	{Name: "John Doe", Email: "john@mail.com", Password: "password"},
}

type SeedReport struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"`
}

func (r *SeedReport) Noop() bool { return len(r.Created) == 0 }

// Seed inserts users missing by email. Existing rows are left untouched,
// including their password.
func Seed(ctx context.Context, db *gorm.DB, users []SeedUser) (*SeedReport, error) {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "seed", time.Since(start))
	}()

	report := &SeedReport{}
	for _, su := range users {
		var existing domain.User
		err := db.WithContext(ctx).Where("email = ?", su.Email).First(&existing).Error
		if err == nil {
			report.Skipped = append(report.Skipped, su.Email)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
			return nil, err
		}

		hash, err := security.HashPassword(su.Password)
		if err != nil {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
			return nil, err
		}
		now := time.Now().UTC()
		user := domain.User{
			Name:         su.Name,
			Email:        su.Email,
			PasswordHash: hash,
			IsVerified:   true,
			VerifiedAt:   &now,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			observability.RecordDatabaseStartupEvent(ctx, "seed", "error")
			return nil, err
		}
		report.Created = append(report.Created, su.Email)
	}
	observability.RecordDatabaseStartupEvent(ctx, "seed", "success")
	return report, nil
}

// Plan reports which seed users would be created without writing anything.
func Plan(ctx context.Context, db *gorm.DB, users []SeedUser) (*SeedReport, error) {
	report := &SeedReport{}
	for _, su := range users {
		var count int64
		if err := db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", su.Email).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			report.Skipped = append(report.Skipped, su.Email)
		} else {
			report.Created = append(report.Created, su.Email)
		}
	}
	return report, nil
}
