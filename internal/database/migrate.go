package database

import (
	"context"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/observability"

	"gorm.io/gorm"
)

func Models() []any {
	return []any{
		&domain.User{},
		&domain.VerificationToken{},
		&domain.NotificationOutbox{},
		&domain.RevokedToken{},
	}
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	defer func() {
		observability.RecordDatabaseStartupDuration(context.Background(), "migrate", time.Since(start))
	}()
	if err := db.AutoMigrate(Models()...); err != nil {
		observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(context.Background(), "migrate", "success")
	return nil
}

// MissingTables lists model tables not yet present.
func MissingTables(db *gorm.DB) ([]string, error) {
	var missing []string
	for _, m := range Models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(m); err != nil {
			return nil, err
		}
		if !db.Migrator().HasTable(m) {
			missing = append(missing, stmt.Schema.Table)
		}
	}
	return missing, nil
}
