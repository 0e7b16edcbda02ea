package domain

import "time"

// RevokedToken backs the bearer-token blocklist when Redis is not configured.
type RevokedToken struct {
	TokenID   string    `gorm:"primaryKey;size:64"`
	UserID    uint      `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}
