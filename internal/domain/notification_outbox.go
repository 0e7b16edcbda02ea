package domain

import "time"

type NotificationKind string

const (
	NotificationVerify   NotificationKind = "verify"
	NotificationVerified NotificationKind = "verified"
	NotificationRecover  NotificationKind = "recover"
	NotificationReset    NotificationKind = "reset"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// NotificationOutbox is written in the same transaction as the state change it
// announces and delivered afterwards by the dispatcher. Token is cleared once
// the message leaves the outbox.
type NotificationOutbox struct {
	ID            uint               `gorm:"primaryKey"`
	Kind          NotificationKind   `gorm:"size:32;not null"`
	UserID        uint               `gorm:"not null;index"`
	Email         string             `gorm:"size:255;not null"`
	Name          string             `gorm:"size:50;not null"`
	Token         string             `gorm:"size:64"`
	Status        NotificationStatus `gorm:"size:16;not null;default:pending;index:idx_notification_outbox_due,priority:1"`
	Attempts      int                `gorm:"not null;default:0"`
	LastError     string             `gorm:"size:1024"`
	NextAttemptAt time.Time          `gorm:"not null;index:idx_notification_outbox_due,priority:2"`
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (NotificationOutbox) TableName() string { return "notification_outbox" }
