package domain

import "time"

// TokenPurpose scopes a verification token to the workflow that issued it.
type TokenPurpose string

const (
	PurposeEmailVerify   TokenPurpose = "email_verify"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// VerificationToken stores only the SHA-256 of the raw token handed to the user.
// Rows are deleted on first successful use.
type VerificationToken struct {
	ID        uint         `gorm:"primaryKey"`
	UserID    uint         `gorm:"not null;index:idx_verification_tokens_user_purpose,priority:1"`
	TokenHash string       `gorm:"size:64;not null;uniqueIndex"`
	Purpose   TokenPurpose `gorm:"size:32;not null;index:idx_verification_tokens_user_purpose,priority:2"`
	CreatedAt time.Time
}
