package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
)

// Caller is the identity resolved from a validated bearer token.
type Caller struct {
	UserID    uint
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenResult struct {
	User      *domain.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expires_in"`
}

type VerifyResult struct {
	User            *domain.User
	AlreadyVerified bool
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	VerifyUser(ctx context.Context, token string) (*VerifyResult, error)
	Login(ctx context.Context, in LoginInput) (*TokenResult, error)
	RecoverPassword(ctx context.Context, in RecoverPasswordInput) error
	ResetPassword(ctx context.Context, in ResetPasswordInput) (*domain.User, error)
	Me(ctx context.Context, caller Caller) (*domain.User, error)
	Logout(ctx context.Context, caller Caller) error
	Refresh(ctx context.Context, caller Caller) (*TokenResult, error)
}

type Credentials struct {
	Email           string
	Password        string
	RequireVerified bool
}

type TokenIssuer interface {
	Attempt(ctx context.Context, creds Credentials) (*TokenResult, error)
	Invalidate(ctx context.Context, caller Caller) error
	Refresh(ctx context.Context, caller Caller) (*TokenResult, error)
	TTL() time.Duration
}

type TokenAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (Caller, error)
	AuthenticateForRefresh(ctx context.Context, raw string) (Caller, error)
}

// TokenBlocklist remembers invalidated token IDs until they could no longer
// be presented anyway. Block reports false when the ID was already blocked,
// so exactly one of several racing callers sees true.
type TokenBlocklist interface {
	Block(ctx context.Context, tokenID string, userID uint, until time.Time) (bool, error)
	IsBlocked(ctx context.Context, tokenID string) (bool, error)
}

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

//go:generate mockgen -destination=gomock/notification_sender_mock.go -package=gomock github.com/sandeepkv93/account-auth-service/internal/service NotificationSender
type NotificationSender interface {
	Send(ctx context.Context, msg Message) error
}
