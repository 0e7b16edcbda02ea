package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/repository"
	"github.com/sandeepkv93/account-auth-service/internal/security"
)

type TokenService struct {
	jwtMgr     *security.JWTManager
	userRepo   repository.UserRepository
	blocklist  TokenBlocklist
	ttl        time.Duration
	refreshTTL time.Duration
}

func NewTokenService(jwtMgr *security.JWTManager, userRepo repository.UserRepository, blocklist TokenBlocklist, ttl, refreshTTL time.Duration) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, userRepo: userRepo, blocklist: blocklist, ttl: ttl, refreshTTL: refreshTTL}
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

// Attempt checks credentials and mints a token. Every rejection looks the
// same to the caller.
func (s *TokenService) Attempt(ctx context.Context, creds Credentials) (*TokenResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(creds.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, AuthenticationError(MsgBadCredentials)
		}
		return nil, InternalError(err)
	}
	ok, err := security.VerifyPassword(user.PasswordHash, creds.Password)
	if err != nil {
		return nil, InternalError(err)
	}
	if !ok || (creds.RequireVerified && !user.IsVerified) {
		return nil, AuthenticationError(MsgBadCredentials)
	}
	s.upgradeHash(ctx, user, creds.Password)
	return s.Issue(user)
}

// upgradeHash re-hashes with current argon2 settings after a successful
// login. Failures are logged; the login still succeeds.
func (s *TokenService) upgradeHash(ctx context.Context, user *domain.User, password string) {
	if !security.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := security.HashPassword(password)
	if err == nil {
		err = s.userRepo.UpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		slog.WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
}

func (s *TokenService) Issue(user *domain.User) (*TokenResult, error) {
	token, _, err := s.jwtMgr.SignAccessToken(user.ID, s.ttl)
	if err != nil {
		return nil, InternalError(err)
	}
	return &TokenResult{User: user, Token: token, ExpiresIn: int64(s.ttl / time.Second)}, nil
}

func (s *TokenService) Authenticate(ctx context.Context, raw string) (Caller, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "invalid", "access")
		return Caller{}, AuthenticationError(MsgUnauthenticated)
	}
	return s.callerFromClaims(ctx, claims, "access")
}

// AuthenticateForRefresh also accepts expired tokens still inside the refresh
// window.
func (s *TokenService) AuthenticateForRefresh(ctx context.Context, raw string) (Caller, error) {
	claims, err := s.jwtMgr.ParseRefreshableToken(raw, s.refreshTTL)
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "invalid", "refresh")
		return Caller{}, AuthenticationError(MsgUnauthenticated)
	}
	return s.callerFromClaims(ctx, claims, "refresh")
}

func (s *TokenService) callerFromClaims(ctx context.Context, claims *security.Claims, source string) (Caller, error) {
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "invalid", source)
		return Caller{}, AuthenticationError(MsgUnauthenticated)
	}
	blocked, err := s.blocklist.IsBlocked(ctx, claims.ID)
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "error", source)
		return Caller{}, InternalError(err)
	}
	if blocked {
		observability.RecordAccessTokenValidation(ctx, "revoked", source)
		return Caller{}, AuthenticationError(MsgUnauthenticated)
	}
	observability.RecordAccessTokenValidation(ctx, "valid", source)
	caller := Caller{UserID: userID, TokenID: claims.ID}
	if claims.IssuedAt != nil {
		caller.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		caller.ExpiresAt = claims.ExpiresAt.Time
	}
	return caller, nil
}

// Invalidate blocks the caller's token for as long as it could still be
// presented, including the refresh window. Blocking an already blocked token
// is not an error.
func (s *TokenService) Invalidate(ctx context.Context, caller Caller) error {
	_, err := s.block(ctx, caller)
	return err
}

func (s *TokenService) block(ctx context.Context, caller Caller) (bool, error) {
	if caller.TokenID == "" {
		return false, AuthenticationError(MsgUnauthenticated)
	}
	until := caller.ExpiresAt
	if !caller.IssuedAt.IsZero() {
		if refreshEnd := caller.IssuedAt.Add(s.refreshTTL); refreshEnd.After(until) {
			until = refreshEnd
		}
	}
	inserted, err := s.blocklist.Block(ctx, caller.TokenID, caller.UserID, until)
	if err != nil {
		return false, InternalError(err)
	}
	return inserted, nil
}

func (s *TokenService) Refresh(ctx context.Context, caller Caller) (*TokenResult, error) {
	user, err := s.userRepo.FindByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, AuthenticationError(MsgUnauthenticated)
		}
		return nil, InternalError(err)
	}
	// The old token is spent by whichever refresh blocks it first. A
	// concurrent refresh that passed IsBlocked loses here.
	inserted, err := s.block(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !inserted {
		observability.RecordAccessTokenValidation(ctx, "revoked", "refresh")
		return nil, AuthenticationError(MsgUnauthenticated)
	}
	return s.Issue(user)
}
