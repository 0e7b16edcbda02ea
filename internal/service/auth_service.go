package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/repository"
	"github.com/sandeepkv93/account-auth-service/internal/security"
)

const verificationTokenLength = 30

type AuthService struct {
	store  repository.Store
	tokens TokenIssuer
	now    func() time.Time
}

func NewAuthService(store repository.Store, tokens TokenIssuer) *AuthService {
	return &AuthService{store: store, tokens: tokens, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = NormalizeEmail(in.Email)
	if err := wrapValidation(in.Validate()); err != nil {
		observability.RecordAuthFlowEvent(ctx, "register", "invalid")
		return nil, err
	}
	exists, err := s.store.Users().ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, s.failed(ctx, "register", err)
	}
	if exists {
		observability.RecordAuthFlowEvent(ctx, "register", "duplicate")
		return nil, ValidationError(map[string]string{"email": msgEmailAlreadyTaken})
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, s.failed(ctx, "register", err)
	}

	user := &domain.User{Name: in.Name, Email: in.Email, PasswordHash: hash}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		raw, err := s.issueVerificationToken(ctx, tx, user.ID, domain.PurposeEmailVerify)
		if err != nil {
			return err
		}
		return enqueueNotification(ctx, tx, domain.NotificationVerify, user, raw)
	})
	if errors.Is(err, repository.ErrDuplicateEmail) {
		observability.RecordAuthFlowEvent(ctx, "register", "duplicate")
		return nil, ValidationError(map[string]string{"email": msgEmailAlreadyTaken})
	}
	if err != nil {
		return nil, s.failed(ctx, "register", err)
	}
	observability.RecordAuthFlowEvent(ctx, "register", "success")
	return user, nil
}

func (s *AuthService) VerifyUser(ctx context.Context, token string) (*VerifyResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		observability.RecordAuthFlowEvent(ctx, "verify", "invalid_token")
		return nil, InvalidTokenError()
	}
	record, err := s.store.VerificationTokens().FindByHash(ctx, security.HashToken(token), domain.PurposeEmailVerify)
	if errors.Is(err, repository.ErrVerificationTokenNotFound) {
		observability.RecordAuthFlowEvent(ctx, "verify", "invalid_token")
		return nil, InvalidTokenError()
	}
	if err != nil {
		return nil, s.failed(ctx, "verify", err)
	}
	user, err := s.store.Users().FindByID(ctx, record.UserID)
	if err != nil {
		return nil, s.failed(ctx, "verify", err)
	}
	if user.IsVerified {
		observability.RecordAuthFlowEvent(ctx, "verify", "already_verified")
		return &VerifyResult{User: user, AlreadyVerified: true}, nil
	}

	now := s.now().UTC()
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.VerificationTokens().Consume(ctx, record.ID); err != nil {
			return err
		}
		if err := tx.Users().MarkVerified(ctx, user.ID, now); err != nil {
			return err
		}
		user.IsVerified = true
		user.VerifiedAt = &now
		return enqueueNotification(ctx, tx, domain.NotificationVerified, user, "")
	})
	switch {
	case errors.Is(err, repository.ErrVerificationTokenNotFound):
		observability.RecordAuthFlowEvent(ctx, "verify", "invalid_token")
		return nil, InvalidTokenError()
	case errors.Is(err, repository.ErrUserNotFound):
		// A concurrent request verified the user first.
		fresh, ferr := s.store.Users().FindByID(ctx, record.UserID)
		if ferr != nil {
			return nil, s.failed(ctx, "verify", ferr)
		}
		observability.RecordAuthFlowEvent(ctx, "verify", "already_verified")
		return &VerifyResult{User: fresh, AlreadyVerified: true}, nil
	case err != nil:
		return nil, s.failed(ctx, "verify", err)
	}
	observability.RecordAuthFlowEvent(ctx, "verify", "success")
	return &VerifyResult{User: user}, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResult, error) {
	result, err := s.tokens.Attempt(ctx, Credentials{Email: in.Email, Password: in.Password, RequireVerified: true})
	if err != nil {
		observability.RecordAuthFlowEvent(ctx, "login", string(AsError(err).Kind))
		return nil, err
	}
	observability.RecordAuthFlowEvent(ctx, "login", "success")
	return result, nil
}

func (s *AuthService) RecoverPassword(ctx context.Context, in RecoverPasswordInput) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := wrapValidation(in.Validate()); err != nil {
		observability.RecordAuthFlowEvent(ctx, "recover_password", "invalid")
		return err
	}
	user, err := s.store.Users().FindVerifiedByEmail(ctx, in.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordAuthFlowEvent(ctx, "recover_password", "not_found")
		return NotFoundError(MsgEmailNotFound)
	}
	if err != nil {
		return s.failed(ctx, "recover_password", err)
	}
	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		raw, err := s.issueVerificationToken(ctx, tx, user.ID, domain.PurposePasswordReset)
		if err != nil {
			return err
		}
		return enqueueNotification(ctx, tx, domain.NotificationRecover, user, raw)
	})
	if err != nil {
		return s.failed(ctx, "recover_password", err)
	}
	observability.RecordAuthFlowEvent(ctx, "recover_password", "success")
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (*domain.User, error) {
	if err := wrapValidation(in.Validate()); err != nil {
		observability.RecordAuthFlowEvent(ctx, "reset_password", "invalid")
		return nil, err
	}
	token := strings.TrimSpace(in.Token)
	if token == "" {
		observability.RecordAuthFlowEvent(ctx, "reset_password", "invalid_token")
		return nil, InvalidTokenError()
	}
	record, err := s.store.VerificationTokens().FindByHash(ctx, security.HashToken(token), domain.PurposePasswordReset)
	if errors.Is(err, repository.ErrVerificationTokenNotFound) {
		observability.RecordAuthFlowEvent(ctx, "reset_password", "invalid_token")
		return nil, InvalidTokenError()
	}
	if err != nil {
		return nil, s.failed(ctx, "reset_password", err)
	}
	user, err := s.store.Users().FindByID(ctx, record.UserID)
	if err != nil {
		return nil, s.failed(ctx, "reset_password", err)
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, s.failed(ctx, "reset_password", err)
	}

	err = s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.VerificationTokens().Consume(ctx, record.ID); err != nil {
			return err
		}
		if err := tx.Users().UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		user.PasswordHash = hash
		return enqueueNotification(ctx, tx, domain.NotificationReset, user, "")
	})
	if errors.Is(err, repository.ErrVerificationTokenNotFound) {
		observability.RecordAuthFlowEvent(ctx, "reset_password", "invalid_token")
		return nil, InvalidTokenError()
	}
	if err != nil {
		return nil, s.failed(ctx, "reset_password", err)
	}
	observability.RecordAuthFlowEvent(ctx, "reset_password", "success")
	return user, nil
}

func (s *AuthService) Me(ctx context.Context, caller Caller) (*domain.User, error) {
	user, err := s.store.Users().FindByID(ctx, caller.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, AuthenticationError(MsgUnauthenticated)
	}
	if err != nil {
		return nil, InternalError(err)
	}
	return user, nil
}

func (s *AuthService) Logout(ctx context.Context, caller Caller) error {
	if err := s.tokens.Invalidate(ctx, caller); err != nil {
		observability.RecordAuthFlowEvent(ctx, "logout", "error")
		return err
	}
	observability.RecordAuthFlowEvent(ctx, "logout", "success")
	return nil
}

func (s *AuthService) Refresh(ctx context.Context, caller Caller) (*TokenResult, error) {
	result, err := s.tokens.Refresh(ctx, caller)
	if err != nil {
		observability.RecordAuthFlowEvent(ctx, "refresh", string(AsError(err).Kind))
		return nil, err
	}
	observability.RecordAuthFlowEvent(ctx, "refresh", "success")
	return result, nil
}

func (s *AuthService) issueVerificationToken(ctx context.Context, tx repository.Store, userID uint, purpose domain.TokenPurpose) (string, error) {
	raw, err := security.NewRandomString(verificationTokenLength)
	if err != nil {
		return "", err
	}
	err = tx.VerificationTokens().Create(ctx, &domain.VerificationToken{
		UserID:    userID,
		TokenHash: security.HashToken(raw),
		Purpose:   purpose,
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

func (s *AuthService) failed(ctx context.Context, flow string, err error) error {
	observability.RecordAuthFlowEvent(ctx, flow, "error")
	return InternalError(err)
}

func enqueueNotification(ctx context.Context, tx repository.Store, kind domain.NotificationKind, user *domain.User, token string) error {
	return tx.Outbox().Enqueue(ctx, &domain.NotificationOutbox{
		Kind:   kind,
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Token:  token,
	})
}
