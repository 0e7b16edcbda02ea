package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/security"
	"gorm.io/gorm"
)

func TestAuthServiceRegisterMatrix(t *testing.T) {
	ctx := context.Background()

	t.Run("field validation", func(t *testing.T) {
		fx := newAuthFixture(t)
		cases := []struct {
			name  string
			in    RegisterInput
			field string
		}{
			{name: "missing name", in: RegisterInput{Email: "a@example.com", Password: "password1", PasswordConfirmation: "password1"}, field: "name"},
			{name: "long name", in: RegisterInput{Name: strings.Repeat("n", 51), Email: "a@example.com", Password: "password1", PasswordConfirmation: "password1"}, field: "name"},
			{name: "bad email", in: RegisterInput{Name: "Ann", Email: "not-an-email", Password: "password1", PasswordConfirmation: "password1"}, field: "email"},
			{name: "long email", in: RegisterInput{Name: "Ann", Email: strings.Repeat("a", 45) + "@example.com", Password: "password1", PasswordConfirmation: "password1"}, field: "email"},
			{name: "short password", in: RegisterInput{Name: "Ann", Email: "a@example.com", Password: "short", PasswordConfirmation: "short"}, field: "password"},
			{name: "long password", in: RegisterInput{Name: "Ann", Email: "a@example.com", Password: strings.Repeat("p", 51), PasswordConfirmation: strings.Repeat("p", 51)}, field: "password"},
			{name: "confirmation mismatch", in: RegisterInput{Name: "Ann", Email: "a@example.com", Password: "password1", PasswordConfirmation: "password2"}, field: "password_confirmation"},
			{name: "missing confirmation", in: RegisterInput{Name: "Ann", Email: "a@example.com", Password: "password1"}, field: "password_confirmation"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := fx.auth.Register(ctx, tc.in)
				svcErr := requireKind(t, err, KindValidation)
				if _, ok := svcErr.Fields[tc.field]; !ok {
					t.Fatalf("expected field error for %q, got %v", tc.field, svcErr.Fields)
				}
			})
		}
		if n := fx.count(t, &domain.User{}, ""); n != 0 {
			t.Fatalf("expected no users after failed validation, got %d", n)
		}
	})

	t.Run("success normalizes email and queues verification", func(t *testing.T) {
		fx := newAuthFixture(t)
		user := fx.register(t, "Ann", " Ann@X.com ", "password1")
		if user.Email != "ann@x.com" {
			t.Fatalf("expected normalized email, got %q", user.Email)
		}
		if user.IsVerified {
			t.Fatal("expected new user to be unverified")
		}
		if n := fx.count(t, &domain.VerificationToken{}, "user_id = ? AND purpose = ?", user.ID, domain.PurposeEmailVerify); n != 1 {
			t.Fatalf("expected one verification token, got %d", n)
		}
		raw := fx.latestToken(t, domain.NotificationVerify)
		if len(raw) != verificationTokenLength {
			t.Fatalf("expected %d-char token, got %q", verificationTokenLength, raw)
		}
		var tok domain.VerificationToken
		if err := fx.db.Where("user_id = ?", user.ID).First(&tok).Error; err != nil {
			t.Fatalf("load token: %v", err)
		}
		if tok.TokenHash != security.HashToken(raw) {
			t.Fatal("expected stored token hash to match the queued raw token")
		}
	})

	t.Run("duplicate email is case insensitive", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.register(t, "Ann", "ann@x.com", "password1")

		_, err := fx.auth.Register(ctx, RegisterInput{Name: "Other", Email: "ANN@x.com", Password: "password1", PasswordConfirmation: "password1"})
		svcErr := requireKind(t, err, KindValidation)
		if svcErr.Fields["email"] != msgEmailAlreadyTaken {
			t.Fatalf("expected email taken error, got %v", svcErr.Fields)
		}
		if n := fx.count(t, &domain.User{}, ""); n != 1 {
			t.Fatalf("expected one user, got %d", n)
		}
		if n := fx.count(t, &domain.VerificationToken{}, ""); n != 1 {
			t.Fatalf("expected one token, got %d", n)
		}
	})

	t.Run("failure inside transaction rolls back", func(t *testing.T) {
		fx := newAuthFixture(t)
		err := fx.db.Callback().Create().Before("gorm:create").Register("test:fail_outbox", func(tx *gorm.DB) {
			if tx.Statement.Table == "notification_outbox" {
				_ = tx.AddError(errors.New("outbox unavailable"))
			}
		})
		if err != nil {
			t.Fatalf("register callback: %v", err)
		}

		_, err = fx.auth.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "password1", PasswordConfirmation: "password1"})
		svcErr := requireKind(t, err, KindInternal)
		if !strings.Contains(svcErr.Message, "outbox unavailable") {
			t.Fatalf("expected cause in message, got %q", svcErr.Message)
		}
		if n := fx.count(t, &domain.User{}, ""); n != 0 {
			t.Fatalf("expected user insert to roll back, got %d users", n)
		}
		if n := fx.count(t, &domain.VerificationToken{}, ""); n != 0 {
			t.Fatalf("expected token insert to roll back, got %d tokens", n)
		}
	})
}

func TestAuthServiceVerifyUser(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown token leaves state untouched", func(t *testing.T) {
		fx := newAuthFixture(t)
		user := fx.register(t, "Ann", "ann@x.com", "password1")
		for _, token := range []string{"", "   ", "does-not-exist"} {
			_, err := fx.auth.VerifyUser(ctx, token)
			requireKind(t, err, KindInvalidToken)
		}
		fresh, err := fx.store.Users().FindByID(ctx, user.ID)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if fresh.IsVerified {
			t.Fatal("expected user to stay unverified")
		}
		if n := fx.count(t, &domain.VerificationToken{}, ""); n != 1 {
			t.Fatalf("expected token to remain, got %d", n)
		}
	})

	t.Run("success consumes token once", func(t *testing.T) {
		fx := newAuthFixture(t)
		user := fx.register(t, "Ann", "ann@x.com", "password1")
		raw := fx.latestToken(t, domain.NotificationVerify)

		res, err := fx.auth.VerifyUser(ctx, raw)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if res.AlreadyVerified || !res.User.IsVerified || res.User.VerifiedAt == nil {
			t.Fatalf("unexpected verify result: %+v", res)
		}
		if n := fx.count(t, &domain.VerificationToken{}, "user_id = ?", user.ID); n != 0 {
			t.Fatalf("expected token deleted, got %d", n)
		}
		if n := fx.count(t, &domain.NotificationOutbox{}, "kind = ?", domain.NotificationVerified); n != 1 {
			t.Fatalf("expected verified notification queued, got %d", n)
		}

		_, err = fx.auth.VerifyUser(ctx, raw)
		requireKind(t, err, KindInvalidToken)
	})

	t.Run("already verified is idempotent", func(t *testing.T) {
		fx := newAuthFixture(t)
		user := fx.registerVerified(t, "Ann", "ann@x.com", "password1")
		stale := "stale0verification0token000000"
		if err := fx.store.VerificationTokens().Create(ctx, &domain.VerificationToken{
			UserID:    user.ID,
			TokenHash: security.HashToken(stale),
			Purpose:   domain.PurposeEmailVerify,
		}); err != nil {
			t.Fatalf("seed stale token: %v", err)
		}

		res, err := fx.auth.VerifyUser(ctx, stale)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !res.AlreadyVerified || !res.User.IsVerified {
			t.Fatalf("expected already verified result, got %+v", res)
		}
		if n := fx.count(t, &domain.NotificationOutbox{}, "kind = ?", domain.NotificationVerified); n != 1 {
			t.Fatalf("expected no extra verified notification, got %d", n)
		}
	})

	t.Run("reset token cannot verify", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.registerVerified(t, "Ann", "ann@x.com", "password1")
		if err := fx.auth.RecoverPassword(ctx, RecoverPasswordInput{Email: "ann@x.com"}); err != nil {
			t.Fatalf("recover: %v", err)
		}
		_, err := fx.auth.VerifyUser(ctx, fx.latestToken(t, domain.NotificationRecover))
		requireKind(t, err, KindInvalidToken)
	})
}

func TestAuthServiceLogin(t *testing.T) {
	ctx := context.Background()
	fx := newAuthFixture(t)
	fx.register(t, "Pending", "pending@x.com", "password1")
	fx.registerVerified(t, "Ann", "ann@x.com", "password1")

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unverified with correct password", email: "pending@x.com", password: "password1"},
		{name: "wrong password", email: "ann@x.com", password: "password2"},
		{name: "unknown email", email: "nobody@x.com", password: "password1"},
		{name: "empty credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.auth.Login(ctx, LoginInput{Email: tc.email, Password: tc.password})
			svcErr := requireKind(t, err, KindAuthentication)
			if svcErr.Message != MsgBadCredentials {
				t.Fatalf("unexpected message %q", svcErr.Message)
			}
		})
	}

	t.Run("verified user gets token", func(t *testing.T) {
		res, err := fx.auth.Login(ctx, LoginInput{Email: "ANN@x.com", Password: "password1"})
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if res.Token == "" || res.User == nil || res.User.Email != "ann@x.com" {
			t.Fatalf("unexpected token result: %+v", res)
		}
		if res.ExpiresIn != 3600 {
			t.Fatalf("expected expires_in 3600, got %d", res.ExpiresIn)
		}
	})
}

func TestAuthServiceRecoverAndReset(t *testing.T) {
	ctx := context.Background()

	t.Run("recover requires verified account", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.register(t, "Pending", "pending@x.com", "password1")
		for _, email := range []string{"pending@x.com", "nobody@x.com"} {
			err := fx.auth.RecoverPassword(ctx, RecoverPasswordInput{Email: email})
			svcErr := requireKind(t, err, KindNotFound)
			if svcErr.Message != MsgEmailNotFound {
				t.Fatalf("unexpected message %q", svcErr.Message)
			}
		}
	})

	t.Run("recover keeps earlier tokens", func(t *testing.T) {
		fx := newAuthFixture(t)
		user := fx.registerVerified(t, "Ann", "ann@x.com", "password1")
		for i := 0; i < 2; i++ {
			if err := fx.auth.RecoverPassword(ctx, RecoverPasswordInput{Email: "Ann@X.com"}); err != nil {
				t.Fatalf("recover #%d: %v", i+1, err)
			}
		}
		if n := fx.count(t, &domain.VerificationToken{}, "user_id = ? AND purpose = ?", user.ID, domain.PurposePasswordReset); n != 2 {
			t.Fatalf("expected two reset tokens, got %d", n)
		}
	})

	t.Run("validation runs before token lookup", func(t *testing.T) {
		fx := newAuthFixture(t)
		_, err := fx.auth.ResetPassword(ctx, ResetPasswordInput{Token: "unknown", Password: "newpass12", PasswordConfirmation: "different"})
		svcErr := requireKind(t, err, KindValidation)
		if _, ok := svcErr.Fields["password_confirmation"]; !ok {
			t.Fatalf("expected confirmation error, got %v", svcErr.Fields)
		}
	})

	t.Run("verification token cannot reset", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.register(t, "Ann", "ann@x.com", "password1")
		_, err := fx.auth.ResetPassword(ctx, ResetPasswordInput{
			Token:                fx.latestToken(t, domain.NotificationVerify),
			Password:             "newpass12",
			PasswordConfirmation: "newpass12",
		})
		requireKind(t, err, KindInvalidToken)
	})

	t.Run("reset changes password and consumes token", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.registerVerified(t, "Ann", "ann@x.com", "password1")
		if err := fx.auth.RecoverPassword(ctx, RecoverPasswordInput{Email: "ann@x.com"}); err != nil {
			t.Fatalf("recover: %v", err)
		}
		raw := fx.latestToken(t, domain.NotificationRecover)
		in := ResetPasswordInput{Token: raw, Password: "newpass12", PasswordConfirmation: "newpass12"}

		user, err := fx.auth.ResetPassword(ctx, in)
		if err != nil {
			t.Fatalf("reset: %v", err)
		}
		if user.Email != "ann@x.com" {
			t.Fatalf("unexpected user %+v", user)
		}
		if _, err := fx.auth.Login(ctx, LoginInput{Email: "ann@x.com", Password: "password1"}); err == nil {
			t.Fatal("expected old password to stop working")
		}
		if _, err := fx.auth.Login(ctx, LoginInput{Email: "ann@x.com", Password: "newpass12"}); err != nil {
			t.Fatalf("login with new password: %v", err)
		}
		if n := fx.count(t, &domain.NotificationOutbox{}, "kind = ?", domain.NotificationReset); n != 1 {
			t.Fatalf("expected reset notification queued, got %d", n)
		}

		_, err = fx.auth.ResetPassword(ctx, in)
		requireKind(t, err, KindInvalidToken)
	})
}

func TestAuthServiceSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	fx := newAuthFixture(t)
	fx.registerVerified(t, "Ann", "ann@x.com", "password1")

	login, err := fx.auth.Login(ctx, LoginInput{Email: "ann@x.com", Password: "password1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	caller, err := fx.tokens.Authenticate(ctx, login.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	me, err := fx.auth.Me(ctx, caller)
	if err != nil || me.Email != "ann@x.com" {
		t.Fatalf("me: user=%+v err=%v", me, err)
	}

	refreshCaller, err := fx.tokens.AuthenticateForRefresh(ctx, login.Token)
	if err != nil {
		t.Fatalf("authenticate for refresh: %v", err)
	}
	refreshed, err := fx.auth.Refresh(ctx, refreshCaller)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Token == "" || refreshed.Token == login.Token {
		t.Fatal("expected a new token on refresh")
	}
	if _, err := fx.tokens.Authenticate(ctx, login.Token); err == nil {
		t.Fatal("expected refreshed-away token to be rejected")
	}

	next, err := fx.tokens.Authenticate(ctx, refreshed.Token)
	if err != nil {
		t.Fatalf("authenticate refreshed token: %v", err)
	}
	if err := fx.auth.Logout(ctx, next); err != nil {
		t.Fatalf("logout: %v", err)
	}
	_, err = fx.tokens.Authenticate(ctx, refreshed.Token)
	requireKind(t, err, KindAuthentication)
	_, err = fx.tokens.AuthenticateForRefresh(ctx, refreshed.Token)
	requireKind(t, err, KindAuthentication)

	_, err = fx.auth.Me(ctx, Caller{UserID: 9999, TokenID: "x"})
	requireKind(t, err, KindAuthentication)
}

func TestAuthServiceEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	fx := newAuthFixture(t)

	user, err := fx.auth.Register(ctx, RegisterInput{Name: "Ann", Email: "ann@x.com", Password: "password1", PasswordConfirmation: "password1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.IsVerified || fx.count(t, &domain.VerificationToken{}, "") != 1 {
		t.Fatal("expected unverified user with one token")
	}

	res, err := fx.auth.VerifyUser(ctx, fx.latestToken(t, domain.NotificationVerify))
	if err != nil || !res.User.IsVerified {
		t.Fatalf("verify: res=%+v err=%v", res, err)
	}
	if fx.count(t, &domain.VerificationToken{}, "") != 0 {
		t.Fatal("expected verification token deleted")
	}

	login, err := fx.auth.Login(ctx, LoginInput{Email: "ann@x.com", Password: "password1"})
	if err != nil || login.Token == "" {
		t.Fatalf("login: %v", err)
	}

	if err := fx.auth.RecoverPassword(ctx, RecoverPasswordInput{Email: "ann@x.com"}); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if fx.count(t, &domain.VerificationToken{}, "") != 1 {
		t.Fatal("expected one reset token")
	}
	resetToken := fx.latestToken(t, domain.NotificationRecover)
	if _, err := fx.auth.ResetPassword(ctx, ResetPasswordInput{Token: resetToken, Password: "newpass12", PasswordConfirmation: "newpass12"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if fx.count(t, &domain.VerificationToken{}, "") != 0 {
		t.Fatal("expected reset token deleted")
	}
	_, err = fx.auth.ResetPassword(ctx, ResetPasswordInput{Token: resetToken, Password: "newpass12", PasswordConfirmation: "newpass12"})
	if svcErr := requireKind(t, err, KindInvalidToken); StatusCode(svcErr.Kind) != 400 {
		t.Fatalf("expected 400, got %d", StatusCode(svcErr.Kind))
	}
}

func TestAuthServiceTokensAreSingleUseUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	const callers = 4

	t.Run("parallel reset", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.registerVerified(t, "Ann", "ann@x.com", "password1")
		if err := fx.auth.RecoverPassword(ctx, RecoverPasswordInput{Email: "ann@x.com"}); err != nil {
			t.Fatalf("recover: %v", err)
		}
		in := ResetPasswordInput{Token: fx.latestToken(t, domain.NotificationRecover), Password: "newpass12", PasswordConfirmation: "newpass12"}

		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = fx.auth.ResetPassword(ctx, in)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			requireKind(t, err, KindInvalidToken)
		}
		if succeeded != 1 {
			t.Fatalf("expected exactly one reset to succeed, got %d (%v)", succeeded, errs)
		}
		if n := fx.count(t, &domain.NotificationOutbox{}, "kind = ?", domain.NotificationReset); n != 1 {
			t.Fatalf("expected one reset notification, got %d", n)
		}
	})

	t.Run("parallel verify", func(t *testing.T) {
		fx := newAuthFixture(t)
		fx.register(t, "Bob", "bob@x.com", "password1")
		token := fx.latestToken(t, domain.NotificationVerify)

		results := make([]*VerifyResult, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = fx.auth.VerifyUser(ctx, token)
			}(i)
		}
		wg.Wait()

		// A loser that read the token before the winner committed sees the
		// account as already verified; any later one finds the token gone.
		verified := 0
		for i, err := range errs {
			if err != nil {
				requireKind(t, err, KindInvalidToken)
				continue
			}
			if !results[i].AlreadyVerified {
				verified++
			}
		}
		if verified != 1 {
			t.Fatalf("expected exactly one verification, got %d (%v)", verified, errs)
		}
		if n := fx.count(t, &domain.NotificationOutbox{}, "kind = ?", domain.NotificationVerified); n != 1 {
			t.Fatalf("expected one verified notification, got %d", n)
		}
	})
}
