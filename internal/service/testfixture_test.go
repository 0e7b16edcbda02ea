package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/account-auth-service/internal/domain"
	"github.com/sandeepkv93/account-auth-service/internal/repository"
	"github.com/sandeepkv93/account-auth-service/internal/security"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testJWTSecret = "service-test-secret-0123456789abcdef"

type authFixture struct {
	db     *gorm.DB
	store  repository.Store
	tokens *TokenService
	auth   *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "service.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.VerificationToken{},
		&domain.NotificationOutbox{},
		&domain.RevokedToken{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := repository.NewStore(db)
	blocklist := NewDBTokenBlocklist(repository.NewRevokedTokenRepository(db))
	jwtMgr := security.NewJWTManager("test-issuer", "test-audience", testJWTSecret)
	tokens := NewTokenService(jwtMgr, store.Users(), blocklist, time.Hour, 24*time.Hour)
	return &authFixture{
		db:     db,
		store:  store,
		tokens: tokens,
		auth:   NewAuthService(store, tokens),
	}
}

func (fx *authFixture) register(t *testing.T, name, email, password string) *domain.User {
	t.Helper()
	user, err := fx.auth.Register(context.Background(), RegisterInput{
		Name:                 name,
		Email:                email,
		Password:             password,
		PasswordConfirmation: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

// latestToken returns the raw token carried by the newest outbox row of kind.
func (fx *authFixture) latestToken(t *testing.T, kind domain.NotificationKind) string {
	t.Helper()
	var row domain.NotificationOutbox
	if err := fx.db.Where("kind = ?", kind).Order("id DESC").First(&row).Error; err != nil {
		t.Fatalf("load %s outbox row: %v", kind, err)
	}
	if row.Token == "" {
		t.Fatalf("expected %s outbox row to carry a token", kind)
	}
	return row.Token
}

func (fx *authFixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := fx.db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func (fx *authFixture) registerVerified(t *testing.T, name, email, password string) *domain.User {
	t.Helper()
	fx.register(t, name, email, password)
	res, err := fx.auth.VerifyUser(context.Background(), fx.latestToken(t, domain.NotificationVerify))
	if err != nil {
		t.Fatalf("verify %s: %v", email, err)
	}
	return res.User
}

func requireKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	svcErr := AsError(err)
	if svcErr.Kind != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, svcErr.Kind, err)
	}
	return svcErr
}
