package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/account-auth-service/internal/config"
	"github.com/sandeepkv93/account-auth-service/internal/database"
	"github.com/sandeepkv93/account-auth-service/internal/health"
	"github.com/sandeepkv93/account-auth-service/internal/http/handler"
	"github.com/sandeepkv93/account-auth-service/internal/http/router"
	"github.com/sandeepkv93/account-auth-service/internal/repository"
	"github.com/sandeepkv93/account-auth-service/internal/security"
	"github.com/sandeepkv93/account-auth-service/internal/service"
)

const testJWTSecret = "integration-secret-integration-secret-0123"

type apiEnvelope struct {
	Message string            `json:"message"`
	Error   bool              `json:"error"`
	Code    int               `json:"code"`
	Errors  map[string]string `json:"errors"`
	Results json.RawMessage   `json:"results"`
}

func (e apiEnvelope) resultsNull() bool {
	return len(e.Results) == 0 || string(e.Results) == "null"
}

type tokenResults struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	User      struct {
		ID         uint   `json:"id"`
		Email      string `json:"email"`
		IsVerified bool   `json:"is_verified"`
	} `json:"user"`
}

// captureSender keeps every delivered message so tests can read tokens out
// of the rendered bodies, the same way a user would from their inbox.
type captureSender struct {
	mu   sync.Mutex
	sent []service.Message
}

func (s *captureSender) Send(_ context.Context, msg service.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

func (s *captureSender) subjects(to string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, msg := range s.sent {
		if msg.To == to {
			out = append(out, msg.Subject)
		}
	}
	return out
}

// lastToken returns the value of the last "<label>: <token>" line sent to to.
func (s *captureSender) lastToken(t *testing.T, to, label string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].To != to {
			continue
		}
		for _, line := range strings.Split(s.sent[i].Body, "\n") {
			if value, ok := strings.CutPrefix(line, label+": "); ok {
				return strings.TrimSpace(value)
			}
		}
	}
	t.Fatalf("no %q found in messages sent to %s", label, to)
	return ""
}

type authTestEnv struct {
	baseURL    string
	client     *http.Client
	db         *gorm.DB
	sender     *captureSender
	dispatcher *service.NotificationDispatcher
}

// deliver flushes the outbox the way the background dispatcher would.
func (e *authTestEnv) deliver(t *testing.T) {
	t.Helper()
	if _, err := e.dispatcher.DispatchPending(context.Background()); err != nil {
		t.Fatalf("dispatch outbox: %v", err)
	}
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(&config.Config{DatabaseDriver: "sqlite", DatabaseURL: dsn})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return newAuthTestEnvWithDB(t, db)
}

func newAuthTestEnvWithDB(t *testing.T, db *gorm.DB) *authTestEnv {
	t.Helper()
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := repository.NewStore(db)
	jwtMgr := security.NewJWTManager("account-auth-service", "account-auth-clients", testJWTSecret)
	blocklist := service.NewDBTokenBlocklist(repository.NewRevokedTokenRepository(db))
	tokens := service.NewTokenService(jwtMgr, store.Users(), blocklist, time.Hour, 14*24*time.Hour)
	authSvc := service.NewAuthService(store, tokens)

	sender := &captureSender{}
	dispatcher := service.NewNotificationDispatcher(
		repository.NewNotificationOutboxRepository(db),
		sender,
		service.NewNotificationRenderer("http://localhost:3000"),
		service.DispatcherOptions{BatchSize: 20, MaxAttempts: 3},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:   handler.NewAuthHandler(authSvc),
		Authenticator: tokens,
		CORSOrigins:   []string{"http://localhost:3000"},
		Readiness:     health.NewProbeRunner(time.Second, 0, health.NewDBChecker(db), health.NewSchemaChecker(db)),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &authTestEnv{
		baseURL:    srv.URL,
		client:     srv.Client(),
		db:         db,
		sender:     sender,
		dispatcher: dispatcher,
	}
}

func (e *authTestEnv) do(t *testing.T, method, path string, body any, token string) (int, apiEnvelope) {
	t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.baseURL+path, payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("do request %s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		t.Fatalf("decode %s %s envelope: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func decodeResults[T any](t *testing.T, env apiEnvelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Results, &out); err != nil {
		t.Fatalf("decode results %s: %v", string(env.Results), err)
	}
	return out
}

// registerVerified registers a user, delivers the verification mail and
// verifies with the token it carried.
func (e *authTestEnv) registerVerified(t *testing.T, name, email, password string) {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":                  name,
		"email":                 email,
		"password":              password,
		"password_confirmation": password,
	}, "")
	if status != http.StatusCreated || env.Error {
		t.Fatalf("register %s: status=%d env=%+v", email, status, env)
	}
	e.deliver(t)
	token := e.sender.lastToken(t, email, "Verification token")
	status, env = e.do(t, http.MethodPost, "/api/v1/auth/verify", map[string]string{"token": token}, "")
	if status != http.StatusOK || env.Error {
		t.Fatalf("verify %s: status=%d env=%+v", email, status, env)
	}
}

func (e *authTestEnv) login(t *testing.T, email, password string) tokenResults {
	t.Helper()
	status, env := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if status != http.StatusOK || env.Error {
		t.Fatalf("login %s: status=%d env=%+v", email, status, env)
	}
	res := decodeResults[tokenResults](t, env)
	if res.Token == "" {
		t.Fatalf("login %s returned empty token", email)
	}
	return res
}
