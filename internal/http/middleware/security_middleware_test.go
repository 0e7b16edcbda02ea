package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCORS(t *testing.T) {
	cases := []struct {
		name      string
		method    string
		origin    string
		wantCode  int
		wantAllow string
	}{
		{name: "known origin", method: http.MethodPost, origin: "https://app.example.com", wantCode: http.StatusOK, wantAllow: "https://app.example.com"},
		{name: "unknown origin", method: http.MethodPost, origin: "https://evil.example.com", wantCode: http.StatusOK, wantAllow: ""},
		{name: "preflight", method: http.MethodOptions, origin: "https://app.example.com", wantCode: http.StatusNoContent, wantAllow: "https://app.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := CORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodOptions {
					t.Fatal("expected preflight to short-circuit")
				}
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tc.method, "/api/v1/auth/login", nil)
			req.Header.Set("Origin", tc.origin)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantAllow {
				t.Fatalf("expected allow-origin %q, got %q", tc.wantAllow, got)
			}
			if got := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
				t.Fatalf("expected Authorization in allow-headers, got %q", got)
			}
			exposed := rr.Header().Get("Access-Control-Expose-Headers")
			if (tc.wantAllow != "") != (exposed == "X-Request-Id") {
				t.Fatalf("expose-headers=%q for allow-origin %q", exposed, tc.wantAllow)
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil))
	for header, want := range map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Cache-Control":           "no-store",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	} {
		if got := rr.Header().Get(header); got != want {
			t.Fatalf("%s=%q want %q", header, got, want)
		}
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("expected no HSTS header on plain http")
	}
}

func TestRequestIDEchoedInResponse(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("expected request id echo, got %q", got)
	}
}

func TestBodyLimitRejectsLargeBodies(t *testing.T) {
	var readErr error
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)

	var maxBytesErr *http.MaxBytesError
	if !errors.As(readErr, &maxBytesErr) {
		t.Fatalf("expected MaxBytesError, got %v", readErr)
	}
}

func TestBodyLimitRejectsDeclaredLengthUpFront(t *testing.T) {
	called := false
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(strings.Repeat("x", 64))))

	if called {
		t.Fatal("handler should not run for an oversize body")
	}
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	var env struct {
		Message string `json:"message"`
		Error   bool   `json:"error"`
		Code    int    `json:"code"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if !env.Error || env.Code != http.StatusRequestEntityTooLarge || env.Message != msgBodyTooLarge {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}
