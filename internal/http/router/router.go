package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/account-auth-service/internal/health"
	"github.com/sandeepkv93/account-auth-service/internal/http/handler"
	"github.com/sandeepkv93/account-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/account-auth-service/internal/http/response"
	"github.com/sandeepkv93/account-auth-service/internal/service"
)

// Auth payloads are a handful of short strings.
const defaultMaxBodyBytes = 64 << 10

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	Authenticator  service.TokenAuthenticator
	CORSOrigins    []string
	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
	// MaxBodyBytes caps request bodies. Zero uses defaultMaxBodyBytes.
	MaxBodyBytes int64
}

func NewRouter(dep Dependencies) http.Handler {
	maxBody := dep.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.RequestID,
		middleware.StructuredRequestLogger,
		middleware.SecurityHeaders,
		middleware.CORS(dep.CORSOrigins),
		middleware.BodyLimit(maxBody),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", live)
		r.Get("/ready", ready(dep.Readiness))
	})
	r.Route("/api/v1/auth", func(r chi.Router) {
		mountAuth(r, dep.AuthHandler, dep.Authenticator)
	})

	if !dep.EnableOTelHTTP {
		return r
	}
	return otelhttp.NewHandler(r, "http.server", otelhttp.WithSpanNameFormatter(routeSpanName(r)))
}

// mountAuth registers the public flows, then the bearer-protected ones.
// /refresh sits outside the protected group because it accepts tokens that
// expired within the refresh window.
func mountAuth(r chi.Router, h *handler.AuthHandler, authn service.TokenAuthenticator) {
	r.Post("/register", h.Register)
	r.Post("/verify", h.Verify)
	r.Post("/login", h.Login)
	r.Post("/recover-password", h.RecoverPassword)
	r.Post("/reset-password", h.ResetPassword)

	r.With(middleware.RefreshAuthMiddleware(authn)).Post("/refresh", h.Refresh)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(authn))
		r.Post("/me", h.Me)
		r.Post("/logout", h.Logout)
	})
}

func live(w http.ResponseWriter, r *http.Request) {
	response.Success(w, r, http.StatusOK, "OK", map[string]string{"status": "ok"})
}

func ready(probes *health.ProbeRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if probes == nil {
			response.Success(w, r, http.StatusOK, "OK", map[string]any{"status": "ready", "checks": []health.CheckResult{}})
			return
		}
		ok, results := probes.Ready(r.Context())
		if !ok {
			response.ErrorWithResults(w, r, http.StatusServiceUnavailable, "dependencies are not ready", map[string]any{"status": "unready", "checks": results})
			return
		}
		response.Success(w, r, http.StatusOK, "OK", map[string]any{"status": "ready", "checks": results})
	}
}

// routeSpanName names spans "METHOD /path" for registered routes. Every route
// here is static, so the path carries no user data. Unmatched paths collapse
// to the method alone.
func routeSpanName(mux *chi.Mux) func(string, *http.Request) string {
	return func(_ string, r *http.Request) string {
		if mux.Match(chi.NewRouteContext(), r.Method, r.URL.Path) {
			return r.Method + " " + r.URL.Path
		}
		return r.Method
	}
}
