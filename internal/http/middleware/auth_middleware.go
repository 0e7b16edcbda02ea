package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/account-auth-service/internal/http/response"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
	"github.com/sandeepkv93/account-auth-service/internal/service"
)

type contextKey string

const (
	CallerContextKey contextKey = "caller"
)

// AuthMiddleware requires a valid, unrevoked bearer token.
func AuthMiddleware(authn service.TokenAuthenticator) func(http.Handler) http.Handler {
	return bearerMiddleware(authn.Authenticate)
}

// RefreshAuthMiddleware also admits expired tokens still inside the refresh
// window.
func RefreshAuthMiddleware(authn service.TokenAuthenticator) func(http.Handler) http.Handler {
	return bearerMiddleware(authn.AuthenticateForRefresh)
}

func bearerMiddleware(authenticate func(context.Context, string) (service.Caller, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				auditRejected(r, "missing_bearer")
				response.Error(w, r, http.StatusUnauthorized, service.MsgUnauthenticated, nil)
				return
			}
			caller, err := authenticate(r.Context(), raw)
			if err != nil {
				svcErr := service.AsError(err)
				auditRejected(r, string(svcErr.Kind))
				response.Error(w, r, service.StatusCode(svcErr.Kind), svcErr.Message, nil)
				return
			}
			annotateUser(r.Context(), caller.UserID)
			ctx := context.WithValue(r.Context(), CallerContextKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func auditRejected(r *http.Request, reason string) {
	annotateRejection(r.Context(), reason)
	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "auth.token.rejected",
		TargetType: "access_token",
		Action:     "authenticate",
		Outcome:    "rejected",
		Reason:     reason,
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func CallerFromContext(ctx context.Context) (service.Caller, bool) {
	c, ok := ctx.Value(CallerContextKey).(service.Caller)
	return c, ok
}
