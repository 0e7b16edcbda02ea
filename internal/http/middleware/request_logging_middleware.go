package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// requestAnnotations is filled in by handlers further down the chain. The
// logger owns it, so values survive the context copies made below it.
type requestAnnotations struct {
	userID       uint
	rejectReason string
}

const annotationsContextKey contextKey = "request_annotations"

func annotationsFrom(ctx context.Context) *requestAnnotations {
	a, _ := ctx.Value(annotationsContextKey).(*requestAnnotations)
	return a
}

func annotateUser(ctx context.Context, userID uint) {
	if a := annotationsFrom(ctx); a != nil {
		a.userID = userID
	}
}

func annotateRejection(ctx context.Context, reason string) {
	if a := annotationsFrom(ctx); a != nil {
		a.rejectReason = reason
	}
}

// StructuredRequestLogger emits one slog line per request. 4xx responses are
// warnings so failed logins and bad tokens stand out from normal traffic.
func StructuredRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		notes := &requestAnnotations{}
		r = r.WithContext(context.WithValue(r.Context(), annotationsContextKey, notes))

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		routePattern := ""
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			routePattern = routeCtx.RoutePattern()
		}

		attrs := []any{
			"method", r.Method,
			"route", routePattern,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"client_ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		}
		if notes.userID != 0 {
			attrs = append(attrs, "user_id", notes.userID)
		}
		if notes.rejectReason != "" {
			attrs = append(attrs, "auth_rejected", notes.rejectReason)
		}

		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "http.request", attrs...)
	})
}
