package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/account-auth-service/internal/http/response"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
)

const msgBodyTooLarge = "Request body too large"

// The API only ever answers with JSON envelopes, so nothing it returns should
// be framed, sniffed, cached or allowed to load subresources.
var apiResponseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
	{"Cache-Control", "no-store"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
}

func RequestID(next http.Handler) http.Handler {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(chimiddleware.RequestIDHeader, chimiddleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	})
	return chimiddleware.RequestID(echo)
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for _, kv := range apiResponseHeaders {
			h.Set(kv[0], kv[1])
		}
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// CORS answers preflights itself. Bearer tokens travel in a header, so
// credentials mode is never enabled.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				writeCORSHeaders(w, r.Context(), origin, allowed)
			}
			if r.Method == http.MethodOptions {
				observability.RecordMiddlewareValidationEvent(r.Context(), "cors", "preflight")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeCORSHeaders(w http.ResponseWriter, ctx context.Context, origin string, allowed map[string]struct{}) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if _, ok := allowed[origin]; !ok {
		observability.RecordMiddlewareValidationEvent(ctx, "cors", "rejected_origin")
		return
	}
	observability.RecordMiddlewareValidationEvent(ctx, "cors", "allow_origin")
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Expose-Headers", chimiddleware.RequestIDHeader)
	h.Set("Access-Control-Max-Age", strconv.Itoa(600))
}

// BodyLimit rejects a declared oversize body up front with the usual error
// envelope. Bodies without a length are capped while the handler reads them.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				observability.RecordMiddlewareValidationEvent(r.Context(), "body_limit", "rejected_declared_length")
				response.Error(w, r, http.StatusRequestEntityTooLarge, msgBodyTooLarge, nil)
				return
			}
			r.Body = &cappedBody{
				ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes),
				ctx:        r.Context(),
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cappedBody records the first read failure once, so a handler that retries
// the read does not double count.
type cappedBody struct {
	io.ReadCloser
	ctx      context.Context
	reported bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err == nil || errors.Is(err, io.EOF) || b.reported {
		return n, err
	}
	b.reported = true
	result := "read_error"
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		result = "rejected_too_large"
	}
	observability.RecordMiddlewareValidationEvent(b.ctx, "body_limit", result)
	return n, err
}
