package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"fleet-monitor/telemetry/pkg/log"
)

// Validator decides whether an API key may mutate the registry.
type Validator interface {
	Enabled() bool
	Validate(ctx context.Context, apiKey string) bool
}

type AuthMiddleware struct {
	auth Validator
}

func NewAuthMiddleware(a Validator) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

// Wrap requires a valid X-API-Key header. With no key source configured
// every request passes.
func (m *AuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.auth == nil || !m.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "missing X-API-Key header")
			return
		}

		if !m.auth.Validate(r.Context(), apiKey) {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// accessLog logs one line per API request. WebSocket upgrades are routed
// outside the API subrouter and never pass through here.
func accessLog(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
