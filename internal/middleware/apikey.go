// Package middleware provides HTTP middleware for the developer API.
package middleware

import (
	"context"
	"net/http"

	"github.com/spredd-labs/developer-api/internal/app/domain/apikey"
	"github.com/spredd-labs/developer-api/internal/app/services/auth"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

// HeaderAPIKey is the header clients authenticate with.
const HeaderAPIKey = "X-API-Key"

// KeyFromContext returns the authenticated API key, if any.
func KeyFromContext(ctx context.Context) (apikey.Key, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(apikey.Key)
	return key, ok
}

// WithKey stores an authenticated key in the context. Exposed for handler
// tests.
func WithKey(ctx context.Context, key apikey.Key) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, key)
}

// APIKeyAuth authenticates requests via the X-API-Key header.
type APIKeyAuth struct {
	auth *auth.Service
	log  *logger.Logger
}

// NewAPIKeyAuth creates the authentication middleware.
func NewAPIKeyAuth(authService *auth.Service, log *logger.Logger) *APIKeyAuth {
	if log == nil {
		log = logger.NewDefault("auth-middleware")
	}
	return &APIKeyAuth{auth: authService, log: log}
}

// Handler rejects requests without a valid active key and stores the key
// record in the request context.
func (m *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get(HeaderAPIKey)
		if presented == "" {
			writeAuthError(w, "Missing "+HeaderAPIKey+" header")
			return
		}

		key, err := m.auth.Authenticate(r.Context(), presented)
		if err != nil {
			writeAuthError(w, "Invalid or revoked API key")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithKey(r.Context(), key)))
	})
}

func writeAuthError(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"detail":` + quote(detail) + `}`))
}

func quote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(append(out, '"'))
}
