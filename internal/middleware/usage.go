package middleware

import (
	"net/http"
	"time"

	domain "github.com/spredd-labs/developer-api/internal/app/domain/usage"
	usagesvc "github.com/spredd-labs/developer-api/internal/app/services/usage"
)

// UsageRecorder logs each authenticated request for billing.
type UsageRecorder struct {
	usage *usagesvc.Service
}

// NewUsageRecorder creates the usage logging middleware.
func NewUsageRecorder(usage *usagesvc.Service) *UsageRecorder {
	return &UsageRecorder{usage: usage}
}

// Handler records endpoint, method, status, and latency after the request
// completes. Requests without a key in context pass through unrecorded.
func (m *UsageRecorder) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := KeyFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		m.usage.Record(r.Context(), domain.Record{
			APIKeyID:       key.ID,
			Endpoint:       r.URL.Path,
			Method:         r.Method,
			StatusCode:     rec.status,
			ResponseTimeMS: float64(time.Since(start).Microseconds()) / 1000,
		})
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
