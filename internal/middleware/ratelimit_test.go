package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spredd-labs/developer-api/internal/app/domain/apikey"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

func limitedRequest(keyID string, rpm, tpm int) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/markets", nil)
	key := apikey.Key{ID: keyID, Tier: apikey.TierFree, RateRPM: rpm, RateTPM: tpm, Active: true}
	return r.WithContext(WithKey(r.Context(), key))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestLimit(t *testing.T) {
	rl := NewRateLimiter(logger.NewDefault("ratelimit-test"))
	handler := rl.RequestLimit(okHandler())

	t.Run("AllowsWithinBudget", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, limitedRequest("key-a", 3, 1))
			if w.Code != http.StatusOK {
				t.Fatalf("request %d: status = %d, want 200", i, w.Code)
			}
		}
	})

	t.Run("RejectsBeyondBudget", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, limitedRequest("key-a", 3, 1))
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "3" {
			t.Errorf("X-RateLimit-Limit = %q, want 3", w.Header().Get("X-RateLimit-Limit"))
		}
		if w.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Errorf("X-RateLimit-Remaining = %q, want 0", w.Header().Get("X-RateLimit-Remaining"))
		}
		if w.Header().Get("X-RateLimit-Reset") == "" {
			t.Error("X-RateLimit-Reset header missing")
		}
	})

	t.Run("KeysAreIsolated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, limitedRequest("key-b", 3, 1))
		if w.Code != http.StatusOK {
			t.Errorf("fresh key rejected: status = %d", w.Code)
		}
	})

	t.Run("MissingKeyContext", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/markets", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestTradeLimit(t *testing.T) {
	rl := NewRateLimiter(logger.NewDefault("ratelimit-test"))
	handler := rl.TradeLimit(okHandler())

	// Request budget is generous; the trade budget of 2 binds first.
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, limitedRequest("key-t", 100, 2))
		if w.Code != http.StatusOK {
			t.Fatalf("trade %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, limitedRequest("key-t", 100, 2))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "2" {
		t.Errorf("429 should carry the trade limit, got %q", w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestTradeLimit_ConsumesRequestBudget(t *testing.T) {
	rl := NewRateLimiter(logger.NewDefault("ratelimit-test"))
	trades := rl.TradeLimit(okHandler())
	requests := rl.RequestLimit(okHandler())

	// One trade consumes one token from the shared request bucket too.
	w := httptest.NewRecorder()
	trades.ServeHTTP(w, limitedRequest("key-s", 2, 10))
	if w.Code != http.StatusOK {
		t.Fatalf("trade status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	requests.ServeHTTP(w, limitedRequest("key-s", 2, 10))
	if w.Code != http.StatusOK {
		t.Fatalf("request status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	requests.ServeHTTP(w, limitedRequest("key-s", 2, 10))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("request budget should be exhausted by trade + request, got %d", w.Code)
	}
}
