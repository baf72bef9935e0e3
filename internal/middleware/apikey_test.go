package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spredd-labs/developer-api/internal/app/services/auth"
	"github.com/spredd-labs/developer-api/internal/app/storage/memory"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

func newAuthFixture(t *testing.T) (*APIKeyAuth, string) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	svc := auth.New(store, store, logger.NewDefault("apikey-test"))

	acct, err := svc.Signup(ctx, "mw@example.com", "")
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	created, err := svc.CreateKey(ctx, acct.ID, "", "free")
	if err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}
	return NewAPIKeyAuth(svc, logger.NewDefault("apikey-test")), created.FullKey
}

func TestAPIKeyAuth(t *testing.T) {
	mw, fullKey := newAuthFixture(t)

	var sawKey bool
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawKey = KeyFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("ValidKey", func(t *testing.T) {
		sawKey = false
		r := httptest.NewRequest(http.MethodGet, "/v1/markets", nil)
		r.Header.Set(HeaderAPIKey, fullKey)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		if !sawKey {
			t.Error("key record not stored in request context")
		}
	})

	t.Run("MissingHeader", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/markets", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if !strings.Contains(w.Body.String(), "detail") {
			t.Errorf("error body missing detail field: %s", w.Body.String())
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/v1/markets", nil)
		r.Header.Set(HeaderAPIKey, "sprdd_pk_"+strings.Repeat("0", 64))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}
