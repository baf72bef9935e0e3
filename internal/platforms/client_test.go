package platforms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
)

func TestAPIClientStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"429 maps to rate_limited", http.StatusTooManyRequests, IsRateLimited},
		{"404 maps to not_found", http.StatusNotFound, IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(server.Close)

			c := newAPIClient(market.PlatformLimitless, server.URL, nil)
			_, err := c.getJSON(context.Background(), "/markets", nil)
			if err == nil || !tt.check(err) {
				t.Errorf("err = %v", err)
			}
		})
	}

	t.Run("500 is a generic platform error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		t.Cleanup(server.Close)

		c := newAPIClient(market.PlatformLimitless, server.URL, nil)
		_, err := c.getJSON(context.Background(), "/markets", nil)
		if err == nil {
			t.Fatal("expected error")
		}
		if IsRateLimited(err) || IsNotFound(err) {
			t.Errorf("500 mapped to a specific code: %v", err)
		}
	})

	t.Run("headers are forwarded", func(t *testing.T) {
		var gotKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("X-Api-Key")
			w.Write([]byte(`{"ok":true}`))
		}))
		t.Cleanup(server.Close)

		c := newAPIClient(market.PlatformOpinion, server.URL, map[string]string{"X-Api-Key": "secret"})
		data, err := c.getJSON(context.Background(), "/ping", nil)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if gotKey != "secret" {
			t.Errorf("header = %q", gotKey)
		}
		if !data.Get("ok").Bool() {
			t.Error("response not parsed")
		}
	})
}
