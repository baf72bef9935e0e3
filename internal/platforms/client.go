package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/spredd-labs/developer-api/internal/app/domain/market"
)

// apiClient is a thin JSON client shared by the adapters. Responses parse
// into gjson results because platform payloads are loosely shaped and differ
// between listing and detail endpoints.
type apiClient struct {
	platform market.Platform
	baseURL  string
	headers  map[string]string
	http     *http.Client
}

func newAPIClient(platform market.Platform, baseURL string, headers map[string]string) *apiClient {
	return &apiClient{
		platform: platform,
		baseURL:  baseURL,
		headers:  headers,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) Close() {
	c.http.CloseIdleConnections()
}

func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *apiClient) postJSON(ctx context.Context, path string, body interface{}) (gjson.Result, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body interface{}) (gjson.Result, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return gjson.Result{}, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, newError(c.platform, "", "request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return gjson.Result{}, newError(c.platform, "", "read response: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return gjson.Result{}, newError(c.platform, codeRateLimited, "rate limit exceeded")
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, newError(c.platform, codeNotFound, "%s %s: not found", method, path)
	case resp.StatusCode >= 400:
		return gjson.Result{}, newError(c.platform, "", "%s %s: status %d", method, path, resp.StatusCode)
	}

	return gjson.ParseBytes(data), nil
}
