package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/tjvanzyl/veldmart-backend/pkg/errors"
)

const errorBodyReadLimit int64 = 1024

// httpClient carries the pieces every provider integration shares.
type httpClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// ClientOption configures optional provider client behavior.
type ClientOption func(*httpClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *httpClient) {
		if client != nil {
			c.client = client
		}
	}
}

// WithBaseURL overrides the provider's base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *httpClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout sets the default HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *httpClient) {
		if timeout > 0 {
			c.client = &http.Client{Timeout: timeout}
		}
	}
}

func newHTTPClient(defaultBaseURL, apiKey string, opts ...ClientOption) httpClient {
	c := httpClient{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: defaultBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: 15 * time.Second}
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	return c
}

func (c *httpClient) url(path string) string {
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// doJSON executes one JSON round trip against the provider API. A nil body
// sends a GET-style request without payload; out may be nil to discard the
// response body.
func (c *httpClient) doJSON(ctx context.Context, method, path string, authHeader string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal courier request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build courier request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" && c.apiKey != "" {
		req.Header.Set(authHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute courier request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"courier request failed")
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode courier response")
	}
	return nil
}
