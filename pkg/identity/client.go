package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// Config holds the identity provider endpoint and its two credentials
type Config struct {
	// BaseURL is the GoTrue root, for example https://project.supabase.co/auth/v1
	BaseURL string
	// AnonKey is the public API key. It only ever accompanies a caller's own token.
	AnonKey string
	// ServiceKey is the elevated key for admin endpoints
	ServiceKey string
	Timeout    time.Duration
}

// ProviderError is a non-2xx answer from the identity provider
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// apiKeyTransport adds the GoTrue apikey header to every request
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("apikey", t.key)
	return t.base.RoundTrip(clone)
}

// restClient issues JSON requests against the provider
type restClient struct {
	baseURL string
	http    *http.Client
	metrics *observability.Metrics
}

func newHTTPClient(key string, timeout time.Duration, wrap func(http.RoundTripper) http.RoundTripper) *http.Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	var transport http.RoundTripper = &apiKeyTransport{
		key:  key,
		base: otelhttp.NewTransport(http.DefaultTransport),
	}
	if wrap != nil {
		transport = wrap(transport)
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// do sends a request and decodes a 2xx JSON body into out. prepare may
// decorate the request before it is sent.
func (c *restClient) do(ctx context.Context, operation, method, path string, body, out interface{}, prepare func(*http.Request)) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prepare != nil {
		prepare(req)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.ObserveDependency("identity", operation, start, err)
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.metrics.ObserveDependency("identity", operation, start, err)
		return fmt.Errorf("failed to read identity provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
		c.metrics.ObserveDependency("identity", operation, start, perr)
		return perr
	}
	c.metrics.ObserveDependency("identity", operation, start, nil)

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	return nil
}

// errorMessage extracts the human-readable message from a GoTrue error body.
// GoTrue has used msg, message, error_description and error over time.
func errorMessage(status int, data []byte) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		for _, candidate := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if candidate != "" {
				return candidate
			}
		}
	}
	return fmt.Sprintf("identity provider returned %d", status)
}
