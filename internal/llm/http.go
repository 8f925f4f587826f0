package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// endpoint is one provider base URL shared by the calls of a client: fixed
// headers, a per-request timeout and a circuit breaker.
type endpoint struct {
	provider string
	baseURL  string
	headers  map[string]string
	timeout  time.Duration
	http     *http.Client
	breaker  *CircuitBreaker
}

func newEndpoint(provider, baseURL string, timeout time.Duration, headers map[string]string) endpoint {
	return endpoint{
		provider: provider,
		baseURL:  baseURL,
		headers:  headers,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		breaker:  NewCircuitBreaker(provider),
	}
}

// post sends body as JSON to baseURL+path through the breaker and decodes a
// 200 response into out.
func (e endpoint) post(ctx context.Context, path string, body, out interface{}) error {
	_, err := e.breaker.Execute(ctx, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return nil, e.do(ctx, path, body, out)
	})
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("%s: %w", e.provider, err)
	}
	return err
}

func (e endpoint) do(ctx context.Context, path string, body, out interface{}) error {
	payload, err := wire.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", e.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", e.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", e.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(e.provider, resp)
	}
	if err := wire.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", e.provider, err)
	}
	return nil
}

// ping issues a GET against baseURL+path outside the breaker and expects 200.
func (e endpoint) ping(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", e.provider, err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable at %s: %w", e.provider, e.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(e.provider, resp)
	}
	return nil
}

// requireKey is the Check of providers that only need a credential.
func requireKey(provider, key string) error {
	if key == "" {
		return fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}
	return nil
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
