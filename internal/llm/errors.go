package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrRateLimited is returned when a provider answers 429. Callers may
	// retry after backing off.
	ErrRateLimited = errors.New("llm rate limited")

	// ErrUnauthorized is returned when a provider rejects the credentials.
	ErrUnauthorized = errors.New("llm credentials rejected")

	// ErrMissingAPIKey is returned by Check when a provider that requires an
	// API key has none configured.
	ErrMissingAPIKey = errors.New("llm api key not configured")
)

// statusError converts a non-200 provider response into an error, mapping
// throttling and authentication failures to their sentinels.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s returned status %d: %w: %s", provider, resp.StatusCode, ErrRateLimited, string(body))
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s returned status %d: %w: %s", provider, resp.StatusCode, ErrUnauthorized, string(body))
	default:
		return fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, string(body))
	}
}
