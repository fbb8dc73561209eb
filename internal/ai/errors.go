package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatrelay/pkg/types"
)

// Configuration errors raised while building a provider client
var (
	ErrProviderDisabled  = fmt.Errorf("%w: provider is disabled", types.ErrProviderConfiguration)
	ErrMissingAPIKey     = fmt.Errorf("%w: api key is required", types.ErrProviderConfiguration)
	ErrMissingEndpoint   = fmt.Errorf("%w: endpoint is required", types.ErrProviderConfiguration)
	ErrMissingDeployment = fmt.Errorf("%w: deployment name is required", types.ErrProviderConfiguration)
	ErrMissingModel      = fmt.Errorf("%w: model is required", types.ErrProviderConfiguration)
	ErrUnknownProvider   = fmt.Errorf("%w: unknown provider", types.ErrProviderConfiguration)
)

// ErrEmptyResponse is returned when a backend answers 2xx without any text
var ErrEmptyResponse = errors.New("empty response from provider")

// TransientError is one failed attempt against a provider API. It always
// matches types.ErrProviderTransient.
type TransientError struct {
	StatusCode int           // 0 for network and decode failures
	RetryAfter time.Duration // parsed Retry-After, 0 when absent
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider call failed: %v", e.Err)
}

func (e *TransientError) Unwrap() []error {
	return []error{types.ErrProviderTransient, e.Err}
}

// RateLimited reports whether the attempt hit a 429
func (e *TransientError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsRateLimited reports whether err carries a 429 response
func IsRateLimited(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.RateLimited()
}

// ParseRetryAfter decodes a Retry-After header in either delta-seconds or
// HTTP-date form. Unparseable or past values yield 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}
