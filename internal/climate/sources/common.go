// Package sources holds the six adapters translating external weather
// APIs into canonical daily records, plus the shared request plumbing:
// rate-limit gating, circuit breaking, identification headers and
// mapping of transport outcomes onto the core error taxonomy.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/angelassilviane/EVAONLINE/internal/climate"
	"github.com/angelassilviane/EVAONLINE/internal/ratelimit"
)

// Gate grants or denies a request slot for a source. Satisfied by
// *ratelimit.Limiter; nil means unlimited (tests).
type Gate interface {
	Acquire(sourceID string) error
	ReportThrottled(sourceID string)
}

// ClientConfig bundles the outbound HTTP client with the politeness
// machinery every adapter shares.
type ClientConfig struct {
	Client *http.Client
	// UserAgent identifies the application, format
	// "AppName/Version (contact-email)". Mandatory for MET Norway and
	// NWS, sent everywhere for consistency.
	UserAgent string
	Limiter   Gate
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequest executes a single attempt against a source: acquire a
// rate-limit slot, send the request through the circuit breaker, and map
// the outcome onto the error taxonomy. Adapters never retry here; the
// orchestrator owns retry and backoff.
func doRequest(
	ctx context.Context,
	cfg ClientConfig,
	cb *gobreaker.CircuitBreaker,
	desc climate.SourceDescriptor,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errors.New("http client not configured")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if cfg.Limiter != nil {
		if err := cfg.Limiter.Acquire(desc.ID); err != nil {
			var denied *ratelimit.DeniedError
			if errors.As(err, &denied) {
				return nil, &climate.RateLimitedError{Source: desc.ID, RetryAfter: denied.RetryAfter}
			}
			return nil, err
		}
	}

	req, err := buildRequest()
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.Do(req)
		if execErr != nil {
			return nil, fmt.Errorf("%w: %v", climate.ErrUnreachable, execErr)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), desc.FixedRetryAfter)
			resp.Body.Close()
			if cfg.Limiter != nil {
				cfg.Limiter.ReportThrottled(desc.ID)
			}
			return nil, &climate.RateLimitedError{Source: desc.ID, RetryAfter: retryAfter}
		case resp.StatusCode >= 500:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", climate.ErrUnreachable, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", climate.ErrParse, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open for %s", climate.ErrUnreachable, desc.ID)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected breaker result", climate.ErrParse)
	}
	return resp, nil
}

// parseRetryAfter reads a Retry-After header in delta-seconds, falling
// back to the source's policy default, then 5s.
func parseRetryAfter(header string, policyDefault time.Duration) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if policyDefault > 0 {
		return policyDefault
	}
	return 5 * time.Second
}

// decodeJSON decodes the body into v, mapping failures to ErrParse.
func decodeJSON(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", climate.ErrParse, err)
	}
	return nil
}

// hasAny reports whether s contains any of the substrings,
// case-insensitively.
func hasAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

// wants reports whether v is in the requested set; an empty set means
// every default variable.
func wants(vars []climate.Variable, v climate.Variable) bool {
	if len(vars) == 0 {
		return true
	}
	for _, x := range vars {
		if x == v {
			return true
		}
	}
	return false
}
