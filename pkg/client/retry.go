package client

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// RetryStrategy selects how long to wait between attempts
type RetryStrategy string

const (
	RetryNone        RetryStrategy = "none"
	RetryFixed       RetryStrategy = "fixed"
	RetryLinear      RetryStrategy = "linear"
	RetryExponential RetryStrategy = "exponential"
)

// Strategies lists the accepted strategy names
var Strategies = []RetryStrategy{RetryNone, RetryFixed, RetryLinear, RetryExponential}

// RetryPolicy decides how often a request is retried and how long to wait before each retry
type RetryPolicy interface {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries() int
	// Delay is the wait before retry number attempt, starting at 1
	Delay(attempt int) time.Duration
}

// NewRetryPolicy builds the policy for strategy. base is the unit delay and
// maxDelay caps every computed delay.
func NewRetryPolicy(strategy RetryStrategy, maxRetries int, base, maxDelay time.Duration) (RetryPolicy, error) {
	if maxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative: %d", maxRetries)
	}
	if maxDelay < base {
		maxDelay = base
	}

	switch strategy {
	case RetryNone, "":
		return noRetry{}, nil
	case RetryFixed:
		return fixedBackoff{retries: maxRetries, delay: base}, nil
	case RetryLinear:
		return linearBackoff{retries: maxRetries, base: base, max: maxDelay}, nil
	case RetryExponential:
		return exponentialBackoff{retries: maxRetries, base: base, max: maxDelay}, nil
	default:
		return nil, fmt.Errorf("unknown retry strategy %q", strategy)
	}
}

type noRetry struct{}

func (noRetry) MaxRetries() int         { return 0 }
func (noRetry) Delay(int) time.Duration { return 0 }

type fixedBackoff struct {
	retries int
	delay   time.Duration
}

func (f fixedBackoff) MaxRetries() int         { return f.retries }
func (f fixedBackoff) Delay(int) time.Duration { return f.delay }

type linearBackoff struct {
	retries   int
	base, max time.Duration
}

func (l linearBackoff) MaxRetries() int { return l.retries }

func (l linearBackoff) Delay(attempt int) time.Duration {
	return min(l.base*time.Duration(attempt), l.max)
}

type exponentialBackoff struct {
	retries   int
	base, max time.Duration
}

func (e exponentialBackoff) MaxRetries() int { return e.retries }

// Delay doubles per attempt and applies 0.5x to 1.5x jitter, never exceeding max
func (e exponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := e.max
	if shift := attempt - 1; shift < 20 {
		backoff = min(e.base*time.Duration(1<<uint(shift)), e.max)
	}
	jittered := time.Duration(float64(backoff) * (0.5 + rand.Float64()))
	return min(jittered, e.max)
}

// retryable reports whether a response status is worth another attempt
func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
