package client

import (
	"errors"
	"fmt"
	"time"
)

// DownloadError wraps every failure of a request made through Client
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// RateLimitedError is returned when the server answers 429 and retries are exhausted
type RateLimitedError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by server (retry after %s)", e.RetryAfter)
	}
	return "rate limited by server"
}

// StatusError is a non-2xx response that was not retried into success
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

// IsRateLimited reports whether err or any error it wraps is a RateLimitedError
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
