// Package client is the HTTP layer used to talk to webtoons.com and its image CDN.
// It randomizes request headers, retries transient failures according to a
// RetryPolicy and reports throttling as a RateLimitedError.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kerbaras/webtoons/pkg/metrics"
	"golang.org/x/time/rate"
)

// Options configures a Client
type Options struct {
	// Proxy is an optional proxy URL; empty uses the environment
	Proxy string

	Retry      RetryStrategy
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// Timeout bounds every single request, body included
	Timeout time.Duration

	// RequestsPerSecond throttles outgoing requests; 0 disables the limiter
	RequestsPerSecond float64

	// Referer is sent with every request when set
	Referer string

	// UserAgents overrides the desktop user agent pool
	UserAgents []string

	MaxConnsPerHost int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// DefaultOptions returns options with sensible defaults
func DefaultOptions() Options {
	return Options{
		Retry:           RetryExponential,
		MaxRetries:      5,
		BaseDelay:       250 * time.Millisecond,
		MaxDelay:        10 * time.Second,
		Timeout:         10 * time.Second,
		MaxConnsPerHost: 200,
	}
}

// Response is a fully read HTTP response
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string
func (r *Response) Text() string { return string(r.Body) }

// Stream is an open response body. The caller must Close it.
type Stream struct {
	io.ReadCloser
	URL           string
	ContentType   string
	ContentLength int64
}

// Client performs GET requests with retries and header randomization
type Client struct {
	client     *http.Client
	policy     RetryPolicy
	limiter    *rate.Limiter
	userAgents []string
	referer    string
	maxDelay   time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Client from opts
func New(opts Options) (*Client, error) {
	policy, err := NewRetryPolicy(opts.Retry, opts.MaxRetries, opts.BaseDelay, opts.MaxDelay)
	if err != nil {
		return nil, err
	}

	proxy := http.ProxyFromEnvironment
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q", opts.Proxy)
		}
		proxy = http.ProxyURL(proxyURL)
	}

	maxConns := opts.MaxConnsPerHost
	if maxConns <= 0 {
		maxConns = 200
	}

	transport := &http.Transport{
		Proxy:               proxy,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        maxConns,
		MaxIdleConnsPerHost: maxConns,
		MaxConnsPerHost:     maxConns,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	agents := opts.UserAgents
	if len(agents) == 0 {
		agents = UserAgents
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		policy:     policy,
		userAgents: agents,
		referer:    opts.Referer,
		maxDelay:   opts.MaxDelay,
		metrics:    opts.Metrics,
		logger:     logger,
	}
	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(opts.RequestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return c, nil
}

// WithReferer returns a Client sharing the same connections that sends referer
func (c *Client) WithReferer(referer string) *Client {
	cp := *c
	cp.referer = referer
	return &cp
}

// Get fetches rawURL and reads the whole body
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Stream fetches rawURL and hands back the open body
func (c *Client) Stream(ctx context.Context, rawURL string) (*Stream, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	return &Stream{
		ReadCloser:    resp.Body,
		URL:           rawURL,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// do runs the retry loop and returns a 2xx response with an open body
func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	var lastErr error
	var retryAfter time.Duration

	for attempt := 0; attempt <= c.policy.MaxRetries(); attempt++ {
		if attempt > 0 {
			delay := c.policy.Delay(attempt)
			if retryAfter > 0 {
				delay = retryAfter
				if c.maxDelay > 0 {
					delay = min(delay, c.maxDelay)
				}
			}
			c.metrics.Retry()
			c.logger.Debug("retrying request", "url", rawURL, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return nil, &DownloadError{URL: rawURL, Err: err}
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, &DownloadError{URL: rawURL, Err: err}
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &DownloadError{URL: rawURL, Err: fmt.Errorf("create request: %w", err)}
		}
		c.setHeaders(req)

		done := c.metrics.RequestStarted()
		resp, err := c.client.Do(req)
		done()
		if err != nil {
			c.metrics.Response(0)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, &DownloadError{URL: rawURL, Err: ctxErr}
			}
			lastErr = err
			retryAfter = 0
			if permanent(err) {
				break
			}
			continue
		}
		c.metrics.Response(resp.StatusCode)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = &RateLimitedError{URL: rawURL, RetryAfter: retryAfter}
		} else {
			lastErr = &StatusError{Code: resp.StatusCode, Status: resp.Status}
		}

		if !retryable(resp.StatusCode) {
			break
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return nil, &DownloadError{URL: rawURL, Err: lastErr}
}

// permanent reports transport errors that fail the same way on every attempt
func permanent(err error) bool {
	var certErr *tls.CertificateVerificationError
	var authorityErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &certErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
