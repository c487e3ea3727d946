// Package metrics exposes download counters in the Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "webtoons"

// Metrics holds the collectors of one download run
type Metrics struct {
	registry *prometheus.Registry

	pages       prometheus.Counter
	bytes       prometheus.Counter
	chapters    *prometheus.CounterVec
	requests    *prometheus.CounterVec
	retries     prometheus.Counter
	rateLimited prometheus.Counter
	inFlight    prometheus.Gauge
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_downloaded_total",
			Help:      "Pages written to storage",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to storage",
		}),
		chapters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chapters_total",
			Help:      "Chapters finished by status",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by response code",
		}, []string{"code"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "HTTP requests retried",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Responses with status 429",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently in flight",
		}),
	}

	m.registry.MustRegister(m.pages, m.bytes, m.chapters, m.requests, m.retries, m.rateLimited, m.inFlight)
	return m
}

// PageWritten records one page of size bytes
func (m *Metrics) PageWritten(size int64) {
	if m == nil {
		return
	}
	m.pages.Inc()
	m.bytes.Add(float64(size))
}

// ChapterFinished records a chapter outcome ("completed", "error", "canceled")
func (m *Metrics) ChapterFinished(status string) {
	if m == nil {
		return
	}
	m.chapters.WithLabelValues(status).Inc()
}

// Response records the status code of an HTTP response, 0 for transport errors
func (m *Metrics) Response(code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = http.StatusText(code)
		if label == "" {
			label = "unknown"
		}
	}
	m.requests.WithLabelValues(label).Inc()
	if code == http.StatusTooManyRequests {
		m.rateLimited.Inc()
	}
}

// Retry records one retried request
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// RequestStarted marks a request in flight; call the returned func when it ends
func (m *Metrics) RequestStarted() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("serving metrics", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
