// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package metrics collects the Prometheus instrumentation for the HTTP
// surface and the verification flow.
package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process registry. Every instance carries its own
// registry so tests can run instrumented components side by side.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	verifications     *prometheus.CounterVec
	tokensOutstanding prometheus.Gauge

	requestCount atomic.Int64
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifications_total",
				Help: "Verification attempts by result.",
			},
			[]string{"result"},
		),
		tokensOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auth_tokens_outstanding",
			Help: "Issued authentication tokens not yet redeemed or expired.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.verifications,
		m.tokensOutstanding,
	)
	return m
}

// ObserveRequest records one handled HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.requestCount.Add(1)
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, code).Inc()
	m.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

// RequestCount returns the number of requests handled since start.
func (m *Metrics) RequestCount() int64 {
	return m.requestCount.Load()
}

// CountVerification records one verification outcome by result.
func (m *Metrics) CountVerification(result string) {
	m.verifications.WithLabelValues(result).Inc()
}

// SetOutstandingTokens publishes the current number of live tokens.
func (m *Metrics) SetOutstandingTokens(n int64) {
	m.tokensOutstanding.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
