// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveRequest(t *testing.T) {
	m := metrics.New()

	m.ObserveRequest(http.MethodGet, "/auth/callback", http.StatusOK, 12*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/auth/callback", http.StatusOK, 8*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)

	assert.Equal(t, int64(3), m.RequestCount())

	body := scrape(t, m)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/auth/callback",status="200"} 2`)
	assert.Contains(t, body, `http_requests_total{method="GET",path="/health",status="200"} 1`)
	assert.Contains(t, body, "http_request_duration_seconds_bucket")
}

func TestCountVerification(t *testing.T) {
	m := metrics.New()

	m.CountVerification("success")
	m.CountVerification("success")
	m.CountVerification("failure")

	body := scrape(t, m)
	assert.Contains(t, body, `verifications_total{result="success"} 2`)
	assert.Contains(t, body, `verifications_total{result="failure"} 1`)
}

func TestSetOutstandingTokens(t *testing.T) {
	m := metrics.New()

	m.SetOutstandingTokens(7)

	assert.Contains(t, scrape(t, m), "auth_tokens_outstanding 7")
}

func TestIsolatedRegistries(t *testing.T) {
	first := metrics.New()
	second := metrics.New()

	first.CountVerification("success")

	assert.NotContains(t, scrape(t, second), `verifications_total{result="success"}`)
}
