// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package handlers contains the HTTP handlers for the callback
// surface the identity provider redirects back to.
package handlers

import (
	"net/http"

	"codeberg.org/mkadlec/gatekeeper/internal/i18n"
	"codeberg.org/mkadlec/gatekeeper/internal/metrics"
	"codeberg.org/mkadlec/gatekeeper/internal/services/verify"
	"github.com/labstack/echo/v4"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	verifier *verify.Service
	metrics  *metrics.Metrics
}

// New creates a new Handlers instance.
func New(verifier *verify.Service, m *metrics.Metrics) *Handlers {
	return &Handlers{verifier: verifier, metrics: m}
}

// Health returns the health status together with the request counter.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"requests": h.metrics.RequestCount(),
	})
}

// Home renders the landing page in the visitor's language.
func (h *Handlers) Home(c echo.Context) error {
	ctx := c.Request().Context()
	return renderPage(c, http.StatusOK, page{
		Lang:     i18n.GetLocale(ctx),
		Title:    i18n.T(ctx, "home_title"),
		Messages: []string{i18n.T(ctx, "home_body")},
	})
}
