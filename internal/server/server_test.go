// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"testing"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/gateway"
	"codeberg.org/mkadlec/gatekeeper/internal/handlers"
	"codeberg.org/mkadlec/gatekeeper/internal/metrics"
	"codeberg.org/mkadlec/gatekeeper/internal/services/notify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
	"codeberg.org/mkadlec/gatekeeper/internal/services/wave"
	"codeberg.org/mkadlec/gatekeeper/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRoutes(t *testing.T) {
	e := echo.New()
	m := metrics.New()

	setupRoutes(e, handlers.New(nil, m), m)

	paths := make(map[string]bool)
	for _, r := range e.Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	assert.True(t, paths["GET /health"])
	assert.True(t, paths["GET /"])
	assert.True(t, paths["GET /auth/callback"])
	assert.True(t, paths["GET /callback"])
	assert.True(t, paths["GET /metrics"])
}

func TestRunHousekeeping_PurgesExpiredTokens(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	gw := gateway.NewFake()

	// Negative TTL issues tokens that are already expired.
	tokens := token.New(repo,
		&config.TokenConfig{Secret: "0123456789abcdef0123456789abcdef", TTLMinutes: -1},
		"https://sso.example.edu/cas/login",
		"https://gate.example.com/auth/callback")
	ctx := context.Background()
	for subjectID := int64(1); subjectID <= 3; subjectID++ {
		_, _, err := tokens.Issue(ctx, token.IssueParams{SubjectID: subjectID, ContextID: 1})
		require.NoError(t, err)
	}

	waves := wave.New(repo, gw, tokens, notify.New(gw, &config.SMTPConfig{}), &config.WaveConfig{
		WindowDays:        14,
		DailyBatchPercent: 7,
		ReminderAfterDays: 3,
	})

	runHousekeeping(ctx, tokens, waves, metrics.New())

	active, err := tokens.Active(ctx)
	require.NoError(t, err)
	assert.Zero(t, active)
}
