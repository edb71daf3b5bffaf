// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/database"
	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// NewTestDB creates a throwaway SQLite database for tests. A file in the
// test temp dir is used instead of :memory: so every pooled connection
// sees the same database.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "gatekeeper_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestProfile creates a verified profile for a subject.
func NewTestProfile(t *testing.T, repo *repository.Repository, subjectID int64, login string) *models.VerificationProfile {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	profile := &models.VerificationProfile{
		SubjectID:        subjectID,
		Login:            login,
		DisplayName:      "Test Subject",
		Email:            login + "@example.edu",
		Category:         models.CategoryStandard,
		VerifiedAt:       now,
		LastReverifiedAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := repo.UpsertProfile(ctx, profile)
	require.NoError(t, err)

	stored, err := repo.GetProfile(ctx, subjectID)
	require.NoError(t, err)
	return stored
}

// NewTestToken stores a token record with the given digest.
func NewTestToken(t *testing.T, repo *repository.Repository, digest string, subjectID int64, ttl time.Duration) *models.AuthToken {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	token := &models.AuthToken{
		TokenDigest: digest,
		SubjectID:   subjectID,
		ContextID:   1,
		IsInitial:   true,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
	err := repo.CreateAuthToken(ctx, token)
	require.NoError(t, err)
	return token
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}
