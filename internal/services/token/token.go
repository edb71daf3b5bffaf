// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
)

// RawTokenLength is the number of random bytes in a state token.
const RawTokenLength = 32

// ErrInvalidOrExpired covers unknown, expired and malformed tokens
// alike. Callers must not tell an end user which case occurred.
var ErrInvalidOrExpired = errors.New("token invalid or expired")

// Store issues and redeems the single-use state tokens that bind a
// pending verification attempt to a subject.
type Store struct {
	repo        *repository.Repository
	secret      []byte
	ttl         time.Duration
	loginURL    string
	callbackURL string
}

func New(repo *repository.Repository, cfg *config.TokenConfig, loginURL, callbackURL string) *Store {
	return &Store{
		repo:        repo,
		secret:      []byte(cfg.Secret),
		ttl:         time.Duration(cfg.TTLMinutes) * time.Minute,
		loginURL:    loginURL,
		callbackURL: callbackURL,
	}
}

// IssueParams holds the request metadata stored with a token.
type IssueParams struct {
	SubjectID  int64
	ContextID  int64
	IsInitial  bool
	OriginAddr string
	ClientInfo string
}

// Issue mints a fresh state token for the subject and returns the
// provider login URL carrying it, plus the raw token itself. Only a
// keyed digest of the token is persisted.
func (s *Store) Issue(ctx context.Context, params IssueParams) (string, string, error) {
	buf := make([]byte, RawTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw := base64.RawURLEncoding.EncodeToString(buf)

	now := time.Now().UTC()
	record := &models.AuthToken{
		TokenDigest: s.digest(raw),
		SubjectID:   params.SubjectID,
		ContextID:   params.ContextID,
		IsInitial:   params.IsInitial,
		OriginAddr:  params.OriginAddr,
		ClientInfo:  params.ClientInfo,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.repo.CreateAuthToken(ctx, record); err != nil {
		return "", "", fmt.Errorf("failed to store token: %w", err)
	}

	slog.Info("token_issued", "subject_id", params.SubjectID, "is_initial", params.IsInitial, "expires_at", record.ExpiresAt)

	return s.LoginURL(raw), raw, nil
}

// LoginURL builds the provider redirect for a raw token. The callback
// URL with the state parameter rides inside the provider's service
// parameter, so the whole thing is escaped once.
func (s *Store) LoginURL(raw string) string {
	return s.loginURL + "?service=" + url.QueryEscape(s.ServiceURL(raw))
}

// ServiceURL is the callback the provider validates tickets against.
// It must match the login redirect byte for byte.
func (s *Store) ServiceURL(raw string) string {
	return s.callbackURL + "?state=" + raw
}

// Redemption is what a consumed token stood for.
type Redemption struct {
	SubjectID int64
	ContextID int64
	IsInitial bool
}

// Redeem consumes a state token. The backing row is deleted in the
// same statement that reads it, so of two racing redemptions exactly
// one succeeds; the other observes ErrInvalidOrExpired.
func (s *Store) Redeem(ctx context.Context, raw string) (*Redemption, error) {
	if raw == "" {
		return nil, ErrInvalidOrExpired
	}

	record, err := s.repo.ConsumeAuthToken(ctx, s.digest(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidOrExpired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}

	if record.Expired(time.Now().UTC()) {
		// The row is already gone, which is the desired end state for
		// an expired token anyway.
		slog.Debug("token_expired_at_redemption", "subject_id", record.SubjectID)
		return nil, ErrInvalidOrExpired
	}

	return &Redemption{
		SubjectID: record.SubjectID,
		ContextID: record.ContextID,
		IsInitial: record.IsInitial,
	}, nil
}

// PurgeExpired removes expired token rows. Redemption checks expiry
// itself, so this only keeps the table small.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	purged, err := s.repo.DeleteExpiredAuthTokens(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	if purged > 0 {
		slog.Debug("expired_tokens_purged", "count", purged)
	}
	return purged, nil
}

// Active counts currently outstanding, non-expired tokens.
func (s *Store) Active(ctx context.Context) (int64, error) {
	return s.repo.CountActiveAuthTokens(ctx, time.Now().UTC())
}

// digest computes the storage key for a raw token. Keyed by the server
// secret so a copied token table cannot be replayed as login URLs.
func (s *Store) digest(raw string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
