// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
)

// CreateAuthToken stores the digest record for a pending verification attempt.
func (r *Repository) CreateAuthToken(ctx context.Context, token *models.AuthToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_tokens (token_digest, subject_id, context_id, is_initial, origin_addr, client_info, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		token.TokenDigest, token.SubjectID, token.ContextID, token.IsInitial,
		token.OriginAddr, token.ClientInfo, token.IssuedAt, token.ExpiresAt)
	return err
}

// ConsumeAuthToken deletes the token record for a digest and returns it.
// Delete-and-return is a single statement, so of two racing redemptions
// exactly one sees the record; the other gets ErrNotFound.
func (r *Repository) ConsumeAuthToken(ctx context.Context, digest string) (*models.AuthToken, error) {
	var token models.AuthToken
	err := r.db.GetContext(ctx, &token,
		`DELETE FROM verification_tokens WHERE token_digest = ? RETURNING *`, digest)
	if err != nil {
		return nil, wrapError(err)
	}
	return &token, nil
}

// CountActiveAuthTokens returns the number of non-expired token records.
func (r *Repository) CountActiveAuthTokens(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM verification_tokens WHERE expires_at > ?`, now)
	return count, err
}

// DeleteExpiredAuthTokens removes expired token records and reports how
// many were purged.
func (r *Repository) DeleteExpiredAuthTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
