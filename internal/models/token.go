// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package models

import "time"

// AuthToken is a pending verification attempt bound to a subject.
// Only the keyed digest of the raw token is ever stored; the raw value
// travels exclusively in the provider redirect.
type AuthToken struct { //nolint:govet // fieldalignment: readability over optimization
	TokenDigest string    `db:"token_digest" json:"-"`
	SubjectID   int64     `db:"subject_id" json:"subject_id"`
	ContextID   int64     `db:"context_id" json:"context_id"`
	IsInitial   bool      `db:"is_initial" json:"is_initial"`
	OriginAddr  string    `db:"origin_addr" json:"origin_addr,omitempty"`
	ClientInfo  string    `db:"client_info" json:"client_info,omitempty"`
	IssuedAt    time.Time `db:"issued_at" json:"issued_at"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *AuthToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
