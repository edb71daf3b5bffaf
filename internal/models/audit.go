// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package models

import "time"

// AuditResult is the outcome of a validation attempt.
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditFailure AuditResult = "failure"
)

// AuditRecord is one append-only entry in the validation trail. SubjectID
// is nil when the callback was malformed and no token could be redeemed.
// Ticket and token values appear only as one-way digests.
type AuditRecord struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64       `db:"id" json:"id"`
	SubjectID    *int64      `db:"subject_id" json:"subject_id,omitempty"`
	Login        string      `db:"login" json:"login,omitempty"`
	TicketDigest string      `db:"ticket_digest" json:"-"`
	TokenDigest  string      `db:"token_digest" json:"-"`
	Result       AuditResult `db:"result" json:"result"`
	Detail       string      `db:"detail" json:"detail,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}
