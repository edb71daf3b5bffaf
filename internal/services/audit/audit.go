// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package audit keeps the append-only trail of validation attempts.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
)

// Logger appends validation attempts to the durable audit trail.
type Logger struct {
	repo *repository.Repository
}

// New creates an audit logger backed by the durable store.
func New(repo *repository.Repository) *Logger {
	return &Logger{repo: repo}
}

// Entry describes one validation attempt. SubjectID stays nil when the
// attempt never produced a redeemed token.
type Entry struct { //nolint:govet // fieldalignment: readability over optimization
	SubjectID *int64
	Login     string
	Ticket    string
	Token     string
	Result    models.AuditResult
	Detail    string
}

// Record appends one entry to the trail. The trail is best-effort: a
// write failure is logged as an operational error and swallowed, so no
// verification path can fail on audit alone.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	record := &models.AuditRecord{
		SubjectID:    entry.SubjectID,
		Login:        entry.Login,
		TicketDigest: Digest(entry.Ticket),
		TokenDigest:  Digest(entry.Token),
		Result:       entry.Result,
		Detail:       entry.Detail,
		CreatedAt:    time.Now().UTC(),
	}
	if err := l.repo.InsertAuditRecord(ctx, record); err != nil {
		slog.Error("audit_write_failed", "result", record.Result, "detail", record.Detail, "error", err)
		return
	}
	slog.Debug("audit_recorded", "result", record.Result, "detail", record.Detail)
}

// Digest returns the hex SHA-256 of a ticket or token value, or the
// empty string for empty input. Raw values never reach storage.
func Digest(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
