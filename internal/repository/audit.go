// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
)

// InsertAuditRecord appends one entry to the validation trail. Rows are
// never updated or deleted.
func (r *Repository) InsertAuditRecord(ctx context.Context, record *models.AuditRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_records (subject_id, login, ticket_digest, token_digest, result, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.SubjectID, record.Login, record.TicketDigest, record.TokenDigest,
		record.Result, record.Detail, record.CreatedAt)
	return err
}

// ListAuditRecords returns the most recent audit entries for a subject.
func (r *Repository) ListAuditRecords(ctx context.Context, subjectID int64, limit int) ([]models.AuditRecord, error) {
	var records []models.AuditRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT * FROM audit_records WHERE subject_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// CountAuditRecords returns the number of audit entries by result.
func (r *Repository) CountAuditRecords(ctx context.Context, result models.AuditResult) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT count(*) FROM audit_records WHERE result = ?`, result)
	return count, err
}
