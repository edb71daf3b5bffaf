// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
)

// InsertMemberEvent appends one membership history entry.
func (r *Repository) InsertMemberEvent(ctx context.Context, event *models.MemberEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO member_events (subject_id, context_id, event, roles, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.SubjectID, event.ContextID, event.Event, event.Roles, event.OccurredAt)
	return err
}

// ListMemberEvents returns the most recent membership events for a subject.
func (r *Repository) ListMemberEvents(ctx context.Context, subjectID int64, limit int) ([]models.MemberEvent, error) {
	var events []models.MemberEvent
	err := r.db.SelectContext(ctx, &events,
		`SELECT * FROM member_events WHERE subject_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		subjectID, limit)
	if err != nil {
		return nil, err
	}
	return events, nil
}
