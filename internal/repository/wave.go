// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
)

// CreateWaveWithAssignments stores a wave together with its per-subject
// assignments in one transaction.
func (r *Repository) CreateWaveWithAssignments(ctx context.Context, wave *models.ReverificationWave, assignments []models.WaveAssignment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reverification_waves
		   (id, name, context_id, target_role_id, start_date, end_date, window_days,
		    daily_batch_percent, total_users, users_notified, users_completed, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wave.ID, wave.Name, wave.ContextID, wave.TargetRoleID, wave.StartDate, wave.EndDate,
		wave.WindowDays, wave.DailyBatchPercent, wave.TotalUsers, wave.UsersNotified,
		wave.UsersCompleted, wave.Status, wave.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting wave: %w", err)
	}

	for _, a := range assignments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO wave_assignments (wave_id, subject_id, scheduled_for)
			 VALUES (?, ?, ?)`,
			a.WaveID, a.SubjectID, a.ScheduledFor)
		if err != nil {
			return fmt.Errorf("inserting assignment for subject %d: %w", a.SubjectID, err)
		}
	}

	return tx.Commit()
}

// GetWave retrieves a wave by id.
func (r *Repository) GetWave(ctx context.Context, waveID string) (*models.ReverificationWave, error) {
	var wave models.ReverificationWave
	err := r.db.GetContext(ctx, &wave,
		`SELECT * FROM reverification_waves WHERE id = ?`, waveID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &wave, nil
}

// ListWavesByStatus returns waves in the given lifecycle state.
func (r *Repository) ListWavesByStatus(ctx context.Context, status models.WaveStatus) ([]models.ReverificationWave, error) {
	var waves []models.ReverificationWave
	err := r.db.SelectContext(ctx, &waves,
		`SELECT * FROM reverification_waves WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	return waves, nil
}

// GetWaveAssignment retrieves a subject's assignment within a wave.
func (r *Repository) GetWaveAssignment(ctx context.Context, waveID string, subjectID int64) (*models.WaveAssignment, error) {
	var assignment models.WaveAssignment
	err := r.db.GetContext(ctx, &assignment,
		`SELECT * FROM wave_assignments WHERE wave_id = ? AND subject_id = ?`, waveID, subjectID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &assignment, nil
}

// ListWaveAssignments returns all assignments of a wave in schedule order.
func (r *Repository) ListWaveAssignments(ctx context.Context, waveID string) ([]models.WaveAssignment, error) {
	var assignments []models.WaveAssignment
	err := r.db.SelectContext(ctx, &assignments,
		`SELECT * FROM wave_assignments WHERE wave_id = ? ORDER BY scheduled_for, subject_id`, waveID)
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// ListDueAssignments returns open assignments whose scheduled date has
// arrived and that have not been notified yet.
func (r *Repository) ListDueAssignments(ctx context.Context, waveID string, dueBy time.Time) ([]models.WaveAssignment, error) {
	var assignments []models.WaveAssignment
	err := r.db.SelectContext(ctx, &assignments,
		`SELECT * FROM wave_assignments
		 WHERE wave_id = ? AND scheduled_for <= ? AND notified_at IS NULL AND completed_at IS NULL
		 ORDER BY scheduled_for, subject_id`,
		waveID, dueBy)
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// ListReminderDueAssignments returns assignments notified at or before
// the given instant that are neither completed nor reminded yet.
func (r *Repository) ListReminderDueAssignments(ctx context.Context, waveID string, notifiedBy time.Time) ([]models.WaveAssignment, error) {
	var assignments []models.WaveAssignment
	err := r.db.SelectContext(ctx, &assignments,
		`SELECT * FROM wave_assignments
		 WHERE wave_id = ? AND notified_at IS NOT NULL AND notified_at <= ?
		   AND completed_at IS NULL AND reminder_sent_at IS NULL
		 ORDER BY notified_at, subject_id`,
		waveID, notifiedBy)
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// MarkAssignmentNotified stamps notified_at once and bumps the wave's
// notified counter. A second call is a no-op reporting changed=false.
// The first notification moves a pending wave to active.
func (r *Repository) MarkAssignmentNotified(ctx context.Context, waveID string, subjectID int64, now time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE wave_assignments SET notified_at = ?
		 WHERE wave_id = ? AND subject_id = ? AND notified_at IS NULL`,
		now, waveID, subjectID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE reverification_waves
		 SET users_notified = users_notified + 1,
		     status = CASE WHEN status = 'pending' THEN 'active' ELSE status END
		 WHERE id = ?`,
		waveID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// MarkAssignmentCompleted stamps completed_at once and bumps the wave's
// completed counter. Completing an assignment that was never notified
// stamps notified_at as well, so the counters stay ordered. When the last
// assignment completes, the wave closes.
func (r *Repository) MarkAssignmentCompleted(ctx context.Context, waveID string, subjectID int64, now time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var wasNotified sql.NullTime
	err = tx.GetContext(ctx, &wasNotified,
		`SELECT notified_at FROM wave_assignments
		 WHERE wave_id = ? AND subject_id = ? AND completed_at IS NULL`,
		waveID, subjectID)
	if err != nil {
		if errors.Is(wrapError(err), ErrNotFound) {
			return false, tx.Commit()
		}
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wave_assignments
		 SET completed_at = ?, notified_at = COALESCE(notified_at, ?)
		 WHERE wave_id = ? AND subject_id = ?`,
		now, now, waveID, subjectID)
	if err != nil {
		return false, err
	}

	notifiedDelta := 0
	if !wasNotified.Valid {
		notifiedDelta = 1
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE reverification_waves
		 SET users_completed = users_completed + 1,
		     users_notified = users_notified + ?
		 WHERE id = ?`,
		notifiedDelta, waveID)
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE reverification_waves SET status = 'completed'
		 WHERE id = ? AND users_completed >= total_users`,
		waveID)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// MarkAssignmentReminded stamps reminder_sent_at once.
func (r *Repository) MarkAssignmentReminded(ctx context.Context, assignmentID int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wave_assignments SET reminder_sent_at = ?
		 WHERE id = ? AND reminder_sent_at IS NULL`,
		now, assignmentID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateWaveStatus sets a wave's lifecycle state.
func (r *Repository) UpdateWaveStatus(ctx context.Context, waveID string, status models.WaveStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE reverification_waves SET status = ? WHERE id = ?`, status, waveID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
