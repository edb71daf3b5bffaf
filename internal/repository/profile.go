// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
)

// GetProfile retrieves the verification profile for a subject.
func (r *Repository) GetProfile(ctx context.Context, subjectID int64) (*models.VerificationProfile, error) {
	var profile models.VerificationProfile
	err := r.db.GetContext(ctx, &profile,
		`SELECT * FROM verification_profiles WHERE subject_id = ?`, subjectID)
	if err != nil {
		return nil, wrapError(err)
	}
	return &profile, nil
}

// GetProfileByLogin retrieves a verification profile by provider login.
func (r *Repository) GetProfileByLogin(ctx context.Context, login string) (*models.VerificationProfile, error) {
	var profile models.VerificationProfile
	err := r.db.GetContext(ctx, &profile,
		`SELECT * FROM verification_profiles WHERE login = ?`, login)
	if err != nil {
		return nil, wrapError(err)
	}
	return &profile, nil
}

// UpsertProfile writes a successful validation outcome in one statement.
// A first success inserts the full profile; later successes refresh the
// provider attributes and last_reverified_at, keep the original
// verified_at and clear any outstanding reverification flag.
func (r *Repository) UpsertProfile(ctx context.Context, profile *models.VerificationProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_profiles
		   (subject_id, login, display_name, email, category, verified_at, last_reverified_at,
		    reverification_required, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (subject_id) DO UPDATE SET
		   login = excluded.login,
		   display_name = excluded.display_name,
		   email = excluded.email,
		   category = excluded.category,
		   last_reverified_at = excluded.last_reverified_at,
		   reverification_required = 0,
		   reverification_reason = NULL,
		   reverification_requested_at = NULL,
		   reverification_wave_id = NULL,
		   updated_at = excluded.updated_at`,
		profile.SubjectID, profile.Login, profile.DisplayName, profile.Email, profile.Category,
		profile.VerifiedAt, profile.LastReverifiedAt, profile.CreatedAt, profile.UpdatedAt)
	return err
}

// SetReverificationRequired flags an existing profile for forced
// re-verification. Returns ErrNotFound when no profile exists; a profile
// is never created here.
func (r *Repository) SetReverificationRequired(ctx context.Context, subjectID int64, reason string, waveID *string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_profiles
		 SET reverification_required = 1,
		     reverification_reason = ?,
		     reverification_requested_at = ?,
		     reverification_wave_id = ?,
		     updated_at = ?
		 WHERE subject_id = ?`,
		reason, now, waveID, now, subjectID)
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

// SetPreservedRoles stores a role snapshot on an existing profile.
func (r *Repository) SetPreservedRoles(ctx context.Context, subjectID int64, rolesJSON string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_profiles
		 SET preserved_roles = ?, preserved_at = ?, updated_at = ?
		 WHERE subject_id = ?`,
		rolesJSON, now, now, subjectID)
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

// ConsumePreservedRoles returns and clears the stored role snapshot.
// ok is false when no snapshot exists or a concurrent caller consumed it
// first; the clear is guarded by the snapshot timestamp so the snapshot
// is handed out at most once.
func (r *Repository) ConsumePreservedRoles(ctx context.Context, subjectID int64, now time.Time) (string, bool, error) {
	var snapshot struct {
		Roles *string    `db:"preserved_roles"`
		At    *time.Time `db:"preserved_at"`
	}
	err := r.db.GetContext(ctx, &snapshot,
		`SELECT preserved_roles, preserved_at FROM verification_profiles WHERE subject_id = ?`, subjectID)
	if err != nil {
		return "", false, wrapError(err)
	}
	if snapshot.Roles == nil {
		return "", false, nil
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_profiles
		 SET preserved_roles = NULL, preserved_at = NULL, updated_at = ?
		 WHERE subject_id = ? AND preserved_at IS ?`,
		now, subjectID, snapshot.At)
	if err != nil {
		return "", false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if affected == 0 {
		return "", false, nil
	}
	return *snapshot.Roles, true, nil
}

// ListProfilesRequiringReverification returns profiles currently flagged
// for forced re-verification.
func (r *Repository) ListProfilesRequiringReverification(ctx context.Context) ([]models.VerificationProfile, error) {
	var profiles []models.VerificationProfile
	err := r.db.SelectContext(ctx, &profiles,
		`SELECT * FROM verification_profiles WHERE reverification_required = 1 ORDER BY reverification_requested_at`)
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// CountProfiles returns the total number of verification profiles.
func (r *Repository) CountProfiles(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM verification_profiles`)
	return count, err
}

// DeleteProfile removes a subject's verification profile.
func (r *Repository) DeleteProfile(ctx context.Context, subjectID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_profiles WHERE subject_id = ?`, subjectID)
	return err
}
