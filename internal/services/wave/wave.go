// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package wave plans and drives bounded-rate re-verification
// campaigns. A wave snapshots the holders of a target role, spreads
// them across a time window in daily cohorts and walks each cohort
// through flag, notification and reminder until the subject verifies
// again.
package wave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/gateway"
	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
	"codeberg.org/mkadlec/gatekeeper/internal/services/notify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
)

var (
	ErrInvalidWindow = errors.New("wave window must be positive")
	ErrInvalidBatch  = errors.New("wave batch percent must be positive")
)

// Service schedules waves and pushes their notifications.
type Service struct {
	repo     *repository.Repository
	gw       gateway.Gateway
	tokens   *token.Store
	notifier *notify.Service
	cfg      *config.WaveConfig
}

func New(repo *repository.Repository, gw gateway.Gateway, tokens *token.Store, notifier *notify.Service, cfg *config.WaveConfig) *Service {
	return &Service{repo: repo, gw: gw, tokens: tokens, notifier: notifier, cfg: cfg}
}

// CreateParams describes a new campaign. Nil WindowDays or
// DailyBatchPercent select the configured defaults; explicit values
// must be positive — zero and negative are rejected, never clamped.
type CreateParams struct { //nolint:govet // fieldalignment: readability over optimization
	Name              string
	ContextID         int64
	TargetRoleID      int64
	WindowDays        *int
	DailyBatchPercent *float64
}

// CreateWave snapshots the current holders of the target role and
// persists the wave together with one assignment per holder. A wave
// over an empty cohort is created already completed.
func (s *Service) CreateWave(ctx context.Context, params CreateParams) (*models.ReverificationWave, error) {
	windowDays := s.cfg.WindowDays
	if params.WindowDays != nil {
		windowDays = *params.WindowDays
	}
	percent := s.cfg.DailyBatchPercent
	if params.DailyBatchPercent != nil {
		percent = *params.DailyBatchPercent
	}
	if windowDays <= 0 {
		return nil, ErrInvalidWindow
	}
	if percent <= 0 {
		return nil, ErrInvalidBatch
	}

	holders, err := s.gw.RoleHolders(ctx, params.ContextID, params.TargetRoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate role holders: %w", err)
	}

	now := time.Now().UTC()
	start := now.Truncate(24 * time.Hour)
	wave := &models.ReverificationWave{
		ID:                uuid.NewString(),
		Name:              params.Name,
		ContextID:         params.ContextID,
		TargetRoleID:      params.TargetRoleID,
		StartDate:         start,
		EndDate:           start.AddDate(0, 0, windowDays),
		WindowDays:        windowDays,
		DailyBatchPercent: percent,
		TotalUsers:        len(holders),
		Status:            models.WavePending,
		CreatedAt:         now,
	}
	if wave.TotalUsers == 0 {
		wave.Status = models.WaveCompleted
	}

	assignments := scheduleAssignments(wave.ID, holders, start, windowDays, percent)
	if err := s.repo.CreateWaveWithAssignments(ctx, wave, assignments); err != nil {
		return nil, fmt.Errorf("failed to persist wave: %w", err)
	}

	slog.Info("wave_created",
		"wave_id", wave.ID,
		"name", wave.Name,
		"total_users", wave.TotalUsers,
		"window_days", windowDays,
		"daily_batch_percent", percent)
	return wave, nil
}

// scheduleAssignments spreads holders across the window in cohorts of
// ceil(total*percent/100) per day. When the window runs out before the
// holders do, the remainder joins the final day so every holder is
// scheduled exactly once.
func scheduleAssignments(waveID string, holders []int64, start time.Time, windowDays int, percent float64) []models.WaveAssignment {
	if len(holders) == 0 {
		return nil
	}
	batch := int(math.Ceil(float64(len(holders)) * percent / 100))
	if batch < 1 {
		batch = 1
	}
	assignments := make([]models.WaveAssignment, 0, len(holders))
	for i, subjectID := range holders {
		day := min(i/batch, windowDays-1)
		assignments = append(assignments, models.WaveAssignment{
			WaveID:       waveID,
			SubjectID:    subjectID,
			ScheduledFor: start.AddDate(0, 0, day),
		})
	}
	return assignments
}

// NotifyDue processes every assignment whose scheduled day has
// arrived across all pending and active waves: the subject's profile
// is flagged for re-verification and a notice with a fresh login link
// goes out. Each assignment is notified at most once; a run after a
// partial failure picks up where the previous one stopped. Returns
// how many subjects were newly notified.
func (s *Service) NotifyDue(ctx context.Context) (int, error) {
	waves, err := s.openWaves(ctx)
	if err != nil {
		return 0, err
	}

	notified := 0
	for i := range waves {
		count, err := s.notifyWave(ctx, &waves[i])
		notified += count
		if err != nil {
			return notified, err
		}
	}
	return notified, nil
}

func (s *Service) openWaves(ctx context.Context) ([]models.ReverificationWave, error) {
	pending, err := s.repo.ListWavesByStatus(ctx, models.WavePending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending waves: %w", err)
	}
	active, err := s.repo.ListWavesByStatus(ctx, models.WaveActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active waves: %w", err)
	}
	return append(pending, active...), nil
}

func (s *Service) notifyWave(ctx context.Context, wave *models.ReverificationWave) (int, error) {
	due, err := s.repo.ListDueAssignments(ctx, wave.ID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to list due assignments: %w", err)
	}

	notified := 0
	for _, assignment := range due {
		if s.notifyAssignment(ctx, wave, assignment.SubjectID) {
			notified++
		}
	}
	return notified, nil
}

// notifyAssignment flags the profile first and stamps the assignment
// second. The due query skips stamped assignments, so a crash between
// the two steps re-flags on the next run instead of skipping the
// subject.
func (s *Service) notifyAssignment(ctx context.Context, wave *models.ReverificationWave, subjectID int64) bool {
	now := time.Now().UTC()

	err := s.repo.SetReverificationRequired(ctx, subjectID, "Scheduled re-verification: "+wave.Name, &wave.ID, now)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		// Role holder who never verified; the notice below still
		// invites them through the normal flow.
		slog.Warn("wave_subject_unverified", "wave_id", wave.ID, "subject_id", subjectID)
	case err != nil:
		slog.Error("wave_flag_failed", "wave_id", wave.ID, "subject_id", subjectID, "error", err)
		return false
	}

	first, err := s.repo.MarkAssignmentNotified(ctx, wave.ID, subjectID, now)
	if err != nil {
		slog.Error("wave_notify_failed", "wave_id", wave.ID, "subject_id", subjectID, "error", err)
		return false
	}
	if !first {
		return false
	}

	s.sendNotice(ctx, wave, subjectID, notify.KindWave)
	return true
}

// RemindDue sends one reminder to every assignment that was notified
// at least the configured number of days ago and has neither
// completed nor been reminded yet. Returns how many reminders went
// out.
func (s *Service) RemindDue(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.ReminderAfterDays) * 24 * time.Hour)
	waves, err := s.repo.ListWavesByStatus(ctx, models.WaveActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list active waves: %w", err)
	}

	reminded := 0
	for i := range waves {
		wave := &waves[i]
		due, err := s.repo.ListReminderDueAssignments(ctx, wave.ID, cutoff)
		if err != nil {
			return reminded, fmt.Errorf("failed to list reminder candidates: %w", err)
		}
		for _, assignment := range due {
			first, err := s.repo.MarkAssignmentReminded(ctx, assignment.ID, time.Now().UTC())
			if err != nil {
				slog.Error("wave_reminder_failed", "wave_id", wave.ID, "subject_id", assignment.SubjectID, "error", err)
				continue
			}
			if !first {
				continue
			}
			s.sendNotice(ctx, wave, assignment.SubjectID, notify.KindReminder)
			reminded++
		}
	}
	return reminded, nil
}

// sendNotice issues a fresh login link and delivers the notice. Both
// steps are best-effort; the assignment stamp has already been taken
// and failures only surface in logs.
func (s *Service) sendNotice(ctx context.Context, wave *models.ReverificationWave, subjectID int64, kind notify.Kind) {
	loginURL, _, err := s.tokens.Issue(ctx, token.IssueParams{
		SubjectID: subjectID,
		ContextID: wave.ContextID,
	})
	if err != nil {
		slog.Error("wave_token_failed", "wave_id", wave.ID, "subject_id", subjectID, "error", err)
		return
	}

	notice := notify.Notice{
		Kind:      kind,
		SubjectID: subjectID,
		LoginURL:  loginURL,
		Deadline:  wave.EndDate,
	}
	if profile, err := s.repo.GetProfile(ctx, subjectID); err == nil {
		notice.Email = profile.Email
		notice.DisplayName = profile.DisplayName
	}

	delivered := s.notifier.Deliver(ctx, notice)
	slog.Info("wave_notice_sent",
		"wave_id", wave.ID,
		"subject_id", subjectID,
		"kind", kind.String(),
		"delivered", delivered)
}

// Complete stamps a subject's assignment once their profile is clean
// again. Reports whether the stamp was applied.
func (s *Service) Complete(ctx context.Context, waveID string, subjectID int64) (bool, error) {
	profile, err := s.repo.GetProfile(ctx, subjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile.ReverificationRequired {
		return false, nil
	}

	completed, err := s.repo.MarkAssignmentCompleted(ctx, waveID, subjectID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to complete assignment: %w", err)
	}
	return completed, nil
}

// Progress returns the wave together with its assignments for
// operator inspection.
func (s *Service) Progress(ctx context.Context, waveID string) (*models.ReverificationWave, []models.WaveAssignment, error) {
	wave, err := s.repo.GetWave(ctx, waveID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load wave: %w", err)
	}
	assignments, err := s.repo.ListWaveAssignments(ctx, waveID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	return wave, assignments, nil
}
