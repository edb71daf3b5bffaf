// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/services/audit"
	"codeberg.org/mkadlec/gatekeeper/internal/services/cas"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
)

// Outcome is the result of a completed callback.
type Outcome struct { //nolint:govet // fieldalignment: readability over optimization
	Profile          *models.VerificationProfile
	RestoredRoles    []int64
	IsReverification bool

	// SyncError carries a *RolesSyncError when the gateway refused the
	// role grant. The verification itself still succeeded.
	SyncError error
}

// HandleCallback drives one provider callback from state redemption to
// role assignment. Exactly one audit record is written per call,
// whichever branch is taken.
func (s *Service) HandleCallback(ctx context.Context, ticket, state string) (*Outcome, error) {
	redemption, err := s.tokens.Redeem(ctx, state)
	if err != nil {
		detail := "state token invalid or expired"
		if !errors.Is(err, token.ErrInvalidOrExpired) {
			detail = "token store unavailable"
			err = fmt.Errorf("failed to redeem state token: %w", err)
		}
		s.recordFailure(ctx, audit.Entry{Ticket: ticket, Token: state, Detail: detail})
		return nil, err
	}
	subjectID := redemption.SubjectID

	identity, err := s.validator.Validate(ctx, ticket, s.tokens.ServiceURL(state))
	if err != nil {
		s.recordFailure(ctx, audit.Entry{
			SubjectID: &subjectID,
			Ticket:    ticket,
			Token:     state,
			Detail:    validationDetail(err),
		})
		return nil, err
	}

	isReverification := !redemption.IsInitial
	profile, waveID, err := s.RecordSuccess(ctx, subjectID, identity, isReverification)
	if err != nil {
		s.recordFailure(ctx, audit.Entry{
			SubjectID: &subjectID,
			Login:     identity.Login,
			Ticket:    ticket,
			Token:     state,
			Detail:    "failed to persist verification",
		})
		return nil, err
	}

	outcome := &Outcome{Profile: profile, IsReverification: isReverification}

	restored, err := s.RestoreRoles(ctx, subjectID, profile.Category)
	if err != nil {
		// A corrupt snapshot must not undo a committed verification
		slog.Error("role_restore_failed", "subject_id", subjectID, "error", err)
		restored = s.defaultRoles(profile.Category)
	}
	outcome.RestoredRoles = restored

	if err := s.gw.GrantRoles(ctx, redemption.ContextID, subjectID, restored, "verification completed"); err != nil {
		outcome.SyncError = &RolesSyncError{err: err}
		slog.Error("roles_sync_failed", "subject_id", subjectID, "error", outcome.SyncError)
	}

	if waveID != nil {
		s.completeWaveAssignment(ctx, *waveID, subjectID)
	}

	s.audit.Record(ctx, audit.Entry{
		SubjectID: &subjectID,
		Login:     profile.Login,
		Ticket:    ticket,
		Token:     state,
		Result:    models.AuditSuccess,
		Detail:    string(profile.Category),
	})
	s.metrics.CountVerification("success")

	slog.Info("verification_completed",
		"subject_id", subjectID,
		"login", profile.Login,
		"category", profile.Category,
		"reverification", isReverification)
	return outcome, nil
}

func (s *Service) recordFailure(ctx context.Context, entry audit.Entry) {
	entry.Result = models.AuditFailure
	s.audit.Record(ctx, entry)
	s.metrics.CountVerification("failure")
}

// validationDetail condenses a validator error into an audit detail.
func validationDetail(err error) string {
	var vErr *cas.ValidationError
	if !errors.As(err, &vErr) {
		return "validator failure"
	}
	if vErr.Code != "" {
		return vErr.Kind.String() + ": " + vErr.Code
	}
	return vErr.Kind.String()
}

func (s *Service) completeWaveAssignment(ctx context.Context, waveID string, subjectID int64) {
	completed, err := s.repo.MarkAssignmentCompleted(ctx, waveID, subjectID, time.Now().UTC())
	if err != nil {
		slog.Error("wave_completion_failed", "wave_id", waveID, "subject_id", subjectID, "error", err)
		return
	}
	if completed {
		slog.Info("wave_assignment_completed", "wave_id", waveID, "subject_id", subjectID)
	}
}
