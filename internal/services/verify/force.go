// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/mkadlec/gatekeeper/internal/repository"
	"codeberg.org/mkadlec/gatekeeper/internal/services/notify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
)

// ForceReverification resets a verified subject: their roles are
// snapshotted, the profile is flagged, non-protected roles are revoked
// and a fresh sign-in link goes out. The snapshot always lands before
// any revocation. Reports whether a notification channel accepted the
// notice.
func (s *Service) ForceReverification(ctx context.Context, contextID, subjectID int64, reason string) (bool, error) {
	profile, err := s.repo.GetProfile(ctx, subjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrProfileNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to load profile: %w", err)
	}

	current, err := s.gw.MemberRoles(ctx, contextID, subjectID)
	if err != nil {
		return false, fmt.Errorf("failed to read member roles: %w", err)
	}
	if err := s.SnapshotRoles(ctx, subjectID, current); err != nil {
		return false, err
	}
	if err := s.RequireReverification(ctx, subjectID, reason, nil); err != nil {
		return false, err
	}

	if revocable := s.revocableRoles(current); len(revocable) > 0 {
		if err := s.gw.RevokeRoles(ctx, contextID, subjectID, revocable, "re-verification required"); err != nil {
			// The flag is already set; the subject stays gated even
			// when the platform refuses the revocation
			slog.Error("roles_sync_failed", "subject_id", subjectID, "error", &RolesSyncError{err: err})
		}
	}

	loginURL, _, err := s.tokens.Issue(ctx, token.IssueParams{
		SubjectID: subjectID,
		ContextID: contextID,
		IsInitial: false,
	})
	if err != nil {
		return false, fmt.Errorf("failed to issue token: %w", err)
	}

	delivered := s.notifier.Deliver(ctx, notify.Notice{
		Kind:        notify.KindAdmin,
		SubjectID:   subjectID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
		Reason:      reason,
		LoginURL:    loginURL,
	})

	slog.Info("reverification_forced",
		"subject_id", subjectID,
		"reason", reason,
		"delivered", delivered)
	return delivered, nil
}
