// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/services/notify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
)

// HandleMemberEvent records a membership lifecycle event reported by
// the gateway. A joining subject without a clean profile additionally
// receives a sign-in invite over direct message.
func (s *Service) HandleMemberEvent(ctx context.Context, contextID, subjectID int64, kind models.MemberEventKind, roleIDs []int64) error {
	var rolesJSON *string
	if len(roleIDs) > 0 {
		encoded, err := models.EncodeRoleIDs(roleIDs)
		if err != nil {
			return fmt.Errorf("failed to encode roles: %w", err)
		}
		rolesJSON = &encoded
	}

	event := &models.MemberEvent{
		SubjectID:  subjectID,
		ContextID:  contextID,
		Event:      kind,
		Roles:      rolesJSON,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.repo.InsertMemberEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record member event: %w", err)
	}
	slog.Info("member_event_recorded", "subject_id", subjectID, "event", kind)

	if kind != models.MemberJoined {
		return nil
	}
	return s.inviteIfUnverified(ctx, contextID, subjectID)
}

func (s *Service) inviteIfUnverified(ctx context.Context, contextID, subjectID int64) error {
	verified, err := s.IsVerified(ctx, subjectID)
	if err != nil {
		return err
	}
	if verified {
		return nil
	}

	loginURL, _, err := s.tokens.Issue(ctx, token.IssueParams{
		SubjectID: subjectID,
		ContextID: contextID,
		IsInitial: true,
	})
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	delivered := s.notifier.Deliver(ctx, notify.Notice{
		Kind:      notify.KindWelcome,
		SubjectID: subjectID,
		LoginURL:  loginURL,
	})
	slog.Info("welcome_invite", "subject_id", subjectID, "delivered", delivered)
	return nil
}
