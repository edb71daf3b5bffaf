// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
)

// SnapshotRoles stores the subject's current role set on their profile
// so it can be restored after re-verification. The everyone role is
// dropped; the platform models it with the community id itself and it
// can neither be revoked nor granted.
func (s *Service) SnapshotRoles(ctx context.Context, subjectID int64, roleIDs []int64) error {
	kept := make([]int64, 0, len(roleIDs))
	for _, id := range roleIDs {
		if id == s.roles.ContextID {
			continue
		}
		kept = append(kept, id)
	}

	encoded, err := models.EncodeRoleIDs(kept)
	if err != nil {
		return fmt.Errorf("failed to encode role snapshot: %w", err)
	}

	err = s.repo.SetPreservedRoles(ctx, subjectID, encoded, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to store role snapshot: %w", err)
	}

	slog.Info("roles_preserved", "subject_id", subjectID, "count", len(kept))
	return nil
}

// RestoreRoles hands out the preserved role set exactly once and clears
// it. Without a snapshot the category default applies, so a subject is
// never left without baseline access after verification.
func (s *Service) RestoreRoles(ctx context.Context, subjectID int64, category models.Category) ([]int64, error) {
	encoded, ok, err := s.repo.ConsumePreservedRoles(ctx, subjectID, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return s.defaultRoles(category), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume role snapshot: %w", err)
	}
	if !ok {
		return s.defaultRoles(category), nil
	}

	var ids []int64
	if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
		return nil, fmt.Errorf("failed to decode role snapshot: %w", err)
	}
	if len(ids) == 0 {
		return s.defaultRoles(category), nil
	}

	slog.Info("roles_restored", "subject_id", subjectID, "count", len(ids))
	return ids, nil
}

func (s *Service) defaultRoles(category models.Category) []int64 {
	if category == models.CategoryElevated {
		return []int64{s.roles.ElevatedRoleID}
	}
	return []int64{s.roles.StandardRoleID}
}

// revocableRoles filters a role set down to what a forced
// re-verification may take away: everything except the everyone role
// and the configured protected set.
func (s *Service) revocableRoles(roleIDs []int64) []int64 {
	out := make([]int64, 0, len(roleIDs))
	for _, id := range roleIDs {
		if id == s.roles.ContextID || slices.Contains(s.roles.ProtectedRoleIDs, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
