// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package gateway defines the community-platform connection the
// verification flow drives role changes and notifications through.
// The platform itself (member directory, role storage, message
// delivery) lives outside this service.
package gateway

import (
	"context"
	"errors"
	"log/slog"
)

// ErrDeliveryRefused is returned by SendDirectMessage when the
// recipient does not accept direct messages. Callers fall back to
// another channel instead of treating this as an outage.
var ErrDeliveryRefused = errors.New("direct message delivery refused")

// Gateway is the platform-side collaborator. Implementations must be
// safe for concurrent use; role operations may fail with permission
// errors, which callers surface without rolling back verification
// state.
type Gateway interface {
	// MemberRoles returns the role ids a subject currently holds,
	// including the context's everyone role.
	MemberRoles(ctx context.Context, contextID, subjectID int64) ([]int64, error)

	// GrantRoles adds roles to a subject. Unknown role ids are skipped
	// by the platform, not reported as errors.
	GrantRoles(ctx context.Context, contextID, subjectID int64, roleIDs []int64, reason string) error

	// RevokeRoles removes roles from a subject.
	RevokeRoles(ctx context.Context, contextID, subjectID int64, roleIDs []int64, reason string) error

	// RoleHolders enumerates subjects currently holding a role.
	RoleHolders(ctx context.Context, contextID, roleID int64) ([]int64, error)

	// IsMember reports whether the subject is currently present in the
	// community context.
	IsMember(ctx context.Context, contextID, subjectID int64) (bool, error)

	// SendDirectMessage delivers a message to the subject. Returns
	// ErrDeliveryRefused when the subject's inbox is closed.
	SendDirectMessage(ctx context.Context, subjectID int64, subject, body string) error
}

// Noop is a disconnected gateway for running the service without a
// platform attached. Role operations succeed without effect and
// message delivery is refused, so callers exercise their fallbacks.
type Noop struct{}

func (Noop) MemberRoles(_ context.Context, _, _ int64) ([]int64, error) {
	return nil, nil
}

func (Noop) GrantRoles(_ context.Context, contextID, subjectID int64, roleIDs []int64, reason string) error {
	slog.Debug("gateway_grant_skipped", "context_id", contextID, "subject_id", subjectID, "roles", len(roleIDs), "reason", reason)
	return nil
}

func (Noop) RevokeRoles(_ context.Context, contextID, subjectID int64, roleIDs []int64, reason string) error {
	slog.Debug("gateway_revoke_skipped", "context_id", contextID, "subject_id", subjectID, "roles", len(roleIDs), "reason", reason)
	return nil
}

func (Noop) RoleHolders(_ context.Context, _, _ int64) ([]int64, error) {
	return nil, nil
}

func (Noop) IsMember(_ context.Context, _, _ int64) (bool, error) {
	return false, nil
}

func (Noop) SendDirectMessage(_ context.Context, subjectID int64, _, _ string) error {
	slog.Debug("gateway_dm_skipped", "subject_id", subjectID)
	return ErrDeliveryRefused
}
