// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify_test

import (
	"context"
	"testing"

	"codeberg.org/mkadlec/gatekeeper/internal/services/verify"
	"codeberg.org/mkadlec/gatekeeper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForceReverification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")
	// 1 is the everyone role, 900 is protected
	f.gw.SetMemberRoles(42, 1, 5, 900, 20)

	delivered, err := f.svc.ForceReverification(ctx, 1, 42, "Annual check")

	require.NoError(t, err)
	assert.True(t, delivered)

	profile, err := f.repo.GetProfile(ctx, 42)
	require.NoError(t, err)
	assert.True(t, profile.ReverificationRequired)
	require.NotNil(t, profile.ReverificationReason)
	assert.Equal(t, "Annual check", *profile.ReverificationReason)
	assert.NotNil(t, profile.ReverificationRequestedAt)

	// Snapshot keeps everything but the everyone role, protected
	// included, so prior standing comes back exactly
	ids, err := profile.PreservedRoleIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 900, 20}, ids)

	// Revocation spares the everyone role and the protected set
	require.Len(t, f.gw.Revokes, 1)
	assert.Equal(t, []int64{5, 20}, f.gw.Revokes[0].RoleIDs)
	assert.ElementsMatch(t, []int64{1, 900}, f.gw.RolesOf(42))

	require.Len(t, f.gw.Messages, 1)
	assert.Contains(t, f.gw.Messages[0].Body, "Annual check")
	assert.Contains(t, f.gw.Messages[0].Body, "https://sso.example.edu/cas/login?service=")
}

func TestForceReverification_NoProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ForceReverification(context.Background(), 1, 42, "Annual check")

	assert.ErrorIs(t, err, verify.ErrProfileNotFound)
	assert.Empty(t, f.gw.Messages)
}

func TestForceReverification_DeliveryRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")
	f.gw.SetMemberRoles(42, 1, 5)
	f.gw.RefuseDirectMessages()

	delivered, err := f.svc.ForceReverification(ctx, 1, 42, "Annual check")

	require.NoError(t, err)
	assert.False(t, delivered)

	// The reset itself still went through
	profile, err := f.repo.GetProfile(ctx, 42)
	require.NoError(t, err)
	assert.True(t, profile.ReverificationRequired)
}

func TestForceReverification_RevokeFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")
	f.gw.SetMemberRoles(42, 1, 5)
	f.gw.FailRoleChanges(true)

	delivered, err := f.svc.ForceReverification(ctx, 1, 42, "Annual check")

	require.NoError(t, err)
	assert.True(t, delivered)

	// Flag and snapshot are committed even when the platform refuses
	// the revocation
	profile, err := f.repo.GetProfile(ctx, 42)
	require.NoError(t, err)
	assert.True(t, profile.ReverificationRequired)
	ids, err := profile.PreservedRoleIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, ids)
	assert.ElementsMatch(t, []int64{1, 5}, f.gw.RolesOf(42))
}
