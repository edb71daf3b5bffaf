// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify_test

import (
	"context"
	"testing"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMemberEvent_JoinUnverified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleMemberEvent(ctx, 1, 42, models.MemberJoined, []int64{1})

	require.NoError(t, err)

	events, err := f.repo.ListMemberEvents(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.MemberJoined, events[0].Event)

	// Unverified joiners get a sign-in invite
	require.Len(t, f.gw.Messages, 1)
	assert.Contains(t, f.gw.Messages[0].Body, "https://sso.example.edu/cas/login?service=")
}

func TestHandleMemberEvent_JoinVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")

	err := f.svc.HandleMemberEvent(ctx, 1, 42, models.MemberJoined, []int64{1})

	require.NoError(t, err)
	assert.Empty(t, f.gw.Messages)
}

func TestHandleMemberEvent_JoinFlagged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")
	require.NoError(t, f.svc.RequireReverification(ctx, 42, "Annual check", nil))

	err := f.svc.HandleMemberEvent(ctx, 1, 42, models.MemberJoined, []int64{1})

	require.NoError(t, err)

	// A flagged profile counts as unverified, so the invite goes out
	assert.Len(t, f.gw.Messages, 1)
}

func TestHandleMemberEvent_Leave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleMemberEvent(ctx, 1, 42, models.MemberLeft, []int64{10, 20})

	require.NoError(t, err)
	assert.Empty(t, f.gw.Messages)

	events, err := f.repo.ListMemberEvents(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Roles)
	assert.JSONEq(t, "[10,20]", *events[0].Roles)
}

func TestHandleMemberEvent_Ban(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.HandleMemberEvent(ctx, 1, 42, models.MemberBanned, nil)

	require.NoError(t, err)

	events, err := f.repo.ListMemberEvents(ctx, 42, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.MemberBanned, events[0].Event)
	assert.Nil(t, events[0].Roles)
}
