// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertMemberEvent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	roles := "[10,20]"
	event := &models.MemberEvent{
		SubjectID:  42,
		ContextID:  1,
		Event:      models.MemberLeft,
		Roles:      &roles,
		OccurredAt: time.Now().UTC(),
	}

	err := repo.InsertMemberEvent(ctx, event)

	require.NoError(t, err)
	assert.NotZero(t, event.ID)
}

func TestListMemberEvents(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	for i, kind := range []models.MemberEventKind{models.MemberJoined, models.MemberLeft, models.MemberJoined} {
		err := repo.InsertMemberEvent(ctx, &models.MemberEvent{
			SubjectID:  42,
			ContextID:  1,
			Event:      kind,
			OccurredAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	err := repo.InsertMemberEvent(ctx, &models.MemberEvent{
		SubjectID:  7,
		ContextID:  1,
		Event:      models.MemberJoined,
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	events, err := repo.ListMemberEvents(ctx, 42, 10)

	require.NoError(t, err)
	require.Len(t, events, 3)
	// Newest first
	assert.Equal(t, models.MemberJoined, events[0].Event)
	assert.Equal(t, models.MemberLeft, events[1].Event)
}
