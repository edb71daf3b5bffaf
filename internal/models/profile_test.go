// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package models_test

import (
	"testing"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerificationProfile_PreservedRoleIDs(t *testing.T) {
	encoded, err := models.EncodeRoleIDs([]int64{10, 20, 30})
	require.NoError(t, err)

	profile := &models.VerificationProfile{PreservedRoles: &encoded}

	ids, err := profile.PreservedRoleIDs()

	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, ids)
}

func TestVerificationProfile_PreservedRoleIDs_NoSnapshot(t *testing.T) {
	profile := &models.VerificationProfile{}

	ids, err := profile.PreservedRoleIDs()

	require.NoError(t, err)
	assert.Nil(t, ids)
}

func TestVerificationProfile_PreservedRoleIDs_Corrupt(t *testing.T) {
	corrupt := "not json"
	profile := &models.VerificationProfile{PreservedRoles: &corrupt}

	_, err := profile.PreservedRoleIDs()

	assert.Error(t, err)
}

func TestEncodeRoleIDs_Empty(t *testing.T) {
	encoded, err := models.EncodeRoleIDs(nil)

	require.NoError(t, err)
	assert.Equal(t, "null", encoded)
}

func TestAuthToken_Expired(t *testing.T) {
	now := time.Now()
	token := &models.AuthToken{ExpiresAt: now.Add(15 * time.Minute)}

	assert.False(t, token.Expired(now))
	assert.False(t, token.Expired(now.Add(15*time.Minute)))
	assert.True(t, token.Expired(now.Add(15*time.Minute+time.Second)))
}
