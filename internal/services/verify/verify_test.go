// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package verify_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/gateway"
	"codeberg.org/mkadlec/gatekeeper/internal/i18n"
	"codeberg.org/mkadlec/gatekeeper/internal/metrics"
	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
	"codeberg.org/mkadlec/gatekeeper/internal/services/audit"
	"codeberg.org/mkadlec/gatekeeper/internal/services/cas"
	"codeberg.org/mkadlec/gatekeeper/internal/services/notify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
	"codeberg.org/mkadlec/gatekeeper/internal/services/verify"
	"codeberg.org/mkadlec/gatekeeper/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubValidator struct {
	identity   *cas.Identity
	err        error
	gotTicket  string
	gotService string
}

func (v *stubValidator) Validate(_ context.Context, ticket, service string) (*cas.Identity, error) {
	v.gotTicket = ticket
	v.gotService = service
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

type fixture struct {
	svc    *verify.Service
	repo   *repository.Repository
	gw     *gateway.Fake
	tokens *token.Store
	stub   *stubValidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, i18n.Init())

	_, repo := testutil.NewTestDB(t)
	gw := gateway.NewFake()
	tokens := token.New(repo,
		&config.TokenConfig{Secret: testSecret, TTLMinutes: 15},
		"https://sso.example.edu/cas/login",
		"https://gate.example.com/auth/callback")
	stub := &stubValidator{identity: &cas.Identity{
		Login:        "jan.novak",
		DisplayName:  "Jan Novák",
		Email:        "jan.novak@univ.example",
		Affiliations: []string{"student"},
	}}

	svc := verify.New(verify.Params{
		Repo:      repo,
		Tokens:    tokens,
		Validator: stub,
		Gateway:   gw,
		Audit:     audit.New(repo),
		Notifier:  notify.New(gw, &config.SMTPConfig{}),
		Metrics:   metrics.New(),
		Roles: &config.RolesConfig{
			ContextID:        1,
			StandardRoleID:   100,
			ElevatedRoleID:   200,
			ProtectedRoleIDs: []int64{900},
		},
	})
	return &fixture{svc: svc, repo: repo, gw: gw, tokens: tokens, stub: stub}
}

func newTestWave(t *testing.T, repo *repository.Repository, subjectIDs ...int64) *models.ReverificationWave {
	t.Helper()
	now := time.Now().UTC()
	wave := &models.ReverificationWave{
		ID:                uuid.NewString(),
		Name:              "Spring cleanup",
		ContextID:         1,
		TargetRoleID:      100,
		StartDate:         now,
		EndDate:           now.AddDate(0, 0, 14),
		WindowDays:        14,
		DailyBatchPercent: 7,
		TotalUsers:        len(subjectIDs),
		Status:            models.WavePending,
		CreatedAt:         now,
	}
	assignments := make([]models.WaveAssignment, 0, len(subjectIDs))
	for _, id := range subjectIDs {
		assignments = append(assignments, models.WaveAssignment{WaveID: wave.ID, SubjectID: id, ScheduledFor: now})
	}
	require.NoError(t, repo.CreateWaveWithAssignments(context.Background(), wave, assignments))
	return wave
}

func TestRecordSuccess_CreatesProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity := &cas.Identity{
		Login:        "jan.novak",
		DisplayName:  "Jan Novák",
		Email:        "jan.novak@univ.example",
		Affiliations: []string{"faculty"},
	}
	profile, waveID, err := f.svc.RecordSuccess(ctx, 42, identity, false)

	require.NoError(t, err)
	assert.Nil(t, waveID)
	assert.Equal(t, "jan.novak", profile.Login)
	assert.Equal(t, models.CategoryElevated, profile.Category)
	assert.False(t, profile.ReverificationRequired)
	assert.WithinDuration(t, time.Now(), profile.VerifiedAt, 2*time.Second)
	assert.True(t, profile.LastReverifiedAt.Equal(profile.VerifiedAt))
}

func TestRecordSuccess_RefreshKeepsVerifiedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _, err := f.svc.RecordSuccess(ctx, 42,
		&cas.Identity{Login: "jan.novak", Affiliations: []string{"student"}}, false)
	require.NoError(t, err)

	second, _, err := f.svc.RecordSuccess(ctx, 42, &cas.Identity{
		Login:        "jan.novak",
		DisplayName:  "Jan Novák",
		Email:        "new@univ.example",
		Affiliations: []string{"faculty"},
	}, true)
	require.NoError(t, err)

	assert.True(t, second.VerifiedAt.Equal(first.VerifiedAt))
	assert.False(t, second.LastReverifiedAt.Before(first.LastReverifiedAt))
	assert.Equal(t, models.CategoryElevated, second.Category)
	assert.Equal(t, "new@univ.example", second.Email)
}

func TestRecordSuccess_ResolvesReverification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")
	wave := newTestWave(t, f.repo, 42)
	require.NoError(t, f.svc.RequireReverification(ctx, 42, "Annual check", &wave.ID))

	profile, waveID, err := f.svc.RecordSuccess(ctx, 42,
		&cas.Identity{Login: "jan.novak", Affiliations: []string{"student"}}, true)

	require.NoError(t, err)
	require.NotNil(t, waveID)
	assert.Equal(t, wave.ID, *waveID)
	assert.False(t, profile.ReverificationRequired)
	assert.Nil(t, profile.ReverificationReason)
	assert.Nil(t, profile.ReverificationWaveID)
}

func TestIsVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verified, err := f.svc.IsVerified(ctx, 42)
	require.NoError(t, err)
	assert.False(t, verified)

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")
	verified, err = f.svc.IsVerified(ctx, 42)
	require.NoError(t, err)
	assert.True(t, verified)

	require.NoError(t, f.svc.RequireReverification(ctx, 42, "Annual check", nil))
	verified, err = f.svc.IsVerified(ctx, 42)
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestRequireReverification_NoProfile(t *testing.T) {
	f := newFixture(t)

	err := f.svc.RequireReverification(context.Background(), 42, "Annual check", nil)

	assert.ErrorIs(t, err, verify.ErrProfileNotFound)

	// A profile must never appear as a side effect
	_, err = f.repo.GetProfile(context.Background(), 42)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testutil.NewTestProfile(t, f.repo, 42, "jan.novak")
	f.gw.SetPresent(42, true)

	status, err := f.svc.Status(ctx, 1, 42)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, "jan.novak", status.Profile.Login)

	f.gw.SetPresent(42, false)
	status, err = f.svc.Status(ctx, 1, 42)
	require.NoError(t, err)
	assert.False(t, status.Active)
}

func TestStatus_NoProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Status(context.Background(), 1, 42)

	assert.ErrorIs(t, err, verify.ErrProfileNotFound)
}
