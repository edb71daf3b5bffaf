// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

// Package verify owns the verification core: classifying provider
// identities, keeping the durable verification records, preserving
// roles around forced re-verification, and orchestrating the provider
// callback end to end.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/mkadlec/gatekeeper/internal/config"
	"codeberg.org/mkadlec/gatekeeper/internal/gateway"
	"codeberg.org/mkadlec/gatekeeper/internal/metrics"
	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/repository"
	"codeberg.org/mkadlec/gatekeeper/internal/services/audit"
	"codeberg.org/mkadlec/gatekeeper/internal/services/cas"
	"codeberg.org/mkadlec/gatekeeper/internal/services/notify"
	"codeberg.org/mkadlec/gatekeeper/internal/services/token"
)

// ErrProfileNotFound is returned when an operation requires an existing
// verification profile and none exists for the subject.
var ErrProfileNotFound = errors.New("verification profile not found")

// RolesSyncError reports a gateway role change that failed after the
// verification outcome was already committed. It is surfaced for
// remediation, never used to roll the outcome back.
type RolesSyncError struct {
	err error
}

func (e *RolesSyncError) Error() string {
	return "failed to synchronize roles: " + e.err.Error()
}

func (e *RolesSyncError) Unwrap() error {
	return e.err
}

// TicketValidator abstracts the provider exchange so the flow can be
// exercised without a live identity provider.
type TicketValidator interface {
	Validate(ctx context.Context, ticket, service string) (*cas.Identity, error)
}

// Service is the verification core.
type Service struct {
	repo      *repository.Repository
	tokens    *token.Store
	validator TicketValidator
	gw        gateway.Gateway
	audit     *audit.Logger
	notifier  *notify.Service
	metrics   *metrics.Metrics
	roles     *config.RolesConfig
}

// Params collects the collaborators a Service is built from.
type Params struct {
	Repo      *repository.Repository
	Tokens    *token.Store
	Validator TicketValidator
	Gateway   gateway.Gateway
	Audit     *audit.Logger
	Notifier  *notify.Service
	Metrics   *metrics.Metrics
	Roles     *config.RolesConfig
}

// New creates the verification service.
func New(params Params) *Service {
	return &Service{
		repo:      params.Repo,
		tokens:    params.Tokens,
		validator: params.Validator,
		gw:        params.Gateway,
		audit:     params.Audit,
		notifier:  params.Notifier,
		metrics:   params.Metrics,
		roles:     params.Roles,
	}
}

// RecordSuccess persists a successful validation outcome in a single
// upsert. The first success creates the profile; later ones refresh the
// provider attributes, keep the original verified_at and clear any
// outstanding re-verification flag. Returns the stored profile and the
// wave the subject was flagged under, if any.
func (s *Service) RecordSuccess(ctx context.Context, subjectID int64, identity *cas.Identity, isReverification bool) (*models.VerificationProfile, *string, error) {
	var waveID *string
	prior, err := s.repo.GetProfile(ctx, subjectID)
	switch {
	case err == nil:
		if prior.ReverificationRequired {
			waveID = prior.ReverificationWaveID
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return nil, nil, fmt.Errorf("failed to load profile: %w", err)
	}

	now := time.Now().UTC()
	profile := &models.VerificationProfile{
		SubjectID:        subjectID,
		Login:            identity.Login,
		DisplayName:      identity.DisplayName,
		Email:            identity.Email,
		Category:         Classify(identity.Groups, identity.Affiliations),
		VerifiedAt:       now,
		LastReverifiedAt: now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, nil, fmt.Errorf("failed to persist verification: %w", err)
	}

	stored, err := s.repo.GetProfile(ctx, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload profile: %w", err)
	}

	slog.Info("verification_recorded",
		"subject_id", subjectID,
		"login", stored.Login,
		"category", stored.Category,
		"reverification", isReverification)
	return stored, waveID, nil
}

// IsVerified reports whether the subject is in good standing: a profile
// exists and no re-verification is outstanding.
func (s *Service) IsVerified(ctx context.Context, subjectID int64) (bool, error) {
	profile, err := s.repo.GetProfile(ctx, subjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load profile: %w", err)
	}
	return !profile.ReverificationRequired, nil
}

// RequireReverification flags an existing profile for forced
// re-verification. A profile is never created here; a missing one is
// ErrProfileNotFound.
func (s *Service) RequireReverification(ctx context.Context, subjectID int64, reason string, waveID *string) error {
	err := s.repo.SetReverificationRequired(ctx, subjectID, reason, waveID, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to flag profile: %w", err)
	}
	slog.Info("reverification_required", "subject_id", subjectID, "reason", reason)
	return nil
}

// Status describes a subject's verification standing for the command
// surface.
type Status struct {
	Profile *models.VerificationProfile
	Active  bool
}

// Status returns the subject's profile together with a live membership
// probe. A failed probe degrades to inactive instead of failing the
// query.
func (s *Service) Status(ctx context.Context, contextID, subjectID int64) (*Status, error) {
	profile, err := s.repo.GetProfile(ctx, subjectID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	active, err := s.gw.IsMember(ctx, contextID, subjectID)
	if err != nil {
		slog.Warn("membership_probe_failed", "subject_id", subjectID, "error", err)
		active = false
	}

	return &Status{Profile: profile, Active: active}, nil
}

// AuditTrail returns the most recent validation attempts for a subject.
func (s *Service) AuditTrail(ctx context.Context, subjectID int64, limit int) ([]models.AuditRecord, error) {
	return s.repo.ListAuditRecords(ctx, subjectID, limit)
}
