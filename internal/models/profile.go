// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package models

import (
	"encoding/json"
	"time"
)

// Category is the two-class membership classification derived from
// provider attributes.
type Category string

const (
	CategoryStandard Category = "standard"
	CategoryElevated Category = "elevated"
)

// VerificationProfile is the durable verification record, one per subject.
// ReverificationRequired=true means the subject is treated as unverified
// for gating purposes even though historical verification data exists.
type VerificationProfile struct { //nolint:govet // fieldalignment: readability over optimization
	SubjectID                 int64      `db:"subject_id" json:"subject_id"`
	Login                     string     `db:"login" json:"login"`
	DisplayName               string     `db:"display_name" json:"display_name"`
	Email                     string     `db:"email" json:"email"`
	Category                  Category   `db:"category" json:"category"`
	VerifiedAt                time.Time  `db:"verified_at" json:"verified_at"`
	LastReverifiedAt          time.Time  `db:"last_reverified_at" json:"last_reverified_at"`
	ReverificationRequired    bool       `db:"reverification_required" json:"reverification_required"`
	ReverificationReason      *string    `db:"reverification_reason" json:"reverification_reason,omitempty"`
	ReverificationRequestedAt *time.Time `db:"reverification_requested_at" json:"reverification_requested_at,omitempty"`
	ReverificationWaveID      *string    `db:"reverification_wave_id" json:"reverification_wave_id,omitempty"`
	PreservedRoles            *string    `db:"preserved_roles" json:"-"` // JSON-encoded role id list
	PreservedAt               *time.Time `db:"preserved_at" json:"preserved_at,omitempty"`
	CreatedAt                 time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                 time.Time  `db:"updated_at" json:"updated_at"`
}

// PreservedRoleIDs decodes the stored role snapshot. Returns nil when no
// snapshot is present.
func (p *VerificationProfile) PreservedRoleIDs() ([]int64, error) {
	if p.PreservedRoles == nil {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(*p.PreservedRoles), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// EncodeRoleIDs encodes a role id list for snapshot storage.
func EncodeRoleIDs(ids []int64) (string, error) {
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
