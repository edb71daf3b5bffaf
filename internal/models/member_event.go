// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package models

import "time"

// MemberEventKind classifies membership lifecycle events reported by the
// platform gateway.
type MemberEventKind string

const (
	MemberJoined   MemberEventKind = "join"
	MemberLeft     MemberEventKind = "leave"
	MemberBanned   MemberEventKind = "ban"
	MemberUnbanned MemberEventKind = "unban"
)

// MemberEvent is one append-only membership history entry.
type MemberEvent struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64           `db:"id" json:"id"`
	SubjectID  int64           `db:"subject_id" json:"subject_id"`
	ContextID  int64           `db:"context_id" json:"context_id"`
	Event      MemberEventKind `db:"event" json:"event"`
	Roles      *string         `db:"roles" json:"-"` // JSON-encoded role ids held at event time
	OccurredAt time.Time       `db:"occurred_at" json:"occurred_at"`
}
