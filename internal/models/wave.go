// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package models

import "time"

// WaveStatus is the lifecycle state of a reverification wave.
type WaveStatus string

const (
	WavePending   WaveStatus = "pending"
	WaveActive    WaveStatus = "active"
	WaveCompleted WaveStatus = "completed"
)

// ReverificationWave is a bounded-rate campaign forcing a cohort of
// verified subjects to re-validate within a time window.
// Invariants: UsersNotified <= TotalUsers, UsersCompleted <= UsersNotified.
type ReverificationWave struct { //nolint:govet // fieldalignment: readability over optimization
	ID                string     `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	ContextID         int64      `db:"context_id" json:"context_id"`
	TargetRoleID      int64      `db:"target_role_id" json:"target_role_id"`
	StartDate         time.Time  `db:"start_date" json:"start_date"`
	EndDate           time.Time  `db:"end_date" json:"end_date"`
	WindowDays        int        `db:"window_days" json:"window_days"`
	DailyBatchPercent float64    `db:"daily_batch_percent" json:"daily_batch_percent"`
	TotalUsers        int        `db:"total_users" json:"total_users"`
	UsersNotified     int        `db:"users_notified" json:"users_notified"`
	UsersCompleted    int        `db:"users_completed" json:"users_completed"`
	Status            WaveStatus `db:"status" json:"status"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// WaveAssignment schedules one subject within a wave. A subject has at
// most one assignment per wave.
type WaveAssignment struct { //nolint:govet // fieldalignment: readability over optimization
	ID             int64      `db:"id" json:"id"`
	WaveID         string     `db:"wave_id" json:"wave_id"`
	SubjectID      int64      `db:"subject_id" json:"subject_id"`
	ScheduledFor   time.Time  `db:"scheduled_for" json:"scheduled_for"`
	NotifiedAt     *time.Time `db:"notified_at" json:"notified_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ReminderSentAt *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
}
