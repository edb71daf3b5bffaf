// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package gateway

import (
	"context"
	"errors"
	"slices"
	"sync"
)

var errPermission = errors.New("missing permission")

// Fake is an in-memory Gateway for tests. Role state is tracked per
// subject so grants and revocations are observable.
type Fake struct {
	mu          sync.Mutex
	members     map[int64][]int64 // subject id -> role ids
	present     map[int64]bool
	refuseDM    bool
	failGrants  bool
	failRevokes bool

	Grants   []RoleChange
	Revokes  []RoleChange
	Messages []Message
}

// RoleChange records one grant or revoke call.
type RoleChange struct {
	SubjectID int64
	RoleIDs   []int64
	Reason    string
}

// Message records one direct message delivery attempt.
type Message struct {
	SubjectID int64
	Subject   string
	Body      string
}

func NewFake() *Fake {
	return &Fake{
		members: make(map[int64][]int64),
		present: make(map[int64]bool),
	}
}

// SetMemberRoles seeds the roles a subject holds.
func (f *Fake) SetMemberRoles(subjectID int64, roleIDs ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[subjectID] = slices.Clone(roleIDs)
	f.present[subjectID] = true
}

// SetPresent marks a subject as present without touching roles.
func (f *Fake) SetPresent(subjectID int64, present bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[subjectID] = present
}

// RefuseDirectMessages makes SendDirectMessage return ErrDeliveryRefused.
func (f *Fake) RefuseDirectMessages() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refuseDM = true
}

// FailRoleChanges makes grant and revoke calls fail, simulating a
// permission error on the platform side.
func (f *Fake) FailRoleChanges(err bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failGrants = err
	f.failRevokes = err
}

func (f *Fake) MemberRoles(_ context.Context, _, subjectID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.members[subjectID]), nil
}

func (f *Fake) GrantRoles(_ context.Context, _, subjectID int64, roleIDs []int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGrants {
		return errPermission
	}
	for _, id := range roleIDs {
		if !slices.Contains(f.members[subjectID], id) {
			f.members[subjectID] = append(f.members[subjectID], id)
		}
	}
	f.Grants = append(f.Grants, RoleChange{SubjectID: subjectID, RoleIDs: slices.Clone(roleIDs), Reason: reason})
	return nil
}

func (f *Fake) RevokeRoles(_ context.Context, _, subjectID int64, roleIDs []int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRevokes {
		return errPermission
	}
	f.members[subjectID] = slices.DeleteFunc(f.members[subjectID], func(id int64) bool {
		return slices.Contains(roleIDs, id)
	})
	f.Revokes = append(f.Revokes, RoleChange{SubjectID: subjectID, RoleIDs: slices.Clone(roleIDs), Reason: reason})
	return nil
}

func (f *Fake) RoleHolders(_ context.Context, _, roleID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var holders []int64
	for subjectID, roles := range f.members {
		if slices.Contains(roles, roleID) {
			holders = append(holders, subjectID)
		}
	}
	slices.Sort(holders)
	return holders, nil
}

func (f *Fake) IsMember(_ context.Context, _, subjectID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[subjectID], nil
}

func (f *Fake) SendDirectMessage(_ context.Context, subjectID int64, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuseDM {
		return ErrDeliveryRefused
	}
	f.Messages = append(f.Messages, Message{SubjectID: subjectID, Subject: subject, Body: body})
	return nil
}

// RolesOf returns the current role set of a subject.
func (f *Fake) RolesOf(subjectID int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.members[subjectID])
}
