// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package auth

// Action is the storage write a reconciliation requires.
type Action int

// Reconciliation outcomes.
const (
	ActionNone Action = iota
	ActionCreate
	ActionPatch
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionPatch:
		return "patch"
	default:
		return "none"
	}
}

// UserFields holds the optional user fields a write sets. Empty means unset.
type UserFields struct {
	PasswordHash string
	ProviderID   string
	Name         string
	AvatarURL    string
}

// IsEmpty reports whether no field is set.
func (f UserFields) IsEmpty() bool {
	return f == UserFields{}
}

// WriteIntent describes how to persist a reconciled federated identity.
type WriteIntent struct {
	Action Action
	// Email is set for ActionCreate only.
	Email  string
	Fields UserFields
}

// Reconcile decides how a verified claim merges into the matching user, if any.
//
// With no existing user it returns a create intent carrying the claim. With an
// existing user it returns a patch that fills only fields that are currently
// empty; populated fields are never overwritten and the provider id is never
// changed once set. If nothing would change, the action is ActionNone.
func Reconcile(existing *User, claim Claim) WriteIntent {
	if existing == nil {
		return WriteIntent{
			Action: ActionCreate,
			Email:  NormalizeEmail(claim.Email),
			Fields: UserFields{
				ProviderID: claim.ProviderID,
				Name:       claim.Name,
				AvatarURL:  claim.AvatarURL,
			},
		}
	}

	var patch UserFields
	if existing.ProviderID == "" {
		patch.ProviderID = claim.ProviderID
	}
	if existing.Name == "" {
		patch.Name = claim.Name
	}
	if existing.AvatarURL == "" {
		patch.AvatarURL = claim.AvatarURL
	}

	if patch.IsEmpty() {
		return WriteIntent{Action: ActionNone}
	}
	return WriteIntent{Action: ActionPatch, Fields: patch}
}

// Apply returns a copy of u with the intent's non-empty federated fields
// set. Fields already populated on u are left untouched. The password hash
// is never part of a federated write.
func (w WriteIntent) Apply(u User) User {
	if u.ProviderID == "" && w.Fields.ProviderID != "" {
		u.ProviderID = w.Fields.ProviderID
	}
	if u.Name == "" && w.Fields.Name != "" {
		u.Name = w.Fields.Name
	}
	if u.AvatarURL == "" && w.Fields.AvatarURL != "" {
		u.AvatarURL = w.Fields.AvatarURL
	}
	return u
}
