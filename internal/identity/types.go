package identity

import "time"

// ShareStatus is the lifecycle state of an account-sharing invitation.
type ShareStatus string

const (
	SharePending  ShareStatus = "pending"
	ShareAccepted ShareStatus = "accepted"
	ShareRevoked  ShareStatus = "revoked"
)

// RoleViewer is the only share role currently supported.
const RoleViewer = "viewer"

// Share represents one owner→guest grant. Rows are never physically deleted;
// revocation is terminal and a fresh invitation gets a new row.
type Share struct {
	ID             string      `json:"id"`
	OwnerAccountID string      `json:"owner_account_id"`
	GuestAccountID string      `json:"guest_account_id,omitempty"`
	GuestEmail     string      `json:"guest_email"`
	Token          string      `json:"-"`
	Status         ShareStatus `json:"status"`
	Role           string      `json:"role"`
	InvitedAt      time.Time   `json:"invited_at"`
	AcceptedAt     *time.Time  `json:"accepted_at,omitempty"`
}

// ImpersonationSession is one admin-over-target span.
type ImpersonationSession struct {
	ID              string     `json:"id"`
	AdminAccountID  string     `json:"admin_account_id"`
	TargetAccountID string     `json:"target_account_id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	LastActivityAt  time.Time  `json:"last_activity_at"`
}

// Active reports whether the session is still open.
func (s *ImpersonationSession) Active() bool {
	return s != nil && s.EndedAt == nil
}

// Mode names the mechanism that produced the effective account id.
type Mode string

const (
	ModeSelf          Mode = "self"
	ModeGuest         Mode = "guest"
	ModeImpersonation Mode = "impersonation"
)

// EffectiveIdentity is the derived access state for one authenticated
// principal. It is a pure function of principal, guest-view and impersonation
// state, recomputed whenever any input changes, never persisted as its own row.
type EffectiveIdentity struct {
	PrincipalID            string `json:"principal_id"`
	AccountID              string `json:"account_id"`
	ViewOnly               bool   `json:"view_only"`
	Mode                   Mode   `json:"mode"`
	GuestOwnerID           string `json:"guest_owner_id,omitempty"`
	ImpersonationTargetID  string `json:"impersonation_target_id,omitempty"`
	ImpersonationSessionID string `json:"impersonation_session_id,omitempty"`
}
