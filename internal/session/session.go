package session

import "context"

// State is the per-principal identity state that must survive page and process
// reloads. It is always re-validated against current authorization before use;
// persistence is a convenience, never an authority.
type State struct {
	GuestViewActive        bool   `json:"guest_view_active"`
	GuestOwnerID           string `json:"guest_owner_id,omitempty"`
	ImpersonationAdminID   string `json:"impersonation_admin_id,omitempty"`
	ImpersonationTargetID  string `json:"impersonation_target_id,omitempty"`
	ImpersonationSessionID string `json:"impersonation_session_id,omitempty"`
}

// HasImpersonation reports whether a persisted impersonation triple is present.
func (s State) HasImpersonation() bool {
	return s.ImpersonationAdminID != "" && s.ImpersonationTargetID != "" && s.ImpersonationSessionID != ""
}

// Store is a durable key/value store of identity state keyed by principal id.
type Store interface {
	Load(ctx context.Context, principalID string) (State, bool, error)
	Save(ctx context.Context, principalID string, st State) error
	Clear(ctx context.Context, principalID string) error
}
