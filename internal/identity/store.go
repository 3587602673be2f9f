package identity

import "context"

// Store describes persistence operations required by the identity subsystem.
type Store interface {
	Shares(ctx context.Context) ShareStore
	Sessions(ctx context.Context) SessionStore
}

// ShareStore manages account-sharing invitations.
type ShareStore interface {
	Create(ctx context.Context, share *Share) error
	Find(ctx context.Context, id string) (*Share, error)
	FindByToken(ctx context.Context, token string) (*Share, error)
	// FindNonRevoked returns the pending or accepted share for an
	// (owner, guest-email) pair, ErrNotFound when none exists. At most one
	// non-revoked share may exist per pair.
	FindNonRevoked(ctx context.Context, ownerID, guestEmail string) (*Share, error)
	Update(ctx context.Context, share *Share) error
	// ListAcceptedByGuest returns accepted, non-revoked shares where the
	// given account is the guest, most recently accepted first with share id
	// as the tie-break.
	ListAcceptedByGuest(ctx context.Context, guestAccountID string) ([]Share, error)
	// ListByOwner returns every share the account has issued, newest first.
	ListByOwner(ctx context.Context, ownerAccountID string) ([]Share, error)
	ActiveGuestExists(ctx context.Context, guestAccountID, ownerAccountID string) (bool, error)
}

// SessionStore manages impersonation sessions.
type SessionStore interface {
	Create(ctx context.Context, sess *ImpersonationSession) error
	Find(ctx context.Context, id string) (*ImpersonationSession, error)
	Update(ctx context.Context, sess *ImpersonationSession) error
	// FindActiveByAdmin returns the open session for an admin,
	// ErrNotFound when there is none.
	FindActiveByAdmin(ctx context.Context, adminAccountID string) (*ImpersonationSession, error)
}
