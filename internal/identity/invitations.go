package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/ids"
	"github.com/sdalgetty/funnel-app-sub003/internal/obs"
)

const defaultInviteBaseURL = "http://localhost:8080"

// InvitationService creates, accepts and revokes account-sharing invitations.
// It enforces one non-revoked invitation per (owner, guest-email) pair and the
// single-use token contract.
type InvitationService struct {
	store    Store
	accounts account.Store
	mailer   Mailer
	baseURL  string
	now      func() time.Time
	sendSync bool
}

// InvitationOption configures InvitationService behavior.
type InvitationOption func(*InvitationService)

// WithMailer overrides the invitation mail transport.
func WithMailer(m Mailer) InvitationOption {
	return func(s *InvitationService) {
		if m != nil {
			s.mailer = m
		}
	}
}

// WithInviteBaseURL sets the public base URL embedded in invitation links.
func WithInviteBaseURL(u string) InvitationOption {
	return func(s *InvitationService) {
		u = strings.TrimRight(strings.TrimSpace(u), "/")
		if u != "" {
			s.baseURL = u
		}
	}
}

// WithInvitationClock overrides the time source (useful for tests).
func WithInvitationClock(fn func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithSynchronousMail makes dispatch block until the mailer returns, so tests
// can observe sends deterministically.
func WithSynchronousMail() InvitationOption {
	return func(s *InvitationService) { s.sendSync = true }
}

// NewInvitationService constructs the registry.
func NewInvitationService(store Store, accounts account.Store, opts ...InvitationOption) *InvitationService {
	s := &InvitationService{
		store:    store,
		accounts: accounts,
		mailer:   LogMailer{},
		baseURL:  defaultInviteBaseURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invite creates a pending share and dispatches the invitation email. When a
// non-revoked share already exists for the pair, pending or accepted, it is
// returned alongside ErrDuplicateInvitation so callers can surface the
// existing grant instead of erroring blindly.
func (s *InvitationService) Invite(ctx context.Context, ownerID, guestEmail string) (*Share, error) {
	ownerID = strings.TrimSpace(ownerID)
	guestEmail = strings.TrimSpace(strings.ToLower(guestEmail))
	if ownerID == "" || guestEmail == "" || !strings.Contains(guestEmail, "@") {
		return nil, ErrInvalidInput
	}

	existing, err := s.store.Shares(ctx).FindNonRevoked(ctx, ownerID, guestEmail)
	if err == nil {
		return existing, ErrDuplicateInvitation
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	share := &Share{
		ID:             ids.New(),
		OwnerAccountID: ownerID,
		GuestEmail:     guestEmail,
		Token:          uuid.NewString(),
		Status:         SharePending,
		Role:           RoleViewer,
		InvitedAt:      s.now().UTC(),
	}
	if err := s.store.Shares(ctx).Create(ctx, share); err != nil {
		return nil, err
	}
	obs.InvitationIssued()
	_ = audit.LogEvent(ctx, "share.invited", map[string]any{
		"share_id":    share.ID,
		"owner_id":    ownerID,
		"guest_email": guestEmail,
	})

	s.dispatch(ctx, share)
	return share, nil
}

// InvitationLink returns the URL embedded in the invitation email.
func (s *InvitationService) InvitationLink(share *Share) string {
	return s.baseURL + "/accept?token=" + share.Token
}

// dispatch sends the invitation email without blocking the caller. Failure is
// logged only; the share stays valid and the link can be resent.
func (s *InvitationService) dispatch(ctx context.Context, share *Share) {
	ownerName := share.OwnerAccountID
	if owner, err := s.accounts.Find(ctx, share.OwnerAccountID); err == nil && owner.DisplayName != "" {
		ownerName = owner.DisplayName
	}
	link := s.InvitationLink(share)

	send := func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.mailer.SendInvitation(sendCtx, share.GuestEmail, ownerName, link); err != nil {
			_ = audit.LogEvent(sendCtx, "share.invite_mail_failed", map[string]any{
				"share_id": share.ID,
				"error":    err.Error(),
			})
		}
	}
	if s.sendSync {
		send()
		return
	}
	go send()
}

// FindByToken looks up a share for the acceptance flow. It never mutates.
func (s *InvitationService) FindByToken(ctx context.Context, token string) (*Share, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidInvitation
	}
	return s.store.Shares(ctx).FindByToken(ctx, token)
}

// Accept consumes an invitation token. The accepting principal's verified
// email must equal the invited email (case-insensitive); the token is
// single-use by virtue of the pending→accepted status transition.
func (s *InvitationService) Accept(ctx context.Context, token, acceptingAccountID, acceptingEmail string) (*Share, error) {
	share, err := s.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidInvitation
		}
		return nil, err
	}
	if share.Status != SharePending {
		return nil, ErrInvalidInvitation
	}
	if !strings.EqualFold(strings.TrimSpace(acceptingEmail), share.GuestEmail) {
		return nil, ErrEmailMismatch
	}

	now := s.now().UTC()
	share.GuestAccountID = acceptingAccountID
	share.Status = ShareAccepted
	share.AcceptedAt = &now
	if err := s.store.Shares(ctx).Update(ctx, share); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "share.accepted", map[string]any{
		"share_id": share.ID,
		"owner_id": share.OwnerAccountID,
		"guest_id": acceptingAccountID,
	})
	return share, nil
}

// Revoke terminally revokes a share and returns it so callers can recompute
// the affected guest's identity. Only the owner may revoke; revoking an
// already-revoked share is a no-op.
func (s *InvitationService) Revoke(ctx context.Context, ownerID, shareID string) (*Share, error) {
	share, err := s.store.Shares(ctx).Find(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if share.OwnerAccountID != ownerID {
		return nil, ErrNotOwner
	}
	if share.Status == ShareRevoked {
		return share, nil
	}
	share.Status = ShareRevoked
	if err := s.store.Shares(ctx).Update(ctx, share); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "share.revoked", map[string]any{
		"share_id": share.ID,
		"owner_id": ownerID,
	})
	return share, nil
}

// ListIssued returns every share the owner has created, newest first, so the
// sharing settings page can show pending, accepted and revoked grants.
func (s *InvitationService) ListIssued(ctx context.Context, ownerAccountID string) ([]Share, error) {
	return s.store.Shares(ctx).ListByOwner(ctx, ownerAccountID)
}

// ListAccepted returns accepted shares where the caller is the guest, most
// recently accepted first. The resolver uses the head of this list for
// auto-selection on sign-in.
func (s *InvitationService) ListAccepted(ctx context.Context, guestAccountID string) ([]Share, error) {
	return s.store.Shares(ctx).ListAcceptedByGuest(ctx, guestAccountID)
}

// IsActiveGuestOf reports whether an accepted, non-revoked share exists for
// the pair. Consulted on every guest-view switch and on restore, because a
// share may be revoked between sessions.
func (s *InvitationService) IsActiveGuestOf(ctx context.Context, guestAccountID, ownerAccountID string) (bool, error) {
	return s.store.Shares(ctx).ActiveGuestExists(ctx, guestAccountID, ownerAccountID)
}
