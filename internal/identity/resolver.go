package identity

import (
	"context"
	"sync"
	"time"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/session"
)

// IdentityContext is the observable per-principal holder of the current
// effective identity. UI surfaces (the SSE stream, the /v1/me handler)
// read Current; observers are notified whenever a recompute changes it.
type IdentityContext struct {
	mu        sync.Mutex
	current   EffectiveIdentity
	observers []func(EffectiveIdentity)
}

// Current returns the last computed effective identity.
func (c *IdentityContext) Current() EffectiveIdentity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Observe registers a callback invoked on every identity change. Callbacks
// run synchronously under the context lock and must not block.
func (c *IdentityContext) Observe(fn func(EffectiveIdentity)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *IdentityContext) set(id EffectiveIdentity) {
	c.mu.Lock()
	changed := id != c.current
	c.current = id
	observers := c.observers
	c.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range observers {
		fn(id)
	}
}

// Resolver derives the effective identity for a principal from guest-view and
// impersonation state. Precedence when both are somehow present:
// impersonation, then guest view, then self. Every mutation path recomputes
// through Refresh so derived state never goes stale.
type Resolver struct {
	invitations *InvitationService
	controller  *Controller
	accounts    account.Store
	persist     session.Store

	mu       sync.Mutex
	contexts map[string]*IdentityContext
}

// NewResolver constructs the resolver.
func NewResolver(invitations *InvitationService, controller *Controller, accounts account.Store, persist session.Store) *Resolver {
	return &Resolver{
		invitations: invitations,
		controller:  controller,
		accounts:    accounts,
		persist:     persist,
		contexts:    make(map[string]*IdentityContext),
	}
}

// Context returns the observable identity context for a principal, creating
// it on first use.
func (r *Resolver) Context(principalID string) *IdentityContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[principalID]
	if !ok {
		c = &IdentityContext{current: EffectiveIdentity{
			PrincipalID: principalID,
			AccountID:   principalID,
			Mode:        ModeSelf,
		}}
		r.contexts[principalID] = c
	}
	return c
}

// Resolve computes the effective identity from current state. A persisted
// impersonation triple with no live in-process session is resumed (or closed,
// when its idle window elapsed) before anything else, so sessions never
// dangle without a timer after a restart. A persisted guest view is
// re-validated against the share store on every resolve; a view whose share
// has been revoked is discarded silently and the principal falls back to
// self.
func (r *Resolver) Resolve(ctx context.Context, principalID string) (EffectiveIdentity, error) {
	if sess, ok := r.controller.Active(principalID); ok {
		return EffectiveIdentity{
			PrincipalID:            principalID,
			AccountID:              sess.TargetAccountID,
			ViewOnly:               false,
			Mode:                   ModeImpersonation,
			ImpersonationTargetID:  sess.TargetAccountID,
			ImpersonationSessionID: sess.ID,
		}, nil
	}

	st, ok, err := r.persist.Load(ctx, principalID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	if ok && st.HasImpersonation() && st.ImpersonationAdminID == principalID {
		// A persisted session with no in-process counterpart means the process
		// restarted underneath it. Resume it here so the inactivity timer runs
		// again; an idle or invalid session is closed or discarded by Restore.
		sess, err := r.controller.Restore(ctx, principalID)
		if err != nil {
			return EffectiveIdentity{}, err
		}
		if sess != nil {
			return EffectiveIdentity{
				PrincipalID:            principalID,
				AccountID:              sess.TargetAccountID,
				ViewOnly:               false,
				Mode:                   ModeImpersonation,
				ImpersonationTargetID:  sess.TargetAccountID,
				ImpersonationSessionID: sess.ID,
			}, nil
		}
	}
	if ok && st.GuestViewActive && st.GuestOwnerID != "" {
		active, err := r.invitations.IsActiveGuestOf(ctx, principalID, st.GuestOwnerID)
		if err != nil {
			return EffectiveIdentity{}, err
		}
		if active {
			return EffectiveIdentity{
				PrincipalID:  principalID,
				AccountID:    st.GuestOwnerID,
				ViewOnly:     true,
				Mode:         ModeGuest,
				GuestOwnerID: st.GuestOwnerID,
			}, nil
		}
		st.GuestViewActive = false
		st.GuestOwnerID = ""
		if err := r.persist.Save(ctx, principalID, st); err != nil {
			return EffectiveIdentity{}, err
		}
	}

	return EffectiveIdentity{
		PrincipalID: principalID,
		AccountID:   principalID,
		Mode:        ModeSelf,
	}, nil
}

// Refresh recomputes the effective identity and publishes it to the
// principal's identity context. Call it after every state mutation, in that
// order: mutate first, recompute second.
func (r *Resolver) Refresh(ctx context.Context, principalID string) (EffectiveIdentity, error) {
	id, err := r.Resolve(ctx, principalID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	r.Context(principalID).set(id)
	return id, nil
}

// SwitchToSharedAccount activates guest view over the owner's account. The
// share is re-checked at switch time; a revoked share yields ErrNotAuthorized
// no matter what any cached list claims.
func (r *Resolver) SwitchToSharedAccount(ctx context.Context, principalID, ownerAccountID string) (EffectiveIdentity, error) {
	active, err := r.invitations.IsActiveGuestOf(ctx, principalID, ownerAccountID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	if !active {
		return EffectiveIdentity{}, ErrNotAuthorized
	}

	st, _, err := r.persist.Load(ctx, principalID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	st.GuestViewActive = true
	st.GuestOwnerID = ownerAccountID
	if err := r.persist.Save(ctx, principalID, st); err != nil {
		return EffectiveIdentity{}, err
	}
	return r.Refresh(ctx, principalID)
}

// SwitchToOwnAccount returns the principal to their own account. It succeeds
// unconditionally, including when no guest view is active.
func (r *Resolver) SwitchToOwnAccount(ctx context.Context, principalID string) (EffectiveIdentity, error) {
	st, ok, err := r.persist.Load(ctx, principalID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	if ok && (st.GuestViewActive || st.GuestOwnerID != "") {
		st.GuestViewActive = false
		st.GuestOwnerID = ""
		if err := r.persist.Save(ctx, principalID, st); err != nil {
			return EffectiveIdentity{}, err
		}
	}
	return r.Refresh(ctx, principalID)
}

// Restore rebuilds identity state at sign-in: it resumes a persisted
// impersonation session when still valid, otherwise re-validates any
// persisted guest view, and when nothing persisted survives it auto-selects
// the most recently accepted share so a pure guest lands on the dashboard
// they were invited to.
func (r *Resolver) Restore(ctx context.Context, principalID string) (EffectiveIdentity, error) {
	if _, err := r.controller.Restore(ctx, principalID); err != nil {
		return EffectiveIdentity{}, err
	}
	id, err := r.Refresh(ctx, principalID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	if id.Mode != ModeSelf {
		return id, nil
	}

	shares, err := r.invitations.ListAccepted(ctx, principalID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	if len(shares) == 0 {
		return id, nil
	}
	st, _, err := r.persist.Load(ctx, principalID)
	if err != nil {
		return EffectiveIdentity{}, err
	}
	st.GuestViewActive = true
	st.GuestOwnerID = shares[0].OwnerAccountID
	if err := r.persist.Save(ctx, principalID, st); err != nil {
		return EffectiveIdentity{}, err
	}
	return r.Refresh(ctx, principalID)
}

// SignOut tears down identity state for the principal: any open impersonation
// session is stopped, the identity context falls back to self. Persisted
// guest view survives sign-out so the next sign-in restores it.
func (r *Resolver) SignOut(ctx context.Context, principalID string) error {
	if err := r.controller.StopForAdmin(ctx, principalID); err != nil {
		return err
	}
	_, err := r.Refresh(ctx, principalID)
	return err
}

// StartLivenessLoop periodically recomputes every registered principal's
// identity so revocations and expiries made outside a request path still
// reach stream subscribers. Returns when ctx is cancelled.
func (r *Resolver) StartLivenessLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			principals := make([]string, 0, len(r.contexts))
			for id := range r.contexts {
				principals = append(principals, id)
			}
			r.mu.Unlock()
			for _, principalID := range principals {
				_, _ = r.Refresh(ctx, principalID)
			}
		}
	}
}
