package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/obs"
	"github.com/sdalgetty/funnel-app-sub003/internal/session"
)

// DefaultIdleTimeout is how long an impersonation session survives without an
// activity signal before it is stopped automatically.
const DefaultIdleTimeout = 30 * time.Minute

// Controller owns administrator impersonation sessions and their inactivity
// timers. State machine per admin principal: Idle → Active → Idle. At most one
// active session per admin at a time.
type Controller struct {
	store       Store
	accounts    account.Store
	audit       *audit.Log
	persist     session.Store
	idleTimeout time.Duration
	now         func() time.Time

	mu     sync.Mutex
	active map[string]*liveSession // admin account id → open session
}

// liveSession pairs the open session with its inactivity timer. The
// generation counter guards against a timer that fired after a re-arm or
// stop: a stale fire observes a newer generation and becomes a no-op.
type liveSession struct {
	sess  ImpersonationSession
	timer *time.Timer
	gen   uint64
}

// ControllerOption configures Controller behavior.
type ControllerOption func(*Controller)

// WithIdleTimeout overrides the inactivity window.
func WithIdleTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.idleTimeout = d
		}
	}
}

// WithControllerClock overrides the time source (useful for tests).
func WithControllerClock(fn func() time.Time) ControllerOption {
	return func(c *Controller) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewController constructs the impersonation controller.
func NewController(store Store, accounts account.Store, auditLog *audit.Log, persist session.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:       store,
		accounts:    accounts,
		audit:       auditLog,
		persist:     persist,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		active:      make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start opens an impersonation session. The admin flag is re-verified against
// the account store at call time, never trusted from a client cache. Any
// session the admin already has open is stopped first.
func (c *Controller) Start(ctx context.Context, adminID, targetID string) (*ImpersonationSession, error) {
	admin, err := c.accounts.Find(ctx, adminID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, ErrNotAuthorized
		}
		return nil, err
	}
	if !admin.IsAdmin {
		return nil, ErrNotAuthorized
	}
	exists, err := c.accounts.Exists(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTargetNotFound
	}

	if err := c.StopForAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	now := c.now().UTC()
	sess := &ImpersonationSession{
		ID:              uuid.NewString(),
		AdminAccountID:  adminID,
		TargetAccountID: targetID,
		StartedAt:       now,
		LastActivityAt:  now,
	}
	if err := c.store.Sessions(ctx).Create(ctx, sess); err != nil {
		return nil, err
	}
	if err := c.persistTriple(ctx, adminID, targetID, sess.ID); err != nil {
		return nil, err
	}

	c.mu.Lock()
	entry := &liveSession{sess: *sess}
	c.rearmLocked(adminID, entry)
	c.active[adminID] = entry
	c.mu.Unlock()

	_ = c.audit.Append(ctx, &audit.Entry{
		ActorAccountID:  adminID,
		TargetAccountID: targetID,
		Action:          audit.ActionImpersonateStart,
		SessionID:       sess.ID,
	})
	obs.ImpersonationStarted()
	return sess, nil
}

// Stop closes a session. Explicit stop, inactivity expiry and admin sign-out
// all land here and are logged identically. Stopping an already-ended session
// is a no-op.
func (c *Controller) Stop(ctx context.Context, sessionID string) error {
	sess, err := c.store.Sessions(ctx).Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.EndedAt != nil {
		return nil
	}

	c.mu.Lock()
	if entry, ok := c.active[sess.AdminAccountID]; ok && entry.sess.ID == sessionID {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.gen++ // invalidate any in-flight timer fire
		sess.LastActivityAt = entry.sess.LastActivityAt
		delete(c.active, sess.AdminAccountID)
	}
	c.mu.Unlock()

	endedAt := c.now().UTC()
	duration := endedAt.Sub(sess.LastActivityAt)
	sess.EndedAt = &endedAt
	if err := c.store.Sessions(ctx).Update(ctx, sess); err != nil {
		return err
	}
	if err := c.clearPersisted(ctx, sess.AdminAccountID); err != nil {
		return err
	}

	_ = c.audit.Append(ctx, &audit.Entry{
		ActorAccountID:  sess.AdminAccountID,
		TargetAccountID: sess.TargetAccountID,
		Action:          audit.ActionImpersonateEnd,
		SessionID:       sess.ID,
		Details:         map[string]any{"session_duration_seconds": duration.Seconds()},
	})
	obs.ImpersonationEnded()
	return nil
}

// StopForAdmin closes whatever session the admin has open, if any. Invoked
// unconditionally on admin sign-out so no session is left dangling.
func (c *Controller) StopForAdmin(ctx context.Context, adminID string) error {
	c.mu.Lock()
	entry, ok := c.active[adminID]
	c.mu.Unlock()
	if ok {
		return c.Stop(ctx, entry.sess.ID)
	}
	sess, err := c.store.Sessions(ctx).FindActiveByAdmin(ctx, adminID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.Stop(ctx, sess.ID)
}

// Touch records an activity signal (pointer, key, scroll): it refreshes
// lastActivityAt and re-arms the inactivity timer. It must stay cheap and
// writes nothing to the audit log.
func (c *Controller) Touch(ctx context.Context, adminID string) error {
	c.mu.Lock()
	entry, ok := c.active[adminID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	entry.sess.LastActivityAt = c.now().UTC()
	c.rearmLocked(adminID, entry)
	sess := entry.sess
	c.mu.Unlock()

	// Keep the stored activity timestamp current so a restart restores an
	// accurate idle window.
	return c.store.Sessions(ctx).Update(ctx, &sess)
}

// Active returns the open session for an admin, if any.
func (c *Controller) Active(adminID string) (ImpersonationSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.active[adminID]
	if !ok {
		return ImpersonationSession{}, false
	}
	return entry.sess, true
}

// Restore re-enters Active state from persisted session data after a process
// or page reload. Persisted state is re-validated, never trusted: the admin
// flag, the target account and the stored session must all still hold,
// otherwise the stale state is discarded silently and nothing is logged
// because no session actually resumed.
func (c *Controller) Restore(ctx context.Context, adminID string) (*ImpersonationSession, error) {
	st, ok, err := c.persist.Load(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if !ok || !st.HasImpersonation() || st.ImpersonationAdminID != adminID {
		return nil, nil
	}

	discard := func() error {
		st.ImpersonationAdminID = ""
		st.ImpersonationTargetID = ""
		st.ImpersonationSessionID = ""
		return c.persist.Save(ctx, adminID, st)
	}

	admin, err := c.accounts.Find(ctx, adminID)
	if err != nil || !admin.IsAdmin {
		if err != nil && !errors.Is(err, account.ErrNotFound) {
			return nil, err
		}
		return nil, discard()
	}
	exists, err := c.accounts.Exists(ctx, st.ImpersonationTargetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, discard()
	}
	sess, err := c.store.Sessions(ctx).Find(ctx, st.ImpersonationSessionID)
	if err != nil || !sess.Active() || sess.AdminAccountID != adminID {
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, discard()
	}
	// The idle window may have elapsed while the process was down; that is a
	// normal inactivity expiry, not a restore.
	if c.now().UTC().Sub(sess.LastActivityAt) >= c.idleTimeout {
		return nil, c.Stop(ctx, sess.ID)
	}

	c.mu.Lock()
	if prev, ok := c.active[adminID]; ok && prev.sess.ID == sess.ID {
		// Already live in this process (sign-in again, not a restart); keep
		// the existing entry so its timer stays the only one for the session.
		c.rearmLocked(adminID, prev)
		live := prev.sess
		c.mu.Unlock()
		return &live, nil
	}
	entry := &liveSession{sess: *sess}
	c.rearmLocked(adminID, entry)
	c.active[adminID] = entry
	c.mu.Unlock()
	obs.ImpersonationStarted()
	return sess, nil
}

// rearmLocked cancels and recreates the inactivity timer. Caller holds c.mu.
func (c *Controller) rearmLocked(adminID string, entry *liveSession) {
	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.gen++
	gen := entry.gen
	sessionID := entry.sess.ID
	entry.timer = time.AfterFunc(c.idleTimeout, func() {
		c.expire(adminID, sessionID, gen)
	})
}

// expire is the timer callback. A fire that lost the race against Touch or
// Stop sees a newer generation and returns without side effects.
func (c *Controller) expire(adminID, sessionID string, gen uint64) {
	c.mu.Lock()
	entry, ok := c.active[adminID]
	if !ok || entry.sess.ID != sessionID || entry.gen != gen {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = c.Stop(ctx, sessionID)
}

func (c *Controller) persistTriple(ctx context.Context, adminID, targetID, sessionID string) error {
	st, _, err := c.persist.Load(ctx, adminID)
	if err != nil {
		return err
	}
	st.ImpersonationAdminID = adminID
	st.ImpersonationTargetID = targetID
	st.ImpersonationSessionID = sessionID
	return c.persist.Save(ctx, adminID, st)
}

func (c *Controller) clearPersisted(ctx context.Context, adminID string) error {
	st, ok, err := c.persist.Load(ctx, adminID)
	if err != nil || !ok {
		return err
	}
	st.ImpersonationAdminID = ""
	st.ImpersonationTargetID = ""
	st.ImpersonationSessionID = ""
	return c.persist.Save(ctx, adminID, st)
}
