package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/session"
)

type controllerFixture struct {
	ctrl     *Controller
	store    *MemoryStore
	accounts *account.InMemory
	audit    *audit.InMemory
	persist  *session.InMemory
	admin    *account.Account
	target   *account.Account
}

func newControllerFixture(t *testing.T, opts ...ControllerOption) *controllerFixture {
	t.Helper()
	accounts := account.NewInMemory()
	admin := &account.Account{Email: "admin@example.com", IsAdmin: true, PasswordHash: "x"}
	target := &account.Account{Email: "target@example.com", PasswordHash: "x"}
	for _, acc := range []*account.Account{admin, target} {
		if err := accounts.Create(context.Background(), acc); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	store := NewMemoryStore()
	auditStore := audit.NewInMemory()
	persist := session.NewInMemory()
	ctrl := NewController(store, accounts, audit.NewLog(auditStore), persist, opts...)
	return &controllerFixture{
		ctrl: ctrl, store: store, accounts: accounts,
		audit: auditStore, persist: persist,
		admin: admin, target: target,
	}
}

func (f *controllerFixture) auditEntries(t *testing.T, action audit.ActionType) []audit.Entry {
	t.Helper()
	got, err := f.audit.List(context.Background(), audit.Filter{Action: action})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	return got
}

func TestStartRequiresAdmin(t *testing.T) {
	f := newControllerFixture(t)
	if _, err := f.ctrl.Start(context.Background(), f.target.ID, f.admin.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
	if _, err := f.ctrl.Start(context.Background(), "no-such-account", f.target.ID); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestStartUnknownTarget(t *testing.T) {
	f := newControllerFixture(t)
	if _, err := f.ctrl.Start(context.Background(), f.admin.ID, "no-such-account"); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("err = %v, want ErrTargetNotFound", err)
	}
}

func TestStartRecordsSessionAndAudit(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	sess, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.ID == "" || !sess.Active() {
		t.Fatalf("bad session: %+v", sess)
	}
	if got, ok := f.ctrl.Active(f.admin.ID); !ok || got.ID != sess.ID {
		t.Fatalf("Active() = %+v, %v", got, ok)
	}

	entries := f.auditEntries(t, audit.ActionImpersonateStart)
	if len(entries) != 1 {
		t.Fatalf("impersonate_start entries = %d, want 1", len(entries))
	}
	if entries[0].ActorAccountID != f.admin.ID || entries[0].TargetAccountID != f.target.ID {
		t.Fatalf("bad audit entry: %+v", entries[0])
	}

	st, ok, err := f.persist.Load(ctx, f.admin.ID)
	if err != nil || !ok {
		t.Fatalf("persisted state missing: %v %v", ok, err)
	}
	if st.ImpersonationSessionID != sess.ID || st.ImpersonationTargetID != f.target.ID {
		t.Fatalf("persisted triple wrong: %+v", st)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	sess, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.ctrl.Stop(ctx, sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := f.ctrl.Stop(ctx, sess.ID); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	entries := f.auditEntries(t, audit.ActionImpersonateEnd)
	if len(entries) != 1 {
		t.Fatalf("impersonate_end entries = %d, want exactly 1", len(entries))
	}
	if _, ok := entries[0].Details["session_duration_seconds"]; !ok {
		t.Fatalf("end entry missing duration: %+v", entries[0].Details)
	}

	if _, ok := f.ctrl.Active(f.admin.ID); ok {
		t.Fatal("session still active after stop")
	}
	st, _, err := f.persist.Load(ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("load persisted: %v", err)
	}
	if st.HasImpersonation() {
		t.Fatalf("persisted triple not cleared: %+v", st)
	}
}

func TestStartReplacesExistingSession(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	other := &account.Account{Email: "other@example.com", PasswordHash: "x"}
	if err := f.accounts.Create(ctx, other); err != nil {
		t.Fatalf("create account: %v", err)
	}

	first, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := f.ctrl.Start(ctx, f.admin.ID, other.ID)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	stored, err := f.store.Sessions(ctx).Find(ctx, first.ID)
	if err != nil {
		t.Fatalf("find first: %v", err)
	}
	if stored.Active() {
		t.Fatal("first session still open after replacement")
	}
	if got, ok := f.ctrl.Active(f.admin.ID); !ok || got.ID != second.ID {
		t.Fatalf("active session = %+v, want %s", got, second.ID)
	}
}

func TestInactivityExpiryStopsSession(t *testing.T) {
	f := newControllerFixture(t, WithIdleTimeout(100*time.Millisecond))
	ctx := context.Background()

	sess, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := f.ctrl.Active(f.admin.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session not expired by inactivity")
		}
		time.Sleep(20 * time.Millisecond)
	}

	stored, err := f.store.Sessions(ctx).Find(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if stored.Active() {
		t.Fatal("stored session still open after expiry")
	}
	// Expiry is a normal stop: exactly one end entry.
	if entries := f.auditEntries(t, audit.ActionImpersonateEnd); len(entries) != 1 {
		t.Fatalf("impersonate_end entries = %d, want 1", len(entries))
	}
}

func TestTouchReArmsTimer(t *testing.T) {
	f := newControllerFixture(t, WithIdleTimeout(500*time.Millisecond))
	ctx := context.Background()

	if _, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Keep touching well inside the window; the session must survive past
	// the original deadline.
	for i := 0; i < 4; i++ {
		time.Sleep(200 * time.Millisecond)
		if err := f.ctrl.Touch(ctx, f.admin.ID); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}
	if _, ok := f.ctrl.Active(f.admin.ID); !ok {
		t.Fatal("session expired despite activity")
	}
	// No audit noise from heartbeats.
	if entries := f.auditEntries(t, audit.ActionImpersonateEnd); len(entries) != 0 {
		t.Fatalf("impersonate_end entries = %d, want 0", len(entries))
	}
}

func TestTouchWithoutSessionIsNoop(t *testing.T) {
	f := newControllerFixture(t)
	if err := f.ctrl.Touch(context.Background(), f.admin.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
}

func TestRestoreResumesValidSession(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	sess, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate a process restart: rebuild the controller over the same
	// stores and persisted state.
	restarted := NewController(f.store, f.accounts, audit.NewLog(f.audit), f.persist)
	restored, err := restarted.Restore(ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored == nil || restored.ID != sess.ID {
		t.Fatalf("restored = %+v, want session %s", restored, sess.ID)
	}
	if _, ok := restarted.Active(f.admin.ID); !ok {
		t.Fatal("restored session not active")
	}
}

func TestRestoreDiscardsEndedSession(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	sess, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.ctrl.Stop(ctx, sess.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Re-plant a stale triple as a tampered client might.
	st, _, _ := f.persist.Load(ctx, f.admin.ID)
	st.ImpersonationAdminID = f.admin.ID
	st.ImpersonationTargetID = f.target.ID
	st.ImpersonationSessionID = sess.ID
	if err := f.persist.Save(ctx, f.admin.ID, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored, err := f.ctrl.Restore(ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != nil {
		t.Fatalf("restored ended session: %+v", restored)
	}
	st, _, _ = f.persist.Load(ctx, f.admin.ID)
	if st.HasImpersonation() {
		t.Fatalf("stale triple not discarded: %+v", st)
	}
}

func TestRestoreDiscardsWhenAdminFlagRevoked(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	if _, err := f.ctrl.Start(ctx, f.admin.ID, f.target.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Demote the admin, then restore in a fresh controller.
	demoted := account.NewInMemory()
	adminCopy := *f.admin
	adminCopy.IsAdmin = false
	targetCopy := *f.target
	for _, acc := range []*account.Account{&adminCopy, &targetCopy} {
		if err := demoted.Create(ctx, acc); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	restarted := NewController(f.store, demoted, audit.NewLog(f.audit), f.persist)

	restored, err := restarted.Restore(ctx, f.admin.ID)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored != nil {
		t.Fatal("restored a session for a demoted admin")
	}
}

func TestStopForAdminWithoutSession(t *testing.T) {
	f := newControllerFixture(t)
	if err := f.ctrl.StopForAdmin(context.Background(), f.admin.ID); err != nil {
		t.Fatalf("stop for admin: %v", err)
	}
}
