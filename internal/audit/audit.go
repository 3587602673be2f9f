package audit

import (
	"context"
	"errors"
	"time"
)

// ActionType enumerates privileged actions recorded in the access log.
type ActionType string

const (
	ActionViewUser         ActionType = "view_user"
	ActionEditData         ActionType = "edit_data"
	ActionImpersonateStart ActionType = "impersonate_start"
	ActionImpersonateEnd   ActionType = "impersonate_end"
)

var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is one privileged action. Entries are append-only: application logic
// never updates or deletes them.
type Entry struct {
	ID              string         `json:"id"`
	ActorAccountID  string         `json:"actor_account_id"`
	TargetAccountID string         `json:"target_account_id,omitempty"`
	Action          ActionType     `json:"action"`
	Details         map[string]any `json:"details,omitempty"`
	SessionID       string         `json:"session_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ActorAccountID  string
	TargetAccountID string
	Action          ActionType
	Limit           int
}

// Store persists access log entries.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
}

// Log is the append-only audit sink consumed by the identity subsystem and by
// data services acting under impersonation.
type Log struct {
	store  Store
	now    func() time.Time
	notify func(Entry)
}

// Option configures Log behavior.
type Option func(*Log)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// WithNotify registers a hook invoked after every successful append, used to
// feed the live access-log stream.
func WithNotify(fn func(Entry)) Option {
	return func(l *Log) { l.notify = fn }
}

// NewLog constructs the audit log service.
func NewLog(store Store, opts ...Option) *Log {
	l := &Log{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records one privileged action. The id and timestamp are assigned here
// so callers only describe what happened.
func (l *Log) Append(ctx context.Context, entry *Entry) error {
	if entry == nil || entry.ActorAccountID == "" || entry.Action == "" {
		return ErrInvalidEntry
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC()
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return err
	}
	if l.notify != nil {
		l.notify(*entry)
	}
	return nil
}

// List returns entries newest first for the access-log view.
func (l *Log) List(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}
	return l.store.List(ctx, f)
}
