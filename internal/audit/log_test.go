package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sdalgetty/funnel-app-sub003/internal/auth"
	"github.com/sdalgetty/funnel-app-sub003/internal/obs"
)

func TestLogEvent(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetFlags(0)
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, "acct-42", "someone@example.com")

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "audit.test" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["account_id"] != "acct-42" {
		t.Fatalf("unexpected account id: %v", entry["account_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestLogAppendAssignsTimestampAndNotifies(t *testing.T) {
	store := NewInMemory()
	var notified []Entry
	fixed := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	l := NewLog(store,
		WithClock(func() time.Time { return fixed }),
		WithNotify(func(e Entry) { notified = append(notified, e) }),
	)

	entry := &Entry{
		ActorAccountID:  "admin-1",
		TargetAccountID: "user-1",
		Action:          ActionImpersonateStart,
		SessionID:       "sess-1",
	}
	if err := l.Append(context.Background(), entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !entry.CreatedAt.Equal(fixed) {
		t.Fatalf("created_at = %v, want %v", entry.CreatedAt, fixed)
	}
	if len(notified) != 1 || notified[0].Action != ActionImpersonateStart {
		t.Fatalf("notify calls = %+v", notified)
	}
}

func TestLogAppendRejectsIncompleteEntries(t *testing.T) {
	l := NewLog(NewInMemory())
	for _, entry := range []*Entry{
		nil,
		{Action: ActionViewUser},
		{ActorAccountID: "admin-1"},
	} {
		if err := l.Append(context.Background(), entry); err == nil {
			t.Fatalf("expected error for %+v", entry)
		}
	}
}

func TestListNewestFirstWithFilters(t *testing.T) {
	store := NewInMemory()
	l := NewLog(store)
	ctx := context.Background()

	entries := []*Entry{
		{ActorAccountID: "admin-1", TargetAccountID: "user-1", Action: ActionViewUser},
		{ActorAccountID: "admin-1", TargetAccountID: "user-2", Action: ActionImpersonateStart},
		{ActorAccountID: "admin-2", TargetAccountID: "user-1", Action: ActionEditData},
	}
	for _, e := range entries {
		if err := l.Append(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := l.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].Action != ActionEditData {
		t.Fatalf("expected newest first, got %+v", got)
	}

	got, err = l.List(ctx, Filter{ActorAccountID: "admin-1"})
	if err != nil {
		t.Fatalf("list by actor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("actor filter: len = %d, want 2", len(got))
	}

	got, err = l.List(ctx, Filter{TargetAccountID: "user-1", Action: ActionViewUser})
	if err != nil {
		t.Fatalf("list by target+action: %v", err)
	}
	if len(got) != 1 || got[0].ActorAccountID != "admin-1" {
		t.Fatalf("combined filter: %+v", got)
	}

	got, err = l.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit: len = %d, want 2", len(got))
	}
}
