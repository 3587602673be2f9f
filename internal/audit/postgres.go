package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sdalgetty/funnel-app-sub003/internal/ids"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	details, _ := json.Marshal(entry.Details)
	_, err := s.db.ExecContext(ctx, `
		insert into access_log(id, actor_account_id, target_account_id, action, details, session_id, created_at)
		values ($1,$2,nullif($3,''),$4,$5,nullif($6,''),$7)
	`, entry.ID, entry.ActorAccountID, entry.TargetAccountID, string(entry.Action), details, entry.SessionID, entry.CreatedAt)
	return err
}

func (s *PGStore) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, cond+placeholder(len(args)))
	}
	if f.ActorAccountID != "" {
		add("actor_account_id=", f.ActorAccountID)
	}
	if f.TargetAccountID != "" {
		add("target_account_id=", f.TargetAccountID)
	}
	if f.Action != "" {
		add("action=", string(f.Action))
	}
	query := `
		select id, actor_account_id, coalesce(target_account_id,''), action, details, coalesce(session_id,''), created_at
		from access_log`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	args = append(args, limit)
	query += " order by created_at desc, id desc limit " + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			action  string
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorAccountID, &e.TargetAccountID, &action, &details, &e.SessionID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = ActionType(action)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
