package identity

import (
	"context"
	"database/sql"
	"errors"

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

func (s *PGStore) Shares(ctx context.Context) ShareStore     { return &pgShareStore{db: s.db} }
func (s *PGStore) Sessions(ctx context.Context) SessionStore { return &pgSessionStore{db: s.db} }

// Share store ----------------------------------------------------------------

type pgShareStore struct{ db *sql.DB }

const shareColumns = `id, owner_account_id, coalesce(guest_account_id,''), guest_email, token, status, role, invited_at, accepted_at`

func (s *pgShareStore) Create(ctx context.Context, share *Share) error {
	if share.ID == "" {
		share.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into shares(id, owner_account_id, guest_account_id, guest_email, token, status, role, invited_at)
		values ($1,$2,nullif($3,''),$4,$5,$6,$7,$8)
	`, share.ID, share.OwnerAccountID, share.GuestAccountID, share.GuestEmail,
		share.Token, string(share.Status), share.Role, share.InvitedAt)
	return err
}

func (s *pgShareStore) Find(ctx context.Context, id string) (*Share, error) {
	row := s.db.QueryRowContext(ctx, `select `+shareColumns+` from shares where id=$1`, id)
	return scanShare(row)
}

func (s *pgShareStore) FindByToken(ctx context.Context, token string) (*Share, error) {
	row := s.db.QueryRowContext(ctx, `select `+shareColumns+` from shares where token=$1`, token)
	return scanShare(row)
}

func (s *pgShareStore) FindNonRevoked(ctx context.Context, ownerID, guestEmail string) (*Share, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+shareColumns+` from shares
		where owner_account_id=$1 and lower(guest_email)=lower($2) and status <> 'revoked'
	`, ownerID, guestEmail)
	return scanShare(row)
}

func (s *pgShareStore) Update(ctx context.Context, share *Share) error {
	res, err := s.db.ExecContext(ctx, `
		update shares
		set guest_account_id=nullif($2,''), status=$3, accepted_at=$4
		where id=$1
	`, share.ID, share.GuestAccountID, string(share.Status), share.AcceptedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgShareStore) ListAcceptedByGuest(ctx context.Context, guestAccountID string) ([]Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+shareColumns+` from shares
		where guest_account_id=$1 and status='accepted'
		order by accepted_at desc, id desc
	`, guestAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		share, err := scanShareRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *share)
	}
	return out, rows.Err()
}

func (s *pgShareStore) ListByOwner(ctx context.Context, ownerAccountID string) ([]Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+shareColumns+` from shares
		where owner_account_id=$1
		order by invited_at desc, id desc
	`, ownerAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Share
	for rows.Next() {
		share, err := scanShareRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *share)
	}
	return out, rows.Err()
}

func (s *pgShareStore) ActiveGuestExists(ctx context.Context, guestAccountID, ownerAccountID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		select 1 from shares
		where guest_account_id=$1 and owner_account_id=$2 and status='accepted'
		limit 1
	`, guestAccountID, ownerAccountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanShare(row *sql.Row) (*Share, error) {
	var (
		share  Share
		status string
	)
	err := row.Scan(&share.ID, &share.OwnerAccountID, &share.GuestAccountID, &share.GuestEmail,
		&share.Token, &status, &share.Role, &share.InvitedAt, &share.AcceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	share.Status = ShareStatus(status)
	return &share, nil
}

func scanShareRows(rows *sql.Rows) (*Share, error) {
	var (
		share  Share
		status string
	)
	if err := rows.Scan(&share.ID, &share.OwnerAccountID, &share.GuestAccountID, &share.GuestEmail,
		&share.Token, &status, &share.Role, &share.InvitedAt, &share.AcceptedAt); err != nil {
		return nil, err
	}
	share.Status = ShareStatus(status)
	return &share, nil
}

// Session store ---------------------------------------------------------------

type pgSessionStore struct{ db *sql.DB }

const sessionColumns = `id, admin_account_id, target_account_id, started_at, ended_at, last_activity_at`

func (s *pgSessionStore) Create(ctx context.Context, sess *ImpersonationSession) error {
	_, err := s.db.ExecContext(ctx, `
		insert into impersonation_sessions(id, admin_account_id, target_account_id, started_at, last_activity_at)
		values ($1,$2,$3,$4,$5)
	`, sess.ID, sess.AdminAccountID, sess.TargetAccountID, sess.StartedAt, sess.LastActivityAt)
	return err
}

func (s *pgSessionStore) Find(ctx context.Context, id string) (*ImpersonationSession, error) {
	row := s.db.QueryRowContext(ctx, `select `+sessionColumns+` from impersonation_sessions where id=$1`, id)
	var sess ImpersonationSession
	err := row.Scan(&sess.ID, &sess.AdminAccountID, &sess.TargetAccountID,
		&sess.StartedAt, &sess.EndedAt, &sess.LastActivityAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *pgSessionStore) Update(ctx context.Context, sess *ImpersonationSession) error {
	res, err := s.db.ExecContext(ctx, `
		update impersonation_sessions
		set ended_at=$2, last_activity_at=$3
		where id=$1
	`, sess.ID, sess.EndedAt, sess.LastActivityAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgSessionStore) FindActiveByAdmin(ctx context.Context, adminAccountID string) (*ImpersonationSession, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+sessionColumns+` from impersonation_sessions
		where admin_account_id=$1 and ended_at is null
		order by started_at desc
		limit 1
	`, adminAccountID)
	var sess ImpersonationSession
	err := row.Scan(&sess.ID, &sess.AdminAccountID, &sess.TargetAccountID,
		&sess.StartedAt, &sess.EndedAt, &sess.LastActivityAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
