package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sdalgetty/funnel-app-sub003/internal/ids"
)

const pgErrUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	a.Email = strings.TrimSpace(strings.ToLower(a.Email))
	row := s.db.QueryRowContext(ctx, `
		insert into accounts(id, email, display_name, is_admin, password_hash)
		values ($1,$2,$3,$4,$5)
		returning created_at, updated_at
	`, a.ID, a.Email, a.DisplayName, a.IsAdmin, a.PasswordHash)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, email, display_name, is_admin, password_hash, created_at, updated_at
		from accounts where id=$1
	`, id)
	return scanAccount(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	row := s.db.QueryRowContext(ctx, `
		select id, email, display_name, is_admin, password_hash, created_at, updated_at
		from accounts where email=$1
	`, email)
	return scanAccount(row)
}

func (s *PGStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Account, error) {
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		row := s.db.QueryRowContext(ctx, `
			update accounts set display_name=$2, updated_at=now()
			where id=$1
			returning id, email, display_name, is_admin, password_hash, created_at, updated_at
		`, id, name)
		return scanAccount(row)
	}
	return s.Find(ctx, id)
}

func (s *PGStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `select 1 from accounts where id=$1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.IsAdmin, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
