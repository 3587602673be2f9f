package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("account: not found")
	ErrConflict     = errors.New("account: already exists")
	ErrInvalidInput = errors.New("account: invalid input")
)

// Account is one data-owning principal. The id is immutable after signup;
// profile fields may change.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	IsAdmin      bool      `json:"is_admin"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate carries the mutable profile fields. Nil means "leave as is".
type ProfileUpdate struct {
	DisplayName *string
}

// Store describes persistence operations for accounts.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Account, error)
	Exists(ctx context.Context, id string) (bool, error)
}
