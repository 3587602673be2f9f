package account

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sdalgetty/funnel-app-sub003/internal/ids"
)

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[string]*Account
	byEmail map[string]string
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty account store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[string]*Account),
		byEmail: make(map[string]string),
	}
}

func (s *InMemory) Create(ctx context.Context, a *Account) error {
	email := strings.TrimSpace(strings.ToLower(a.Email))
	if email == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return ErrConflict
	}
	if a.ID == "" {
		a.ID = ids.New()
	}
	now := time.Now().UTC()
	a.Email = email
	a.CreatedAt = now
	a.UpdatedAt = now

	cp := *a
	s.byID[a.ID] = &cp
	s.byEmail[email] = a.ID
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *acc
	return &out, nil
}

func (s *InMemory) FindByEmail(ctx context.Context, email string) (*Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.byID[id]
	return &out, nil
}

func (s *InMemory) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.DisplayName != nil {
		acc.DisplayName = strings.TrimSpace(*upd.DisplayName)
	}
	acc.UpdatedAt = time.Now().UTC()
	out := *acc
	return &out, nil
}

func (s *InMemory) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok, nil
}
