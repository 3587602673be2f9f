package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sdalgetty/funnel-app-sub003/internal/ids"
)

// MemoryStore implements Store with in-process concurrency safety.
type MemoryStore struct {
	mu       sync.RWMutex
	shares   map[string]*Share
	byToken  map[string]string
	sessions map[string]*ImpersonationSession
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shares:   make(map[string]*Share),
		byToken:  make(map[string]string),
		sessions: make(map[string]*ImpersonationSession),
	}
}

func (s *MemoryStore) Shares(ctx context.Context) ShareStore     { return &memShareStore{s} }
func (s *MemoryStore) Sessions(ctx context.Context) SessionStore { return &memSessionStore{s} }

// Share store ----------------------------------------------------------------

type memShareStore struct{ p *MemoryStore }

func (m *memShareStore) Create(ctx context.Context, share *Share) error {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	if share.ID == "" {
		share.ID = ids.New()
	}
	cp := *share
	m.p.shares[share.ID] = &cp
	m.p.byToken[share.Token] = share.ID
	return nil
}

func (m *memShareStore) Find(ctx context.Context, id string) (*Share, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	share, ok := m.p.shares[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *share
	return &out, nil
}

func (m *memShareStore) FindByToken(ctx context.Context, token string) (*Share, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	id, ok := m.p.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m.p.shares[id]
	return &out, nil
}

func (m *memShareStore) FindNonRevoked(ctx context.Context, ownerID, guestEmail string) (*Share, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	for _, share := range m.p.shares {
		if share.OwnerAccountID == ownerID &&
			strings.EqualFold(share.GuestEmail, guestEmail) &&
			share.Status != ShareRevoked {
			out := *share
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memShareStore) Update(ctx context.Context, share *Share) error {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	if _, ok := m.p.shares[share.ID]; !ok {
		return ErrNotFound
	}
	cp := *share
	m.p.shares[share.ID] = &cp
	return nil
}

func (m *memShareStore) ListAcceptedByGuest(ctx context.Context, guestAccountID string) ([]Share, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	var out []Share
	for _, share := range m.p.shares {
		if share.Status == ShareAccepted && share.GuestAccountID == guestAccountID {
			out = append(out, *share)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AcceptedAt != nil && b.AcceptedAt != nil && !a.AcceptedAt.Equal(*b.AcceptedAt) {
			return a.AcceptedAt.After(*b.AcceptedAt)
		}
		// Equal timestamps: higher ULID was created later.
		return a.ID > b.ID
	})
	return out, nil
}

func (m *memShareStore) ListByOwner(ctx context.Context, ownerAccountID string) ([]Share, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	var out []Share
	for _, share := range m.p.shares {
		if share.OwnerAccountID == ownerAccountID {
			out = append(out, *share)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.InvitedAt.Equal(b.InvitedAt) {
			return a.InvitedAt.After(b.InvitedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (m *memShareStore) ActiveGuestExists(ctx context.Context, guestAccountID, ownerAccountID string) (bool, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	for _, share := range m.p.shares {
		if share.Status == ShareAccepted &&
			share.GuestAccountID == guestAccountID &&
			share.OwnerAccountID == ownerAccountID {
			return true, nil
		}
	}
	return false, nil
}

// Session store ---------------------------------------------------------------

type memSessionStore struct{ p *MemoryStore }

func (m *memSessionStore) Create(ctx context.Context, sess *ImpersonationSession) error {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	cp := *sess
	m.p.sessions[sess.ID] = &cp
	return nil
}

func (m *memSessionStore) Find(ctx context.Context, id string) (*ImpersonationSession, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	sess, ok := m.p.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (m *memSessionStore) Update(ctx context.Context, sess *ImpersonationSession) error {
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	if _, ok := m.p.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	cp := *sess
	m.p.sessions[sess.ID] = &cp
	return nil
}

func (m *memSessionStore) FindActiveByAdmin(ctx context.Context, adminAccountID string) (*ImpersonationSession, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	var newest *ImpersonationSession
	for _, sess := range m.p.sessions {
		if sess.AdminAccountID != adminAccountID || sess.EndedAt != nil {
			continue
		}
		if newest == nil || sess.StartedAt.After(newest.StartedAt) {
			newest = sess
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	out := *newest
	return &out, nil
}
