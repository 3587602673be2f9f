package audit

import (
	"context"
	"sync"

	"github.com/sdalgetty/funnel-app-sub003/internal/ids"
)

// InMemory implements Store for tests and single-process deployments.
type InMemory struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *InMemory) List(ctx context.Context, f Filter) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if f.ActorAccountID != "" && e.ActorAccountID != f.ActorAccountID {
			continue
		}
		if f.TargetAccountID != "" && e.TargetAccountID != f.TargetAccountID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
