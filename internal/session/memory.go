package session

import (
	"context"
	"sync"
)

// InMemory implements Store for tests and single-process deployments. State
// survives in-process restarts of the identity components, not the process.
type InMemory struct {
	mu     sync.RWMutex
	states map[string]State
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{states: make(map[string]State)}
}

func (s *InMemory) Load(ctx context.Context, principalID string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[principalID]
	return st, ok, nil
}

func (s *InMemory) Save(ctx context.Context, principalID string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[principalID] = st
	return nil
}

func (s *InMemory) Clear(ctx context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, principalID)
	return nil
}
