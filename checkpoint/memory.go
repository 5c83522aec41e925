package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps the checkpoint in memory. Used for runs without
// --resume and in tests.
type MemoryStore struct {
	state State
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the stored state.
func (s *MemoryStore) Load(ctx context.Context) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone(), nil
}

// Save replaces the stored state.
func (s *MemoryStore) Save(ctx context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.clone()
	return nil
}
