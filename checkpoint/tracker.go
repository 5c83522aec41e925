package checkpoint

import (
	"context"
	"fmt"
	"sync"
)

// Tracker merges progress from concurrent workers into one State and
// persists it through a Store.
type Tracker struct {
	mu    sync.Mutex
	store Store
	state State
}

// NewTracker loads the current state from store. When the stored state
// belongs to a different table it is discarded.
func NewTracker(ctx context.Context, store Store, table string) (*Tracker, error) {
	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if state.Table != table {
		state = State{}
	}
	state = state.clone()
	state.Table = table
	return &Tracker{store: store, state: state}, nil
}

// Position reports where source should resume.
func (t *Tracker) Position(source string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Position(source)
}

// Advance records that source has been written up to offset and saves.
func (t *Tracker) Advance(ctx context.Context, source string, offset int64) error {
	return t.set(ctx, source, offset)
}

// Complete marks source as fully loaded and saves.
func (t *Tracker) Complete(ctx context.Context, source string) error {
	return t.set(ctx, source, Completed)
}

// Snapshot returns a copy of the tracked state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

func (t *Tracker) set(ctx context.Context, source string, offset int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Offsets[source] = offset
	if err := t.store.Save(ctx, t.state); err != nil {
		return fmt.Errorf("failed to save checkpoint for %s: %w", source, err)
	}
	return nil
}
