package cart

import (
	"context"
	"sync"
)

// Store persists the snapshot of one cart session.
type Store interface {
	// Save overwrites the persisted snapshot.
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the persisted snapshot, or nil if there is none.
	Load(ctx context.Context) (*Snapshot, error)
	// Clear erases the persisted snapshot.
	Clear(ctx context.Context) error
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := Snapshot{Lines: append([]Line(nil), snap.Lines...)}
	s.snap = &cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, nil
	}
	cp := Snapshot{Lines: append([]Line(nil), s.snap.Lines...)}
	return &cp, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}
