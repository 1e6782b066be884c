package branch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"idurar.org/internal/domain"
)

var errNotFound = fmt.Errorf("%w: Branch not found", domain.ErrNotFound)

// InMemory is a Store whose Atomic section holds one mutex for its whole duration.
type InMemory struct {
	mu       sync.RWMutex
	branches map[string]Branch
}

// NewInMemory returns an empty store.
func NewInMemory() *InMemory {
	return &InMemory{branches: make(map[string]Branch)}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Atomic(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on a copy so a failing fn leaves the set untouched.
	staged := make(map[string]Branch, len(s.branches))
	for k, v := range s.branches {
		staged[k] = v
	}
	if err := fn(memTx{branches: staged}); err != nil {
		return err
	}
	s.branches = staged
	return nil
}

func (s *InMemory) Get(_ context.Context, id string) (Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[id]
	if !ok || b.Removed {
		return Branch{}, errNotFound
	}
	return b, nil
}

func (s *InMemory) List(_ context.Context, offset, limit int) ([]Branch, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]Branch, 0, len(s.branches))
	for _, b := range s.branches {
		if !b.Removed {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	count := len(all)
	if offset >= count {
		return []Branch{}, count, nil
	}
	end := offset + limit
	if end > count {
		end = count
	}
	return append([]Branch(nil), all[offset:end]...), count, nil
}

func (s *InMemory) Default(_ context.Context) (Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.branches {
		if !b.Removed && b.IsDefault {
			return b, nil
		}
	}
	return Branch{}, errNotFound
}

// Snapshot returns every stored branch, removed ones included.
func (s *InMemory) Snapshot() []Branch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, b)
	}
	return out
}

type memTx struct {
	branches map[string]Branch
}

func (t memTx) Get(_ context.Context, id string) (Branch, error) {
	b, ok := t.branches[id]
	if !ok || b.Removed {
		return Branch{}, errNotFound
	}
	return b, nil
}

func (t memTx) CountActive(context.Context) (int, error) {
	n := 0
	for _, b := range t.branches {
		if !b.Removed {
			n++
		}
	}
	return n, nil
}

func (t memTx) ClearDefaults(_ context.Context, exceptID string) error {
	for id, b := range t.branches {
		if id != exceptID && b.IsDefault {
			b.IsDefault = false
			t.branches[id] = b
		}
	}
	return nil
}

func (t memTx) Insert(_ context.Context, b Branch) error {
	t.branches[b.ID] = b
	return nil
}

func (t memTx) Save(_ context.Context, b Branch) error {
	if _, ok := t.branches[b.ID]; !ok {
		return errNotFound
	}
	t.branches[b.ID] = b
	return nil
}
