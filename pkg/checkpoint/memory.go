package checkpoint

import (
	"sort"
	"sync"
	"time"
)

// memoryStore implements Store using an in-memory map.
// Useful for testing.
type memoryStore struct {
	checkpoints map[string]Checkpoint
	mu          sync.RWMutex
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() Store {
	return &memoryStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

// Get implements Store.Get.
func (s *memoryStore) Get(key string) (*Checkpoint, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp.Roots = append([]string(nil), cp.Roots...)
	return &cp, nil
}

// Save implements Store.Save.
func (s *memoryStore) Save(cp *Checkpoint) error {
	if cp == nil {
		return ErrInvalidCheckpoint
	}
	if cp.Key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp.UpdatedAt = time.Now()
	stored := *cp
	stored.Roots = append([]string(nil), cp.Roots...)
	s.checkpoints[cp.Key] = stored
	return nil
}

// Delete implements Store.Delete.
func (s *memoryStore) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[key]; !ok {
		return ErrNotFound
	}
	delete(s.checkpoints, key)
	return nil
}

// List implements Store.List.
func (s *memoryStore) List() ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		c := cp
		c.Roots = append([]string(nil), cp.Roots...)
		list = append(list, &c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list, nil
}

// Close implements Store.Close.
func (s *memoryStore) Close() error {
	return nil
}
