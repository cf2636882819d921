package database

import (
	"sync"

	"github.com/classlens/classlens/internal/embedding"
)

// IndexSet holds one duplicate index per embedding version. A nil IndexSet is
// valid and answers every lookup with nil, which disables duplicate checks.
type IndexSet struct {
	mu      sync.RWMutex
	indexes map[embedding.Version]*DuplicateIndex
}

// NewIndexSet creates an empty index set.
func NewIndexSet() *IndexSet {
	return &IndexSet{indexes: make(map[embedding.Version]*DuplicateIndex)}
}

// Put registers an index under its version, replacing any previous one.
func (s *IndexSet) Put(index *DuplicateIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[index.Version()] = index
}

// For returns the index for the given version, or nil when none exists.
func (s *IndexSet) For(version embedding.Version) *DuplicateIndex {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexes[version]
}

// All returns every registered index.
func (s *IndexSet) All() []*DuplicateIndex {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*DuplicateIndex, 0, len(s.indexes))
	for _, index := range s.indexes {
		all = append(all, index)
	}
	return all
}
