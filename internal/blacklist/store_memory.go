package blacklist

import (
	"context"
	"sort"
	"sync"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// InMemoryStore keeps blacklist entries keyed by their deterministic
// storage key.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*Entry)}
}

func (s *InMemoryStore) Create(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entry.StorageKey()
	if _, exists := s.entries[key]; exists {
		return sentinel.ErrAlreadyExists
	}
	clone := *entry
	s.entries[key] = &clone
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, addr domain.Address) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[domain.StorageKey(domain.NamespaceBlacklist, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (s *InMemoryStore) Execute(_ context.Context, addr domain.Address, validate func(*Entry) error, mutate func(*Entry)) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[domain.StorageKey(domain.NamespaceBlacklist, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	work := *entry
	if err := validate(&work); err != nil {
		return nil, err
	}
	mutate(&work)

	*entry = work
	clone := work
	return &clone, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		clone := *entry
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
