package provider

import (
	"context"
	"sort"
	"sync"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// InMemoryStore keeps provider records keyed by their deterministic storage
// key.
type InMemoryStore struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{providers: make(map[string]*Provider)}
}

func (s *InMemoryStore) Create(_ context.Context, p *Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.StorageKey()
	if _, exists := s.providers[key]; exists {
		return sentinel.ErrAlreadyExists
	}
	s.providers[key] = cloneProvider(p)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, addr domain.Address) (*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[domain.StorageKey(domain.NamespaceProvider, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneProvider(p), nil
}

func (s *InMemoryStore) Execute(_ context.Context, addr domain.Address, validate func(*Provider) error, mutate func(*Provider)) (*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[domain.StorageKey(domain.NamespaceProvider, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	work := cloneProvider(p)
	if err := validate(work); err != nil {
		return nil, err
	}
	mutate(work)

	*p = *work
	return cloneProvider(work), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Provider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, cloneProvider(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// cloneProvider deep-copies a record; the public key slice must not be
// shared with callers.
func cloneProvider(p *Provider) *Provider {
	clone := *p
	if p.PublicKey != nil {
		clone.PublicKey = append([]byte(nil), p.PublicKey...)
	}
	return &clone
}
