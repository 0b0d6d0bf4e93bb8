package aml

import (
	"context"
	"sort"
	"sync"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// InMemoryAuthorityStore keeps authority records keyed by their
// deterministic storage key.
type InMemoryAuthorityStore struct {
	mu          sync.RWMutex
	authorities map[string]*Authority
}

func NewInMemoryAuthorityStore() *InMemoryAuthorityStore {
	return &InMemoryAuthorityStore{authorities: make(map[string]*Authority)}
}

func (s *InMemoryAuthorityStore) Create(_ context.Context, a *Authority) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := a.StorageKey()
	if _, exists := s.authorities[key]; exists {
		return sentinel.ErrAlreadyExists
	}
	clone := *a
	s.authorities[key] = &clone
	return nil
}

func (s *InMemoryAuthorityStore) Get(_ context.Context, addr domain.Address) (*Authority, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.authorities[domain.StorageKey(domain.NamespaceAuthority, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *InMemoryAuthorityStore) Execute(_ context.Context, addr domain.Address, validate func(*Authority) error, mutate func(*Authority)) (*Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.authorities[domain.StorageKey(domain.NamespaceAuthority, addr.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	work := *a
	if err := validate(&work); err != nil {
		return nil, err
	}
	mutate(&work)

	*a = work
	clone := work
	return &clone, nil
}

// InMemoryAlertStore keeps alerts keyed by their deterministic storage key.
type InMemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
}

func NewInMemoryAlertStore() *InMemoryAlertStore {
	return &InMemoryAlertStore{alerts: make(map[string]*Alert)}
}

func (s *InMemoryAlertStore) Create(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := alert.StorageKey()
	if _, exists := s.alerts[key]; exists {
		return sentinel.ErrAlreadyExists
	}
	clone := *alert
	s.alerts[key] = &clone
	return nil
}

func (s *InMemoryAlertStore) Get(_ context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[domain.StorageKey(domain.NamespaceAlert, id)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *alert
	return &clone, nil
}

func (s *InMemoryAlertStore) Execute(_ context.Context, id string, validate func(*Alert) error, mutate func(*Alert)) (*Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[domain.StorageKey(domain.NamespaceAlert, id)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	work := *alert
	if err := validate(&work); err != nil {
		return nil, err
	}
	mutate(&work)

	*alert = work
	clone := work
	return &clone, nil
}

func (s *InMemoryAlertStore) ListBySubject(_ context.Context, subject domain.Address) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Alert
	for _, alert := range s.alerts {
		if alert.Subject == subject {
			clone := *alert
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
