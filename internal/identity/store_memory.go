package identity

import (
	"context"
	"sync"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// InMemoryStore keeps identity records keyed by their deterministic storage
// key. The single mutex gives the serialized-writer semantics the policy
// engine assumes.
type InMemoryStore struct {
	mu            sync.RWMutex
	records       map[string]*Record
	verifiedCount int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := record.StorageKey()
	if _, exists := s.records[key]; exists {
		return sentinel.ErrAlreadyExists
	}
	clone := *record
	s.records[key] = &clone
	if clone.Status == StatusVerified {
		s.verifiedCount++
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, user domain.Address) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[domain.StorageKey(domain.NamespaceIdentity, user.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InMemoryStore) Execute(_ context.Context, user domain.Address, validate func(*Record) error, mutate func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[domain.StorageKey(domain.NamespaceIdentity, user.String())]
	if !ok {
		return nil, sentinel.ErrNotFound
	}

	// Validate against a copy so a failed check leaves the record untouched.
	work := *record
	if err := validate(&work); err != nil {
		return nil, err
	}

	wasVerified := work.Status == StatusVerified
	mutate(&work)
	if isVerified := work.Status == StatusVerified; isVerified != wasVerified {
		if isVerified {
			s.verifiedCount++
		} else {
			s.verifiedCount--
		}
	}

	*record = work
	clone := work
	return &clone, nil
}

func (s *InMemoryStore) VerifiedCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verifiedCount, nil
}
