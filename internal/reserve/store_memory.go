package reserve

import (
	"context"
	"sort"
	"sync"

	"stablegate/pkg/platform/sentinel"
)

// InMemoryStateStore holds the reserve state behind a mutex.
type InMemoryStateStore struct {
	mu    sync.RWMutex
	state *State
}

func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{}
}

func (s *InMemoryStateStore) Get(_ context.Context) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.state
	return &clone, nil
}

func (s *InMemoryStateStore) Execute(_ context.Context, validate func(*State) error, mutate func(*State)) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		s.state = &State{RatioRequirement: DefaultRatioRequirement}
	}

	work := *s.state
	if err := validate(&work); err != nil {
		return nil, err
	}
	mutate(&work)

	*s.state = work
	clone := work
	return &clone, nil
}

// InMemoryQueueStore keeps redemption entries keyed by their storage key and
// hands out per-lane sequence numbers.
type InMemoryQueueStore struct {
	mu        sync.RWMutex
	entries   map[string]*Redemption
	sequences map[Lane]uint64
}

func NewInMemoryQueueStore() *InMemoryQueueStore {
	return &InMemoryQueueStore{
		entries:   make(map[string]*Redemption),
		sequences: make(map[Lane]uint64),
	}
}

func (s *InMemoryQueueStore) Create(_ context.Context, r *Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.StorageKey()
	if _, ok := s.entries[key]; ok {
		return sentinel.ErrAlreadyExists
	}
	clone := *r
	s.entries[key] = &clone
	return nil
}

func (s *InMemoryQueueStore) Get(_ context.Context, id string) (*Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[(&Redemption{ID: id}).StorageKey()]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (s *InMemoryQueueStore) Execute(_ context.Context, id string, validate func(*Redemption) error, mutate func(*Redemption)) (*Redemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[(&Redemption{ID: id}).StorageKey()]
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

func (s *InMemoryQueueStore) NextPending(ctx context.Context, lane Lane) (*Redemption, error) {
	pending, err := s.ListPending(ctx, lane)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return pending[0], nil
}

func (s *InMemoryQueueStore) ListPending(_ context.Context, lane Lane) ([]*Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []*Redemption
	for _, entry := range s.entries {
		if entry.Lane != lane || !entry.Pending() {
			continue
		}
		clone := *entry
		pending = append(pending, &clone)
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Sequence < pending[j].Sequence
	})
	return pending, nil
}

func (s *InMemoryQueueStore) NextSequence(_ context.Context, lane Lane) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[lane]++
	return s.sequences[lane], nil
}
