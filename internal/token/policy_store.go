package token

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// InMemoryPolicyStore holds the policy record under a mutex.
type InMemoryPolicyStore struct {
	mu     sync.RWMutex
	policy *Policy
}

func NewInMemoryPolicyStore() *InMemoryPolicyStore {
	return &InMemoryPolicyStore{}
}

func (s *InMemoryPolicyStore) Get(_ context.Context) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.policy == nil {
		return nil, sentinel.ErrNotFound
	}
	return clonePolicy(s.policy), nil
}

func (s *InMemoryPolicyStore) Save(_ context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = clonePolicy(p)
	return nil
}

func clonePolicy(p *Policy) *Policy {
	clone := *p
	clone.Ceilings = make(map[domain.VerificationLevel]domain.Amount, len(p.Ceilings))
	for level, ceiling := range p.Ceilings {
		clone.Ceilings[level] = ceiling
	}
	return &clone
}

// PostgresPolicyStore keeps the policy as a single JSONB row. The policy is
// one document read on every decision and rewritten rarely; a normalized
// schema buys nothing here.
type PostgresPolicyStore struct {
	db *sql.DB
}

func NewPostgresPolicyStore(db *sql.DB) *PostgresPolicyStore {
	return &PostgresPolicyStore{db: db}
}

func (s *PostgresPolicyStore) Get(ctx context.Context) (*Policy, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM mint_policy WHERE id = 1`,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load mint policy: %w", err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode mint policy: %w", err)
	}
	return &p, nil
}

func (s *PostgresPolicyStore) Save(ctx context.Context, p *Policy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode mint policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mint_policy (id, document) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document
	`, raw)
	if err != nil {
		return fmt.Errorf("save mint policy: %w", err)
	}
	return nil
}
