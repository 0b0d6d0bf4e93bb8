package provider

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// PostgresStore persists provider records in PostgreSQL. Execute serializes
// concurrent mutations on the same provider with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const providerColumns = `address, name, public_key, jurisdiction, max_level, trust_score,
	active, accepted_count, registered_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *Provider) error {
	query := `
		INSERT INTO kyc_providers (` + providerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.Address.String(),
		p.Name,
		[]byte(p.PublicKey),
		p.Jurisdiction.String(),
		uint8(p.MaxLevel),
		p.TrustScore,
		p.Active,
		p.AcceptedCount,
		p.RegisteredAt,
		p.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert provider record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, addr domain.Address) (*Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM kyc_providers WHERE address = $1`
	return scanProvider(s.db.QueryRowContext(ctx, query, addr.String()))
}

func (s *PostgresStore) Execute(ctx context.Context, addr domain.Address, validate func(*Provider) error, mutate func(*Provider)) (*Provider, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + providerColumns + ` FROM kyc_providers WHERE address = $1 FOR UPDATE`
	p, err := scanProvider(tx.QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		return nil, err
	}

	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)

	update := `
		UPDATE kyc_providers
		SET name = $2, public_key = $3, max_level = $4, trust_score = $5,
			active = $6, accepted_count = $7, updated_at = $8
		WHERE address = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		p.Address.String(),
		p.Name,
		[]byte(p.PublicKey),
		uint8(p.MaxLevel),
		p.TrustScore,
		p.Active,
		p.AcceptedCount,
		p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update provider record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM kyc_providers ORDER BY address`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return out, nil
}

func scanProvider(row rowScanner) (*Provider, error) {
	var (
		p                  Provider
		addr, jurisdiction string
		publicKey          []byte
		maxLevel           uint8
	)
	err := row.Scan(
		&addr, &p.Name, &publicKey, &jurisdiction, &maxLevel,
		&p.TrustScore, &p.Active, &p.AcceptedCount, &p.RegisteredAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan provider record: %w", err)
	}
	p.Address = domain.Address(addr)
	p.PublicKey = ed25519.PublicKey(publicKey)
	p.Jurisdiction = domain.CountryCode(jurisdiction)
	p.MaxLevel = domain.VerificationLevel(maxLevel)
	return &p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
