package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"stablegate/pkg/domain"
	"stablegate/pkg/platform/sentinel"
)

// PostgresStore persists identity records in PostgreSQL. Execute serializes
// concurrent transitions on the same record with SELECT ... FOR UPDATE, so
// each mutation sees the fully committed state of the prior one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const identityColumns = `user_address, status, level, required_level, country, routing_code,
	iban_hash, provider, business, registered_at, verified_at, expires_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO kyc_users (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.User.String(),
		record.Status.String(),
		uint8(record.Level),
		uint8(record.RequiredLevel),
		record.Country.String(),
		record.RoutingCode,
		record.IBANHash,
		record.Provider,
		record.Business,
		record.RegisteredAt,
		nullTime(record.VerifiedAt),
		nullTime(record.ExpiresAt),
		record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert identity record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, user domain.Address) (*Record, error) {
	query := `SELECT ` + identityColumns + ` FROM kyc_users WHERE user_address = $1`
	return scanRecord(s.db.QueryRowContext(ctx, query, user.String()))
}

func (s *PostgresStore) Execute(ctx context.Context, user domain.Address, validate func(*Record) error, mutate func(*Record)) (*Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + identityColumns + ` FROM kyc_users WHERE user_address = $1 FOR UPDATE`
	record, err := scanRecord(tx.QueryRowContext(ctx, query, user.String()))
	if err != nil {
		return nil, err
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	update := `
		UPDATE kyc_users
		SET status = $2, level = $3, required_level = $4, provider = $5,
			business = $6, verified_at = $7, expires_at = $8, updated_at = $9
		WHERE user_address = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		record.User.String(),
		record.Status.String(),
		uint8(record.Level),
		uint8(record.RequiredLevel),
		record.Provider,
		record.Business,
		nullTime(record.VerifiedAt),
		nullTime(record.ExpiresAt),
		record.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update identity record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return record, nil
}

// VerifiedCount derives the counter from the records themselves, which keeps
// it correct by construction under concurrent writers.
func (s *PostgresStore) VerifiedCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM kyc_users WHERE status = $1`, StatusVerified.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count verified users: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record                Record
		user, status, country string
		level, requiredLevel  uint8
		verifiedAt, expiresAt sql.NullTime
	)
	err := row.Scan(
		&user, &status, &level, &requiredLevel, &country,
		&record.RoutingCode, &record.IBANHash, &record.Provider, &record.Business,
		&record.RegisteredAt, &verifiedAt, &expiresAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity record: %w", err)
	}
	record.User = domain.Address(user)
	record.Status = KycStatus(status)
	record.Level = domain.VerificationLevel(level)
	record.RequiredLevel = domain.VerificationLevel(requiredLevel)
	record.Country = domain.CountryCode(country)
	if verifiedAt.Valid {
		record.VerifiedAt = verifiedAt.Time
	}
	if expiresAt.Valid {
		record.ExpiresAt = expiresAt.Time
	}
	return &record, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
