package blacklist

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

// PostgresStore persists blacklist entries in PostgreSQL. Execute serializes
// concurrent mutations on the same address with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const blacklistColumns = `address, reason, action, evidence_ref, alert_id, added_by,
	active, expires_at, created_at, updated_at, clear_reason`

func (s *PostgresStore) Create(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO blacklist_entries (` + blacklistColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		entry.Address.String(),
		string(entry.Reason),
		string(entry.Action),
		entry.EvidenceRef,
		entry.AlertID,
		entry.AddedBy.String(),
		entry.Active,
		nullTime(entry.ExpiresAt),
		entry.CreatedAt,
		entry.UpdatedAt,
		entry.ClearReason,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert blacklist entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, addr domain.Address) (*Entry, error) {
	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries WHERE address = $1`
	return scanEntry(s.db.QueryRowContext(ctx, query, addr.String()))
}

func (s *PostgresStore) Execute(ctx context.Context, addr domain.Address, validate func(*Entry) error, mutate func(*Entry)) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries WHERE address = $1 FOR UPDATE`
	entry, err := scanEntry(tx.QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		return nil, err
	}

	if err := validate(entry); err != nil {
		return nil, err
	}
	mutate(entry)

	update := `
		UPDATE blacklist_entries
		SET reason = $2, action = $3, evidence_ref = $4, alert_id = $5,
			added_by = $6, active = $7, expires_at = $8, updated_at = $9,
			clear_reason = $10
		WHERE address = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		entry.Address.String(),
		string(entry.Reason),
		string(entry.Action),
		entry.EvidenceRef,
		entry.AlertID,
		entry.AddedBy.String(),
		entry.Active,
		nullTime(entry.ExpiresAt),
		entry.UpdatedAt,
		entry.ClearReason,
	); err != nil {
		return nil, fmt.Errorf("update blacklist entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Entry, error) {
	query := `SELECT ` + blacklistColumns + ` FROM blacklist_entries ORDER BY address`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list blacklist entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list blacklist entries: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry                Entry
		addr, reason, action string
		addedBy              string
		expiresAt            sql.NullTime
	)
	err := row.Scan(
		&addr, &reason, &action, &entry.EvidenceRef, &entry.AlertID, &addedBy,
		&entry.Active, &expiresAt, &entry.CreatedAt, &entry.UpdatedAt, &entry.ClearReason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan blacklist entry: %w", err)
	}
	entry.Address = domain.Address(addr)
	entry.Reason = Reason(reason)
	entry.Action = Action(action)
	entry.AddedBy = domain.Address(addedBy)
	if expiresAt.Valid {
		entry.ExpiresAt = expiresAt.Time
	}
	return &entry, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
