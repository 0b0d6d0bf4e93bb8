package aml

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

// PostgresAuthorityStore persists authority records in PostgreSQL.
type PostgresAuthorityStore struct {
	db *sql.DB
}

func NewPostgresAuthorityStore(db *sql.DB) *PostgresAuthorityStore {
	return &PostgresAuthorityStore{db: db}
}

const authorityColumns = `address, name, jurisdiction, powers, active, registered_at, updated_at`

func (s *PostgresAuthorityStore) Create(ctx context.Context, a *Authority) error {
	query := `
		INSERT INTO aml_authorities (` + authorityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.Address.String(), a.Name, a.Jurisdiction.String(),
		uint32(a.Powers), a.Active, a.RegisteredAt, a.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert authority record: %w", err)
	}
	return nil
}

func (s *PostgresAuthorityStore) Get(ctx context.Context, addr domain.Address) (*Authority, error) {
	query := `SELECT ` + authorityColumns + ` FROM aml_authorities WHERE address = $1`
	return scanAuthority(s.db.QueryRowContext(ctx, query, addr.String()))
}

func (s *PostgresAuthorityStore) Execute(ctx context.Context, addr domain.Address, validate func(*Authority) error, mutate func(*Authority)) (*Authority, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + authorityColumns + ` FROM aml_authorities WHERE address = $1 FOR UPDATE`
	a, err := scanAuthority(tx.QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		return nil, err
	}

	if err := validate(a); err != nil {
		return nil, err
	}
	mutate(a)

	update := `
		UPDATE aml_authorities
		SET name = $2, powers = $3, active = $4, updated_at = $5
		WHERE address = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		a.Address.String(), a.Name, uint32(a.Powers), a.Active, a.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update authority record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return a, nil
}

func scanAuthority(row rowScanner) (*Authority, error) {
	var (
		a                  Authority
		addr, jurisdiction string
		powers             uint32
	)
	err := row.Scan(&addr, &a.Name, &jurisdiction, &powers, &a.Active, &a.RegisteredAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan authority record: %w", err)
	}
	a.Address = domain.Address(addr)
	a.Jurisdiction = domain.CountryCode(jurisdiction)
	a.Powers = Power(powers)
	return &a, nil
}

// PostgresAlertStore persists alerts in PostgreSQL.
type PostgresAlertStore struct {
	db *sql.DB
}

func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

const alertColumns = `id, subject, raised_by, status, severity, description, resolution,
	created_at, updated_at, closed_at`

func (s *PostgresAlertStore) Create(ctx context.Context, alert *Alert) error {
	query := `
		INSERT INTO aml_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.Subject.String(), alert.RaisedBy.String(),
		string(alert.Status), string(alert.Severity), alert.Description,
		alert.Resolution, alert.CreatedAt, alert.UpdatedAt, alertNullTime(alert.ClosedAt),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *PostgresAlertStore) Get(ctx context.Context, id string) (*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM aml_alerts WHERE id = $1`
	return scanAlert(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresAlertStore) Execute(ctx context.Context, id string, validate func(*Alert) error, mutate func(*Alert)) (*Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + alertColumns + ` FROM aml_alerts WHERE id = $1 FOR UPDATE`
	alert, err := scanAlert(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := validate(alert); err != nil {
		return nil, err
	}
	mutate(alert)

	update := `
		UPDATE aml_alerts
		SET status = $2, severity = $3, description = $4, resolution = $5,
			updated_at = $6, closed_at = $7
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		alert.ID, string(alert.Status), string(alert.Severity),
		alert.Description, alert.Resolution, alert.UpdatedAt, alertNullTime(alert.ClosedAt),
	); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return alert, nil
}

func (s *PostgresAlertStore) ListBySubject(ctx context.Context, subject domain.Address) ([]*Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM aml_alerts WHERE subject = $1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*Alert, error) {
	var (
		alert             Alert
		subject, raisedBy string
		status, severity  string
		closedAt          sql.NullTime
	)
	err := row.Scan(
		&alert.ID, &subject, &raisedBy, &status, &severity,
		&alert.Description, &alert.Resolution, &alert.CreatedAt, &alert.UpdatedAt, &closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	alert.Subject = domain.Address(subject)
	alert.RaisedBy = domain.Address(raisedBy)
	alert.Status = AlertStatus(status)
	alert.Severity = Severity(severity)
	if closedAt.Valid {
		alert.ClosedAt = closedAt.Time
	}
	return &alert, nil
}

func alertNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
