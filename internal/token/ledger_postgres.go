package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stablegate/pkg/domain"
	dErrors "stablegate/pkg/domain-errors"
	"stablegate/pkg/platform/sentinel"
)

// PostgresLedger persists accounts and the supply counter in PostgreSQL.
// Pair operations lock both rows FOR UPDATE in address order so concurrent
// opposing transfers cannot deadlock.
type PostgresLedger struct {
	db *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const accountColumns = `address, balance, frozen, created_at, updated_at`

func (l *PostgresLedger) Account(ctx context.Context, addr domain.Address) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM token_accounts WHERE address = $1`
	return scanAccount(l.db.QueryRowContext(ctx, query, addr.String()))
}

func (l *PostgresLedger) Ensure(ctx context.Context, addr domain.Address, now time.Time) (*Account, error) {
	query := `
		INSERT INTO token_accounts (` + accountColumns + `)
		VALUES ($1, 0, TRUE, $2, $2)
		ON CONFLICT (address) DO NOTHING
	`
	if _, err := l.db.ExecContext(ctx, query, addr.String(), now); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	return l.Account(ctx, addr)
}

func (l *PostgresLedger) Execute(ctx context.Context, addr domain.Address, validate func(*Account) error, mutate func(*Account)) (*Account, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + accountColumns + ` FROM token_accounts WHERE address = $1 FOR UPDATE`
	account, err := scanAccount(tx.QueryRowContext(ctx, query, addr.String()))
	if err != nil {
		return nil, err
	}

	if err := validate(account); err != nil {
		return nil, err
	}
	mutate(account)

	if err := updateAccount(ctx, tx, account); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return account, nil
}

func (l *PostgresLedger) ExecutePair(ctx context.Context, a, b domain.Address, validate func(a, b *Account) error, mutate func(a, b *Account)) error {
	if a == b {
		return dErrors.New(dErrors.CodeInvalidInput, "pair operation requires two distinct accounts")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Lock in address order regardless of transfer direction.
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	query := `SELECT ` + accountColumns + ` FROM token_accounts WHERE address = $1 FOR UPDATE`
	accFirst, err := scanAccount(tx.QueryRowContext(ctx, query, first.String()))
	if err != nil {
		return err
	}
	accSecond, err := scanAccount(tx.QueryRowContext(ctx, query, second.String()))
	if err != nil {
		return err
	}

	accA, accB := accFirst, accSecond
	if first != a {
		accA, accB = accSecond, accFirst
	}

	if err := validate(accA, accB); err != nil {
		return err
	}
	mutate(accA, accB)

	if err := updateAccount(ctx, tx, accA); err != nil {
		return err
	}
	if err := updateAccount(ctx, tx, accB); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (l *PostgresLedger) AdjustSupply(ctx context.Context, delta int64) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO token_supply (id, supply) VALUES (1, GREATEST($1, 0))
		ON CONFLICT (id) DO UPDATE SET supply = token_supply.supply + $1
	`, delta)
	if err != nil {
		return fmt.Errorf("adjust supply: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Supply(ctx context.Context) (domain.Amount, error) {
	var supply int64
	err := l.db.QueryRowContext(ctx, `SELECT supply FROM token_supply WHERE id = 1`).Scan(&supply)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load supply: %w", err)
	}
	return domain.Amount(supply), nil
}

func updateAccount(ctx context.Context, tx *sql.Tx, account *Account) error {
	update := `
		UPDATE token_accounts
		SET balance = $2, frozen = $3, updated_at = $4
		WHERE address = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		account.Address.String(), int64(account.Balance), account.Frozen, account.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func scanAccount(row interface{ Scan(dest ...any) error }) (*Account, error) {
	var (
		account Account
		addr    string
		balance int64
	)
	err := row.Scan(&addr, &balance, &account.Frozen, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	account.Address = domain.Address(addr)
	account.Balance = domain.Amount(balance)
	return &account, nil
}
