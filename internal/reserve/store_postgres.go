package reserve

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

// PostgresStateStore keeps the singleton reserve state as one row. Execute
// takes a row lock so mint checks and deposit logging serialize on the same
// counters.
type PostgresStateStore struct {
	db *sql.DB
}

func NewPostgresState(db *sql.DB) *PostgresStateStore {
	return &PostgresStateStore{db: db}
}

const stateColumns = `proven_reserves, pending_redemptions, ratio_requirement,
	proof_root, proof_cid, proof_auditor, proof_updated_at, last_reference, updated_at`

func (s *PostgresStateStore) Get(ctx context.Context) (*State, error) {
	query := `SELECT ` + stateColumns + ` FROM reserve_state WHERE id = 1`
	return scanState(s.db.QueryRowContext(ctx, query))
}

func (s *PostgresStateStore) Execute(ctx context.Context, validate func(*State) error, mutate func(*State)) (*State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `
		INSERT INTO reserve_state (id, ratio_requirement, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, insert, DefaultRatioRequirement); err != nil {
		return nil, fmt.Errorf("seed reserve state: %w", err)
	}

	query := `SELECT ` + stateColumns + ` FROM reserve_state WHERE id = 1 FOR UPDATE`
	state, err := scanState(tx.QueryRowContext(ctx, query))
	if err != nil {
		return nil, err
	}

	if err := validate(state); err != nil {
		return nil, err
	}
	mutate(state)

	update := `
		UPDATE reserve_state
		SET proven_reserves = $1, pending_redemptions = $2, ratio_requirement = $3,
			proof_root = $4, proof_cid = $5, proof_auditor = $6, proof_updated_at = $7,
			last_reference = $8, updated_at = $9
		WHERE id = 1
	`
	if _, err := tx.ExecContext(ctx, update,
		int64(state.ProvenReserves),
		int64(state.PendingRedemptions),
		state.RatioRequirement,
		state.ProofRoot,
		state.ProofCID,
		state.ProofAuditor,
		nullTime(state.ProofUpdatedAt),
		state.LastReference,
		state.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update reserve state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return state, nil
}

func scanState(row *sql.Row) (*State, error) {
	var (
		state           State
		proven, pending int64
		proofUpdatedAt  sql.NullTime
	)
	err := row.Scan(
		&proven,
		&pending,
		&state.RatioRequirement,
		&state.ProofRoot,
		&state.ProofCID,
		&state.ProofAuditor,
		&proofUpdatedAt,
		&state.LastReference,
		&state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan reserve state: %w", err)
	}
	state.ProvenReserves = domain.Amount(proven)
	state.PendingRedemptions = domain.Amount(pending)
	if proofUpdatedAt.Valid {
		state.ProofUpdatedAt = proofUpdatedAt.Time
	}
	return &state, nil
}

// PostgresQueueStore persists redemption entries; per-lane ordering comes
// from the sequence column.
type PostgresQueueStore struct {
	db *sql.DB
}

func NewPostgresQueue(db *sql.DB) *PostgresQueueStore {
	return &PostgresQueueStore{db: db}
}

const redemptionColumns = `id, requester, amount, bank_details, lane, status,
	approved_by, payout_reference, sequence, requested_at, approved_at, processed_at`

func (s *PostgresQueueStore) Create(ctx context.Context, r *Redemption) error {
	query := `
		INSERT INTO redemptions (` + redemptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.Requester.String(),
		int64(r.Amount),
		r.BankDetails,
		string(r.Lane),
		string(r.Status),
		r.ApprovedBy.String(),
		r.PayoutReference,
		r.Sequence,
		r.RequestedAt,
		nullTime(r.ApprovedAt),
		nullTime(r.ProcessedAt),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func (s *PostgresQueueStore) Get(ctx context.Context, id string) (*Redemption, error) {
	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE id = $1`
	return scanRedemption(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresQueueStore) Execute(ctx context.Context, id string, validate func(*Redemption) error, mutate func(*Redemption)) (*Redemption, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + redemptionColumns + ` FROM redemptions WHERE id = $1 FOR UPDATE`
	entry, err := scanRedemption(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := validate(entry); err != nil {
		return nil, err
	}
	mutate(entry)

	update := `
		UPDATE redemptions
		SET status = $2, approved_by = $3, payout_reference = $4,
			approved_at = $5, processed_at = $6
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		entry.ID,
		string(entry.Status),
		entry.ApprovedBy.String(),
		entry.PayoutReference,
		nullTime(entry.ApprovedAt),
		nullTime(entry.ProcessedAt),
	); err != nil {
		return nil, fmt.Errorf("update redemption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return entry, nil
}

func (s *PostgresQueueStore) NextPending(ctx context.Context, lane Lane) (*Redemption, error) {
	query := `
		SELECT ` + redemptionColumns + ` FROM redemptions
		WHERE lane = $1 AND status <> $2
		ORDER BY sequence ASC
		LIMIT 1
	`
	return scanRedemption(s.db.QueryRowContext(ctx, query, string(lane), string(StatusProcessed)))
}

func (s *PostgresQueueStore) ListPending(ctx context.Context, lane Lane) ([]*Redemption, error) {
	query := `
		SELECT ` + redemptionColumns + ` FROM redemptions
		WHERE lane = $1 AND status <> $2
		ORDER BY sequence ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(lane), string(StatusProcessed))
	if err != nil {
		return nil, fmt.Errorf("list pending redemptions: %w", err)
	}
	defer rows.Close()

	var pending []*Redemption
	for rows.Next() {
		entry, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate redemptions: %w", err)
	}
	return pending, nil
}

func (s *PostgresQueueStore) NextSequence(ctx context.Context, lane Lane) (uint64, error) {
	query := `
		INSERT INTO redemption_sequences (lane, sequence)
		VALUES ($1, 1)
		ON CONFLICT (lane) DO UPDATE SET sequence = redemption_sequences.sequence + 1
		RETURNING sequence
	`
	var sequence uint64
	if err := s.db.QueryRowContext(ctx, query, string(lane)).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("next redemption sequence: %w", err)
	}
	return sequence, nil
}

func scanRedemption(row interface{ Scan(dest ...any) error }) (*Redemption, error) {
	var (
		entry                 Redemption
		requester, approvedBy string
		amount                int64
		approvedAt            sql.NullTime
		processedAt           sql.NullTime
	)
	err := row.Scan(
		&entry.ID,
		&requester,
		&amount,
		&entry.BankDetails,
		(*string)(&entry.Lane),
		(*string)(&entry.Status),
		&approvedBy,
		&entry.PayoutReference,
		&entry.Sequence,
		&entry.RequestedAt,
		&approvedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan redemption: %w", err)
	}
	entry.Requester = domain.Address(requester)
	entry.ApprovedBy = domain.Address(approvedBy)
	entry.Amount = domain.Amount(amount)
	if approvedAt.Valid {
		entry.ApprovedAt = approvedAt.Time
	}
	if processedAt.Valid {
		entry.ProcessedAt = processedAt.Time
	}
	return &entry, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
