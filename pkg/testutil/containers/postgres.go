//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema is the full DDL. Integration tests apply it once per container; a
// real deployment runs it through migrations.
const schema = `
CREATE TABLE IF NOT EXISTS kyc_users (
	user_address   TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	level          SMALLINT NOT NULL,
	required_level SMALLINT NOT NULL,
	country        TEXT NOT NULL,
	routing_code   TEXT NOT NULL,
	iban_hash      TEXT NOT NULL,
	provider       TEXT NOT NULL DEFAULT '',
	business       BOOLEAN NOT NULL DEFAULT FALSE,
	registered_at  TIMESTAMPTZ NOT NULL,
	verified_at    TIMESTAMPTZ,
	expires_at     TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS kyc_providers (
	address        TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	public_key     BYTEA NOT NULL,
	jurisdiction   TEXT NOT NULL,
	max_level      SMALLINT NOT NULL,
	trust_score    SMALLINT NOT NULL,
	active         BOOLEAN NOT NULL,
	accepted_count BIGINT NOT NULL DEFAULT 0,
	registered_at  TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS blacklist_entries (
	address      TEXT PRIMARY KEY,
	reason       TEXT NOT NULL,
	action       TEXT NOT NULL,
	evidence_ref TEXT NOT NULL DEFAULT '',
	alert_id     TEXT NOT NULL DEFAULT '',
	added_by     TEXT NOT NULL,
	active       BOOLEAN NOT NULL,
	expires_at   TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	clear_reason TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS aml_authorities (
	address       TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	jurisdiction  TEXT NOT NULL,
	powers        BIGINT NOT NULL,
	active        BOOLEAN NOT NULL,
	registered_at TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS aml_alerts (
	id          TEXT PRIMARY KEY,
	subject     TEXT NOT NULL,
	raised_by   TEXT NOT NULL,
	status      TEXT NOT NULL,
	severity    TEXT NOT NULL,
	description TEXT NOT NULL,
	resolution  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS aml_alerts_subject_idx ON aml_alerts (subject, created_at DESC);

CREATE TABLE IF NOT EXISTS mint_policy (
	id       SMALLINT PRIMARY KEY,
	document JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS token_accounts (
	address    TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL DEFAULT 0,
	frozen     BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS token_supply (
	id     SMALLINT PRIMARY KEY,
	supply BIGINT NOT NULL CHECK (supply >= 0)
);

CREATE TABLE IF NOT EXISTS reserve_state (
	id                  SMALLINT PRIMARY KEY,
	proven_reserves     BIGINT NOT NULL DEFAULT 0,
	pending_redemptions BIGINT NOT NULL DEFAULT 0,
	ratio_requirement   BIGINT NOT NULL,
	proof_root          TEXT NOT NULL DEFAULT '',
	proof_cid           TEXT NOT NULL DEFAULT '',
	proof_auditor       TEXT NOT NULL DEFAULT '',
	proof_updated_at    TIMESTAMPTZ,
	last_reference      TEXT NOT NULL DEFAULT '',
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS redemptions (
	id               TEXT PRIMARY KEY,
	requester        TEXT NOT NULL,
	amount           BIGINT NOT NULL,
	bank_details     TEXT NOT NULL,
	lane             TEXT NOT NULL,
	status           TEXT NOT NULL,
	approved_by      TEXT NOT NULL DEFAULT '',
	payout_reference TEXT NOT NULL DEFAULT '',
	sequence         BIGINT NOT NULL,
	requested_at     TIMESTAMPTZ NOT NULL,
	approved_at      TIMESTAMPTZ,
	processed_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS redemptions_lane_idx ON redemptions (lane, sequence);

CREATE TABLE IF NOT EXISTS redemption_sequences (
	lane     TEXT PRIMARY KEY,
	sequence BIGINT NOT NULL
);
`

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	URL       string
}

// NewPostgresContainer starts a PostgreSQL container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stablegate"),
		tcpostgres.WithUsername("stablegate"),
		tcpostgres.WithPassword("stablegate"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	pc := &PostgresContainer{
		Container: container,
		DB:        db,
		URL:       url,
	}
	t.Cleanup(func() { pc.Terminate(t) })
	return pc
}

// TruncateTables empties the given tables. Use between tests for isolation.
func (pc *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := pc.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

// Terminate closes the connection and stops the container.
func (pc *PostgresContainer) Terminate(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_ = pc.DB.Close()
	if err := pc.Container.Terminate(ctx); err != nil {
		t.Logf("failed to terminate postgres container: %v", err)
	}
}
