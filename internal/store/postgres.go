// Package store persists indexer state and discovered contract
// deployments to Postgres, using the fabric's sqlx + lib/pq shape.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/DimaJoyti/contractfabric/internal/idx"
	"github.com/DimaJoyti/contractfabric/pkg/errs"
	"github.com/DimaJoyti/contractfabric/pkg/logger"
)

// indexerStateRow mirrors the indexer_state table.
type indexerStateRow struct {
	Network              string         `db:"network"`
	LastIndexedLedger    int64          `db:"last_indexed_ledger_height"`
	LastCheckpointLedger int64          `db:"last_checkpoint_ledger_height"`
	ConsecutiveFailures  int32          `db:"consecutive_failures"`
	IndexedAt            sql.NullTime   `db:"indexed_at"`
	CheckpointAt         sql.NullTime   `db:"checkpoint_at"`
	ErrorMessage         sql.NullString `db:"error_message"`
}

// Postgres is the Postgres-backed implementation of idx.Store.
type Postgres struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgres wraps an already-connected sqlx.DB.
func NewPostgres(db *sqlx.DB, log *logger.Logger) *Postgres {
	return &Postgres{db: db, log: log.Named("store")}
}

// Open connects to Postgres at dsn and applies the given connection-pool
// limits (a non-positive limit leaves the driver default). cmd/indexer is
// its caller.
func Open(dsn string, maxOpenConns, maxIdleConns int) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	return db, nil
}

// GetState loads the single state row for network. Returns a
// errs.KindNotFound error when no row exists yet.
func (p *Postgres) GetState(ctx context.Context, network idx.Network) (idx.State, error) {
	const query = `
		SELECT network, last_indexed_ledger_height, last_checkpoint_ledger_height,
		       consecutive_failures, indexed_at, checkpoint_at, error_message
		FROM indexer_state
		WHERE network = $1
	`
	var row indexerStateRow
	if err := p.db.GetContext(ctx, &row, query, string(network)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idx.State{}, errs.New(errs.KindNotFound, "store.state_not_found", "no indexer state for network")
		}
		return idx.State{}, fmt.Errorf("get indexer state: %w", err)
	}

	return idx.State{
		Network:              idx.Network(row.Network),
		LastIndexedLedger:    row.LastIndexedLedger,
		LastCheckpointLedger: row.LastCheckpointLedger,
		ConsecutiveFailures:  row.ConsecutiveFailures,
		IndexedAt:            row.IndexedAt.Time,
		CheckpointAt:         row.CheckpointAt.Time,
		ErrorMessage:         row.ErrorMessage.String,
	}, nil
}

// SaveState upserts the state row for state.Network.
func (p *Postgres) SaveState(ctx context.Context, state idx.State) error {
	const query = `
		INSERT INTO indexer_state
			(network, last_indexed_ledger_height, last_checkpoint_ledger_height,
			 consecutive_failures, indexed_at, checkpoint_at, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (network) DO UPDATE SET
			last_indexed_ledger_height = EXCLUDED.last_indexed_ledger_height,
			last_checkpoint_ledger_height = EXCLUDED.last_checkpoint_ledger_height,
			consecutive_failures = EXCLUDED.consecutive_failures,
			indexed_at = EXCLUDED.indexed_at,
			checkpoint_at = EXCLUDED.checkpoint_at,
			error_message = EXCLUDED.error_message
	`
	_, err := p.db.ExecContext(ctx, query,
		string(state.Network), state.LastIndexedLedger, state.LastCheckpointLedger,
		state.ConsecutiveFailures, nullTime(state.IndexedAt), nullTime(state.CheckpointAt), state.ErrorMessage)
	if err != nil {
		p.log.Error(fmt.Sprintf("failed to save indexer state: %v", err))
		return fmt.Errorf("save indexer state: %w", err)
	}
	return nil
}

// UpsertDeployment inserts a contract deployment, absorbing duplicates on
// (contract_id, network) as a non-error. Returns false when the row
// already existed.
func (p *Postgres) UpsertDeployment(ctx context.Context, d idx.Deployment) (bool, error) {
	const query = `
		INSERT INTO contracts (contract_id, network, publisher_id, is_verified, op_id, tx_id, ledger_sequence)
		VALUES ($1, $2, $3, false, $4, $5, $6)
		ON CONFLICT (contract_id, network) DO NOTHING
	`
	res, err := p.db.ExecContext(ctx, query, d.ContractID, string(d.Network), d.Deployer, d.OpID, d.TxID, d.LedgerSequence)
	if err != nil {
		return false, fmt.Errorf("upsert contract deployment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert contract deployment: %w", err)
	}
	return affected > 0, nil
}

// UpsertPublisher records a deployer address, one row per unique address.
func (p *Postgres) UpsertPublisher(ctx context.Context, _ idx.Network, address string) error {
	const query = `
		INSERT INTO publishers (stellar_address)
		VALUES ($1)
		ON CONFLICT (stellar_address) DO NOTHING
	`
	_, err := p.db.ExecContext(ctx, query, address)
	if err != nil {
		return fmt.Errorf("upsert publisher: %w", err)
	}
	return nil
}

func nullTime(t interface{ IsZero() bool }) any {
	if t.IsZero() {
		return nil
	}
	return t
}
