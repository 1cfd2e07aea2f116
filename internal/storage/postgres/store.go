package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swirlPool/internal/ledger"
	"swirlPool/internal/storage"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_address TEXT PRIMARY KEY,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	reserve0 NUMERIC NOT NULL,
	reserve1 NUMERIC NOT NULL,
	balance0 NUMERIC NOT NULL,
	balance1 NUMERIC NOT NULL,
	price0_cumulative_last NUMERIC NOT NULL,
	price1_cumulative_last NUMERIC NOT NULL,
	block_timestamp_last BIGINT NOT NULL,
	token0_global_flow_rate NUMERIC NOT NULL,
	token1_global_flow_rate NUMERIC NOT NULL,
	total_liquidity NUMERIC NOT NULL,
	journal_index BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS flow_records (
	pool_address TEXT NOT NULL REFERENCES pools (pool_address),
	account TEXT NOT NULL,
	asset TEXT NOT NULL,
	flow_rate NUMERIC NOT NULL,
	active BOOLEAN NOT NULL,
	executed_at BIGINT NOT NULL,
	price_cumulative_start NUMERIC NOT NULL,
	deposit NUMERIC NOT NULL,
	PRIMARY KEY (pool_address, account)
);
CREATE TABLE IF NOT EXISTS liquidity_balances (
	pool_address TEXT NOT NULL REFERENCES pools (pool_address),
	account TEXT NOT NULL,
	amount NUMERIC NOT NULL,
	PRIMARY KEY (pool_address, account)
);
CREATE TABLE IF NOT EXISTS accrual_balances (
	pool_address TEXT NOT NULL REFERENCES pools (pool_address),
	account TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount NUMERIC NOT NULL,
	PRIMARY KEY (pool_address, account, asset)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name TEXT PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pool ledgers.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveSnapshot replaces the stored state of the snapshot's pool in one
// transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap *ledger.Snapshot) error {
	pool, flows, liquidity, settled := storage.Rows(snap)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO pools (
			pool_address, token0, token1, reserve0, reserve1, balance0, balance1,
			price0_cumulative_last, price1_cumulative_last, block_timestamp_last,
			token0_global_flow_rate, token1_global_flow_rate, total_liquidity, journal_index,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6::numeric,$7::numeric,$8::numeric,$9::numeric,$10,$11::numeric,$12::numeric,$13::numeric,$14,now(),now())
		ON CONFLICT (pool_address)
		DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			balance0 = EXCLUDED.balance0,
			balance1 = EXCLUDED.balance1,
			price0_cumulative_last = EXCLUDED.price0_cumulative_last,
			price1_cumulative_last = EXCLUDED.price1_cumulative_last,
			block_timestamp_last = EXCLUDED.block_timestamp_last,
			token0_global_flow_rate = EXCLUDED.token0_global_flow_rate,
			token1_global_flow_rate = EXCLUDED.token1_global_flow_rate,
			total_liquidity = EXCLUDED.total_liquidity,
			journal_index = EXCLUDED.journal_index,
			updated_at = now()
	`,
		pool.Address,
		pool.Token0,
		pool.Token1,
		pool.Reserve0,
		pool.Reserve1,
		pool.Balance0,
		pool.Balance1,
		pool.Price0CumulativeLast,
		pool.Price1CumulativeLast,
		int64(pool.BlockTimestampLast),
		pool.Token0GlobalFlowRate,
		pool.Token1GlobalFlowRate,
		pool.TotalLiquidity,
		int64(pool.JournalIndex),
	)
	batch.Queue(`DELETE FROM flow_records WHERE pool_address=$1`, pool.Address)
	batch.Queue(`DELETE FROM liquidity_balances WHERE pool_address=$1`, pool.Address)
	batch.Queue(`DELETE FROM accrual_balances WHERE pool_address=$1`, pool.Address)
	for _, f := range flows {
		batch.Queue(`
			INSERT INTO flow_records (
				pool_address, account, asset, flow_rate, active, executed_at, price_cumulative_start, deposit
			) VALUES ($1,$2,$3,$4::numeric,$5,$6,$7::numeric,$8::numeric)
		`, pool.Address, f.Account, f.Asset, f.FlowRate, f.Active, int64(f.ExecutedAt), f.PriceCumulativeStart, f.Deposit)
	}
	for _, b := range liquidity {
		batch.Queue(`INSERT INTO liquidity_balances (pool_address, account, amount) VALUES ($1,$2,$3::numeric)`,
			pool.Address, b.Account, b.Amount)
	}
	for _, b := range settled {
		batch.Queue(`INSERT INTO accrual_balances (pool_address, account, asset, amount) VALUES ($1,$2,$3,$4::numeric)`,
			pool.Address, b.Account, b.Asset, b.Amount)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadSnapshot reads the stored state of a pool.
func (s *Store) LoadSnapshot(ctx context.Context, address string) (*ledger.Snapshot, bool, error) {
	var (
		pool    storage.PoolRow
		ts, idx int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT pool_address, token0, token1, reserve0::text, reserve1::text, balance0::text, balance1::text,
			price0_cumulative_last::text, price1_cumulative_last::text, block_timestamp_last,
			token0_global_flow_rate::text, token1_global_flow_rate::text, total_liquidity::text, journal_index
		FROM pools WHERE pool_address=$1
	`, address)
	err := row.Scan(
		&pool.Address, &pool.Token0, &pool.Token1, &pool.Reserve0, &pool.Reserve1, &pool.Balance0, &pool.Balance1,
		&pool.Price0CumulativeLast, &pool.Price1CumulativeLast, &ts,
		&pool.Token0GlobalFlowRate, &pool.Token1GlobalFlowRate, &pool.TotalLiquidity, &idx,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	pool.BlockTimestampLast = uint64(ts)
	pool.JournalIndex = uint64(idx)

	rows, err := s.pool.Query(ctx, `
		SELECT account, asset, flow_rate::text, active, executed_at, price_cumulative_start::text, deposit::text
		FROM flow_records WHERE pool_address=$1 ORDER BY account
	`, address)
	if err != nil {
		return nil, false, err
	}
	flows, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (storage.FlowRow, error) {
		var f storage.FlowRow
		var executedAt int64
		err := r.Scan(&f.Account, &f.Asset, &f.FlowRate, &f.Active, &executedAt, &f.PriceCumulativeStart, &f.Deposit)
		f.ExecutedAt = uint64(executedAt)
		return f, err
	})
	if err != nil {
		return nil, false, fmt.Errorf("load flows: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT account, '' AS asset, amount::text FROM liquidity_balances WHERE pool_address=$1 ORDER BY account
	`, address)
	if err != nil {
		return nil, false, err
	}
	liquidity, err := pgx.CollectRows(rows, scanBalance)
	if err != nil {
		return nil, false, fmt.Errorf("load liquidity: %w", err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT account, asset, amount::text FROM accrual_balances WHERE pool_address=$1 ORDER BY account, asset
	`, address)
	if err != nil {
		return nil, false, err
	}
	settled, err := pgx.CollectRows(rows, scanBalance)
	if err != nil {
		return nil, false, fmt.Errorf("load accrual balances: %w", err)
	}

	snap, err := storage.FromRows(pool, flows, liquidity, settled)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

func scanBalance(r pgx.CollectableRow) (storage.BalanceRow, error) {
	var b storage.BalanceRow
	err := r.Scan(&b.Account, &b.Asset, &b.Amount)
	return b, err
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

// SnapshotStore binds a Store to one pool as a storage.StateStore.
type SnapshotStore struct {
	Store *Store
	Pool  string
}

func (s *SnapshotStore) Load(ctx context.Context) (*ledger.Snapshot, bool, error) {
	if s == nil || s.Store == nil {
		return nil, false, nil
	}
	return s.Store.LoadSnapshot(ctx, s.Pool)
}

func (s *SnapshotStore) Save(ctx context.Context, snap *ledger.Snapshot) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveSnapshot(ctx, snap)
}
