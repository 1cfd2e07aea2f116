package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"swirlPool/internal/ledger"
	"swirlPool/internal/storage"
)

// Schema mirrors the Postgres tables with amounts stored as TEXT.
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_address TEXT PRIMARY KEY,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	reserve0 TEXT NOT NULL,
	reserve1 TEXT NOT NULL,
	balance0 TEXT NOT NULL,
	balance1 TEXT NOT NULL,
	price0_cumulative_last TEXT NOT NULL,
	price1_cumulative_last TEXT NOT NULL,
	block_timestamp_last INTEGER NOT NULL,
	token0_global_flow_rate TEXT NOT NULL,
	token1_global_flow_rate TEXT NOT NULL,
	total_liquidity TEXT NOT NULL,
	journal_index INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS flow_records (
	pool_address TEXT NOT NULL,
	account TEXT NOT NULL,
	asset TEXT NOT NULL,
	flow_rate TEXT NOT NULL,
	active INTEGER NOT NULL,
	executed_at INTEGER NOT NULL,
	price_cumulative_start TEXT NOT NULL,
	deposit TEXT NOT NULL,
	PRIMARY KEY (pool_address, account)
);
CREATE TABLE IF NOT EXISTS liquidity_balances (
	pool_address TEXT NOT NULL,
	account TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (pool_address, account)
);
CREATE TABLE IF NOT EXISTS accrual_balances (
	pool_address TEXT NOT NULL,
	account TEXT NOT NULL,
	asset TEXT NOT NULL,
	amount TEXT NOT NULL,
	PRIMARY KEY (pool_address, account, asset)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name TEXT PRIMARY KEY,
	last_processed_block INTEGER NOT NULL
);
`

// Store keeps pool ledgers in a single SQLite file.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored state of the snapshot's pool.
func (s *Store) SaveSnapshot(ctx context.Context, snap *ledger.Snapshot) error {
	pool, flows, liquidity, settled := storage.Rows(snap)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pools (
			pool_address, token0, token1, reserve0, reserve1, balance0, balance1,
			price0_cumulative_last, price1_cumulative_last, block_timestamp_last,
			token0_global_flow_rate, token1_global_flow_rate, total_liquidity, journal_index
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pool_address) DO UPDATE SET
			reserve0 = excluded.reserve0,
			reserve1 = excluded.reserve1,
			balance0 = excluded.balance0,
			balance1 = excluded.balance1,
			price0_cumulative_last = excluded.price0_cumulative_last,
			price1_cumulative_last = excluded.price1_cumulative_last,
			block_timestamp_last = excluded.block_timestamp_last,
			token0_global_flow_rate = excluded.token0_global_flow_rate,
			token1_global_flow_rate = excluded.token1_global_flow_rate,
			total_liquidity = excluded.total_liquidity,
			journal_index = excluded.journal_index`,
		pool.Address, pool.Token0, pool.Token1, pool.Reserve0, pool.Reserve1, pool.Balance0, pool.Balance1,
		pool.Price0CumulativeLast, pool.Price1CumulativeLast, int64(pool.BlockTimestampLast),
		pool.Token0GlobalFlowRate, pool.Token1GlobalFlowRate, pool.TotalLiquidity, int64(pool.JournalIndex),
	)
	if err != nil {
		return fmt.Errorf("save pool: %w", err)
	}

	for _, table := range []string{"flow_records", "liquidity_balances", "accrual_balances"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE pool_address = ?`, pool.Address); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, f := range flows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO flow_records
			(pool_address, account, asset, flow_rate, active, executed_at, price_cumulative_start, deposit)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			pool.Address, f.Account, f.Asset, f.FlowRate, f.Active, int64(f.ExecutedAt), f.PriceCumulativeStart, f.Deposit,
		)
		if err != nil {
			return fmt.Errorf("save flow record: %w", err)
		}
	}
	for _, b := range liquidity {
		if _, err := tx.ExecContext(ctx, `INSERT INTO liquidity_balances (pool_address, account, amount) VALUES (?, ?, ?)`,
			pool.Address, b.Account, b.Amount); err != nil {
			return fmt.Errorf("save liquidity: %w", err)
		}
	}
	for _, b := range settled {
		if _, err := tx.ExecContext(ctx, `INSERT INTO accrual_balances (pool_address, account, asset, amount) VALUES (?, ?, ?, ?)`,
			pool.Address, b.Account, b.Asset, b.Amount); err != nil {
			return fmt.Errorf("save accrual balance: %w", err)
		}
	}
	return tx.Commit()
}

// LoadSnapshot reads the stored state of a pool.
func (s *Store) LoadSnapshot(ctx context.Context, address string) (*ledger.Snapshot, bool, error) {
	var (
		pool    storage.PoolRow
		ts, idx int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT pool_address, token0, token1, reserve0, reserve1, balance0, balance1,
			price0_cumulative_last, price1_cumulative_last, block_timestamp_last,
			token0_global_flow_rate, token1_global_flow_rate, total_liquidity, journal_index
		FROM pools WHERE pool_address = ?`, address).Scan(
		&pool.Address, &pool.Token0, &pool.Token1, &pool.Reserve0, &pool.Reserve1, &pool.Balance0, &pool.Balance1,
		&pool.Price0CumulativeLast, &pool.Price1CumulativeLast, &ts,
		&pool.Token0GlobalFlowRate, &pool.Token1GlobalFlowRate, &pool.TotalLiquidity, &idx,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	pool.BlockTimestampLast = uint64(ts)
	pool.JournalIndex = uint64(idx)

	flows, err := s.loadFlows(ctx, address)
	if err != nil {
		return nil, false, err
	}
	liquidity, err := s.loadBalances(ctx, `SELECT account, '', amount FROM liquidity_balances WHERE pool_address = ? ORDER BY account`, address)
	if err != nil {
		return nil, false, fmt.Errorf("load liquidity: %w", err)
	}
	settled, err := s.loadBalances(ctx, `SELECT account, asset, amount FROM accrual_balances WHERE pool_address = ? ORDER BY account, asset`, address)
	if err != nil {
		return nil, false, fmt.Errorf("load accrual balances: %w", err)
	}

	snap, err := storage.FromRows(pool, flows, liquidity, settled)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

func (s *Store) loadFlows(ctx context.Context, address string) ([]storage.FlowRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, asset, flow_rate, active, executed_at, price_cumulative_start, deposit
		FROM flow_records WHERE pool_address = ? ORDER BY account`, address)
	if err != nil {
		return nil, fmt.Errorf("load flows: %w", err)
	}
	defer rows.Close()

	var out []storage.FlowRow
	for rows.Next() {
		var (
			f          storage.FlowRow
			executedAt int64
		)
		if err := rows.Scan(&f.Account, &f.Asset, &f.FlowRate, &f.Active, &executedAt, &f.PriceCumulativeStart, &f.Deposit); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		f.ExecutedAt = uint64(executedAt)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) loadBalances(ctx context.Context, query, address string) ([]storage.BalanceRow, error) {
	rows, err := s.db.QueryContext(ctx, query, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.BalanceRow
	for rows.Next() {
		var b storage.BalanceRow
		if err := rows.Scan(&b.Account, &b.Asset, &b.Amount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	var block int64
	err := s.db.QueryRowContext(ctx, `SELECT last_processed_block FROM indexer_state WHERE name = ?`, name).Scan(&block)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexer_state (name, last_processed_block) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET last_processed_block = excluded.last_processed_block`,
		name, int64(block))
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
