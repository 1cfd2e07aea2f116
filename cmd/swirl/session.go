package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swirlPool/internal/adapter"
	"swirlPool/internal/config"
	"swirlPool/internal/factory"
	"swirlPool/internal/indexer"
	"swirlPool/internal/ledger"
	"swirlPool/internal/storage"
	"swirlPool/internal/storage/postgres"
	"swirlPool/internal/storage/sqlite"
	"swirlPool/internal/storage/wal"
)

// session is one pool ledger opened from its configured backend.
type session struct {
	ledger  *ledger.Ledger
	adapter *adapter.Adapter
	store   storage.StateStore
	// checkpoints is non-nil for SQL backends.
	checkpoints indexer.StateStore
	logger      *zap.Logger
	closers     []func()
}

func openSession(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (*session, error) {
	s := &session{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	tokenA, err := indexer.ParseAddress("token0", cfg.Pool.Token0)
	if err != nil {
		return nil, err
	}
	tokenB, err := indexer.ParseAddress("token1", cfg.Pool.Token1)
	if err != nil {
		return nil, err
	}

	var sink ledger.EventSink
	if cfg.Store.EventsOut != "" {
		sink = storage.NewJsonlSink(cfg.Store.EventsOut)
	}

	var pools *factory.Factory
	var address common.Address
	if cfg.Pool.Pool != "" {
		if address, err = indexer.ParseAddress("pool", cfg.Pool.Pool); err != nil {
			return nil, err
		}
	} else {
		deployer, err := indexer.ParseAddress("factory", cfg.Pool.Factory)
		if err != nil {
			return nil, err
		}
		impl, err := indexer.ParseAddress("implementation", cfg.Pool.Implementation)
		if err != nil {
			return nil, err
		}
		pools = factory.New(deployer, impl, sink, logger)
		if address, err = pools.PoolAddress(tokenA, tokenB); err != nil {
			return nil, err
		}
	}

	if err := s.openStore(ctx, cfg.Store, address.Hex()); err != nil {
		return nil, err
	}

	snap, found, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	switch {
	case found:
		s.ledger, err = ledger.Restore(snap, sink, logger)
		if err != nil {
			return nil, fmt.Errorf("restore state: %w", err)
		}
		if s.ledger.Address() != address {
			return nil, fmt.Errorf("stored pool %s does not match %s", s.ledger.Address().Hex(), address.Hex())
		}
		if pools != nil {
			if err := pools.Adopt(s.ledger); err != nil {
				return nil, err
			}
		}
	case pools != nil:
		if s.ledger, err = pools.CreatePool(tokenA, tokenB); err != nil {
			return nil, err
		}
	default:
		s.ledger, err = ledger.New(ledger.Config{Address: address, Token0: tokenA, Token1: tokenB}, sink, logger)
		if err != nil {
			return nil, err
		}
	}
	token0, token1, _ := ledger.SortTokens(tokenA, tokenB)
	if s.ledger.Token0() != token0 || s.ledger.Token1() != token1 {
		return nil, fmt.Errorf("stored pool tokens do not match configuration")
	}

	var journal adapter.Journal
	if cfg.Store.JournalDir != "" {
		j, err := wal.Open(wal.Config{Dir: cfg.Store.JournalDir, SyncDisk: cfg.Store.JournalSync})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() {
			if err := j.Close(); err != nil {
				logger.Warn("close journal", zap.Error(err))
			}
		})
		applied, err := wal.Replay(j, s.ledger, logger)
		if err != nil {
			return nil, fmt.Errorf("replay journal: %w", err)
		}
		if applied > 0 {
			logger.Info("journal replayed", zap.Int("entries", applied), zap.Uint64("journal_index", s.ledger.JournalIndex()))
		}
		journal = j
	}

	s.adapter = adapter.New(s.ledger, journal, logger)
	ok = true
	return s, nil
}

func (s *session) openStore(ctx context.Context, cfg config.StoreConfig, pool string) error {
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		s.closers = append(s.closers, func() { _ = db.Close() })
		s.store = &sqlite.SnapshotStore{Store: db, Pool: pool}
		s.checkpoints = db
	case config.BackendPostgres:
		db, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		s.store = &postgres.SnapshotStore{Store: db, Pool: pool}
		s.checkpoints = db
	default:
		s.store = &storage.FileStateStore{Path: cfg.StatePath}
	}
	return nil
}

// Save persists the current snapshot.
func (s *session) Save(ctx context.Context) error {
	return s.adapter.Do(func(l *ledger.Ledger) error {
		return s.store.Save(ctx, l.Snapshot())
	})
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
