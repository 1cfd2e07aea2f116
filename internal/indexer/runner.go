package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"swirlPool/internal/flow"
	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
	"swirlPool/internal/superfluid"
)

// Chain is the subset of the RPC client the runner needs.
type Chain interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Handler applies decoded notifications to the pool.
type Handler interface {
	Handle(ctx context.Context, n model.FlowNotification) (flow.Transition, error)
}

// ErrorSink records logs that could not be decoded or were rejected.
type ErrorSink interface {
	PutDecodeErrors(errs []model.DecodeError) error
}

// RunConfig holds runtime settings for the watcher.
type RunConfig struct {
	FromBlock     uint64
	ToBlock       uint64
	CFA           common.Address
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
	FetchDeposits bool
}

// Runner streams CFA logs from the chain into the pool.
type Runner struct {
	cfg        RunConfig
	chain      Chain
	decoder    *superfluid.Decoder
	handler    Handler
	checkpoint Checkpointer
	persist    func(ctx context.Context) error
	errors     ErrorSink
	retry      retryPolicy
	logger     *zap.Logger
	seen       map[string]struct{}
}

// Option customizes a Runner.
type Option func(*Runner)

// WithCheckpoint resumes from and records the last processed block.
func WithCheckpoint(cp Checkpointer) Option {
	return func(r *Runner) { r.checkpoint = cp }
}

// WithPersist runs fn after each batch, before the checkpoint is saved.
func WithPersist(fn func(ctx context.Context) error) Option {
	return func(r *Runner) { r.persist = fn }
}

// WithErrorSink records decode failures and rejected notifications.
func WithErrorSink(sink ErrorSink) Option {
	return func(r *Runner) { r.errors = sink }
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, chainClient Chain, decoder *superfluid.Decoder, handler Handler, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		chain:   chainClient,
		decoder: decoder,
		handler: handler,
		retry:   newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff),
		logger:  logger,
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the watch loop over the configured range.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.decoder == nil || r.handler == nil {
		return fmt.Errorf("decoder and handler are required")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.CFA == (common.Address{}) {
		return fmt.Errorf("cfa address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.runBatch(ctx, chainIDValue, blockRange); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runBatch(ctx context.Context, chainID uint64, blockRange BlockRange) error {
	r.logger.Info("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To), zap.Uint64("blocks", blockRange.Size()))

	logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	var (
		applied int
		failed  []model.DecodeError
	)
	for _, log := range logs {
		if log.Removed || r.isDuplicate(log) {
			continue
		}

		ts, err := r.blockTimestampWithRetry(ctx, log.BlockNumber)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		record := buildLogRecord(chainID, log, ts)

		n, ok, err := r.decoder.Decode(record)
		if err != nil {
			failed = append(failed, decodeError(record, nil, err))
			continue
		}
		if !ok {
			continue
		}

		if r.cfg.FetchDeposits && n.Kind != model.FlowTerminated {
			deposit, err := superfluid.FetchDeposit(ctx, r.chain, r.cfg.CFA, n.Asset, n.Account, r.decoder.Receiver(), new(big.Int).SetUint64(log.BlockNumber))
			if err != nil {
				r.logger.Warn("fetch deposit failed", zap.Error(err), zap.String("account", n.Account.Hex()))
			} else {
				n.Deposit = deposit
			}
		}

		if _, err := r.handler.Handle(ctx, n); err != nil {
			var opErr *ledger.OpError
			if !errors.As(err, &opErr) {
				return fmt.Errorf("handle notification: %w", err)
			}
			failed = append(failed, decodeError(record, &n, err))
			continue
		}
		applied++
	}

	if len(failed) > 0 && r.errors != nil {
		if err := r.errors.PutDecodeErrors(failed); err != nil {
			return fmt.Errorf("store decode errors: %w", err)
		}
	}
	if r.persist != nil {
		if err := r.persist(ctx); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}
	}
	if r.checkpoint != nil {
		if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}

	r.logger.Info("batch complete",
		zap.Int("logs", len(logs)),
		zap.Int("applied", applied),
		zap.Int("failed", len(failed)),
		zap.Uint64("from", blockRange.From),
		zap.Uint64("to", blockRange.To),
	)
	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	addresses := []common.Address{r.cfg.CFA}
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, addresses, r.decoder.Topics())
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
