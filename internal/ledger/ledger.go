package ledger

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swirlPool/internal/flow"
	"swirlPool/internal/model"
)

// MinimumLiquidity is burnt on the first mint.
const MinimumLiquidity = 1000

// EventSink receives the events of every committed operation.
type EventSink interface {
	PutEvents(events []model.LedgerEvent) error
}

// Config identifies a pool. Tokens are sorted by New.
type Config struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
}

// Ledger is the reserve, oracle and accrual state of one pool. Its methods
// are not safe for concurrent use; callers serialize access.
type Ledger struct {
	state        model.PoolState
	flows        *flow.Registry
	liquidity    map[common.Address]*big.Int
	settled      map[common.Address]map[common.Address]*big.Int
	journalIndex uint64

	sink   EventSink
	logger *zap.Logger
}

// New returns an empty pool ledger.
func New(cfg Config, sink EventSink, logger *zap.Logger) (*Ledger, error) {
	token0, token1, err := SortTokens(cfg.Token0, cfg.Token1)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		state:     model.NewPoolState(cfg.Address, token0, token1),
		flows:     flow.NewRegistry(),
		liquidity: make(map[common.Address]*big.Int),
		settled:   make(map[common.Address]map[common.Address]*big.Int),
		sink:      sink,
		logger:    logger.With(zap.String("pool", cfg.Address.Hex())),
	}, nil
}

// SetSink replaces the event sink and returns the previous one. A nil sink
// drops events.
func (l *Ledger) SetSink(sink EventSink) EventSink {
	prev := l.sink
	l.sink = sink
	return prev
}

// SortTokens orders a pair and rejects identical or zero addresses.
func SortTokens(a, b common.Address) (common.Address, common.Address, error) {
	if a == b {
		return common.Address{}, common.Address{}, fmt.Errorf("identical tokens: %s", a.Hex())
	}
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	if a == (common.Address{}) {
		return common.Address{}, common.Address{}, fmt.Errorf("zero token address")
	}
	return a, b, nil
}

func (l *Ledger) Address() common.Address { return l.state.Address }
func (l *Ledger) Token0() common.Address { return l.state.Token0 }
func (l *Ledger) Token1() common.Address { return l.state.Token1 }

// State returns a copy of the pool record.
func (l *Ledger) State() model.PoolState {
	return l.state.Clone()
}

// Projected returns the pool record as a sync at now would leave it, without
// writing anything.
func (l *Ledger) Projected(now uint64) (model.PoolState, error) {
	next, _, err := advance(l.state, now)
	if err != nil {
		return model.PoolState{}, &OpError{Op: "projected", Err: err}
	}
	return next.Clone(), nil
}

// Reserves returns the reserves as of the last sync.
func (l *Ledger) Reserves() (*big.Int, *big.Int, uint64) {
	return new(big.Int).Set(l.state.Reserve0), new(big.Int).Set(l.state.Reserve1), l.state.BlockTimestampLast
}

// FlowRecord returns a copy of the account's flow record.
func (l *Ledger) FlowRecord(account common.Address) (model.FlowRecord, bool) {
	return l.flows.Get(account)
}

// FlowRecords returns every flow record ordered by account.
func (l *Ledger) FlowRecords() []model.FlowRecord {
	return l.flows.Records()
}

// FlowState returns the lifecycle state of the account's flow.
func (l *Ledger) FlowState(account common.Address) string {
	return l.flows.State(account)
}

// JournalIndex is the last journal entry reflected in this ledger.
func (l *Ledger) JournalIndex() uint64 {
	return l.journalIndex
}

// MarkJournal records that journal entry idx has been applied.
func (l *Ledger) MarkJournal(idx uint64) {
	if idx > l.journalIndex {
		l.journalIndex = idx
	}
}

func (l *Ledger) requireAsset(asset common.Address) error {
	if !l.state.HasAsset(asset) {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return nil
}

func (l *Ledger) settledOf(asset, account common.Address) *big.Int {
	if v, ok := l.settled[asset][account]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (l *Ledger) reserveOf(asset common.Address) *big.Int {
	if asset == l.state.Token0 {
		return l.state.Reserve0
	}
	return l.state.Reserve1
}

func (l *Ledger) balanceOf(asset common.Address) *big.Int {
	if asset == l.state.Token0 {
		return l.state.Balance0
	}
	return l.state.Balance1
}

func (l *Ledger) globalRateOf(asset common.Address) *big.Int {
	if asset == l.state.Token0 {
		return l.state.Token0GlobalFlowRate
	}
	return l.state.Token1GlobalFlowRate
}

// cumulativeFor is the accumulator that prices a stream of asset in the
// opposite token.
func cumulativeFor(state *model.PoolState, asset common.Address) *big.Int {
	if asset == state.Token0 {
		return state.Price0CumulativeLast
	}
	return state.Price1CumulativeLast
}
