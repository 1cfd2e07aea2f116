package adapter

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swirlPool/internal/flow"
	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
)

// Journal persists ledger inputs before they are applied.
type Journal interface {
	Append(entry model.JournalEntry) (uint64, error)
}

// Adapter feeds streaming-protocol callbacks into a pool ledger. Notifications
// are applied one at a time; the ledger itself is not goroutine-safe.
type Adapter struct {
	mu      sync.Mutex
	ledger  *ledger.Ledger
	journal Journal
	logger  *zap.Logger
}

func New(l *ledger.Ledger, journal Journal, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{ledger: l, journal: journal, logger: logger}
}

// Handle validates and applies one notification.
func (a *Adapter) Handle(ctx context.Context, n model.FlowNotification) (flow.Transition, error) {
	if err := ctx.Err(); err != nil {
		return flow.Transition{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n.Asset != a.ledger.Token0() && n.Asset != a.ledger.Token1() {
		a.logger.Warn("rejected notification",
			zap.String("kind", string(n.Kind)),
			zap.String("account", n.Account.Hex()),
			zap.String("asset", n.Asset.Hex()),
		)
		return flow.Transition{}, &ledger.OpError{Op: "handle", Err: fmt.Errorf("%w: %s", ledger.ErrUnknownAsset, n.Asset.Hex())}
	}

	var tr flow.Transition
	err := a.record(model.FlowEntry(n), func() error {
		var err error
		tr, err = a.ledger.ApplyFlow(n)
		return err
	})
	if err != nil {
		a.logger.Warn("rejected notification",
			zap.String("kind", string(n.Kind)),
			zap.String("account", n.Account.Hex()),
			zap.Uint64("timestamp", n.Timestamp),
			zap.Error(err),
		)
		return flow.Transition{}, err
	}
	return tr, nil
}

// Apply journals and executes a ledger operation such as a mint or claim.
func (a *Adapter) Apply(ctx context.Context, e model.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.record(e, func() error { return a.ledger.ApplyEntry(e) })
	if err != nil {
		a.logger.Warn("rejected operation", zap.String("op", e.Op), zap.Uint64("timestamp", e.Timestamp), zap.Error(err))
	}
	return err
}

// record appends e to the journal before running apply. The entry counts as
// consumed even when apply fails, so replay reaches the same state.
func (a *Adapter) record(e model.JournalEntry, apply func() error) error {
	var idx uint64
	if a.journal != nil {
		var err error
		idx, err = a.journal.Append(e)
		if err != nil {
			return fmt.Errorf("journal %s: %w", e.Op, err)
		}
	}
	err := apply()
	if idx > 0 {
		a.ledger.MarkJournal(idx)
	}
	return err
}

// Do runs fn with exclusive access to the ledger.
func (a *Adapter) Do(fn func(l *ledger.Ledger) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.ledger)
}

func (a *Adapter) OnFlowCreated(ctx context.Context, account, asset common.Address, rate *big.Int, timestamp uint64) error {
	_, err := a.Handle(ctx, model.FlowNotification{Kind: model.FlowCreated, Account: account, Asset: asset, FlowRate: rate, Timestamp: timestamp})
	return err
}

func (a *Adapter) OnFlowUpdated(ctx context.Context, account, asset common.Address, rate *big.Int, timestamp uint64) error {
	_, err := a.Handle(ctx, model.FlowNotification{Kind: model.FlowUpdated, Account: account, Asset: asset, FlowRate: rate, Timestamp: timestamp})
	return err
}

func (a *Adapter) OnFlowTerminated(ctx context.Context, account, asset common.Address, timestamp uint64) error {
	_, err := a.Handle(ctx, model.FlowNotification{Kind: model.FlowTerminated, Account: account, Asset: asset, Timestamp: timestamp})
	return err
}
