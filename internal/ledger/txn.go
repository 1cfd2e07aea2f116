package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swirlPool/internal/model"
)

// txn stages a mutating operation. The pool record is copied up front; map
// entries and flow records register undo closures as they change.
type txn struct {
	l      *Ledger
	saved  model.PoolState
	undo   []func()
	events []model.LedgerEvent
}

func (l *Ledger) atomic(op string, fn func(tx *txn) error) error {
	tx := &txn{l: l, saved: l.state.Clone()}
	if err := fn(tx); err != nil {
		tx.rollback()
		return &OpError{Op: op, Err: err}
	}
	if l.sink != nil && len(tx.events) > 0 {
		if err := l.sink.PutEvents(tx.events); err != nil {
			tx.rollback()
			return &OpError{Op: op, Err: fmt.Errorf("emit events: %w", err)}
		}
	}
	return nil
}

func (tx *txn) rollback() {
	tx.l.state = tx.saved
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
}

func (tx *txn) emit(name string, timestamp uint64, decoded interface{}) {
	tx.events = append(tx.events, model.LedgerEvent{
		Pool:      tx.l.state.Address.Hex(),
		EventName: name,
		Timestamp: timestamp,
		Decoded:   decoded,
	})
}

func (tx *txn) checkpointFlow(account common.Address) {
	tx.undo = append(tx.undo, tx.l.flows.Checkpoint(account))
}

func (tx *txn) setLiquidity(account common.Address, value *big.Int) {
	tx.undo = append(tx.undo, restoreEntry(tx.l.liquidity, account))
	setEntry(tx.l.liquidity, account, value)
}

func (tx *txn) setSettled(asset, account common.Address, value *big.Int) {
	balances, ok := tx.l.settled[asset]
	if !ok {
		balances = make(map[common.Address]*big.Int)
		tx.l.settled[asset] = balances
	}
	tx.undo = append(tx.undo, restoreEntry(balances, account))
	setEntry(balances, account, value)
}

func restoreEntry(m map[common.Address]*big.Int, key common.Address) func() {
	prev, ok := m[key]
	if !ok {
		return func() { delete(m, key) }
	}
	prev = new(big.Int).Set(prev)
	return func() { m[key] = prev }
}

// setEntry keeps maps free of zero balances.
func setEntry(m map[common.Address]*big.Int, key common.Address, value *big.Int) {
	if value.Sign() == 0 {
		delete(m, key)
		return
	}
	m[key] = new(big.Int).Set(value)
}
