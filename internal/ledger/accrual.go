package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swirlPool/internal/fixedpoint"
	"swirlPool/internal/flow"
	"swirlPool/internal/model"
)

// Accrual is a per-asset amount owed to an account.
type Accrual struct {
	Asset  common.Address
	Amount *big.Int
}

// RealtimeBalanceOf returns what the account's active flow has earned in the
// opposite token since it was last settled. Nothing is written.
func (l *Ledger) RealtimeBalanceOf(account common.Address, now uint64) (*big.Int, error) {
	rec, ok := l.flows.Get(account)
	if !ok || !rec.Active {
		return big.NewInt(0), nil
	}
	projected, _, err := advance(l.state, now)
	if err != nil {
		return nil, &OpError{Op: "realtime_balance_of", Err: err}
	}
	amount, err := accrued(rec, cumulativeFor(&projected, rec.Asset), now)
	if err != nil {
		return nil, &OpError{Op: "realtime_balance_of", Err: err}
	}
	return amount, nil
}

// BalanceOf returns the settled plus realtime balance the account holds in
// asset.
func (l *Ledger) BalanceOf(account, asset common.Address, now uint64) (*big.Int, error) {
	if err := l.requireAsset(asset); err != nil {
		return nil, &OpError{Op: "balance_of", Err: err}
	}
	total := l.settledOf(asset, account)
	rec, ok := l.flows.Get(account)
	if ok && rec.Active && l.state.Opposite(rec.Asset) == asset {
		realtime, err := l.RealtimeBalanceOf(account, now)
		if err != nil {
			return nil, err
		}
		total.Add(total, realtime)
	}
	return total, nil
}

// Conversion is the undecoded accrual formula
// ((last-start)/(now-executedAt)) * flowRate * (now-executedAt).
func Conversion(flowRate *big.Int, executedAt, now uint64, start, last *big.Int) (*big.Int, error) {
	if now < executedAt {
		return nil, fmt.Errorf("%w: %d < %d", flow.ErrStaleUpdate, now, executedAt)
	}
	if now == executedAt {
		return big.NewInt(0), nil
	}
	dt := new(big.Int).SetUint64(now - executedAt)
	average, err := fixedpoint.Div(new(big.Int).Sub(last, start), dt)
	if err != nil {
		return nil, err
	}
	average.Mul(average, flowRate)
	return average.Mul(average, dt), nil
}

// accrued applies the decoded average price over the record's window.
func accrued(rec model.FlowRecord, cumulative *big.Int, now uint64) (*big.Int, error) {
	if !rec.Active || now <= rec.ExecutedAt {
		return big.NewInt(0), nil
	}
	dt := new(big.Int).SetUint64(now - rec.ExecutedAt)
	average, err := fixedpoint.Div(new(big.Int).Sub(cumulative, rec.PriceCumulativeStart), dt)
	if err != nil {
		return nil, err
	}
	amount := fixedpoint.Decode(average)
	amount.Mul(amount, rec.FlowRate)
	return amount.Mul(amount, dt), nil
}

// Transfer moves amount of asset owed to from. A transfer to the pool
// address releases the underlying tokens to from instead.
func (l *Ledger) Transfer(from, to, asset common.Address, amount *big.Int, now uint64) error {
	return l.atomic("transfer", func(tx *txn) error {
		if err := l.requireAsset(asset); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("transfer amount must be positive")
		}
		if err := tx.sync(now); err != nil {
			return err
		}
		return tx.transfer(from, to, asset, amount, now)
	})
}

// Claim releases everything owed to account, in both tokens, from the pool
// reserves.
func (l *Ledger) Claim(account common.Address, now uint64) ([]Accrual, error) {
	var claimed []Accrual
	err := l.atomic("claim", func(tx *txn) error {
		if err := tx.sync(now); err != nil {
			return err
		}
		for _, asset := range []common.Address{l.state.Token0, l.state.Token1} {
			owed, err := tx.owed(account, asset, now)
			if err != nil {
				return err
			}
			if owed.Sign() == 0 {
				continue
			}
			if err := tx.transfer(account, l.state.Address, asset, owed, now); err != nil {
				return err
			}
			claimed = append(claimed, Accrual{Asset: asset, Amount: owed})
		}
		if len(claimed) == 0 {
			return flow.ErrFlowInactive
		}
		return nil
	})
	return claimed, err
}

// owed is BalanceOf against an already synced pool.
func (tx *txn) owed(account, asset common.Address, now uint64) (*big.Int, error) {
	l := tx.l
	total := l.settledOf(asset, account)
	rec, ok := l.flows.Get(account)
	if ok && rec.Active && l.state.Opposite(rec.Asset) == asset {
		realtime, err := accrued(rec, cumulativeFor(&l.state, rec.Asset), now)
		if err != nil {
			return nil, err
		}
		total.Add(total, realtime)
	}
	return total, nil
}

func (tx *txn) transfer(from, to, asset common.Address, amount *big.Int, now uint64) error {
	l := tx.l
	rec, hasRecord := l.flows.Get(from)
	if !hasRecord && l.settledOf(asset, from).Sign() == 0 {
		return flow.ErrFlowInactive
	}
	balance, err := tx.owed(from, asset, now)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return flow.ErrFlowInactive
	}
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrInsufficientBalance, amount, balance)
	}
	if hasRecord && rec.Active && l.state.Opposite(rec.Asset) == asset {
		if _, err := tx.settle(rec, now); err != nil {
			return err
		}
	}
	tx.setSettled(asset, from, new(big.Int).Sub(l.settledOf(asset, from), amount))

	if to == l.state.Address {
		return tx.release(from, asset, amount, now)
	}
	tx.setSettled(asset, to, new(big.Int).Add(l.settledOf(asset, to), amount))
	tx.emit(model.EventTransfer, now, model.TransferEventData{
		From:   from.Hex(),
		To:     to.Hex(),
		Asset:  asset.Hex(),
		Amount: amount.String(),
	})
	return nil
}

// release pays amount of asset out of the reserves.
func (tx *txn) release(account, asset common.Address, amount *big.Int, now uint64) error {
	l := tx.l
	reserve := l.reserveOf(asset)
	balance := l.balanceOf(asset)
	if amount.Cmp(reserve) > 0 {
		return fmt.Errorf("%w: reserve %s < %s", ErrInsufficientBalance, reserve, amount)
	}
	reserve.Sub(reserve, amount)
	balance.Sub(balance, amount)
	tx.emit(model.EventClaim, now, model.ClaimEventData{
		Account: account.Hex(),
		Asset:   asset.Hex(),
		Amount:  amount.String(),
	})
	l.logger.Info("claimed",
		zap.String("account", account.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("amount", amount.String()),
	)
	return nil
}

// settle materializes the record's accrual into the settled balance and moves
// its accrual base to now. The pool must already be synced to now.
func (tx *txn) settle(rec model.FlowRecord, now uint64) (*big.Int, error) {
	l := tx.l
	amount, err := tx.credit(rec, now)
	if err != nil {
		return nil, err
	}
	tx.checkpointFlow(rec.Account)
	if err := l.flows.Settle(rec.Account, now, cumulativeFor(&l.state, rec.Asset)); err != nil {
		return nil, err
	}
	return amount, nil
}

// credit adds the record's accrual to the settled balance of the opposite
// token without touching the record.
func (tx *txn) credit(rec model.FlowRecord, now uint64) (*big.Int, error) {
	l := tx.l
	amount, err := accrued(rec, cumulativeFor(&l.state, rec.Asset), now)
	if err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		out := l.state.Opposite(rec.Asset)
		tx.setSettled(out, rec.Account, new(big.Int).Add(l.settledOf(out, rec.Account), amount))
	}
	return amount, nil
}
