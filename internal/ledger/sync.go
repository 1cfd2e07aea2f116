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

// Sync accrues the price oracle and streamed inflow up to now.
func (l *Ledger) Sync(now uint64) error {
	return l.atomic("sync", func(tx *txn) error {
		return tx.sync(now)
	})
}

// PriceCumulativeLast syncs to now and returns the accumulator of the
// opposite token's price expressed in asset.
func (l *Ledger) PriceCumulativeLast(asset common.Address, now uint64) (*big.Int, error) {
	var out *big.Int
	err := l.atomic("price_cumulative_last", func(tx *txn) error {
		if err := l.requireAsset(asset); err != nil {
			return err
		}
		if err := tx.sync(now); err != nil {
			return err
		}
		out = new(big.Int).Set(cumulativeFor(&l.state, l.state.Opposite(asset)))
		return nil
	})
	return out, err
}

func (tx *txn) sync(now uint64) error {
	next, elapsed, err := advance(tx.l.state, now)
	if err != nil {
		return err
	}
	if elapsed == 0 {
		return nil
	}
	tx.l.state = next
	tx.emit(model.EventSync, now, model.SyncEventData{
		Reserve0:             next.Reserve0.String(),
		Reserve1:             next.Reserve1.String(),
		Price0CumulativeLast: next.Price0CumulativeLast.String(),
		Price1CumulativeLast: next.Price1CumulativeLast.String(),
		TimeElapsed:          elapsed,
	})
	tx.l.logger.Debug("synced",
		zap.Uint64("timestamp", now),
		zap.Uint64("elapsed", elapsed),
		zap.String("reserve0", next.Reserve0.String()),
		zap.String("reserve1", next.Reserve1.String()),
	)
	return nil
}

// advance projects state to now without modifying it. The price accumulators
// use the reserves as of the last sync; streamed inflow is added afterwards.
func advance(state model.PoolState, now uint64) (model.PoolState, uint64, error) {
	if now < state.BlockTimestampLast {
		return state, 0, fmt.Errorf("%w: %d < %d", flow.ErrStaleUpdate, now, state.BlockTimestampLast)
	}
	elapsed := now - state.BlockTimestampLast
	if elapsed == 0 {
		return state, 0, nil
	}

	next := state.Clone()
	dt := new(big.Int).SetUint64(elapsed)
	if state.Reserve0.Sign() > 0 && state.Reserve1.Sign() > 0 {
		price0, err := fixedpoint.Ratio(state.Reserve1, state.Reserve0)
		if err != nil {
			return state, 0, err
		}
		price1, err := fixedpoint.Ratio(state.Reserve0, state.Reserve1)
		if err != nil {
			return state, 0, err
		}
		next.Price0CumulativeLast.Add(next.Price0CumulativeLast, price0.Mul(price0, dt))
		next.Price1CumulativeLast.Add(next.Price1CumulativeLast, price1.Mul(price1, dt))
	}

	inflow0 := new(big.Int).Mul(state.Token0GlobalFlowRate, dt)
	inflow1 := new(big.Int).Mul(state.Token1GlobalFlowRate, dt)
	next.Reserve0.Add(next.Reserve0, inflow0)
	next.Reserve1.Add(next.Reserve1, inflow1)
	next.Balance0.Add(next.Balance0, inflow0)
	next.Balance1.Add(next.Balance1, inflow1)
	if next.Reserve0.Cmp(fixedpoint.MaxUint112) > 0 || next.Reserve1.Cmp(fixedpoint.MaxUint112) > 0 {
		return state, 0, fmt.Errorf("%w: reserve exceeds 112 bits", fixedpoint.ErrOverflow)
	}
	next.BlockTimestampLast = now
	return next, elapsed, nil
}
