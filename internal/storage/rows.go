package storage

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
)

// PoolRow is the pools table shape shared by the SQL backends. Amounts are
// decimal strings.
type PoolRow struct {
	Address              string
	Token0               string
	Token1               string
	Reserve0             string
	Reserve1             string
	Balance0             string
	Balance1             string
	Price0CumulativeLast string
	Price1CumulativeLast string
	BlockTimestampLast   uint64
	Token0GlobalFlowRate string
	Token1GlobalFlowRate string
	TotalLiquidity       string
	JournalIndex         uint64
}

type FlowRow struct {
	Account              string
	Asset                string
	FlowRate             string
	Active               bool
	ExecutedAt           uint64
	PriceCumulativeStart string
	Deposit              string
}

// BalanceRow serves both liquidity (Asset empty) and accrual balances.
type BalanceRow struct {
	Account string
	Asset   string
	Amount  string
}

// Rows flattens a snapshot into table rows.
func Rows(snap *ledger.Snapshot) (PoolRow, []FlowRow, []BalanceRow, []BalanceRow) {
	p := snap.Pool
	pool := PoolRow{
		Address:              p.Address.Hex(),
		Token0:               p.Token0.Hex(),
		Token1:               p.Token1.Hex(),
		Reserve0:             p.Reserve0.String(),
		Reserve1:             p.Reserve1.String(),
		Balance0:             p.Balance0.String(),
		Balance1:             p.Balance1.String(),
		Price0CumulativeLast: p.Price0CumulativeLast.String(),
		Price1CumulativeLast: p.Price1CumulativeLast.String(),
		BlockTimestampLast:   p.BlockTimestampLast,
		Token0GlobalFlowRate: p.Token0GlobalFlowRate.String(),
		Token1GlobalFlowRate: p.Token1GlobalFlowRate.String(),
		TotalLiquidity:       p.TotalLiquidity.String(),
		JournalIndex:         snap.JournalIndex,
	}
	flows := make([]FlowRow, 0, len(snap.Flows))
	for _, rec := range snap.Flows {
		flows = append(flows, FlowRow{
			Account:              rec.Account.Hex(),
			Asset:                rec.Asset.Hex(),
			FlowRate:             rec.FlowRate.String(),
			Active:               rec.Active,
			ExecutedAt:           rec.ExecutedAt,
			PriceCumulativeStart: rec.PriceCumulativeStart.String(),
			Deposit:              rec.Deposit.String(),
		})
	}
	liquidity := make([]BalanceRow, 0, len(snap.Liquidity))
	for _, b := range snap.Liquidity {
		liquidity = append(liquidity, BalanceRow{Account: b.Account.Hex(), Amount: b.Amount.String()})
	}
	settled := make([]BalanceRow, 0, len(snap.Settled))
	for _, b := range snap.Settled {
		settled = append(settled, BalanceRow{Account: b.Account.Hex(), Asset: b.Asset.Hex(), Amount: b.Amount.String()})
	}
	return pool, flows, liquidity, settled
}

// FromRows rebuilds a snapshot from table rows.
func FromRows(pool PoolRow, flows []FlowRow, liquidity, settled []BalanceRow) (*ledger.Snapshot, error) {
	var d rowDecoder
	snap := &ledger.Snapshot{
		Pool: model.PoolState{
			Address:              d.addr(pool.Address),
			Token0:               d.addr(pool.Token0),
			Token1:               d.addr(pool.Token1),
			Reserve0:             d.int(pool.Reserve0),
			Reserve1:             d.int(pool.Reserve1),
			Balance0:             d.int(pool.Balance0),
			Balance1:             d.int(pool.Balance1),
			Price0CumulativeLast: d.int(pool.Price0CumulativeLast),
			Price1CumulativeLast: d.int(pool.Price1CumulativeLast),
			BlockTimestampLast:   pool.BlockTimestampLast,
			Token0GlobalFlowRate: d.int(pool.Token0GlobalFlowRate),
			Token1GlobalFlowRate: d.int(pool.Token1GlobalFlowRate),
			TotalLiquidity:       d.int(pool.TotalLiquidity),
		},
		JournalIndex: pool.JournalIndex,
	}
	for _, row := range flows {
		snap.Flows = append(snap.Flows, model.FlowRecord{
			Account:              d.addr(row.Account),
			Asset:                d.addr(row.Asset),
			FlowRate:             d.int(row.FlowRate),
			Active:               row.Active,
			ExecutedAt:           row.ExecutedAt,
			PriceCumulativeStart: d.int(row.PriceCumulativeStart),
			Deposit:              d.int(row.Deposit),
		})
	}
	for _, row := range liquidity {
		snap.Liquidity = append(snap.Liquidity, ledger.Balance{Account: d.addr(row.Account), Amount: d.int(row.Amount)})
	}
	for _, row := range settled {
		snap.Settled = append(snap.Settled, ledger.AssetBalance{Account: d.addr(row.Account), Asset: d.addr(row.Asset), Amount: d.int(row.Amount)})
	}
	if d.err != nil {
		return nil, fmt.Errorf("decode rows: %w", d.err)
	}
	return snap, nil
}

type rowDecoder struct {
	err error
}

func (d *rowDecoder) int(value string) *big.Int {
	v, err := model.ParseBigInt(value)
	if err != nil {
		if d.err == nil {
			d.err = err
		}
		return big.NewInt(0)
	}
	return v
}

func (d *rowDecoder) addr(value string) common.Address {
	if !common.IsHexAddress(value) {
		if d.err == nil {
			d.err = fmt.Errorf("invalid address: %s", value)
		}
		return common.Address{}
	}
	return common.HexToAddress(value)
}
