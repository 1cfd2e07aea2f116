package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swirlPool/internal/model"
)

// Snapshot is the complete durable state of a pool ledger.
type Snapshot struct {
	Pool         model.PoolState
	Flows        []model.FlowRecord
	Liquidity    []Balance
	Settled      []AssetBalance
	JournalIndex uint64
}

// Balance is an account's LP balance.
type Balance struct {
	Account common.Address
	Amount  *big.Int
}

// AssetBalance is a settled accrual owed to an account in one token.
type AssetBalance struct {
	Account common.Address
	Asset   common.Address
	Amount  *big.Int
}

// Snapshot copies the ledger state. Entries are sorted so equal ledgers
// produce equal snapshots.
func (l *Ledger) Snapshot() *Snapshot {
	snap := &Snapshot{
		Pool:         l.state.Clone(),
		Flows:        l.flows.Records(),
		JournalIndex: l.journalIndex,
	}
	for account, amount := range l.liquidity {
		snap.Liquidity = append(snap.Liquidity, Balance{Account: account, Amount: new(big.Int).Set(amount)})
	}
	sort.Slice(snap.Liquidity, func(i, j int) bool {
		return lessAddr(snap.Liquidity[i].Account, snap.Liquidity[j].Account)
	})
	for asset, balances := range l.settled {
		for account, amount := range balances {
			snap.Settled = append(snap.Settled, AssetBalance{Account: account, Asset: asset, Amount: new(big.Int).Set(amount)})
		}
	}
	sort.Slice(snap.Settled, func(i, j int) bool {
		a, b := snap.Settled[i], snap.Settled[j]
		if a.Account != b.Account {
			return lessAddr(a.Account, b.Account)
		}
		return lessAddr(a.Asset, b.Asset)
	})
	return snap
}

// Restore rebuilds a ledger from a snapshot.
func Restore(snap *Snapshot, sink EventSink, logger *zap.Logger) (*Ledger, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}
	l, err := New(Config{Address: snap.Pool.Address, Token0: snap.Pool.Token0, Token1: snap.Pool.Token1}, sink, logger)
	if err != nil {
		return nil, fmt.Errorf("restore pool: %w", err)
	}
	if l.state.Token0 != snap.Pool.Token0 {
		return nil, fmt.Errorf("restore pool: tokens not sorted")
	}
	l.state = snap.Pool.Clone()
	for _, rec := range snap.Flows {
		if !l.state.HasAsset(rec.Asset) {
			return nil, fmt.Errorf("restore flow %s: %w: %s", rec.Account.Hex(), ErrUnknownAsset, rec.Asset.Hex())
		}
	}
	if err := l.flows.Restore(snap.Flows); err != nil {
		return nil, fmt.Errorf("restore flows: %w", err)
	}
	for _, b := range snap.Liquidity {
		setEntry(l.liquidity, b.Account, b.Amount)
	}
	for _, b := range snap.Settled {
		if !l.state.HasAsset(b.Asset) {
			return nil, fmt.Errorf("restore settled balance: %w: %s", ErrUnknownAsset, b.Asset.Hex())
		}
		balances, ok := l.settled[b.Asset]
		if !ok {
			balances = make(map[common.Address]*big.Int)
			l.settled[b.Asset] = balances
		}
		setEntry(balances, b.Account, b.Amount)
	}
	l.journalIndex = snap.JournalIndex
	return l, nil
}

func lessAddr(a, b common.Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

type snapshotRecord struct {
	Pool         poolRecord           `json:"pool"`
	Flows        []flowRecord         `json:"flows"`
	Liquidity    []balanceRecord      `json:"liquidity"`
	Settled      []assetBalanceRecord `json:"settled"`
	JournalIndex uint64               `json:"journal_index"`
}

type poolRecord struct {
	Address              string `json:"address"`
	Token0               string `json:"token0"`
	Token1               string `json:"token1"`
	Reserve0             string `json:"reserve0"`
	Reserve1             string `json:"reserve1"`
	Balance0             string `json:"balance0"`
	Balance1             string `json:"balance1"`
	Price0CumulativeLast string `json:"price0_cumulative_last"`
	Price1CumulativeLast string `json:"price1_cumulative_last"`
	BlockTimestampLast   uint64 `json:"block_timestamp_last"`
	Token0GlobalFlowRate string `json:"token0_global_flow_rate"`
	Token1GlobalFlowRate string `json:"token1_global_flow_rate"`
	TotalLiquidity       string `json:"total_liquidity"`
}

type flowRecord struct {
	Account              string `json:"account"`
	Asset                string `json:"asset"`
	FlowRate             string `json:"flow_rate"`
	Active               bool   `json:"active"`
	ExecutedAt           uint64 `json:"executed_at"`
	PriceCumulativeStart string `json:"price_cumulative_start"`
	Deposit              string `json:"deposit"`
}

type balanceRecord struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type assetBalanceRecord struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// MarshalJSON encodes amounts as decimal strings.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	p := s.Pool
	out := snapshotRecord{
		Pool: poolRecord{
			Address:              p.Address.Hex(),
			Token0:               p.Token0.Hex(),
			Token1:               p.Token1.Hex(),
			Reserve0:             intString(p.Reserve0),
			Reserve1:             intString(p.Reserve1),
			Balance0:             intString(p.Balance0),
			Balance1:             intString(p.Balance1),
			Price0CumulativeLast: intString(p.Price0CumulativeLast),
			Price1CumulativeLast: intString(p.Price1CumulativeLast),
			BlockTimestampLast:   p.BlockTimestampLast,
			Token0GlobalFlowRate: intString(p.Token0GlobalFlowRate),
			Token1GlobalFlowRate: intString(p.Token1GlobalFlowRate),
			TotalLiquidity:       intString(p.TotalLiquidity),
		},
		Flows:        make([]flowRecord, 0, len(s.Flows)),
		Liquidity:    make([]balanceRecord, 0, len(s.Liquidity)),
		Settled:      make([]assetBalanceRecord, 0, len(s.Settled)),
		JournalIndex: s.JournalIndex,
	}
	for _, rec := range s.Flows {
		out.Flows = append(out.Flows, flowRecord{
			Account:              rec.Account.Hex(),
			Asset:                rec.Asset.Hex(),
			FlowRate:             intString(rec.FlowRate),
			Active:               rec.Active,
			ExecutedAt:           rec.ExecutedAt,
			PriceCumulativeStart: intString(rec.PriceCumulativeStart),
			Deposit:              intString(rec.Deposit),
		})
	}
	for _, b := range s.Liquidity {
		out.Liquidity = append(out.Liquidity, balanceRecord{Account: b.Account.Hex(), Amount: intString(b.Amount)})
	}
	for _, b := range s.Settled {
		out.Settled = append(out.Settled, assetBalanceRecord{Account: b.Account.Hex(), Asset: b.Asset.Hex(), Amount: intString(b.Amount)})
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the form written by MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var in snapshotRecord
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var p parser
	pool := model.PoolState{
		Address:              p.addr(in.Pool.Address),
		Token0:               p.addr(in.Pool.Token0),
		Token1:               p.addr(in.Pool.Token1),
		Reserve0:             p.int(in.Pool.Reserve0),
		Reserve1:             p.int(in.Pool.Reserve1),
		Balance0:             p.int(in.Pool.Balance0),
		Balance1:             p.int(in.Pool.Balance1),
		Price0CumulativeLast: p.int(in.Pool.Price0CumulativeLast),
		Price1CumulativeLast: p.int(in.Pool.Price1CumulativeLast),
		BlockTimestampLast:   in.Pool.BlockTimestampLast,
		Token0GlobalFlowRate: p.int(in.Pool.Token0GlobalFlowRate),
		Token1GlobalFlowRate: p.int(in.Pool.Token1GlobalFlowRate),
		TotalLiquidity:       p.int(in.Pool.TotalLiquidity),
	}
	out := Snapshot{Pool: pool, JournalIndex: in.JournalIndex}
	for _, rec := range in.Flows {
		out.Flows = append(out.Flows, model.FlowRecord{
			Account:              p.addr(rec.Account),
			Asset:                p.addr(rec.Asset),
			FlowRate:             p.int(rec.FlowRate),
			Active:               rec.Active,
			ExecutedAt:           rec.ExecutedAt,
			PriceCumulativeStart: p.int(rec.PriceCumulativeStart),
			Deposit:              p.int(rec.Deposit),
		})
	}
	for _, b := range in.Liquidity {
		out.Liquidity = append(out.Liquidity, Balance{Account: p.addr(b.Account), Amount: p.int(b.Amount)})
	}
	for _, b := range in.Settled {
		out.Settled = append(out.Settled, AssetBalance{Account: p.addr(b.Account), Asset: p.addr(b.Asset), Amount: p.int(b.Amount)})
	}
	if p.err != nil {
		return fmt.Errorf("decode snapshot: %w", p.err)
	}
	*s = out
	return nil
}

// parser keeps the first error so field decoding reads linearly.
type parser struct {
	err error
}

func (p *parser) int(value string) *big.Int {
	v, err := model.ParseBigInt(value)
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		return big.NewInt(0)
	}
	return v
}

func (p *parser) addr(value string) common.Address {
	if !common.IsHexAddress(value) {
		if p.err == nil {
			p.err = fmt.Errorf("invalid address: %s", value)
		}
		return common.Address{}
	}
	return common.HexToAddress(value)
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
