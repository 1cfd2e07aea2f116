package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"sort"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"swirlPool/internal/fixedpoint"
	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
)

const priceDigits = 18

var q112 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 112), 0)

// Token is the display metadata of one pool token.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// Summary is a point-in-time view of a pool and its participants.
type Summary struct {
	Pool           string    `json:"pool"`
	Timestamp      uint64    `json:"timestamp"`
	Token0         Token     `json:"token0"`
	Token1         Token     `json:"token1"`
	Reserve0       string    `json:"reserve0"`
	Reserve1       string    `json:"reserve1"`
	SpotPrice0     string    `json:"spot_price0"`
	SpotPrice1     string    `json:"spot_price1"`
	GlobalRate0    string    `json:"global_flow_rate0"`
	GlobalRate1    string    `json:"global_flow_rate1"`
	TotalLiquidity string    `json:"total_liquidity"`
	Accounts       []Account `json:"accounts"`
}

// Account summarizes one participant.
type Account struct {
	Address   string `json:"address"`
	Liquidity string `json:"liquidity"`
	Flow      *Flow  `json:"flow,omitempty"`
	Balance0  string `json:"balance0"`
	Balance1  string `json:"balance1"`
}

// Flow describes an account's stream. AveragePrice is the exact mean price of
// the streamed asset since ExecutedAt; accrual floors it to an integer.
type Flow struct {
	Asset        string `json:"asset"`
	State        string `json:"state"`
	Rate         string `json:"rate"`
	ExecutedAt   uint64 `json:"executed_at"`
	AveragePrice string `json:"average_price,omitempty"`
	Realtime     string `json:"realtime"`
	Deposit      string `json:"deposit,omitempty"`
}

// Build projects the ledger to now and summarizes it. Amounts are scaled by
// each token's decimals.
func Build(l *ledger.Ledger, token0, token1 model.TokenMeta, now uint64) (Summary, error) {
	state, err := l.Projected(now)
	if err != nil {
		return Summary{}, err
	}
	t0 := tokenView(l.Token0(), token0)
	t1 := tokenView(l.Token1(), token1)
	decimalsOf := func(asset common.Address) uint8 {
		if asset == state.Token0 {
			return t0.Decimals
		}
		return t1.Decimals
	}

	s := Summary{
		Pool:           state.Address.Hex(),
		Timestamp:      now,
		Token0:         t0,
		Token1:         t1,
		Reserve0:       Amount(state.Reserve0, t0.Decimals),
		Reserve1:       Amount(state.Reserve1, t1.Decimals),
		SpotPrice0:     spotPrice(state.Reserve1, state.Reserve0, t1.Decimals, t0.Decimals),
		SpotPrice1:     spotPrice(state.Reserve0, state.Reserve1, t0.Decimals, t1.Decimals),
		GlobalRate0:    Amount(state.Token0GlobalFlowRate, t0.Decimals),
		GlobalRate1:    Amount(state.Token1GlobalFlowRate, t1.Decimals),
		TotalLiquidity: Amount(state.TotalLiquidity, 18),
	}

	for _, account := range accounts(l) {
		b0, err := l.BalanceOf(account, state.Token0, now)
		if err != nil {
			return Summary{}, err
		}
		b1, err := l.BalanceOf(account, state.Token1, now)
		if err != nil {
			return Summary{}, err
		}
		entry := Account{
			Address:   account.Hex(),
			Liquidity: Amount(l.LiquidityOf(account), 18),
			Balance0:  Amount(b0, t0.Decimals),
			Balance1:  Amount(b1, t1.Decimals),
		}
		if rec, ok := l.FlowRecord(account); ok {
			realtime, err := l.RealtimeBalanceOf(account, now)
			if err != nil {
				return Summary{}, err
			}
			opposite := state.Opposite(rec.Asset)
			f := &Flow{
				Asset:      rec.Asset.Hex(),
				State:      l.FlowState(account),
				Rate:       Amount(rec.FlowRate, decimalsOf(rec.Asset)),
				ExecutedAt: rec.ExecutedAt,
				Realtime:   Amount(realtime, decimalsOf(opposite)),
			}
			if rec.Active && now > rec.ExecutedAt {
				last := state.Price0CumulativeLast
				if rec.Asset == state.Token1 {
					last = state.Price1CumulativeLast
				}
				f.AveragePrice = averagePrice(last, rec.PriceCumulativeStart, now-rec.ExecutedAt, decimalsOf(opposite), decimalsOf(rec.Asset))
			}
			if rec.Deposit != nil && rec.Deposit.Sign() > 0 {
				f.Deposit = Amount(rec.Deposit, decimalsOf(rec.Asset))
			}
			entry.Flow = f
		}
		s.Accounts = append(s.Accounts, entry)
	}
	return s, nil
}

// Amount renders a raw token amount with the given decimals.
func Amount(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

func spotPrice(numerator, denominator *big.Int, numDecimals, denDecimals uint8) string {
	if numerator.Sign() == 0 || denominator.Sign() == 0 {
		return ""
	}
	ratio, err := fixedpoint.Ratio(numerator, denominator)
	if err != nil {
		return ""
	}
	return scalePrice(decimal.NewFromBigInt(ratio, 0).DivRound(q112, priceDigits), numDecimals, denDecimals)
}

func averagePrice(last, start *big.Int, elapsed uint64, numDecimals, denDecimals uint8) string {
	diff := new(big.Int).Sub(last, start)
	if diff.Sign() <= 0 {
		return ""
	}
	divisor := q112.Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(elapsed), 0))
	return scalePrice(decimal.NewFromBigInt(diff, 0).DivRound(divisor, priceDigits), numDecimals, denDecimals)
}

// scalePrice turns a raw unit ratio into a whole-token ratio.
func scalePrice(raw decimal.Decimal, numDecimals, denDecimals uint8) string {
	return raw.Shift(int32(denDecimals) - int32(numDecimals)).String()
}

func tokenView(address common.Address, meta model.TokenMeta) Token {
	decimals := meta.Decimals
	if meta.Address == "" {
		decimals = 18
	}
	return Token{Address: address.Hex(), Symbol: meta.Symbol, Decimals: decimals}
}

// accounts lists every participant that holds liquidity, a settled balance
// or a flow record, in address order.
func accounts(l *ledger.Ledger) []common.Address {
	snap := l.Snapshot()
	seen := make(map[common.Address]struct{})
	var out []common.Address
	add := func(a common.Address) {
		if _, ok := seen[a]; ok {
			return
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	for _, rec := range snap.Flows {
		add(rec.Account)
	}
	for _, b := range snap.Liquidity {
		add(b.Account)
	}
	for _, b := range snap.Settled {
		add(b.Account)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// WriteJSON writes the summary as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteText writes a human-readable table.
func WriteText(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	sym0, sym1 := label(s.Token0), label(s.Token1)
	fmt.Fprintf(tw, "pool\t%s\n", s.Pool)
	fmt.Fprintf(tw, "timestamp\t%d\n", s.Timestamp)
	fmt.Fprintf(tw, "reserves\t%s %s\t%s %s\n", s.Reserve0, sym0, s.Reserve1, sym1)
	fmt.Fprintf(tw, "spot price\t%s %s/%s\t%s %s/%s\n", orDash(s.SpotPrice0), sym1, sym0, orDash(s.SpotPrice1), sym0, sym1)
	fmt.Fprintf(tw, "flow in\t%s %s/s\t%s %s/s\n", s.GlobalRate0, sym0, s.GlobalRate1, sym1)
	fmt.Fprintf(tw, "liquidity\t%s\n", s.TotalLiquidity)
	if len(s.Accounts) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "account\tliquidity\t%s\t%s\tflow\n", sym0, sym1)
		for _, a := range s.Accounts {
			flowDesc := "-"
			if a.Flow != nil {
				flowDesc = fmt.Sprintf("%s %s/s %s", a.Flow.State, a.Flow.Rate, a.Flow.Asset)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Address, a.Liquidity, a.Balance0, a.Balance1, flowDesc)
		}
	}
	return tw.Flush()
}

func label(t Token) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
