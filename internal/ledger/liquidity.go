package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swirlPool/internal/fixedpoint"
	"swirlPool/internal/model"
)

var minimumLiquidity = big.NewInt(MinimumLiquidity)

// Deposit transfers a lump sum of asset into the pool's holdings. The amount
// is picked up by the next Mint.
func (l *Ledger) Deposit(asset common.Address, amount *big.Int) error {
	return l.atomic("deposit", func(tx *txn) error {
		if err := l.requireAsset(asset); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("deposit amount must be positive")
		}
		balance := l.balanceOf(asset)
		balance.Add(balance, amount)
		return nil
	})
}

// LiquidityOf returns the account's LP balance.
func (l *Ledger) LiquidityOf(account common.Address) *big.Int {
	if v, ok := l.liquidity[account]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

// TotalLiquidity returns the LP supply held by accounts.
func (l *Ledger) TotalLiquidity() *big.Int {
	return new(big.Int).Set(l.state.TotalLiquidity)
}

// Mint credits to with liquidity for everything deposited since the last
// mint and returns the minted amount.
func (l *Ledger) Mint(to common.Address, now uint64) (*big.Int, error) {
	var minted *big.Int
	err := l.atomic("mint", func(tx *txn) error {
		if err := tx.sync(now); err != nil {
			return err
		}
		s := &l.state
		amount0 := new(big.Int).Sub(s.Balance0, s.Reserve0)
		amount1 := new(big.Int).Sub(s.Balance1, s.Reserve1)

		liquidity := new(big.Int)
		if s.TotalLiquidity.Sign() == 0 {
			if amount0.Sign() > 0 && amount1.Sign() > 0 {
				liquidity.Sqrt(new(big.Int).Mul(amount0, amount1))
				liquidity.Sub(liquidity, minimumLiquidity)
			}
		} else if s.Reserve0.Sign() > 0 && s.Reserve1.Sign() > 0 {
			l0 := new(big.Int).Mul(amount0, s.TotalLiquidity)
			l0.Quo(l0, s.Reserve0)
			l1 := new(big.Int).Mul(amount1, s.TotalLiquidity)
			l1.Quo(l1, s.Reserve1)
			liquidity = minInt(l0, l1)
		}
		if liquidity.Sign() <= 0 {
			return ErrInsufficientLiquidityMinted
		}
		if s.Balance0.Cmp(fixedpoint.MaxUint112) > 0 || s.Balance1.Cmp(fixedpoint.MaxUint112) > 0 {
			return fmt.Errorf("%w: balance exceeds 112 bits", fixedpoint.ErrOverflow)
		}

		s.Reserve0.Set(s.Balance0)
		s.Reserve1.Set(s.Balance1)
		s.TotalLiquidity.Add(s.TotalLiquidity, liquidity)
		tx.setLiquidity(to, new(big.Int).Add(l.LiquidityOf(to), liquidity))

		tx.emit(model.EventMint, now, model.MintEventData{
			To:        to.Hex(),
			Amount0:   amount0.String(),
			Amount1:   amount1.String(),
			Liquidity: liquidity.String(),
		})
		l.logger.Info("minted",
			zap.String("to", to.Hex()),
			zap.String("liquidity", liquidity.String()),
			zap.String("amount0", amount0.String()),
			zap.String("amount1", amount1.String()),
		)
		minted = liquidity
		return nil
	})
	return minted, err
}

// Burn redeems the account's full LP balance pro rata against the supply
// plus the burnt floor and returns the released amounts.
func (l *Ledger) Burn(account common.Address, now uint64) (*big.Int, *big.Int, error) {
	var out0, out1 *big.Int
	err := l.atomic("burn", func(tx *txn) error {
		if err := tx.sync(now); err != nil {
			return err
		}
		s := &l.state
		liquidity := l.LiquidityOf(account)
		if liquidity.Sign() == 0 || s.TotalLiquidity.Sign() == 0 {
			return ErrInsufficientLiquidityBurned
		}
		// the burnt floor keeps its share of the reserves
		supply := new(big.Int).Add(s.TotalLiquidity, minimumLiquidity)
		amount0 := new(big.Int).Mul(liquidity, s.Reserve0)
		amount0.Quo(amount0, supply)
		amount1 := new(big.Int).Mul(liquidity, s.Reserve1)
		amount1.Quo(amount1, supply)
		if amount0.Sign() == 0 || amount1.Sign() == 0 {
			return ErrInsufficientLiquidityBurned
		}

		s.Reserve0.Sub(s.Reserve0, amount0)
		s.Reserve1.Sub(s.Reserve1, amount1)
		s.Balance0.Sub(s.Balance0, amount0)
		s.Balance1.Sub(s.Balance1, amount1)
		s.TotalLiquidity.Sub(s.TotalLiquidity, liquidity)
		tx.setLiquidity(account, big.NewInt(0))

		tx.emit(model.EventBurn, now, model.BurnEventData{
			To:        account.Hex(),
			Amount0:   amount0.String(),
			Amount1:   amount1.String(),
			Liquidity: liquidity.String(),
		})
		l.logger.Info("burned",
			zap.String("account", account.Hex()),
			zap.String("liquidity", liquidity.String()),
			zap.String("amount0", amount0.String()),
			zap.String("amount1", amount1.String()),
		)
		out0, out1 = amount0, amount1
		return nil
	})
	return out0, out1, err
}

// TransferLiquidity moves LP balance between accounts.
func (l *Ledger) TransferLiquidity(from, to common.Address, amount *big.Int) error {
	return l.atomic("transfer_liquidity", func(tx *txn) error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("transfer amount must be positive")
		}
		balance := l.LiquidityOf(from)
		if balance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: liquidity %s < %s", ErrInsufficientBalance, balance, amount)
		}
		if from == to {
			return nil
		}
		tx.setLiquidity(from, balance.Sub(balance, amount))
		tx.setLiquidity(to, new(big.Int).Add(l.LiquidityOf(to), amount))
		return nil
	})
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
