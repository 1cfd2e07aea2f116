package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolState is the reserve and price-oracle record of a two-asset pool.
type PoolState struct {
	Address              common.Address
	Token0               common.Address
	Token1               common.Address
	Reserve0             *big.Int
	Reserve1             *big.Int
	Balance0             *big.Int
	Balance1             *big.Int
	Price0CumulativeLast *big.Int
	Price1CumulativeLast *big.Int
	BlockTimestampLast   uint64
	Token0GlobalFlowRate *big.Int
	Token1GlobalFlowRate *big.Int
	TotalLiquidity       *big.Int
}

// NewPoolState returns an empty pool for a sorted token pair.
func NewPoolState(address, token0, token1 common.Address) PoolState {
	return PoolState{
		Address:              address,
		Token0:               token0,
		Token1:               token1,
		Reserve0:             big.NewInt(0),
		Reserve1:             big.NewInt(0),
		Balance0:             big.NewInt(0),
		Balance1:             big.NewInt(0),
		Price0CumulativeLast: big.NewInt(0),
		Price1CumulativeLast: big.NewInt(0),
		Token0GlobalFlowRate: big.NewInt(0),
		Token1GlobalFlowRate: big.NewInt(0),
		TotalLiquidity:       big.NewInt(0),
	}
}

// Clone returns a deep copy; big.Int fields are never shared.
func (p PoolState) Clone() PoolState {
	out := p
	out.Reserve0 = cloneInt(p.Reserve0)
	out.Reserve1 = cloneInt(p.Reserve1)
	out.Balance0 = cloneInt(p.Balance0)
	out.Balance1 = cloneInt(p.Balance1)
	out.Price0CumulativeLast = cloneInt(p.Price0CumulativeLast)
	out.Price1CumulativeLast = cloneInt(p.Price1CumulativeLast)
	out.Token0GlobalFlowRate = cloneInt(p.Token0GlobalFlowRate)
	out.Token1GlobalFlowRate = cloneInt(p.Token1GlobalFlowRate)
	out.TotalLiquidity = cloneInt(p.TotalLiquidity)
	return out
}

// HasAsset reports whether asset is one of the pool's two tokens.
func (p PoolState) HasAsset(asset common.Address) bool {
	return asset == p.Token0 || asset == p.Token1
}

// Opposite returns the other token of the pair.
func (p PoolState) Opposite(asset common.Address) common.Address {
	if asset == p.Token0 {
		return p.Token1
	}
	return p.Token0
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
