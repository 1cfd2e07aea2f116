package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FlowRecord is an account's active or terminated stream into a pool.
// PriceCumulativeStart snapshots the accumulator of the streamed asset's price
// (expressed in the opposite asset) at ExecutedAt.
type FlowRecord struct {
	Account              common.Address
	Asset                common.Address
	FlowRate             *big.Int
	Active               bool
	ExecutedAt           uint64
	PriceCumulativeStart *big.Int
	Deposit              *big.Int
}

// Clone returns a deep copy of the record.
func (r FlowRecord) Clone() FlowRecord {
	out := r
	out.FlowRate = cloneInt(r.FlowRate)
	out.PriceCumulativeStart = cloneInt(r.PriceCumulativeStart)
	out.Deposit = cloneInt(r.Deposit)
	return out
}
