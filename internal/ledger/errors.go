package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAsset                = errors.New("unknown asset")
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
	ErrInsufficientBalance         = errors.New("insufficient balance")
)

// OpError records the ledger operation that failed and why.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}
