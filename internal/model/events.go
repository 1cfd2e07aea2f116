package model

// MintEventData is emitted when liquidity is minted.
type MintEventData struct {
	To        string `json:"to"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Liquidity string `json:"liquidity"`
}

// BurnEventData is emitted when an account burns its liquidity.
type BurnEventData struct {
	To        string `json:"to"`
	Amount0   string `json:"amount0"`
	Amount1   string `json:"amount1"`
	Liquidity string `json:"liquidity"`
}

// SyncEventData carries reserves and accumulators after a sync advanced time.
type SyncEventData struct {
	Reserve0             string `json:"reserve0"`
	Reserve1             string `json:"reserve1"`
	Price0CumulativeLast string `json:"price0_cumulative_last"`
	Price1CumulativeLast string `json:"price1_cumulative_last"`
	TimeElapsed          uint64 `json:"time_elapsed"`
}

// ClaimEventData is emitted when accrued value leaves the pool reserves.
type ClaimEventData struct {
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// TransferEventData is emitted when settled accrual moves between accounts.
type TransferEventData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// FlowEventData is emitted for every applied flow transition.
type FlowEventData struct {
	Kind                 string `json:"kind"`
	Account              string `json:"account"`
	Asset                string `json:"asset"`
	FlowRate             string `json:"flow_rate"`
	PriceCumulativeStart string `json:"price_cumulative_start"`
	Settled              string `json:"settled,omitempty"`
}
