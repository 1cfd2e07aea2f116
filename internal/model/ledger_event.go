package model

// Ledger event names.
const (
	EventMint     = "Mint"
	EventBurn     = "Burn"
	EventSync     = "Sync"
	EventClaim    = "Claim"
	EventTransfer = "Transfer"
	EventFlow     = "Flow"
)

// LedgerEvent is a pool state change enriched with its position in time.
type LedgerEvent struct {
	Pool      string      `json:"pool"`
	EventName string      `json:"event_name"`
	Timestamp uint64      `json:"timestamp"`
	Decoded   interface{} `json:"decoded"`
}
