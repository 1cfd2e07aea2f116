package model

// Journal operations.
const (
	OpFlow              = "flow"
	OpDeposit           = "deposit"
	OpMint              = "mint"
	OpBurn              = "burn"
	OpClaim             = "claim"
	OpTransfer          = "transfer"
	OpTransferLiquidity = "transfer_liquidity"
	OpSync              = "sync"
)

// JournalEntry is one ledger input as written to the write-ahead journal.
type JournalEntry struct {
	Op        string                  `json:"op"`
	Timestamp uint64                  `json:"timestamp"`
	Account   string                  `json:"account,omitempty"`
	To        string                  `json:"to,omitempty"`
	Asset     string                  `json:"asset,omitempty"`
	Amount    string                  `json:"amount,omitempty"`
	Flow      *FlowNotificationRecord `json:"flow,omitempty"`
}

// FlowEntry wraps a notification for the journal.
func FlowEntry(n FlowNotification) JournalEntry {
	rec := n.Record()
	return JournalEntry{Op: OpFlow, Timestamp: n.Timestamp, Flow: &rec}
}
