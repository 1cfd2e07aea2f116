package model

// DecodeError records an input line or chain log that could not be turned
// into a flow notification, or a notification the ledger rejected.
type DecodeError struct {
	BlockNumber uint64 `json:"block_number,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index,omitempty"`
	Line        int    `json:"line,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Account     string `json:"account,omitempty"`
	Error       string `json:"error"`
}
