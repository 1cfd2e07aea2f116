package model

import "encoding/json"

// LedgerEventRecord is the JSON representation of a LedgerEvent read back
// from an event log.
type LedgerEventRecord struct {
	Pool      string          `json:"pool"`
	EventName string          `json:"event_name"`
	Timestamp uint64          `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
}
