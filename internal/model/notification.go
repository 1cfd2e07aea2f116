package model

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FlowKind names a streaming-protocol lifecycle notification.
type FlowKind string

const (
	FlowCreated    FlowKind = "FlowCreated"
	FlowUpdated    FlowKind = "FlowUpdated"
	FlowTerminated FlowKind = "FlowTerminated"
)

// ParseFlowKind accepts the canonical names case-insensitively.
func ParseFlowKind(value string) (FlowKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "flowcreated", "created":
		return FlowCreated, nil
	case "flowupdated", "updated":
		return FlowUpdated, nil
	case "flowterminated", "terminated", "deleted":
		return FlowTerminated, nil
	default:
		return "", fmt.Errorf("unsupported flow kind: %s", value)
	}
}

// FlowNotification is a lifecycle callback from the streaming protocol.
type FlowNotification struct {
	Kind      FlowKind
	Account   common.Address
	Asset     common.Address
	FlowRate  *big.Int
	Deposit   *big.Int
	Timestamp uint64
}

// FlowNotificationRecord is the JSONL representation of a FlowNotification.
type FlowNotificationRecord struct {
	Kind      string `json:"kind"`
	Account   string `json:"account"`
	Asset     string `json:"asset"`
	FlowRate  string `json:"flow_rate,omitempty"`
	Deposit   string `json:"deposit,omitempty"`
	Timestamp uint64 `json:"timestamp"`
	TxHash    string `json:"tx_hash,omitempty"`
}

// Record converts the notification into its JSONL form.
func (n FlowNotification) Record() FlowNotificationRecord {
	rec := FlowNotificationRecord{
		Kind:      string(n.Kind),
		Account:   n.Account.Hex(),
		Asset:     n.Asset.Hex(),
		Timestamp: n.Timestamp,
	}
	if n.FlowRate != nil {
		rec.FlowRate = n.FlowRate.String()
	}
	if n.Deposit != nil {
		rec.Deposit = n.Deposit.String()
	}
	return rec
}

// Notification parses a JSONL record back into a FlowNotification.
func (r FlowNotificationRecord) Notification() (FlowNotification, error) {
	kind, err := ParseFlowKind(r.Kind)
	if err != nil {
		return FlowNotification{}, err
	}
	if !common.IsHexAddress(r.Account) {
		return FlowNotification{}, fmt.Errorf("invalid account: %s", r.Account)
	}
	if !common.IsHexAddress(r.Asset) {
		return FlowNotification{}, fmt.Errorf("invalid asset: %s", r.Asset)
	}
	rate, err := ParseBigInt(r.FlowRate)
	if err != nil {
		return FlowNotification{}, fmt.Errorf("flow rate: %w", err)
	}
	deposit, err := ParseBigInt(r.Deposit)
	if err != nil {
		return FlowNotification{}, fmt.Errorf("deposit: %w", err)
	}
	return FlowNotification{
		Kind:      kind,
		Account:   common.HexToAddress(r.Account),
		Asset:     common.HexToAddress(r.Asset),
		FlowRate:  rate,
		Deposit:   deposit,
		Timestamp: r.Timestamp,
	}, nil
}

// ParseBigInt parses a base-10 integer; empty input is zero.
func ParseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
