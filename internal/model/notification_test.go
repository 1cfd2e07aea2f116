package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestFlowNotificationRecordStringFields(t *testing.T) {
	n := FlowNotification{
		Kind:      FlowCreated,
		Account:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Asset:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		FlowRate:  big.NewInt(100000000000000),
		Deposit:   big.NewInt(42),
		Timestamp: 1700000000,
	}

	data, err := json.Marshal(n.Record())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := raw["flow_rate"].(string); !ok {
		t.Fatalf("flow_rate should be string")
	}

	var rec FlowNotificationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal record failed: %v", err)
	}
	back, err := rec.Notification()
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	if back.Kind != FlowCreated || back.Account != n.Account || back.Asset != n.Asset {
		t.Fatalf("identity mismatch: %+v", back)
	}
	if back.FlowRate.Cmp(n.FlowRate) != 0 || back.Deposit.Cmp(n.Deposit) != 0 {
		t.Fatalf("amount mismatch: %+v", back)
	}
}

func TestFlowNotificationRecordInvalid(t *testing.T) {
	cases := []FlowNotificationRecord{
		{Kind: "FlowPaused", Account: "0x1111111111111111111111111111111111111111", Asset: "0x2222222222222222222222222222222222222222"},
		{Kind: "FlowCreated", Account: "nope", Asset: "0x2222222222222222222222222222222222222222"},
		{Kind: "FlowCreated", Account: "0x1111111111111111111111111111111111111111", Asset: "0x2222222222222222222222222222222222222222", FlowRate: "1.5"},
	}
	for _, rec := range cases {
		if _, err := rec.Notification(); err == nil {
			t.Fatalf("expected error for %+v", rec)
		}
	}
}

func TestPoolStateCloneIsDeep(t *testing.T) {
	p := NewPoolState(common.Address{1}, common.Address{2}, common.Address{3})
	p.Reserve0.SetInt64(10)

	c := p.Clone()
	c.Reserve0.SetInt64(20)

	if p.Reserve0.Int64() != 10 {
		t.Fatalf("clone shares reserve0")
	}
	if p.Opposite(p.Token0) != p.Token1 || p.Opposite(p.Token1) != p.Token0 {
		t.Fatalf("opposite mismatch")
	}
}
