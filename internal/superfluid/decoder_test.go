package superfluid

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"swirlPool/internal/model"
)

var (
	pool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token  = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	sender = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestDecoderLifecycle(t *testing.T) {
	decoder, err := NewDecoder(pool)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	steps := []struct {
		rate int64
		kind model.FlowKind
	}{
		{rate: 1000, kind: model.FlowCreated},
		{rate: 2500, kind: model.FlowUpdated},
		{rate: 0, kind: model.FlowTerminated},
		{rate: 40, kind: model.FlowCreated},
	}
	for i, step := range steps {
		log := flowLog(t, token, sender, pool, big.NewInt(step.rate), uint64(100+i))
		n, ok, err := decoder.Decode(log)
		if err != nil {
			t.Fatalf("decode step %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("step %d skipped", i)
		}
		if n.Kind != step.kind {
			t.Fatalf("step %d kind %s, want %s", i, n.Kind, step.kind)
		}
		if n.FlowRate.Int64() != step.rate || n.Account != sender || n.Asset != token {
			t.Fatalf("step %d notification mismatch: %+v", i, n)
		}
		if n.Timestamp != uint64(100+i) {
			t.Fatalf("step %d timestamp %d", i, n.Timestamp)
		}
	}
}

func TestDecoderSkipsOtherReceivers(t *testing.T) {
	decoder, err := NewDecoder(pool)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	_, ok, err := decoder.Decode(flowLog(t, token, sender, other, big.NewInt(5), 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok {
		t.Fatalf("expected log for other receiver to be skipped")
	}
}

func TestDecoderSeedClassifiesUpdate(t *testing.T) {
	decoder, err := NewDecoder(pool)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	decoder.Seed([]model.FlowRecord{{Account: sender, Asset: token, FlowRate: big.NewInt(9), Active: true}})
	n, _, err := decoder.Decode(flowLog(t, token, sender, pool, big.NewInt(10), 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Kind != model.FlowUpdated {
		t.Fatalf("kind %s, want update", n.Kind)
	}
}

func TestDecoderRejectsMalformed(t *testing.T) {
	decoder, err := NewDecoder(pool)
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	log := flowLog(t, token, sender, pool, big.NewInt(5), 1)
	log.Topics = log.Topics[:2]
	if _, _, err := decoder.Decode(log); err == nil {
		t.Fatalf("expected topic count error")
	}
	if _, _, err := decoder.Decode(model.LogRecord{Topics: []string{common.Hash{}.Hex()}}); err == nil {
		t.Fatalf("expected unsupported topic error")
	}
	if len(decoder.Topics()) != 4 || decoder.Topics()[3][0] != common.BytesToHash(pool.Bytes()) {
		t.Fatalf("receiver filter mismatch")
	}
}

func flowLog(t *testing.T, token, sender, receiver common.Address, rate *big.Int, ts uint64) model.LogRecord {
	t.Helper()
	parsed, err := CFAABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	event := parsed.Events["FlowUpdated"]
	data, err := event.Inputs.NonIndexed().Pack(rate, big.NewInt(-1), new(big.Int).Set(rate), []byte{})
	if err != nil {
		t.Fatalf("pack flow: %v", err)
	}
	return model.LogRecord{
		ChainID:     1,
		BlockNumber: ts,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(ts)).Hex(),
		Address:     common.HexToAddress("0xcfa").Hex(),
		Topics: []string{
			event.ID.Hex(),
			common.BytesToHash(token.Bytes()).Hex(),
			common.BytesToHash(sender.Bytes()).Hex(),
			common.BytesToHash(receiver.Bytes()).Hex(),
		},
		Data:      hexutil.Encode(data),
		Timestamp: ts,
	}
}
