package superfluid

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"swirlPool/internal/model"
)

// Caller performs read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type flowKey struct {
	sender common.Address
	token  common.Address
}

// Decoder turns CFA FlowUpdated logs addressed to one receiver into flow
// notifications. It remembers the last rate per (sender, token) so the
// lifecycle kind can be derived from a single log.
type Decoder struct {
	cfaABI   abi.ABI
	receiver common.Address

	mu    sync.RWMutex
	rates map[flowKey]*big.Int
}

func NewDecoder(receiver common.Address) (*Decoder, error) {
	parsed, err := CFAABI()
	if err != nil {
		return nil, err
	}
	return &Decoder{
		cfaABI:   parsed,
		receiver: receiver,
		rates:    make(map[flowKey]*big.Int),
	}, nil
}

// Receiver is the pool address the decoder filters for.
func (d *Decoder) Receiver() common.Address {
	return d.receiver
}

// Topic0 returns the FlowUpdated event id.
func (d *Decoder) Topic0() common.Hash {
	return d.cfaABI.Events["FlowUpdated"].ID
}

// Topics is the log filter selecting FlowUpdated logs for the receiver.
func (d *Decoder) Topics() [][]common.Hash {
	return [][]common.Hash{{d.Topic0()}, nil, nil, {common.BytesToHash(d.receiver.Bytes())}}
}

// Seed primes the rate cache, typically from restored flow records.
func (d *Decoder) Seed(records []model.FlowRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range records {
		if rec.Active {
			d.rates[flowKey{sender: rec.Account, token: rec.Asset}] = new(big.Int).Set(rec.FlowRate)
		}
	}
}

// CanDecode checks if the topic0 is FlowUpdated.
func (d *Decoder) CanDecode(topic0 string) bool {
	return topic0 != "" && strings.EqualFold(topic0, d.Topic0().Hex())
}

// Decode converts a log into a notification. ok is false when the log is a
// FlowUpdated for another receiver.
func (d *Decoder) Decode(log model.LogRecord) (n model.FlowNotification, ok bool, err error) {
	if !d.CanDecode(log.Topic0()) {
		return model.FlowNotification{}, false, fmt.Errorf("unsupported topic0: %s", log.Topic0())
	}
	event := d.cfaABI.Events["FlowUpdated"]
	indexedTopics, err := parseIndexedTopics(event, log.Topics)
	if err != nil {
		return model.FlowNotification{}, false, err
	}

	var indexed struct {
		Token    common.Address
		Sender   common.Address
		Receiver common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(event.Inputs), indexedTopics); err != nil {
		return model.FlowNotification{}, false, fmt.Errorf("parse topics: %w", err)
	}
	if indexed.Receiver != d.receiver {
		return model.FlowNotification{}, false, nil
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return model.FlowNotification{}, false, err
	}
	if len(values) != 4 {
		return model.FlowNotification{}, false, fmt.Errorf("unexpected flow values: %d", len(values))
	}
	rate, err := asBigInt(values[0])
	if err != nil {
		return model.FlowNotification{}, false, err
	}
	if rate.Sign() < 0 {
		return model.FlowNotification{}, false, fmt.Errorf("negative flow rate: %s", rate)
	}

	key := flowKey{sender: indexed.Sender, token: indexed.Token}
	d.mu.Lock()
	previous, known := d.rates[key]
	kind := classify(previous, known, rate)
	if rate.Sign() == 0 {
		delete(d.rates, key)
	} else {
		d.rates[key] = new(big.Int).Set(rate)
	}
	d.mu.Unlock()

	return model.FlowNotification{
		Kind:      kind,
		Account:   indexed.Sender,
		Asset:     indexed.Token,
		FlowRate:  rate,
		Timestamp: log.Timestamp,
	}, true, nil
}

func classify(previous *big.Int, known bool, rate *big.Int) model.FlowKind {
	switch {
	case rate.Sign() == 0:
		return model.FlowTerminated
	case !known || previous.Sign() == 0:
		return model.FlowCreated
	default:
		return model.FlowUpdated
	}
}

// FetchDeposit reads the security deposit of a flow via getFlow.
func FetchDeposit(ctx context.Context, caller Caller, cfa, token, sender, receiver common.Address, block *big.Int) (*big.Int, error) {
	parsed, err := CFAABI()
	if err != nil {
		return nil, fmt.Errorf("parse cfa abi: %w", err)
	}
	data, err := parsed.Pack("getFlow", token, sender, receiver)
	if err != nil {
		return nil, fmt.Errorf("pack getFlow: %w", err)
	}
	resp, err := caller.CallContract(ctx, ethereum.CallMsg{To: &cfa, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call getFlow: %w", err)
	}
	values, err := parsed.Unpack("getFlow", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack getFlow: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected getFlow values: %d", len(values))
	}
	return asBigInt(values[2])
}

func parseIndexedTopics(event abi.Event, topics []string) ([]common.Hash, error) {
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	out := make([]common.Hash, 0, indexedCount)
	for _, topic := range topics[1:] {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
