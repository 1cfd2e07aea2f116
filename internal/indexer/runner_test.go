package indexer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swirlPool/internal/flow"
	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
	"swirlPool/internal/superfluid"
)

var (
	cfaAddr  = common.HexToAddress("0x00000000000000000000000000000000000cfa00")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	tokenA   = common.HexToAddress("0x0000000000000000000000000000000000001000")
	sender   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type fakeChain struct {
	logs    []types.Log
	filters int
	failN   int
}

func (c *fakeChain) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(10), nil
}

func (c *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return 20, nil
}

func (c *fakeChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 1000 + number*10, nil
}

func (c *fakeChain) FilterLogs(ctx context.Context, from, to uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	c.filters++
	if c.failN > 0 {
		c.failN--
		return nil, errors.New("rpc unavailable")
	}
	var out []types.Log
	for _, log := range c.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return nil, errors.New("not supported")
}

type recordingHandler struct {
	got    []model.FlowNotification
	reject map[uint64]error
}

func (h *recordingHandler) Handle(ctx context.Context, n model.FlowNotification) (flow.Transition, error) {
	if err, ok := h.reject[n.Timestamp]; ok {
		return flow.Transition{}, err
	}
	h.got = append(h.got, n)
	return flow.Transition{}, nil
}

type memoryCheckpoint struct {
	last  uint64
	ok    bool
	saves []uint64
	trace *[]string
}

func (c *memoryCheckpoint) Load(ctx context.Context) (uint64, bool, error) {
	return c.last, c.ok, nil
}

func (c *memoryCheckpoint) Save(ctx context.Context, block uint64) error {
	c.last, c.ok = block, true
	c.saves = append(c.saves, block)
	if c.trace != nil {
		*c.trace = append(*c.trace, "checkpoint")
	}
	return nil
}

type memoryErrors struct {
	errs []model.DecodeError
}

func (m *memoryErrors) PutDecodeErrors(errs []model.DecodeError) error {
	m.errs = append(m.errs, errs...)
	return nil
}

func cfaLog(t *testing.T, block uint64, index uint, receiver common.Address, rate int64) types.Log {
	t.Helper()
	parsed, err := superfluid.CFAABI()
	require.NoError(t, err)
	event := parsed.Events["FlowUpdated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(rate), big.NewInt(0), big.NewInt(rate), []byte{})
	require.NoError(t, err)
	return types.Log{
		Address: cfaAddr,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(tokenA.Bytes()),
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(receiver.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
	}
}

func newTestRunner(t *testing.T, chain Chain, handler Handler, cfg RunConfig, opts ...Option) *Runner {
	t.Helper()
	decoder, err := superfluid.NewDecoder(poolAddr)
	require.NoError(t, err)
	cfg.CFA = cfaAddr
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 5
	}
	return NewRunner(cfg, chain, decoder, handler, nil, opts...)
}

func TestRunnerAppliesLifecycle(t *testing.T) {
	open := cfaLog(t, 2, 0, poolAddr, 10)
	chain := &fakeChain{logs: []types.Log{
		open,
		open,
		cfaLog(t, 6, 1, poolAddr, 25),
		cfaLog(t, 7, 0, common.HexToAddress("0xbeef"), 99),
		cfaLog(t, 12, 0, poolAddr, 0),
	}}
	handler := &recordingHandler{}
	var trace []string
	cp := &memoryCheckpoint{trace: &trace}
	persist := func(ctx context.Context) error {
		trace = append(trace, "persist")
		return nil
	}

	runner := newTestRunner(t, chain, handler, RunConfig{FromBlock: 1, ToBlock: 15},
		WithCheckpoint(cp), WithPersist(persist))
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, handler.got, 3)
	assert.Equal(t, model.FlowCreated, handler.got[0].Kind)
	assert.Equal(t, model.FlowUpdated, handler.got[1].Kind)
	assert.Equal(t, model.FlowTerminated, handler.got[2].Kind)
	assert.Equal(t, uint64(1020), handler.got[0].Timestamp)
	assert.Equal(t, tokenA, handler.got[0].Asset)
	assert.Equal(t, sender, handler.got[0].Account)
	assert.Equal(t, 0, handler.got[1].FlowRate.Cmp(big.NewInt(25)))

	assert.Equal(t, []uint64{5, 10, 15}, cp.saves)
	assert.Equal(t, []string{"persist", "checkpoint", "persist", "checkpoint", "persist", "checkpoint"}, trace)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	chain := &fakeChain{logs: []types.Log{
		cfaLog(t, 2, 0, poolAddr, 10),
		cfaLog(t, 9, 0, poolAddr, 20),
	}}
	handler := &recordingHandler{}
	cp := &memoryCheckpoint{last: 5, ok: true}

	runner := newTestRunner(t, chain, handler, RunConfig{FromBlock: 1, ToBlock: 10}, WithCheckpoint(cp))
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, handler.got, 1)
	assert.Equal(t, uint64(1090), handler.got[0].Timestamp)
	assert.Equal(t, []uint64{10}, cp.saves)
}

func TestRunnerRecordsRejections(t *testing.T) {
	chain := &fakeChain{logs: []types.Log{
		cfaLog(t, 2, 0, poolAddr, 10),
		cfaLog(t, 3, 0, poolAddr, 20),
	}}
	handler := &recordingHandler{reject: map[uint64]error{
		1020: &ledger.OpError{Op: "apply_flow", Err: flow.ErrStaleUpdate},
	}}
	sink := &memoryErrors{}

	runner := newTestRunner(t, chain, handler, RunConfig{FromBlock: 1, ToBlock: 4}, WithErrorSink(sink))
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, handler.got, 1)
	require.Len(t, sink.errs, 1)
	assert.Equal(t, uint64(2), sink.errs[0].BlockNumber)
	assert.Equal(t, string(model.FlowCreated), sink.errs[0].Kind)
	assert.Contains(t, sink.errs[0].Error, "stale")
}

func TestRunnerStopsOnHandlerFailure(t *testing.T) {
	chain := &fakeChain{logs: []types.Log{cfaLog(t, 2, 0, poolAddr, 10)}}
	handler := &recordingHandler{reject: map[uint64]error{1020: errors.New("journal full")}}
	cp := &memoryCheckpoint{}

	runner := newTestRunner(t, chain, handler, RunConfig{FromBlock: 1, ToBlock: 4}, WithCheckpoint(cp))
	err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal full")
	assert.Empty(t, cp.saves)
}

func TestRunnerRetriesFilterLogs(t *testing.T) {
	chain := &fakeChain{logs: []types.Log{cfaLog(t, 2, 0, poolAddr, 10)}, failN: 2}
	handler := &recordingHandler{}

	runner := newTestRunner(t, chain, handler, RunConfig{FromBlock: 1, ToBlock: 4, MaxRetries: 3, RetryBackoff: 1})
	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, 3, chain.filters)
	assert.Len(t, handler.got, 1)
}

func TestRunnerValidatesConfig(t *testing.T) {
	decoder, err := superfluid.NewDecoder(poolAddr)
	require.NoError(t, err)

	runner := NewRunner(RunConfig{BatchSize: 1}, &fakeChain{}, decoder, &recordingHandler{}, nil)
	assert.Error(t, runner.Run(context.Background()))

	runner = NewRunner(RunConfig{CFA: cfaAddr}, &fakeChain{}, decoder, &recordingHandler{}, nil)
	assert.Error(t, runner.Run(context.Background()))
}
