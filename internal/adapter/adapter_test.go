package adapter

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swirlPool/internal/flow"
	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
)

var (
	token0 = common.HexToAddress("0x0000000000000000000000000000000000001000")
	token1 = common.HexToAddress("0x0000000000000000000000000000000000002000")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

type memoryJournal struct {
	entries []model.JournalEntry
	err     error
}

func (j *memoryJournal) Append(entry model.JournalEntry) (uint64, error) {
	if j.err != nil {
		return 0, j.err
	}
	j.entries = append(j.entries, entry)
	return uint64(len(j.entries)), nil
}

func newAdapter(t *testing.T, journal Journal) (*Adapter, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New(ledger.Config{Address: common.HexToAddress("0xff"), Token0: token0, Token1: token1}, nil, nil)
	require.NoError(t, err)
	return New(l, journal, nil), l
}

func TestCallbacksDriveLifecycle(t *testing.T) {
	j := &memoryJournal{}
	a, l := newAdapter(t, j)
	ctx := context.Background()

	require.NoError(t, a.OnFlowCreated(ctx, bob, token0, big.NewInt(10), 100))
	assert.Equal(t, flow.StateActive, l.FlowState(bob))
	require.NoError(t, a.OnFlowUpdated(ctx, bob, token0, big.NewInt(20), 150))
	assert.Equal(t, int64(20), l.State().Token0GlobalFlowRate.Int64())
	require.NoError(t, a.OnFlowTerminated(ctx, bob, token0, 200))
	assert.Equal(t, flow.StateTerminated, l.FlowState(bob))
	assert.Equal(t, int64(0), l.State().Token0GlobalFlowRate.Int64())

	require.Len(t, j.entries, 3)
	assert.Equal(t, model.OpFlow, j.entries[0].Op)
	assert.Equal(t, uint64(3), l.JournalIndex())
	_, _, ts := l.Reserves()
	assert.Equal(t, uint64(200), ts)
}

func TestUnknownAssetRejected(t *testing.T) {
	j := &memoryJournal{}
	a, _ := newAdapter(t, j)
	err := a.OnFlowCreated(context.Background(), bob, common.HexToAddress("0x3000"), big.NewInt(1), 1)
	assert.ErrorIs(t, err, ledger.ErrUnknownAsset)
	assert.Empty(t, j.entries)
}

func TestStaleNotificationRejected(t *testing.T) {
	a, l := newAdapter(t, nil)
	ctx := context.Background()
	require.NoError(t, a.OnFlowCreated(ctx, bob, token0, big.NewInt(10), 100))
	err := a.OnFlowUpdated(ctx, bob, token0, big.NewInt(5), 90)
	assert.ErrorIs(t, err, flow.ErrStaleUpdate)
	rec, _ := l.FlowRecord(bob)
	assert.Equal(t, int64(10), rec.FlowRate.Int64())
}

func TestJournalFailureStopsApply(t *testing.T) {
	j := &memoryJournal{err: errors.New("closed")}
	a, l := newAdapter(t, j)
	err := a.OnFlowCreated(context.Background(), bob, token0, big.NewInt(10), 100)
	require.Error(t, err)
	assert.Equal(t, flow.StateNone, l.FlowState(bob))
}

func TestCanceledContext(t *testing.T) {
	a, _ := newAdapter(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.OnFlowCreated(ctx, bob, token0, big.NewInt(10), 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentNotificationsSerialize(t *testing.T) {
	a, l := newAdapter(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		account := common.BigToAddress(big.NewInt(int64(0x100 + i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.OnFlowCreated(ctx, account, token1, big.NewInt(1), 100)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(16), l.State().Token1GlobalFlowRate.Int64())
}

func TestApplyJournalsLedgerOperations(t *testing.T) {
	j := &memoryJournal{}
	a, l := newAdapter(t, j)
	ctx := context.Background()

	e18 := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	require.NoError(t, a.Apply(ctx, ledger.DepositEntry(token0, e18)))
	require.NoError(t, a.Apply(ctx, ledger.DepositEntry(token1, e18)))
	require.NoError(t, a.Apply(ctx, ledger.AccountEntry(model.OpMint, bob, 100)))
	assert.Positive(t, l.LiquidityOf(bob).Sign())

	err := a.Apply(ctx, ledger.AccountEntry(model.OpMint, bob, 100))
	assert.ErrorIs(t, err, ledger.ErrInsufficientLiquidityMinted)

	require.Len(t, j.entries, 4)
	assert.Equal(t, uint64(4), l.JournalIndex())
}
