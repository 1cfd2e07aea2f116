package flow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swirlPool/internal/model"
)

var (
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	token0 = common.HexToAddress("0x0000000000000000000000000000000000001000")
	token1 = common.HexToAddress("0x0000000000000000000000000000000000002000")
)

type settleLog struct {
	calls []model.FlowRecord
	err   error
}

func (s *settleLog) fn(rec model.FlowRecord) error {
	s.calls = append(s.calls, rec)
	return s.err
}

func TestOpenCreatesActiveRecord(t *testing.T) {
	r := NewRegistry()
	var s settleLog

	tr, err := r.OpenOrUpdate(alice, token0, big.NewInt(10), 100, big.NewInt(7), s.fn)
	require.NoError(t, err)
	assert.Equal(t, model.FlowCreated, tr.Kind)
	assert.Equal(t, int64(0), tr.PreviousRate.Int64())
	assert.Empty(t, s.calls)

	rec, ok := r.Get(alice)
	require.True(t, ok)
	assert.True(t, rec.Active)
	assert.Equal(t, uint64(100), rec.ExecutedAt)
	assert.Equal(t, int64(7), rec.PriceCumulativeStart.Int64())
	assert.Equal(t, StateActive, r.State(alice))
}

func TestUpdateSettlesFirst(t *testing.T) {
	r := NewRegistry()
	var s settleLog
	_, err := r.OpenOrUpdate(alice, token0, big.NewInt(10), 100, big.NewInt(7), s.fn)
	require.NoError(t, err)

	tr, err := r.OpenOrUpdate(alice, token0, big.NewInt(25), 160, big.NewInt(50), s.fn)
	require.NoError(t, err)
	require.Len(t, s.calls, 1)
	assert.Equal(t, uint64(100), s.calls[0].ExecutedAt)
	assert.Equal(t, int64(10), tr.PreviousRate.Int64())
	assert.Equal(t, model.FlowUpdated, tr.Kind)

	rec, _ := r.Get(alice)
	assert.Equal(t, int64(25), rec.FlowRate.Int64())
	assert.Equal(t, uint64(160), rec.ExecutedAt)
	assert.Equal(t, int64(50), rec.PriceCumulativeStart.Int64())
}

func TestUpdateSameRateIsNoop(t *testing.T) {
	r := NewRegistry()
	var s settleLog
	_, err := r.OpenOrUpdate(alice, token0, big.NewInt(10), 100, big.NewInt(7), s.fn)
	require.NoError(t, err)

	tr, err := r.OpenOrUpdate(alice, token0, big.NewInt(10), 150, big.NewInt(9), s.fn)
	require.NoError(t, err)
	assert.True(t, tr.Noop)
	assert.Empty(t, s.calls)
	rec, _ := r.Get(alice)
	assert.Equal(t, uint64(100), rec.ExecutedAt)
}

func TestUpdateToZeroTerminates(t *testing.T) {
	r := NewRegistry()
	var s settleLog
	_, err := r.OpenOrUpdate(alice, token0, big.NewInt(10), 100, big.NewInt(7), s.fn)
	require.NoError(t, err)

	tr, err := r.OpenOrUpdate(alice, token0, big.NewInt(0), 120, big.NewInt(9), s.fn)
	require.NoError(t, err)
	assert.Equal(t, model.FlowTerminated, tr.Kind)
	assert.Len(t, s.calls, 1)
	assert.Equal(t, StateTerminated, r.State(alice))
}

func TestRegistryRejections(t *testing.T) {
	r := NewRegistry()
	var s settleLog

	_, err := r.OpenOrUpdate(alice, token0, big.NewInt(-1), 100, big.NewInt(0), s.fn)
	assert.ErrorIs(t, err, ErrInvalidFlowRate)

	_, err = r.Terminate(alice, 100, big.NewInt(0), s.fn)
	assert.ErrorIs(t, err, ErrFlowInactive)

	_, err = r.OpenOrUpdate(alice, token0, big.NewInt(10), 100, big.NewInt(0), s.fn)
	require.NoError(t, err)

	_, err = r.OpenOrUpdate(alice, token0, big.NewInt(11), 99, big.NewInt(0), s.fn)
	assert.ErrorIs(t, err, ErrStaleUpdate)

	_, err = r.OpenOrUpdate(alice, token1, big.NewInt(11), 120, big.NewInt(0), s.fn)
	assert.ErrorIs(t, err, ErrAssetMismatch)

	_, err = r.Terminate(alice, 50, big.NewInt(0), s.fn)
	assert.ErrorIs(t, err, ErrStaleUpdate)

	_, err = r.Terminate(alice, 130, big.NewInt(0), s.fn)
	require.NoError(t, err)
	_, err = r.Terminate(alice, 140, big.NewInt(0), s.fn)
	assert.ErrorIs(t, err, ErrFlowInactive)
}

func TestSettleErrorLeavesRecord(t *testing.T) {
	r := NewRegistry()
	s := settleLog{}
	_, err := r.OpenOrUpdate(alice, token0, big.NewInt(10), 100, big.NewInt(7), s.fn)
	require.NoError(t, err)

	boom := errors.New("boom")
	s.err = boom
	_, err = r.Terminate(alice, 120, big.NewInt(9), s.fn)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateActive, r.State(alice))
	rec, _ := r.Get(alice)
	assert.Equal(t, uint64(100), rec.ExecutedAt)
}

func TestReopenAfterTermination(t *testing.T) {
	r := NewRegistry()
	var s settleLog
	_, err := r.OpenOrUpdate(alice, token0, big.NewInt(10), 100, big.NewInt(7), s.fn)
	require.NoError(t, err)
	_, err = r.Terminate(alice, 110, big.NewInt(8), s.fn)
	require.NoError(t, err)

	tr, err := r.OpenOrUpdate(alice, token1, big.NewInt(3), 200, big.NewInt(40), s.fn)
	require.NoError(t, err)
	assert.Equal(t, model.FlowCreated, tr.Kind)
	rec, _ := r.Get(alice)
	assert.Equal(t, token1, rec.Asset)
	assert.Equal(t, uint64(200), rec.ExecutedAt)
}

func TestCheckpointRestoresEntry(t *testing.T) {
	r := NewRegistry()
	var s settleLog

	undoMissing := r.Checkpoint(bob)
	_, err := r.OpenOrUpdate(bob, token0, big.NewInt(5), 10, big.NewInt(1), s.fn)
	require.NoError(t, err)
	undoMissing()
	_, ok := r.Get(bob)
	assert.False(t, ok)

	_, err = r.OpenOrUpdate(alice, token0, big.NewInt(5), 10, big.NewInt(1), s.fn)
	require.NoError(t, err)
	undo := r.Checkpoint(alice)
	_, err = r.Terminate(alice, 20, big.NewInt(2), s.fn)
	require.NoError(t, err)
	undo()
	assert.Equal(t, StateActive, r.State(alice))
	rec, _ := r.Get(alice)
	assert.Equal(t, int64(5), rec.FlowRate.Int64())
}

func TestRecordsSortedAndRestore(t *testing.T) {
	r := NewRegistry()
	var s settleLog
	_, _ = r.OpenOrUpdate(bob, token0, big.NewInt(5), 10, big.NewInt(1), s.fn)
	_, _ = r.OpenOrUpdate(alice, token1, big.NewInt(6), 10, big.NewInt(1), s.fn)

	records := r.Records()
	require.Len(t, records, 2)
	assert.Equal(t, alice, records[0].Account)
	assert.Equal(t, bob, records[1].Account)

	restored := NewRegistry()
	require.NoError(t, restored.Restore(records))
	assert.Equal(t, records, restored.Records())

	bad := records[0]
	bad.Active = false
	assert.Error(t, restored.Restore([]model.FlowRecord{bad}))
}
