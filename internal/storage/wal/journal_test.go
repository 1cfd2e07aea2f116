package wal

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
)

var (
	token0 = common.HexToAddress("0x1000")
	token1 = common.HexToAddress("0x2000")
	alice  = common.HexToAddress("0xa1")
	bob    = common.HexToAddress("0xb0")
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.Config{Address: common.HexToAddress("0xff"), Token0: token0, Token1: token1}, nil, nil)
	require.NoError(t, err)
	return l
}

// apply journals then applies, the way the adapter and CLI do.
func apply(t *testing.T, j *Journal, l *ledger.Ledger, e model.JournalEntry) {
	t.Helper()
	idx, err := j.Append(e)
	require.NoError(t, err)
	_ = l.ApplyEntry(e)
	l.MarkJournal(idx)
}

func TestReplayRebuildsLedger(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(Config{Dir: dir})
	require.NoError(t, err)

	live := newLedger(t)
	apply(t, j, live, ledger.DepositEntry(token0, big.NewInt(5_000_000)))
	apply(t, j, live, ledger.DepositEntry(token1, big.NewInt(10_000_000)))
	apply(t, j, live, ledger.AccountEntry(model.OpMint, alice, 100))
	apply(t, j, live, model.FlowEntry(model.FlowNotification{
		Kind: model.FlowCreated, Account: bob, Asset: token0, FlowRate: big.NewInt(3), Timestamp: 100,
	}))
	// rejected: burn without liquidity
	apply(t, j, live, ledger.AccountEntry(model.OpBurn, bob, 150))
	apply(t, j, live, ledger.AccountEntry(model.OpClaim, bob, 200))
	require.NoError(t, j.Close())

	j, err = Open(Config{Dir: dir})
	require.NoError(t, err)
	defer j.Close()

	rebuilt := newLedger(t)
	applied, err := Replay(j, rebuilt, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, applied)
	assert.Equal(t, live.Snapshot(), rebuilt.Snapshot())
}

func TestReplaySkipsSnapshottedEntries(t *testing.T) {
	j, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer j.Close()

	l := newLedger(t)
	apply(t, j, l, ledger.DepositEntry(token0, big.NewInt(5)))
	snap := l.Snapshot()
	apply(t, j, l, ledger.DepositEntry(token0, big.NewInt(7)))

	restored, err := ledger.Restore(snap, nil, nil)
	require.NoError(t, err)
	applied, err := Replay(j, restored, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, l.State().Balance0, restored.State().Balance0)
	assert.Equal(t, uint64(2), restored.JournalIndex())
}

type countingSink struct {
	events []model.LedgerEvent
}

func (s *countingSink) PutEvents(events []model.LedgerEvent) error {
	s.events = append(s.events, events...)
	return nil
}

func TestReplayDoesNotReemitEvents(t *testing.T) {
	j, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer j.Close()

	live := newLedger(t)
	apply(t, j, live, ledger.DepositEntry(token0, big.NewInt(5_000_000)))
	apply(t, j, live, ledger.DepositEntry(token1, big.NewInt(10_000_000)))
	apply(t, j, live, ledger.AccountEntry(model.OpMint, alice, 100))

	sink := &countingSink{}
	rebuilt, err := ledger.New(ledger.Config{Address: common.HexToAddress("0xff"), Token0: token0, Token1: token1}, sink, nil)
	require.NoError(t, err)
	applied, err := Replay(j, rebuilt, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Empty(t, sink.events)

	// the sink is attached again once replay is done
	require.NoError(t, rebuilt.Sync(200))
	require.Len(t, sink.events, 1)
	assert.Equal(t, model.EventSync, sink.events[0].EventName)
}

func TestEntryKey(t *testing.T) {
	idx, ok := parseEntryKey(entryKey(42))
	assert.True(t, ok)
	assert.Equal(t, uint64(42), idx)
	_, ok = parseEntryKey("lastbuy")
	assert.False(t, ok)
}
