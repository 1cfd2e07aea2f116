package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swirlPool/internal/ledger"
	"swirlPool/internal/model"
)

func sampleLedger(t *testing.T, sink ledger.EventSink) *ledger.Ledger {
	t.Helper()
	l, err := ledger.New(ledger.Config{
		Address: common.HexToAddress("0xff"),
		Token0:  common.HexToAddress("0x1000"),
		Token1:  common.HexToAddress("0x2000"),
	}, sink, nil)
	require.NoError(t, err)
	require.NoError(t, l.Deposit(l.Token0(), big.NewInt(2_000_000)))
	require.NoError(t, l.Deposit(l.Token1(), big.NewInt(8_000_000)))
	_, err = l.Mint(common.HexToAddress("0xa1"), 50)
	require.NoError(t, err)
	_, err = l.OpenFlow(common.HexToAddress("0xb0"), l.Token0(), big.NewInt(11), 60)
	require.NoError(t, err)
	_, err = l.UpdateFlow(common.HexToAddress("0xb0"), l.Token0(), big.NewInt(12), 90)
	require.NoError(t, err)
	return l
}

func TestFileStateStore(t *testing.T) {
	ctx := context.Background()
	store := &FileStateStore{Path: filepath.Join(t.TempDir(), "state", "pool.json")}

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	l := sampleLedger(t, nil)
	require.NoError(t, store.Save(ctx, l.Snapshot()))
	snap, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	restored, err := ledger.Restore(snap, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, l.Snapshot(), restored.Snapshot())

	_, err = os.Stat(store.Path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStateStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	_, _, err := (&FileStateStore{Path: path}).Load(context.Background())
	assert.Error(t, err)
}

func TestJsonlSinkWritesEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.jsonl")
	sink := NewJsonlSink(path)
	sampleLedger(t, sink)

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.LedgerEventRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		names = append(names, rec.EventName)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{model.EventSync, model.EventMint, model.EventSync, model.EventFlow, model.EventSync, model.EventFlow}, names)
}

func TestReadNotifications(t *testing.T) {
	input := strings.Join([]string{
		`{"kind":"created","account":"0x00000000000000000000000000000000000000b0","asset":"0x0000000000000000000000000000000000001000","flow_rate":"10","timestamp":100}`,
		``,
		`{"kind":"FlowTerminated","account":"0x00000000000000000000000000000000000000b0","asset":"0x0000000000000000000000000000000000001000","timestamp":200}`,
	}, "\n")
	got, err := ReadNotifications(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.FlowCreated, got[0].Kind)
	assert.Equal(t, int64(10), got[0].FlowRate.Int64())
	assert.Equal(t, model.FlowTerminated, got[1].Kind)

	_, err = ReadNotifications(strings.NewReader(`{"kind":"paused"}`))
	assert.ErrorContains(t, err, "line 1")
}

func TestRowsRoundTrip(t *testing.T) {
	l := sampleLedger(t, nil)
	snap := l.Snapshot()
	pool, flows, liquidity, settled := Rows(snap)
	assert.Equal(t, l.Address().Hex(), pool.Address)
	require.Len(t, flows, 1)
	assert.Equal(t, "12", flows[0].FlowRate)
	require.Len(t, settled, 1)

	back, err := FromRows(pool, flows, liquidity, settled)
	require.NoError(t, err)
	assert.Equal(t, snap, back)

	pool.Reserve0 = "not-a-number"
	_, err = FromRows(pool, flows, liquidity, settled)
	assert.Error(t, err)
}
