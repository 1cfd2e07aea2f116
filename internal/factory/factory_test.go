package factory

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	impl     = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	tokenA   = common.HexToAddress("0x0000000000000000000000000000000000002000")
	tokenB   = common.HexToAddress("0x0000000000000000000000000000000000001000")
)

func TestCreatePoolSortsAndRegisters(t *testing.T) {
	f := New(deployer, impl, nil, nil)
	l, err := f.CreatePool(tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, tokenB, l.Token0())
	assert.Equal(t, tokenA, l.Token1())

	want, err := f.PoolAddress(tokenB, tokenA)
	require.NoError(t, err)
	assert.Equal(t, want, l.Address())

	got, ok := f.Pool(tokenB, tokenA)
	require.True(t, ok)
	assert.Same(t, l, got)
	assert.Len(t, f.Pools(), 1)
}

func TestCreatePoolRejections(t *testing.T) {
	f := New(deployer, impl, nil, nil)
	_, err := f.CreatePool(tokenA, tokenA)
	assert.Error(t, err)
	_, err = f.CreatePool(common.Address{}, tokenA)
	assert.Error(t, err)

	_, err = f.CreatePool(tokenA, tokenB)
	require.NoError(t, err)
	_, err = f.CreatePool(tokenB, tokenA)
	assert.ErrorIs(t, err, ErrPoolExists)
}

func TestPoolAddressDependsOnInputs(t *testing.T) {
	a := PoolAddress(deployer, impl, tokenB, tokenA)
	assert.Equal(t, a, PoolAddress(deployer, impl, tokenB, tokenA))
	assert.NotEqual(t, a, PoolAddress(deployer, deployer, tokenB, tokenA))
	assert.NotEqual(t, a, PoolAddress(impl, impl, tokenB, tokenA))
	assert.NotEqual(t, common.Address{}, a)
}
