package factory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"swirlPool/internal/ledger"
)

var ErrPoolExists = errors.New("pool exists")

var (
	clonePrefix = hexutil.MustDecode("0x3d602d80600a3d3981f3363d3d373d3d3d363d73")
	cloneSuffix = hexutil.MustDecode("0x5af43d82803e903d91602b57fd5bf3")
)

type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// Factory creates one ledger per token pair at a deterministic address.
type Factory struct {
	deployer       common.Address
	implementation common.Address
	sink           ledger.EventSink
	logger         *zap.Logger

	mu    sync.RWMutex
	pools map[pairKey]*ledger.Ledger
}

func New(deployer, implementation common.Address, sink ledger.EventSink, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		deployer:       deployer,
		implementation: implementation,
		sink:           sink,
		logger:         logger,
		pools:          make(map[pairKey]*ledger.Ledger),
	}
}

// PoolAddress returns the CREATE2 address of the pair's minimal-proxy clone.
func (f *Factory) PoolAddress(tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := ledger.SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	return PoolAddress(f.deployer, f.implementation, token0, token1), nil
}

// PoolAddress computes the address for an already sorted pair.
func PoolAddress(deployer, implementation, token0, token1 common.Address) common.Address {
	var salt [32]byte
	copy(salt[:], crypto.Keccak256(token0.Bytes(), token1.Bytes()))

	initCode := make([]byte, 0, len(clonePrefix)+common.AddressLength+len(cloneSuffix))
	initCode = append(initCode, clonePrefix...)
	initCode = append(initCode, implementation.Bytes()...)
	initCode = append(initCode, cloneSuffix...)
	return crypto.CreateAddress2(deployer, salt, crypto.Keccak256(initCode))
}

// CreatePool registers a new empty pool for the pair.
func (f *Factory) CreatePool(tokenA, tokenB common.Address) (*ledger.Ledger, error) {
	token0, token1, err := ledger.SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	key := pairKey{token0: token0, token1: token1}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pools[key]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolExists, token0.Hex(), token1.Hex())
	}
	address := PoolAddress(f.deployer, f.implementation, token0, token1)
	l, err := ledger.New(ledger.Config{Address: address, Token0: token0, Token1: token1}, f.sink, f.logger)
	if err != nil {
		return nil, err
	}
	f.pools[key] = l
	f.logger.Info("pool created",
		zap.String("pool", address.Hex()),
		zap.String("token0", token0.Hex()),
		zap.String("token1", token1.Hex()),
	)
	return l, nil
}

// Adopt registers a ledger restored from storage.
func (f *Factory) Adopt(l *ledger.Ledger) error {
	key := pairKey{token0: l.Token0(), token1: l.Token1()}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pools[key]; ok {
		return fmt.Errorf("%w: %s/%s", ErrPoolExists, key.token0.Hex(), key.token1.Hex())
	}
	f.pools[key] = l
	return nil
}

// Pool looks up the pair in either token order.
func (f *Factory) Pool(tokenA, tokenB common.Address) (*ledger.Ledger, bool) {
	token0, token1, err := ledger.SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	l, ok := f.pools[pairKey{token0: token0, token1: token1}]
	return l, ok
}

// Pools returns every registered pool ordered by address.
func (f *Factory) Pools() []*ledger.Ledger {
	f.mu.RLock()
	out := make([]*ledger.Ledger, 0, len(f.pools))
	for _, l := range f.pools {
		out = append(out, l)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address().Hex() < out[j].Address().Hex()
	})
	return out
}
