package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// maxCachedTimestamps bounds the header timestamp cache. The watcher walks
// forward, so the oldest blocks are dropped first.
const maxCachedTimestamps = 4096

// Client is the RPC view of the chain a pool's CFA lives on: flow logs,
// block times for stamping notifications, and eth_call for token metadata
// and deposits.
type Client struct {
	rpc *rpc.Client
	eth *ethclient.Client

	mu         sync.Mutex
	chainID    *big.Int
	timestamps map[uint64]uint64
	oldest     uint64
}

// NewClient dials rpcURL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", rpcURL)
	}
	return &Client{
		rpc:        rc,
		eth:        ethclient.NewClient(rc),
		timestamps: make(map[uint64]uint64),
	}, nil
}

func (c *Client) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

// GetChainID asks the node once and remembers the answer.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chain id")
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	return n, errors.Wrap(err, "block number")
}

// BlockTimestamp returns the header time of block number.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.Lock()
	ts, ok := c.timestamps[number]
	c.mu.Unlock()
	if ok {
		return ts, nil
	}

	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, errors.Wrapf(err, "header %d", number)
	}
	c.remember(number, header.Time)
	return header.Time, nil
}

func (c *Client) remember(number, ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timestamps) == 0 || number < c.oldest {
		c.oldest = number
	}
	c.timestamps[number] = ts
	for len(c.timestamps) > maxCachedTimestamps {
		delete(c.timestamps, c.oldest)
		c.oldest++
	}
}

// FilterLogs fetches CFA logs in [fromBlock, toBlock].
func (c *Client) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topics [][]common.Hash) ([]types.Log, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	})
	return logs, errors.Wrapf(err, "logs %d-%d", fromBlock, toBlock)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
