package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/internal/config"
)

// Client wraps the Ethereum clients with retry logic and convenience methods
type Client struct {
	rpc     *rpc.Client
	client  *ethclient.Client
	geth    *gethclient.Client
	cfg     config.RPCConfig
	chainID *big.Int
}

// NewClient dials the node and verifies it serves the configured chain
func NewClient(ctx context.Context, cfg config.RPCConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	client := ethclient.NewClient(rpcClient)

	callCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(callCtx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	if cfg.ChainID != 0 && chainID.Uint64() != cfg.ChainID {
		rpcClient.Close()
		return nil, fmt.Errorf("node serves chain %s, expected %d", chainID, cfg.ChainID)
	}

	log.Info().
		Str("url", cfg.URL).
		Str("chainID", chainID.String()).
		Msg("Connected to Ethereum node")

	return &Client{
		rpc:     rpcClient,
		client:  client,
		geth:    gethclient.New(rpcClient),
		cfg:     cfg,
		chainID: chainID,
	}, nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain ID
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Once returns a view of the client that makes a single attempt per call.
// Callers on a latency-critical loop use it so a degraded node costs one
// round trip rather than the whole retry schedule.
func (c *Client) Once() *Client {
	once := *c
	once.cfg.RetryAttempts = 1
	return &once
}

// retry runs fn up to RetryAttempts times. It gives up early when ctx is done
// or its deadline leaves no room for another delay.
func retry[T any](ctx context.Context, c *Client, what string, fn func() (T, error)) (T, error) {
	var (
		out T
		err error
	)
	attempts := max(c.cfg.RetryAttempts, 1)
	for i := 0; i < attempts; i++ {
		out, err = fn()
		if err == nil || errors.Is(err, ethereum.NotFound) {
			return out, err
		}
		if i == attempts-1 {
			break
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.cfg.RetryDelay {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msgf("Failed to %s, retrying...", what)
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return out, fmt.Errorf("failed to %s: %w", what, err)
}

// BlockNumber returns the latest block number with retry
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return retry(ctx, c, "get block number", func() (uint64, error) {
		return c.client.BlockNumber(ctx)
	})
}

// HeaderByNumber returns a header by number with retry, nil means latest
func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return retry(ctx, c, "get header", func() (*types.Header, error) {
		return c.client.HeaderByNumber(ctx, number)
	})
}

// BlockTransactionHashes returns the hashes of all transactions mined in a block
func (c *Client) BlockTransactionHashes(ctx context.Context, number uint64) ([]common.Hash, error) {
	var block struct {
		Transactions []common.Hash `json:"transactions"`
	}
	_, err := retry(ctx, c, "get block transactions", func() (struct{}, error) {
		return struct{}{}, c.rpc.CallContext(ctx, &block, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	})
	if err != nil {
		return nil, err
	}
	return block.Transactions, nil
}

// HasReceipt reports whether a transaction has already been mined
func (c *Client) HasReceipt(ctx context.Context, txHash common.Hash) (bool, error) {
	receipt, err := retry(ctx, c, "get receipt", func() (*types.Receipt, error) {
		return c.client.TransactionReceipt(ctx, txHash)
	})
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return receipt != nil, nil
}

// NonceAt returns the account nonce at the given block with retry
func (c *Client) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return retry(ctx, c, "get nonce", func() (uint64, error) {
		return c.client.NonceAt(ctx, account, blockNumber)
	})
}

// PendingNonceAt returns the account nonce including pending transactions
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return retry(ctx, c, "get pending nonce", func() (uint64, error) {
		return c.client.PendingNonceAt(ctx, account)
	})
}

// CallContract executes a contract call pinned to a block with retry
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return retry(ctx, c, "call contract", func() ([]byte, error) {
		return c.client.CallContract(ctx, msg, blockNumber)
	})
}

// CallWithOverrides executes a read-only call against a state with substituted accounts.
// It is a hot-path simulation call and is not retried.
func (c *Client) CallWithOverrides(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int, overrides map[common.Address]gethclient.OverrideAccount) ([]byte, error) {
	return c.geth.CallContract(ctx, msg, blockNumber, &overrides)
}

// CreateAccessList returns the access list and gas used of msg against the latest state.
// It is a hot-path simulation call and is not retried.
func (c *Client) CreateAccessList(ctx context.Context, msg ethereum.CallMsg) (types.AccessList, uint64, error) {
	list, gasUsed, vmErr, err := c.geth.CreateAccessList(ctx, msg)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create access list: %w", err)
	}
	if vmErr != "" {
		return nil, 0, fmt.Errorf("access list execution reverted: %s", vmErr)
	}
	if list == nil {
		return types.AccessList{}, gasUsed, nil
	}
	return *list, gasUsed, nil
}

// SubscribeNewHead subscribes to new block headers (requires WebSocket)
func (c *Client) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.client.SubscribeNewHead(ctx, ch)
}

// SubscribePendingTransactions subscribes to full pending transactions (requires WebSocket)
func (c *Client) SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error) {
	sub, err := c.geth.SubscribeFullPendingTransactions(ctx, ch)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
