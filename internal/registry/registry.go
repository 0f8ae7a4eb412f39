package registry

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/internal/dex/uniswapv2"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

const (
	poolCacheSize  = 4096
	tokenCacheSize = 4096
)

// Registry resolves pools and tokens on demand and caches the results.
// Addresses that definitively failed to resolve are remembered so a non-pair
// contract emitting a Swap-like topic is only queried once.
type Registry struct {
	reader   *uniswapv2.PoolReader
	pools    *lru.Cache[common.Address, types.Pool]
	tokens   *lru.Cache[common.Address, types.Token]
	negative *lru.Cache[common.Address, struct{}]
}

// New creates a registry backed by the given contract caller
func New(client uniswapv2.Caller) (*Registry, error) {
	pools, err := lru.New[common.Address, types.Pool](poolCacheSize)
	if err != nil {
		return nil, err
	}
	tokens, err := lru.New[common.Address, types.Token](tokenCacheSize)
	if err != nil {
		return nil, err
	}
	negative, err := lru.New[common.Address, struct{}](poolCacheSize)
	if err != nil {
		return nil, err
	}
	return &Registry{
		reader:   uniswapv2.NewPoolReader(client),
		pools:    pools,
		tokens:   tokens,
		negative: negative,
	}, nil
}

// Reader exposes the underlying pool reader for reserve lookups
func (r *Registry) Reader() *uniswapv2.PoolReader {
	return r.reader
}

// ResolvePool returns the pool record for addr, querying token0/token1 on a miss
func (r *Registry) ResolvePool(ctx context.Context, addr common.Address) (types.Pool, bool) {
	if pool, ok := r.pools.Get(addr); ok {
		return pool, true
	}
	if r.negative.Contains(addr) {
		return types.Pool{}, false
	}

	token0, token1, err := r.reader.Tokens(ctx, addr)
	if err != nil {
		// transient failures are retried on the next sighting
		if errors.Is(err, uniswapv2.ErrUnsupported) {
			r.negative.Add(addr, struct{}{})
		}
		log.Debug().Err(err).Str("pool", addr.Hex()).Msg("Pool resolution failed")
		return types.Pool{}, false
	}

	pool := types.Pool{
		Address:  addr,
		Token0:   token0,
		Token1:   token1,
		Protocol: uniswapv2.Protocol,
		Version:  uniswapv2.Version,
	}
	r.pools.Add(addr, pool)
	return pool, true
}

// ResolveToken returns token metadata. Main currencies are answered from the
// static table, everything else reads decimals() once.
func (r *Registry) ResolveToken(ctx context.Context, addr common.Address) (types.Token, bool) {
	if tok, ok := MainCurrencies[addr]; ok {
		return tok, true
	}
	if tok, ok := r.tokens.Get(addr); ok {
		return tok, true
	}

	decimals, err := r.reader.Decimals(ctx, addr)
	if err != nil {
		log.Debug().Err(err).Str("token", addr.Hex()).Msg("Token resolution failed")
		return types.Token{}, false
	}
	tok := types.Token{Address: addr, Decimals: decimals}
	r.tokens.Add(addr, tok)
	return tok, true
}
