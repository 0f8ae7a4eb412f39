package decoder

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/internal/dex/uniswapv2"
	"github.com/devlongs/sandwich-bot/internal/eth"
	"github.com/devlongs/sandwich-bot/internal/registry"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

// Tracer is the simulation surface needed to extract swaps
type Tracer interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	TraceCall(ctx context.Context, args eth.CallArgs, blockNumber *big.Int) (*eth.CallFrame, error)
}

// PoolResolver resolves pool addresses to their token pair and token metadata
type PoolResolver interface {
	ResolvePool(ctx context.Context, addr common.Address) (types.Pool, bool)
	ResolveToken(ctx context.Context, addr common.Address) (types.Token, bool)
}

// Extractor simulates pending transactions and classifies the V2 swaps they perform
type Extractor struct {
	tracer Tracer
	pools  PoolResolver
}

// NewExtractor creates a swap extractor
func NewExtractor(tracer Tracer, pools PoolResolver) *Extractor {
	return &Extractor{
		tracer: tracer,
		pools:  pools,
	}
}

// Extract traces tx on top of the given block and returns every swap against a
// pool with a recognized main currency. Any simulation failure yields an empty
// result.
func (e *Extractor) Extract(ctx context.Context, tx *types.PendingTx, block *types.BlockContext) []types.SwapInfo {
	if tx.To == nil {
		return nil
	}
	blockNumber := new(big.Int).SetUint64(block.Number)

	nonce, err := e.tracer.NonceAt(ctx, tx.From, blockNumber)
	if err != nil {
		log.Debug().Err(err).Str("txHash", tx.Hash.Hex()).Msg("Nonce lookup failed")
		return nil
	}

	frame, err := e.tracer.TraceCall(ctx, callArgs(tx, nonce), blockNumber)
	if err != nil {
		log.Debug().Err(err).Str("txHash", tx.Hash.Hex()).Msg("Trace failed")
		return nil
	}

	var swaps []types.SwapInfo
	for _, l := range CollectLogs(frame) {
		if !uniswapv2.IsSwapTopic(l.Topics) {
			continue
		}
		swap, ok := e.classify(ctx, tx.Hash, l)
		if !ok {
			continue
		}
		swaps = append(swaps, swap)
	}
	return swaps
}

func (e *Extractor) classify(ctx context.Context, txHash common.Hash, l eth.CallLog) (types.SwapInfo, bool) {
	pool, ok := e.pools.ResolvePool(ctx, l.Address)
	if !ok {
		return types.SwapInfo{}, false
	}
	main, target, ok := registry.MainAndTarget(pool.Token0, pool.Token1)
	if !ok {
		return types.SwapInfo{}, false
	}
	// a target that cannot report decimals() is not a tradable ERC20
	token, ok := e.pools.ResolveToken(ctx, target)
	if !ok {
		return types.SwapInfo{}, false
	}
	amounts, err := uniswapv2.DecodeSwapAmounts(l.Data)
	if err != nil {
		log.Debug().Err(err).Str("pool", pool.Address.Hex()).Msg("Malformed swap log")
		return types.SwapInfo{}, false
	}

	token0IsMain := pool.Token0 == main
	direction, amountIn, amountOut := Classify(amounts, token0IsMain)
	if direction == 0 {
		return types.SwapInfo{}, false
	}

	return types.SwapInfo{
		TxHash:         txHash,
		Pool:           pool.Address,
		MainCurrency:   main,
		TargetToken:    target,
		TargetDecimals: token.Decimals,
		Version:        pool.Version,
		Token0IsMain:   token0IsMain,
		Direction:      direction,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
	}, true
}

// Classify derives the victim's direction from the swap token flow. Buy means
// the main currency went into the pool and the target token came out. A zero
// direction means the amounts fit neither pattern.
func Classify(a *uniswapv2.SwapAmounts, token0IsMain bool) (types.Direction, *big.Int, *big.Int) {
	zeroForOne := a.Amount0In.Sign() > 0 && a.Amount1Out.Sign() > 0
	oneForZero := a.Amount1In.Sign() > 0 && a.Amount0Out.Sign() > 0

	switch {
	case zeroForOne && token0IsMain:
		return types.Buy, a.Amount0In, a.Amount1Out
	case oneForZero && !token0IsMain:
		return types.Buy, a.Amount1In, a.Amount0Out
	case zeroForOne:
		return types.Sell, a.Amount0In, a.Amount1Out
	case oneForZero:
		return types.Sell, a.Amount1In, a.Amount0Out
	}
	return 0, nil, nil
}

// CollectLogs gathers the logs of every frame in the call tree in pre-order.
// An explicit stack keeps deep, attacker-shaped call trees off the goroutine stack.
func CollectLogs(root *eth.CallFrame) []eth.CallLog {
	if root == nil {
		return nil
	}
	var logs []eth.CallLog
	stack := []*eth.CallFrame{root}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// a reverted frame discards its own logs and those of its subcalls
		if frame.Error != "" {
			continue
		}
		logs = append(logs, frame.Logs...)
		for i := len(frame.Calls) - 1; i >= 0; i-- {
			stack = append(stack, &frame.Calls[i])
		}
	}
	return logs
}

func callArgs(tx *types.PendingTx, nonce uint64) eth.CallArgs {
	args := eth.CallArgs{
		From:  tx.From,
		To:    tx.To,
		Gas:   hexutil.Uint64(tx.Gas),
		Value: (*hexutil.Big)(tx.Value),
		Data:  tx.Data,
		Nonce: hexutil.Uint64(nonce),
	}
	if tx.Type == ethtypes.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap)
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap)
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice)
	}
	return args
}
