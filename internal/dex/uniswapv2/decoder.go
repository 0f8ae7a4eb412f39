package uniswapv2

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// Uniswap V2 Swap event signature
// event Swap(address indexed sender, uint amount0In, uint amount1In, uint amount0Out, uint amount1Out, address indexed to)
var SwapEventSignature = common.HexToHash("0xd78ad95fa46c994b6551d0da85fc275fe613ce37657fb8d5e3d130840159d822")

// Protocol names the AMM variant in pool records and logs
const (
	Protocol = "uniswap_v2"
	Version  = 2
)

// ErrUnsupported marks a definitive call failure: the contract reverted or
// answered with data too short to decode. Transport errors never carry it.
var ErrUnsupported = errors.New("contract does not support the call")

// Caller executes read-only contract calls pinned to a block
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// IsSwapTopic reports whether a log's first topic carries the V2 Swap selector.
// Only the leading 4 bytes are compared.
func IsSwapTopic(topics []common.Hash) bool {
	if len(topics) == 0 {
		return false
	}
	t := topics[0]
	return t[0] == SwapEventSignature[0] && t[1] == SwapEventSignature[1] &&
		t[2] == SwapEventSignature[2] && t[3] == SwapEventSignature[3]
}

// SwapAmounts holds the four non-indexed Swap fields
type SwapAmounts struct {
	Amount0In  *big.Int
	Amount1In  *big.Int
	Amount0Out *big.Int
	Amount1Out *big.Int
}

// DecodeSwapAmounts decodes the data section of a Swap log
func DecodeSwapAmounts(data []byte) (*SwapAmounts, error) {
	if len(data) < 128 {
		return nil, fmt.Errorf("invalid swap log data length: expected 128 bytes, got %d", len(data))
	}
	return &SwapAmounts{
		Amount0In:  new(big.Int).SetBytes(data[0:32]),
		Amount1In:  new(big.Int).SetBytes(data[32:64]),
		Amount0Out: new(big.Int).SetBytes(data[64:96]),
		Amount1Out: new(big.Int).SetBytes(data[96:128]),
	}, nil
}

// PoolReader reads pair and token state over eth_call
type PoolReader struct {
	client Caller
}

// NewPoolReader creates a new pool reader
func NewPoolReader(client Caller) *PoolReader {
	return &PoolReader{client: client}
}

// Tokens returns token0 and token1 of a V2 pair
func (r *PoolReader) Tokens(ctx context.Context, pool common.Address) (common.Address, common.Address, error) {
	// token0() selector: 0x0dfe1681
	token0, err := r.callAddress(ctx, pool, common.Hex2Bytes("0dfe1681"))
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("failed to get token0: %w", err)
	}
	// token1() selector: 0xd21220a7
	token1, err := r.callAddress(ctx, pool, common.Hex2Bytes("d21220a7"))
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("failed to get token1: %w", err)
	}
	return token0, token1, nil
}

// Reserves fetches the pair reserves at the given block, nil means latest
func (r *PoolReader) Reserves(ctx context.Context, pool common.Address, blockNumber *big.Int) (*big.Int, *big.Int, error) {
	// getReserves() selector: 0x0902f1ac
	msg := ethereum.CallMsg{
		To:   &pool,
		Data: common.Hex2Bytes("0902f1ac"),
	}

	result, err := r.client.CallContract(ctx, msg, blockNumber)
	if err != nil {
		return nil, nil, err
	}

	if len(result) < 64 {
		return nil, nil, fmt.Errorf("invalid getReserves response")
	}

	reserve0 := new(big.Int).SetBytes(result[0:32])
	reserve1 := new(big.Int).SetBytes(result[32:64])

	return reserve0, reserve1, nil
}

// Decimals calls decimals() on an ERC20 token
func (r *PoolReader) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	// decimals() selector: 0x313ce567
	msg := ethereum.CallMsg{
		To:   &token,
		Data: common.Hex2Bytes("313ce567"),
	}

	result, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		return 0, err
	}
	if len(result) < 32 {
		return 0, fmt.Errorf("invalid decimals response")
	}
	d := new(big.Int).SetBytes(result[0:32])
	if !d.IsUint64() || d.Uint64() > 77 {
		return 0, fmt.Errorf("implausible decimals %s", d)
	}
	return uint8(d.Uint64()), nil
}

func (r *PoolReader) callAddress(ctx context.Context, to common.Address, data []byte) (common.Address, error) {
	msg := ethereum.CallMsg{
		To:   &to,
		Data: data,
	}

	result, err := r.client.CallContract(ctx, msg, nil)
	if err != nil {
		if isRevert(err) {
			return common.Address{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return common.Address{}, err
	}

	if len(result) < 32 {
		return common.Address{}, fmt.Errorf("%w: %d byte address response", ErrUnsupported, len(result))
	}

	return common.BytesToAddress(result[12:32]), nil
}

// isRevert tells an EVM revert apart from a transport or node failure
func isRevert(err error) bool {
	var de rpc.DataError
	if errors.As(err, &de) {
		return true
	}
	return strings.Contains(err.Error(), "execution reverted")
}
