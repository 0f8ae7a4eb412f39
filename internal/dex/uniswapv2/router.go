package uniswapv2

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const routerABI = `[
{"name":"swapExactETHForTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactETHForTokensSupportingFeeOnTransferTokens","type":"function","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]},
{"name":"swapExactTokensForTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
{"name":"swapExactTokensForTokensSupportingFeeOnTransferTokens","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[]}
]`

var router = mustParse(routerABI)

func mustParse(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RouterABI returns the subset of the V2 router ABI used to read victim limits
func RouterABI() abi.ABI {
	return router
}

// MinAmountOut extracts amountOutMin from a single-hop exact-input router
// call buying tokenOut. It returns false for anything else, including
// multi-hop paths whose limit applies to a different pool.
func MinAmountOut(calldata []byte, tokenOut common.Address) (*big.Int, bool) {
	if len(calldata) < 4 {
		return nil, false
	}
	method, err := router.MethodById(calldata[:4])
	if err != nil {
		return nil, false
	}
	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, false
	}

	var (
		minOut *big.Int
		path   []common.Address
		ok     bool
	)
	switch len(args) {
	case 4: // amountOutMin, path, to, deadline
		minOut, ok = args[0].(*big.Int)
		if !ok {
			return nil, false
		}
		path, ok = args[1].([]common.Address)
	case 5: // amountIn, amountOutMin, path, to, deadline
		minOut, ok = args[1].(*big.Int)
		if !ok {
			return nil, false
		}
		path, ok = args[2].([]common.Address)
	}
	if !ok || len(path) != 2 || path[1] != tokenOut {
		return nil, false
	}
	return minOut, true
}
