package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/sandwich-bot/pkg/types"
)

// Mainnet quote assets
var (
	WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDT = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	USDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

// MainCurrencies ranks the recognized quote assets. WETH outranks the
// stables, and USDT outranks USDC.
var MainCurrencies = map[common.Address]types.Token{
	WETH: {Address: WETH, Symbol: "WETH", Decimals: 18, Rank: 3},
	USDT: {Address: USDT, Symbol: "USDT", Decimals: 6, Rank: 2},
	USDC: {Address: USDC, Symbol: "USDC", Decimals: 6, Rank: 1},
}

// IsWETH reports whether token is the wrapped native asset
func IsWETH(token common.Address) bool {
	return token == WETH
}

// MainAndTarget orders a pool's tokens as (main currency, target token).
// When both are main currencies the higher ranked one wins. It returns false
// when neither token is recognized.
func MainAndTarget(token0, token1 common.Address) (main, target common.Address, ok bool) {
	mc0, ok0 := MainCurrencies[token0]
	mc1, ok1 := MainCurrencies[token1]

	switch {
	case ok0 && ok1:
		if mc0.Rank > mc1.Rank {
			return token0, token1, true
		}
		return token1, token0, true
	case ok0:
		return token0, token1, true
	case ok1:
		return token1, token0, true
	}
	return common.Address{}, common.Address{}, false
}

// Unit returns 10^decimals as a big integer
func Unit(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
