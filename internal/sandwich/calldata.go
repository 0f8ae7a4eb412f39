package sandwich

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// The bot contract swaps against the pair directly: it transfers tokenIn to
// the pair and calls swap. backrun sells the contract's whole tokenIn balance.
const botABI = `[
{"name":"frontrun","type":"function","stateMutability":"nonpayable","inputs":[{"name":"pair","type":"address"},{"name":"tokenIn","type":"address"},{"name":"zeroForOne","type":"bool"},{"name":"amountIn","type":"uint256"},{"name":"amountOut","type":"uint256"}],"outputs":[]},
{"name":"backrun","type":"function","stateMutability":"nonpayable","inputs":[{"name":"pair","type":"address"},{"name":"tokenIn","type":"address"},{"name":"zeroForOne","type":"bool"},{"name":"amountOutMin","type":"uint256"}],"outputs":[]}
]`

var bot = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(botABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// BotABI returns the bot contract interface
func BotABI() abi.ABI {
	return bot
}

// FrontrunCalldata buys exactly amountOut of the target token for amountIn of the main currency
func FrontrunCalldata(pair, mainCurrency common.Address, token0IsMain bool, amountIn, amountOut *big.Int) ([]byte, error) {
	return bot.Pack("frontrun", pair, mainCurrency, token0IsMain, amountIn, amountOut)
}

// BackrunCalldata sells the acquired target balance, reverting below amountOutMin
func BackrunCalldata(pair, target common.Address, token0IsMain bool, amountOutMin *big.Int) ([]byte, error) {
	return bot.Pack("backrun", pair, target, !token0IsMain, amountOutMin)
}
