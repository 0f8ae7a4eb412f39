package sandwich

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/sandwich-bot/internal/registry"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

// TrialAmount returns the fixed marginal-impact trial for a main currency:
// 0.01 WETH, or 10 whole units of a stable.
func TrialAmount(main common.Address) *big.Int {
	tok, ok := registry.MainCurrencies[main]
	if !ok {
		return nil
	}
	if registry.IsWETH(main) {
		return registry.Unit(tok.Decimals - 2)
	}
	return new(big.Int).Mul(big.NewInt(10), registry.Unit(tok.Decimals))
}

// BuildCandidates turns the victim's buy-side swaps into sandwich candidates.
// Sell-side swaps are skipped since front-running them needs target-token inventory.
func BuildCandidates(tx *types.PendingTx, swaps []types.SwapInfo) []types.Candidate {
	var candidates []types.Candidate
	for _, swap := range swaps {
		if swap.Direction != types.Buy {
			continue
		}
		trial := TrialAmount(swap.MainCurrency)
		if trial == nil {
			continue
		}
		candidates = append(candidates, types.Candidate{
			TrialAmount: trial,
			Swap:        swap,
			Victim:      tx.Victim(),
		})
	}
	return candidates
}
