package stream

import (
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/params"
)

// MaxJitter is the largest random wei amount added to a predicted base fee
const MaxJitter = 8

// NextBaseFee applies the EIP-1559 adjustment rule to a parent header's gas
// usage. The result is deterministic; see PredictBaseFee for the jittered form.
func NextBaseFee(gasUsed, gasLimit uint64, baseFee *big.Int) *big.Int {
	if baseFee == nil {
		return new(big.Int)
	}
	target := gasLimit / params.DefaultElasticityMultiplier
	if gasUsed == target {
		return new(big.Int).Set(baseFee)
	}

	// clamp only the divisor so a zero target still compares as zero
	targetBig := new(big.Int).SetUint64(max(target, 1))
	denominator := big.NewInt(params.DefaultBaseFeeChangeDenominator)

	switch {
	case gasUsed > target:
		delta := new(big.Int).SetUint64(gasUsed - target)
		delta.Mul(delta, baseFee)
		delta.Div(delta, targetBig)
		delta.Div(delta, denominator)
		if delta.Sign() == 0 {
			delta.SetUint64(1)
		}
		return delta.Add(delta, baseFee)

	default:
		delta := new(big.Int).SetUint64(target - gasUsed)
		delta.Mul(delta, baseFee)
		delta.Div(delta, targetBig)
		delta.Div(delta, denominator)
		next := new(big.Int).Sub(baseFee, delta)
		if next.Sign() < 0 {
			next.SetUint64(0)
		}
		return next
	}
}

// PredictBaseFee returns NextBaseFee plus 0..MaxJitter wei of random jitter,
// which keeps our fee from tying exactly with other searchers.
func PredictBaseFee(gasUsed, gasLimit uint64, baseFee *big.Int, rng *rand.Rand) *big.Int {
	next := NextBaseFee(gasUsed, gasLimit, baseFee)
	var jitter int64
	if rng != nil {
		jitter = rng.Int63n(MaxJitter + 1)
	} else {
		jitter = rand.Int63n(MaxJitter + 1)
	}
	return next.Add(next, big.NewInt(jitter))
}
