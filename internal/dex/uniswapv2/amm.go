package uniswapv2

import (
	"math/big"

	"github.com/holiman/uint256"
)

var (
	feeNumerator   = uint256.NewInt(997)
	feeDenominator = uint256.NewInt(1000)
)

// GetAmountOut mirrors UniswapV2Library.getAmountOut with the 0.3% fee.
// It returns zero for empty reserves or input.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) *uint256.Int {
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() {
		return new(uint256.Int)
	}
	amountInWithFee := new(uint256.Int).Mul(amountIn, feeNumerator)
	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(uint256.Int).Mul(reserveIn, feeDenominator)
	denominator.Add(denominator, amountInWithFee)
	return numerator.Div(numerator, denominator)
}

// Reserves is a mutable (in, out) view of a pair oriented for one trade direction
type Reserves struct {
	In  *uint256.Int
	Out *uint256.Int
}

// NewReserves converts big reserves, reporting false if either exceeds 256 bits
func NewReserves(in, out *big.Int) (Reserves, bool) {
	rin, overflowIn := uint256.FromBig(in)
	rout, overflowOut := uint256.FromBig(out)
	if overflowIn || overflowOut {
		return Reserves{}, false
	}
	return Reserves{In: rin, Out: rout}, true
}

// Clone copies the reserves
func (r Reserves) Clone() Reserves {
	return Reserves{In: new(uint256.Int).Set(r.In), Out: new(uint256.Int).Set(r.Out)}
}

// SwapIn trades amountIn of the In token and updates the reserves in place
func (r Reserves) SwapIn(amountIn *uint256.Int) *uint256.Int {
	out := GetAmountOut(amountIn, r.In, r.Out)
	r.In.Add(r.In, amountIn)
	r.Out.Sub(r.Out, out)
	return out
}

// SwapOut trades amountIn of the Out token back into the pair and updates the
// reserves in place, returning the In token received
func (r Reserves) SwapOut(amountIn *uint256.Int) *uint256.Int {
	out := GetAmountOut(amountIn, r.Out, r.In)
	r.Out.Add(r.Out, amountIn)
	r.In.Sub(r.In, out)
	return out
}
