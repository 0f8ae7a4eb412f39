package sandwich

import (
	"fmt"
	"math"
	"math/big"

	"gonum.org/v1/gonum/optimize"
)

// Objective returns the gross revenue of a front-run input
type Objective func(amountIn *big.Int) *big.Int

// Searcher maximizes a unimodal objective over [lo, hi]
type Searcher interface {
	Maximize(f Objective, lo, hi *big.Int) (best, value *big.Int)
}

// NewSearcher returns the configured search strategy
func NewSearcher(method string, iterations int) (Searcher, error) {
	switch method {
	case "golden", "":
		return GoldenSection{Iterations: iterations}, nil
	case "nelder-mead":
		return NelderMead{Iterations: iterations}, nil
	}
	return nil, fmt.Errorf("unknown search method %q", method)
}

// 1/phi scaled by 1e6
var (
	invPhiNum = big.NewInt(618034)
	invPhiDen = big.NewInt(1_000_000)
)

// GoldenSection narrows the bracket by the golden ratio each step, reusing one
// interior evaluation per iteration.
type GoldenSection struct {
	Iterations int
}

func (g GoldenSection) Maximize(f Objective, lo, hi *big.Int) (*big.Int, *big.Int) {
	best, bestVal := new(big.Int).Set(lo), f(lo)
	consider := func(x, v *big.Int) {
		if v.Cmp(bestVal) > 0 {
			best.Set(x)
			bestVal = v
		}
	}
	if hi.Cmp(lo) <= 0 {
		return best, bestVal
	}
	consider(hi, f(hi))

	a, b := new(big.Int).Set(lo), new(big.Int).Set(hi)
	c, d := goldenPoints(a, b)
	fc, fd := f(c), f(d)

	for i := 0; i < g.Iterations; i++ {
		if new(big.Int).Sub(b, a).Cmp(big.NewInt(2)) <= 0 {
			break
		}
		if fc.Cmp(fd) >= 0 {
			b = d
			d, fd = c, fc
			c = new(big.Int).Sub(b, step(a, b))
			fc = f(c)
		} else {
			a = c
			c, fc = d, fd
			d = new(big.Int).Add(a, step(a, b))
			fd = f(d)
		}
	}
	consider(c, fc)
	consider(d, fd)
	return best, bestVal
}

func goldenPoints(a, b *big.Int) (*big.Int, *big.Int) {
	s := step(a, b)
	return new(big.Int).Sub(b, s), new(big.Int).Add(a, s)
}

func step(a, b *big.Int) *big.Int {
	w := new(big.Int).Sub(b, a)
	w.Mul(w, invPhiNum)
	return w.Div(w, invPhiDen)
}

// NelderMead runs gonum's downhill simplex over the bracket mapped onto [0, 1]
type NelderMead struct {
	Iterations int
}

func (n NelderMead) Maximize(f Objective, lo, hi *big.Int) (*big.Int, *big.Int) {
	best, bestVal := new(big.Int).Set(lo), f(lo)
	if hi.Cmp(lo) <= 0 {
		return best, bestVal
	}
	width := new(big.Float).SetInt(new(big.Int).Sub(hi, lo))
	at := func(t float64) *big.Int {
		t = math.Max(0, math.Min(1, t))
		off, _ := new(big.Float).Mul(width, big.NewFloat(t)).Int(nil)
		return off.Add(off, lo)
	}

	p := optimize.Problem{
		Func: func(x []float64) float64 {
			v, _ := new(big.Float).SetInt(f(at(x[0]))).Float64()
			// keep the simplex inside the bracket
			if x[0] < 0 || x[0] > 1 {
				return -v + math.Abs(x[0]-math.Max(0, math.Min(1, x[0])))*1e30
			}
			return -v
		},
	}
	settings := &optimize.Settings{
		FuncEvaluations: 2 * n.Iterations,
		Concurrent:      1,
		Converger: &optimize.FunctionConverge{
			Absolute:   1,
			Relative:   1e-9,
			Iterations: 8,
		},
	}

	// evaluation limits surface as errors but still carry the best location
	res, _ := optimize.Minimize(p, []float64{0.5}, settings, &optimize.NelderMead{SimplexSize: 0.25})
	if res == nil || len(res.X) == 0 {
		return best, bestVal
	}
	x := at(res.X[0])
	if v := f(x); v.Cmp(bestVal) > 0 {
		return x, v
	}
	return best, bestVal
}
