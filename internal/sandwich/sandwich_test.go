package sandwich

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	"github.com/devlongs/sandwich-bot/internal/config"
	"github.com/devlongs/sandwich-bot/internal/registry"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

var (
	ether   = big.NewInt(1e18)
	tokenX  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	pairX   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	botAddr = common.HexToAddress("0x9999999999999999999999999999999999999999")
	owner   = common.HexToAddress("0x8888888888888888888888888888888888888888")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), ether)
}

func TestTrialAmount(t *testing.T) {
	tests := []struct {
		name string
		main common.Address
		want *big.Int
	}{
		{"weth", registry.WETH, big.NewInt(1e16)},
		{"usdt", registry.USDT, big.NewInt(10_000_000)},
		{"usdc", registry.USDC, big.NewInt(10_000_000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrialAmount(tt.main); got.Cmp(tt.want) != 0 {
				t.Errorf("TrialAmount = %s, want %s", got, tt.want)
			}
		})
	}
	if TrialAmount(tokenX) != nil {
		t.Error("non-main currency should have no trial amount")
	}
}

func TestBuildCandidatesBuysOnly(t *testing.T) {
	tx := &types.PendingTx{Hash: common.HexToHash("0x01"), Data: []byte{1, 2, 3}, Value: big.NewInt(0), GasPrice: big.NewInt(1)}
	swaps := []types.SwapInfo{
		{Pool: pairX, MainCurrency: registry.WETH, TargetToken: tokenX, Direction: types.Buy},
		{Pool: pairX, MainCurrency: registry.WETH, TargetToken: tokenX, Direction: types.Sell},
	}

	candidates := BuildCandidates(tx, swaps)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].TrialAmount.Cmp(big.NewInt(1e16)) != 0 {
		t.Errorf("trial = %s", candidates[0].TrialAmount)
	}

	// the snapshot must not alias the tracked transaction
	tx.Data[0] = 9
	if candidates[0].Victim.Data[0] != 1 {
		t.Error("victim snapshot shares calldata with the pending tx")
	}
}

func parabola(peak int64) Objective {
	return func(x *big.Int) *big.Int {
		d := new(big.Int).Sub(x, big.NewInt(peak))
		d.Mul(d, d)
		return d.Sub(big.NewInt(1_000_000), d)
	}
}

func TestGoldenSection(t *testing.T) {
	best, val := GoldenSection{Iterations: 64}.Maximize(parabola(700), big.NewInt(0), big.NewInt(1000))
	if d := new(big.Int).Sub(best, big.NewInt(700)); d.CmpAbs(big.NewInt(2)) > 0 {
		t.Errorf("best = %s, want ~700 (value %s)", best, val)
	}
}

func TestGoldenSectionMonotone(t *testing.T) {
	increasing := func(x *big.Int) *big.Int { return new(big.Int).Set(x) }
	best, _ := GoldenSection{Iterations: 64}.Maximize(increasing, big.NewInt(10), big.NewInt(5000))
	if best.Int64() != 5000 {
		t.Errorf("best = %s, want the upper bound", best)
	}
}

func TestNelderMead(t *testing.T) {
	_, val := NelderMead{Iterations: 64}.Maximize(parabola(700), big.NewInt(0), big.NewInt(1000))
	if val.Cmp(big.NewInt(1_000_000-100)) < 0 {
		t.Errorf("value = %s, want near 1000000", val)
	}
}

func TestNewSearcher(t *testing.T) {
	if _, err := NewSearcher("golden", 10); err != nil {
		t.Error(err)
	}
	if _, err := NewSearcher("nelder-mead", 10); err != nil {
		t.Error(err)
	}
	if _, err := NewSearcher("random", 10); err == nil {
		t.Error("expected error for unknown method")
	}
}

type fakeReserves struct {
	r0, r1 *big.Int
}

func (f fakeReserves) Reserves(context.Context, common.Address, *big.Int) (*big.Int, *big.Int, error) {
	return f.r0, f.r1, nil
}

type fakeSim struct {
	callErr error
	gas     uint64
	calls   int
}

func (f *fakeSim) CallWithOverrides(_ context.Context, msg ethereum.CallMsg, _ *big.Int, overrides map[common.Address]gethclient.OverrideAccount) ([]byte, error) {
	f.calls++
	if _, ok := overrides[msg.From]; !ok {
		return nil, errors.New("insufficient funds for gas")
	}
	return nil, f.callErr
}

func (f *fakeSim) CreateAccessList(context.Context, ethereum.CallMsg) (ethtypes.AccessList, uint64, error) {
	al := ethtypes.AccessList{{Address: pairX, StorageKeys: []common.Hash{{0x08}}}}
	return al, f.gas, nil
}

func sandwichConfig() config.SandwichConfig {
	return config.SandwichConfig{
		BotAddress:         botAddr.Hex(),
		EthUSDPrice:        2500,
		AssumedSlippageBps: 1000,
		MaxAmountInEth:     10,
		MaxAmountInStable:  25_000,
		SearchMethod:       "golden",
		SearchIterations:   64,
		DefaultGas:         150_000,
	}
}

// 5 WETH buying TOKEN_X from a 100 WETH / 1,000,000 TOKEN_X pair, WETH as token1
func wethCandidate(victimOut *big.Int) *types.Candidate {
	return &types.Candidate{
		TrialAmount: TrialAmount(registry.WETH),
		Swap: types.SwapInfo{
			Pool:         pairX,
			MainCurrency: registry.WETH,
			TargetToken:  tokenX,
			Token0IsMain: false,
			Direction:    types.Buy,
			AmountIn:     eth(5),
			AmountOut:    victimOut,
		},
		Victim: types.VictimTx{Hash: common.HexToHash("0xabc")},
	}
}

func wethMarket() (fakeReserves, *big.Int) {
	rX := new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)
	rW := eth(100)
	// victim output without a front-run
	num := new(big.Int).Mul(eth(5), big.NewInt(997))
	num.Mul(num, rX)
	den := new(big.Int).Mul(rW, big.NewInt(1000))
	den.Add(den, new(big.Int).Mul(eth(5), big.NewInt(997)))
	return fakeReserves{r0: rX, r1: rW}, num.Div(num, den)
}

func TestOptimizeProfitable(t *testing.T) {
	reserves, victimOut := wethMarket()
	sim := &fakeSim{gas: 150_000}
	exec := config.ExecutionConfig{GasMultiplierPct: 120}
	opt, err := NewOptimizer(reserves, sim, sandwichConfig(), exec, owner)
	if err != nil {
		t.Fatal(err)
	}

	block := &types.BlockContext{Number: 100, BaseFee: big.NewInt(30e9), NextBaseFee: big.NewInt(30e9)}
	res, err := opt.Optimize(context.Background(), wethCandidate(victimOut), block)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}

	if res.FrontGas != 180_000 || res.BackGas != 180_000 {
		t.Errorf("gas = %d/%d, want 180000 each", res.FrontGas, res.BackGas)
	}
	wantGas := new(big.Int).Mul(big.NewInt(360_000), big.NewInt(30e9))
	if res.GasCost.Cmp(wantGas) != 0 {
		t.Errorf("gas cost = %s, want %s", res.GasCost, wantGas)
	}
	// the victim's 10% tolerance caps the front-run near 5.54 WETH for ~0.487 WETH gross
	if res.AmountIn.Cmp(eth(5)) < 0 || res.AmountIn.Cmp(eth(6)) > 0 {
		t.Errorf("amount in = %s", res.AmountIn)
	}
	if res.Revenue.Cmp(big.NewInt(4.5e17)) < 0 {
		t.Errorf("revenue = %s", res.Revenue)
	}
	if len(res.FrontCalldata) < 4 || len(res.BackCalldata) < 4 {
		t.Error("missing calldata")
	}
	if len(res.FrontAccessList) != 1 || len(res.BackAccessList) != 1 {
		t.Error("access list not propagated to both legs")
	}
	a := BotABI()
	method, err := a.MethodById(res.FrontCalldata[:4])
	if err != nil || method.Name != "frontrun" {
		t.Errorf("front calldata selects %v (%v)", method, err)
	}
}

func TestOptimizeGasExceedsRevenue(t *testing.T) {
	reserves, victimOut := wethMarket()
	opt, err := NewOptimizer(reserves, &fakeSim{gas: 150_000}, sandwichConfig(), config.ExecutionConfig{GasMultiplierPct: 120}, owner)
	if err != nil {
		t.Fatal(err)
	}

	// 360k gas at 10,000 gwei is 3.6 WETH
	block := &types.BlockContext{Number: 100, BaseFee: big.NewInt(1e13), NextBaseFee: big.NewInt(1e13)}
	_, err = opt.Optimize(context.Background(), wethCandidate(victimOut), block)
	if !errors.Is(err, ErrUnprofitable) {
		t.Fatalf("expected ErrUnprofitable, got %v", err)
	}
}

func TestOptimizeNoSlippageRoom(t *testing.T) {
	reserves, victimOut := wethMarket()
	cfg := sandwichConfig()
	cfg.AssumedSlippageBps = 0
	sim := &fakeSim{gas: 150_000}
	opt, err := NewOptimizer(reserves, sim, cfg, config.ExecutionConfig{}, owner)
	if err != nil {
		t.Fatal(err)
	}

	block := &types.BlockContext{Number: 100, NextBaseFee: big.NewInt(1)}
	_, err = opt.Optimize(context.Background(), wethCandidate(victimOut), block)
	if !errors.Is(err, ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
	if sim.calls != 0 {
		t.Error("infeasible candidates should not reach the node")
	}
}

func TestOptimizeRevertedFrontLeg(t *testing.T) {
	reserves, victimOut := wethMarket()
	sim := &fakeSim{gas: 150_000, callErr: errors.New("execution reverted")}
	opt, err := NewOptimizer(reserves, sim, sandwichConfig(), config.ExecutionConfig{}, owner)
	if err != nil {
		t.Fatal(err)
	}

	block := &types.BlockContext{Number: 100, NextBaseFee: big.NewInt(1)}
	if _, err := opt.Optimize(context.Background(), wethCandidate(victimOut), block); err == nil {
		t.Fatal("expected simulation error")
	}
}

func TestNewOptimizerRejectsBadBotAddress(t *testing.T) {
	cfg := sandwichConfig()
	cfg.BotAddress = "not-an-address"
	if _, err := NewOptimizer(fakeReserves{}, &fakeSim{}, cfg, config.ExecutionConfig{}, owner); err == nil {
		t.Fatal("expected error")
	}
}
