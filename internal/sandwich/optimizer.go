package sandwich

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/internal/config"
	"github.com/devlongs/sandwich-bot/internal/dex/uniswapv2"
	"github.com/devlongs/sandwich-bot/internal/registry"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

var (
	// ErrUnprofitable marks a normal negative search outcome
	ErrUnprofitable = errors.New("unprofitable")
	// ErrInfeasible means even the trial would push the victim past its slippage limit
	ErrInfeasible = errors.New("victim slippage exhausted")
)

// ReserveReader reads pair reserves pinned to a block
type ReserveReader interface {
	Reserves(ctx context.Context, pool common.Address, blockNumber *big.Int) (*big.Int, *big.Int, error)
}

// Simulator runs the bot's legs against live state
type Simulator interface {
	CallWithOverrides(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int, overrides map[common.Address]gethclient.OverrideAccount) ([]byte, error)
	CreateAccessList(ctx context.Context, msg ethereum.CallMsg) (ethtypes.AccessList, uint64, error)
}

// ownerBalanceOverride funds the signer during verification so the call only
// fails on contract logic
var ownerBalanceOverride = new(big.Int).Lsh(big.NewInt(1), 100)

// Optimizer searches the front-run size that maximizes net revenue
type Optimizer struct {
	reserves    ReserveReader
	sim         Simulator
	search      Searcher
	cfg         config.SandwichConfig
	owner       common.Address
	bot         common.Address
	priorityFee *big.Int
	gasMulPct   uint64
}

// NewOptimizer creates an optimizer signing legs from owner
func NewOptimizer(reserves ReserveReader, sim Simulator, cfg config.SandwichConfig, exec config.ExecutionConfig, owner common.Address) (*Optimizer, error) {
	search, err := NewSearcher(cfg.SearchMethod, cfg.SearchIterations)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.BotAddress) {
		return nil, fmt.Errorf("invalid bot address %q", cfg.BotAddress)
	}
	mul := exec.GasMultiplierPct
	if mul == 0 {
		mul = 100
	}
	return &Optimizer{
		reserves:    reserves,
		sim:         sim,
		search:      search,
		cfg:         cfg,
		owner:       owner,
		bot:         common.HexToAddress(cfg.BotAddress),
		priorityFee: big.NewInt(exec.PriorityFeeWei),
		gasMulPct:   mul,
	}, nil
}

// Optimize finds the best front-run input for c against the state at block and
// fills in calldata, gas and access lists. Unprofitable candidates return
// ErrUnprofitable or ErrInfeasible.
func (o *Optimizer) Optimize(ctx context.Context, c *types.Candidate, block *types.BlockContext) (*types.OptimizedSandwich, error) {
	swap := c.Swap
	blockNumber := new(big.Int).SetUint64(block.Number)

	r0, r1, err := o.reserves.Reserves(ctx, swap.Pool, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	rMain, rTarget := r1, r0
	if swap.Token0IsMain {
		rMain, rTarget = r0, r1
	}

	market, err := o.market(c, rMain, rTarget)
	if err != nil {
		return nil, err
	}

	trial := uint256.MustFromBig(c.TrialAmount)
	if _, ok := market.victimOut(trial); !ok {
		return nil, ErrInfeasible
	}
	// gross revenue is concave with g(0) = 0, so a losing trial rules out every larger input
	if g, _, _ := market.sandwich(trial); g.Sign() <= 0 {
		return nil, ErrUnprofitable
	}

	upper := market.feasibleUpper(o.maxAmountIn(swap.MainCurrency))
	if upper.Lt(trial) {
		upper = trial
	}

	objective := func(x *big.Int) *big.Int {
		g, _, _ := market.sandwich(uint256.MustFromBig(x))
		return g
	}
	best, gross := o.search.Maximize(objective, c.TrialAmount, upper.ToBig())

	amountIn := uint256.MustFromBig(best)
	_, bought, ok := market.sandwich(amountIn)
	if !ok || bought.IsZero() {
		return nil, ErrInfeasible
	}

	front, err := FrontrunCalldata(swap.Pool, swap.MainCurrency, swap.Token0IsMain, best, bought.ToBig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode frontrun: %w", err)
	}
	back, err := BackrunCalldata(swap.Pool, swap.TargetToken, swap.Token0IsMain, best)
	if err != nil {
		return nil, fmt.Errorf("failed to encode backrun: %w", err)
	}

	feeCap := o.feeCap(block)
	frontGas, accessList, err := o.simulateFront(ctx, front, feeCap, blockNumber)
	if err != nil {
		return nil, err
	}
	backGas := frontGas

	gasWei := new(big.Int).SetUint64(frontGas + backGas)
	gasWei.Mul(gasWei, feeCap)
	gasCost := o.toMain(gasWei, swap.MainCurrency)
	margin := o.toMain(big.NewInt(o.cfg.MinMarginWei), swap.MainCurrency)

	net := new(big.Int).Sub(gross, gasCost)
	if net.Cmp(margin) <= 0 {
		log.Debug().
			Str("txHash", c.Victim.Hash.Hex()).
			Str("gross", gross.String()).
			Str("gasCost", gasCost.String()).
			Msg("Sandwich below margin")
		return nil, ErrUnprofitable
	}

	return &types.OptimizedSandwich{
		AmountIn:        best,
		TargetAmountOut: bought.ToBig(),
		Revenue:         net,
		GasCost:         gasCost,
		FrontGas:        frontGas,
		BackGas:         backGas,
		FrontAccessList: accessList,
		BackAccessList:  accessList,
		FrontCalldata:   front,
		BackCalldata:    back,
	}, nil
}

// simulateFront verifies the front leg with a funded signer and measures gas
// and the access list. The back leg touches the same pair, tokens and contract.
func (o *Optimizer) simulateFront(ctx context.Context, data []byte, feeCap, blockNumber *big.Int) (uint64, ethtypes.AccessList, error) {
	msg := ethereum.CallMsg{
		From:      o.owner,
		To:        &o.bot,
		Data:      data,
		GasFeeCap: feeCap,
		GasTipCap: o.priorityFee,
	}
	overrides := map[common.Address]gethclient.OverrideAccount{
		o.owner: {Balance: ownerBalanceOverride},
	}
	if _, err := o.sim.CallWithOverrides(ctx, msg, blockNumber, overrides); err != nil {
		return 0, nil, fmt.Errorf("frontrun simulation failed: %w", err)
	}

	gas := o.cfg.DefaultGas
	accessList, gasUsed, err := o.sim.CreateAccessList(ctx, msg)
	if err != nil {
		log.Debug().Err(err).Msg("Access list unavailable, using default gas")
		accessList = nil
	} else if gasUsed > 0 {
		gas = gasUsed
	}
	return gas * o.gasMulPct / 100, accessList, nil
}

func (o *Optimizer) feeCap(block *types.BlockContext) *big.Int {
	baseFee := block.NextBaseFee
	if baseFee == nil {
		baseFee = block.BaseFee
	}
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	return new(big.Int).Add(baseFee, o.priorityFee)
}

// toMain converts a wei amount into main-currency units
func (o *Optimizer) toMain(wei *big.Int, main common.Address) *big.Int {
	if registry.IsWETH(main) {
		return new(big.Int).Set(wei)
	}
	tok := registry.MainCurrencies[main]
	v := new(big.Float).SetInt(wei)
	v.Mul(v, big.NewFloat(o.cfg.EthUSDPrice))
	v.Mul(v, new(big.Float).SetInt(registry.Unit(tok.Decimals)))
	v.Quo(v, new(big.Float).SetInt(registry.Unit(18)))
	out, _ := v.Int(nil)
	return out
}

func (o *Optimizer) maxAmountIn(main common.Address) *uint256.Int {
	tok := registry.MainCurrencies[main]
	limit := o.cfg.MaxAmountInStable
	if registry.IsWETH(main) {
		limit = o.cfg.MaxAmountInEth
	}
	v := new(big.Float).Mul(big.NewFloat(limit), new(big.Float).SetInt(registry.Unit(tok.Decimals)))
	out, _ := v.Int(nil)
	amount, overflow := uint256.FromBig(out)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return amount
}

func (o *Optimizer) market(c *types.Candidate, rMain, rTarget *big.Int) (*pairMarket, error) {
	reserves, ok := uniswapv2.NewReserves(rMain, rTarget)
	if !ok || reserves.In.IsZero() || reserves.Out.IsZero() {
		return nil, fmt.Errorf("unusable reserves for %s", c.Swap.Pool.Hex())
	}
	victimIn, overflow := uint256.FromBig(c.Swap.AmountIn)
	if overflow || victimIn.IsZero() {
		return nil, fmt.Errorf("unusable victim input %v", c.Swap.AmountIn)
	}

	minOut, ok := uniswapv2.MinAmountOut(c.Victim.Data, c.Swap.TargetToken)
	if !ok {
		// tolerate assumed_slippage_bps below what the victim observed unsandwiched
		minOut = new(big.Int).Mul(c.Swap.AmountOut, big.NewInt(10_000-o.cfg.AssumedSlippageBps))
		minOut.Div(minOut, big.NewInt(10_000))
	}
	victimMin, overflow := uint256.FromBig(minOut)
	if overflow {
		return nil, ErrInfeasible
	}

	return &pairMarket{reserves: reserves, victimIn: victimIn, victimMin: victimMin}, nil
}

// pairMarket simulates front, victim and back against one pair's reserves
type pairMarket struct {
	reserves  uniswapv2.Reserves
	victimIn  *uint256.Int
	victimMin *uint256.Int
}

// victimOut is the victim's output after a front-run of x and whether it
// clears the victim's limit
func (m *pairMarket) victimOut(x *uint256.Int) (*uint256.Int, bool) {
	r := m.reserves.Clone()
	r.SwapIn(x)
	out := r.SwapIn(m.victimIn)
	return out, !out.Lt(m.victimMin)
}

// sandwich returns gross revenue in the main currency and the target amount
// bought by the front leg. Infeasible inputs score as a total loss of x.
func (m *pairMarket) sandwich(x *uint256.Int) (*big.Int, *uint256.Int, bool) {
	r := m.reserves.Clone()
	bought := r.SwapIn(x)
	victimOut := r.SwapIn(m.victimIn)
	if victimOut.Lt(m.victimMin) {
		return new(big.Int).Neg(x.ToBig()), bought, false
	}
	proceeds := r.SwapOut(bought)
	return new(big.Int).Sub(proceeds.ToBig(), x.ToBig()), bought, true
}

// feasibleUpper bisects for the largest front-run that keeps the victim within
// its limit, capped at limit
func (m *pairMarket) feasibleUpper(limit *uint256.Int) *uint256.Int {
	if _, ok := m.victimOut(limit); ok {
		return limit
	}
	lo, hi := new(uint256.Int), new(uint256.Int).Set(limit)
	one := uint256.NewInt(1)
	for new(uint256.Int).Sub(hi, lo).Gt(one) {
		mid := new(uint256.Int).Add(lo, hi)
		mid.Rsh(mid, 1)
		if _, ok := m.victimOut(mid); ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
