package uniswapv2

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
)

func TestGetAmountOut(t *testing.T) {
	// 1 ETH into a 100 ETH / 200,000 USDC pool
	reserveIn := uint256.MustFromBig(math.BigPow(10, 20))
	reserveOut := uint256.NewInt(200_000_000_000)
	amountIn := uint256.MustFromBig(math.BigPow(10, 18))

	got := GetAmountOut(amountIn, reserveIn, reserveOut)
	// 997e18 * 2e11 / (1e23 + 997e18)
	want := uint256.NewInt(1_974_316_068)
	if !got.Eq(want) {
		t.Fatalf("GetAmountOut = %s, want %s", got, want)
	}
}

func TestGetAmountOutZero(t *testing.T) {
	zero := new(uint256.Int)
	one := uint256.NewInt(1)
	if !GetAmountOut(zero, one, one).IsZero() {
		t.Error("zero input should give zero output")
	}
	if !GetAmountOut(one, zero, one).IsZero() {
		t.Error("empty reserve should give zero output")
	}
}

func TestReservesRoundTripLosesFees(t *testing.T) {
	r, ok := NewReserves(math.BigPow(10, 21), math.BigPow(10, 24))
	if !ok {
		t.Fatal("reserves should fit")
	}
	in := uint256.MustFromBig(math.BigPow(10, 18))
	bought := r.SwapIn(in)
	back := r.SwapOut(bought)
	if !back.Lt(in) {
		t.Fatalf("round trip returned %s >= %s", back, in)
	}
}

func TestDecodeSwapAmounts(t *testing.T) {
	data := make([]byte, 128)
	big.NewInt(5).FillBytes(data[0:32])
	big.NewInt(9).FillBytes(data[96:128])

	amounts, err := DecodeSwapAmounts(data)
	if err != nil {
		t.Fatal(err)
	}
	if amounts.Amount0In.Int64() != 5 || amounts.Amount1Out.Int64() != 9 {
		t.Fatalf("unexpected amounts %+v", amounts)
	}
	if amounts.Amount1In.Sign() != 0 || amounts.Amount0Out.Sign() != 0 {
		t.Fatalf("unexpected non-zero amounts %+v", amounts)
	}

	if _, err := DecodeSwapAmounts(data[:100]); err == nil {
		t.Fatal("expected error for short data")
	}
}

func TestIsSwapTopic(t *testing.T) {
	if !IsSwapTopic([]common.Hash{SwapEventSignature}) {
		t.Error("full signature should match")
	}
	prefixOnly := common.Hash{0xd7, 0x8a, 0xd9, 0x5f}
	if !IsSwapTopic([]common.Hash{prefixOnly}) {
		t.Error("selector prefix should match")
	}
	if IsSwapTopic([]common.Hash{common.HexToHash("0xdead")}) {
		t.Error("other topic should not match")
	}
	if IsSwapTopic(nil) {
		t.Error("no topics should not match")
	}
}

func TestMinAmountOut(t *testing.T) {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	data, err := RouterABI().Pack("swapExactETHForTokens", big.NewInt(12345), []common.Address{weth, token}, to, big.NewInt(1))
	if err != nil {
		t.Fatal(err)
	}
	got, ok := MinAmountOut(data, token)
	if !ok || got.Int64() != 12345 {
		t.Fatalf("MinAmountOut = %v, %v", got, ok)
	}

	data, err = RouterABI().Pack("swapExactTokensForTokens", big.NewInt(10), big.NewInt(777), []common.Address{weth, token}, to, big.NewInt(1))
	if err != nil {
		t.Fatal(err)
	}
	got, ok = MinAmountOut(data, token)
	if !ok || got.Int64() != 777 {
		t.Fatalf("MinAmountOut = %v, %v", got, ok)
	}

	multiHop, err := RouterABI().Pack("swapExactETHForTokens", big.NewInt(1), []common.Address{weth, to, token}, to, big.NewInt(1))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := MinAmountOut(multiHop, token); ok {
		t.Fatal("multi-hop path should not yield a limit")
	}
	if _, ok := MinAmountOut([]byte{0x01, 0x02}, token); ok {
		t.Fatal("short calldata should not yield a limit")
	}
}

type fakeCaller struct {
	responses map[string][]byte
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	out, ok := f.responses[common.Bytes2Hex(msg.Data)]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	return out, nil
}

func TestPoolReader(t *testing.T) {
	token0 := common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	token1 := common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	reserves := make([]byte, 96)
	big.NewInt(100).FillBytes(reserves[0:32])
	big.NewInt(200).FillBytes(reserves[32:64])

	caller := &fakeCaller{responses: map[string][]byte{
		"0dfe1681": common.LeftPadBytes(token0.Bytes(), 32),
		"d21220a7": common.LeftPadBytes(token1.Bytes(), 32),
		"0902f1ac": reserves,
		"313ce567": common.LeftPadBytes([]byte{18}, 32),
	}}
	reader := NewPoolReader(caller)
	pool := common.HexToAddress("0xcccc000000000000000000000000000000000003")

	t0, t1, err := reader.Tokens(context.Background(), pool)
	if err != nil || t0 != token0 || t1 != token1 {
		t.Fatalf("Tokens = %s, %s, %v", t0.Hex(), t1.Hex(), err)
	}
	r0, r1, err := reader.Reserves(context.Background(), pool, big.NewInt(1))
	if err != nil || r0.Int64() != 100 || r1.Int64() != 200 {
		t.Fatalf("Reserves = %v, %v, %v", r0, r1, err)
	}
	d, err := reader.Decimals(context.Background(), token0)
	if err != nil || d != 18 {
		t.Fatalf("Decimals = %d, %v", d, err)
	}
}

type errCaller struct{ err error }

func (e errCaller) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, e.err
}

func TestTokensFailureKinds(t *testing.T) {
	pool := common.HexToAddress("0xcccc000000000000000000000000000000000003")
	tests := []struct {
		name       string
		caller     Caller
		definitive bool
	}{
		{"revert", &fakeCaller{responses: map[string][]byte{}}, true},
		{"empty response", &fakeCaller{responses: map[string][]byte{"0dfe1681": {}}}, true},
		{"rate limited", errCaller{errors.New("429 Too Many Requests")}, false},
		{"connection dropped", errCaller{errors.New("websocket: close 1006 (abnormal closure)")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewPoolReader(tt.caller).Tokens(context.Background(), pool)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrUnsupported); got != tt.definitive {
				t.Errorf("errors.Is(err, ErrUnsupported) = %v for %v", got, err)
			}
		})
	}
}
