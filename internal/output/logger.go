package output

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/internal/config"
	"github.com/devlongs/sandwich-bot/internal/registry"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

// Logger handles output formatting for pipeline events and keeps running stats.
// It is safe for concurrent use.
type Logger struct {
	stats *Stats
	mu    sync.Mutex // guards the revenue totals
}

// Stats tracks pipeline statistics
type Stats struct {
	BlocksProcessed  atomic.Uint64
	PendingSeen      atomic.Uint64
	TxsTracked       atomic.Uint64
	SwapsExtracted   atomic.Uint64
	SandwichesFound  atomic.Uint64
	BundlesSubmitted atomic.Uint64
	Revenue          map[common.Address]*big.Int // projected net revenue per main currency
	StartTime        time.Time
}

// NewLogger configures the global zerolog logger and returns a stats logger
func NewLogger(cfg config.LoggingConfig) *Logger {
	switch cfg.Format {
	case "json":
		// Default JSON output
	case "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}

	return &Logger{
		stats: &Stats{
			Revenue:   make(map[common.Address]*big.Int),
			StartTime: time.Now(),
		},
	}
}

// LogBlock logs a processed head and what it did to the tracked table
func (l *Logger) LogBlock(block *types.BlockContext, confirmed, pruned, tracked int) {
	l.stats.BlocksProcessed.Add(1)

	log.Info().
		Uint64("block", block.Number).
		Str("baseFee", block.BaseFee.String()).
		Str("nextBaseFee", block.NextBaseFee.String()).
		Int("confirmed", confirmed).
		Int("pruned", pruned).
		Int("tracked", tracked).
		Msg("Block processed")
}

// CountPending records a pending transaction delivery and whether it was tracked
func (l *Logger) CountPending(tracked bool) {
	l.stats.PendingSeen.Add(1)
	if tracked {
		l.stats.TxsTracked.Add(1)
	}
}

// LogSwap logs a single classified swap (debug level)
func (l *Logger) LogSwap(swap *types.SwapInfo) {
	l.stats.SwapsExtracted.Add(1)

	main := registry.MainCurrencies[swap.MainCurrency]
	mainAmount, targetAmount := swap.AmountIn, swap.AmountOut
	if swap.Direction == types.Sell {
		mainAmount, targetAmount = swap.AmountOut, swap.AmountIn
	}

	log.Debug().
		Str("txHash", swap.TxHash.Hex()).
		Str("pool", swap.Pool.Hex()).
		Str("mainCurrency", main.Symbol).
		Str("targetToken", swap.TargetToken.Hex()).
		Str("direction", swap.Direction.String()).
		Str("mainAmount", formatUnits(mainAmount, main.Decimals)).
		Str("targetAmount", formatUnits(targetAmount, swap.TargetDecimals)).
		Msg("Swap extracted")
}

// LogSandwich logs an optimized sandwich
func (l *Logger) LogSandwich(c *types.Candidate) {
	l.stats.SandwichesFound.Add(1)

	tok := registry.MainCurrencies[c.Swap.MainCurrency]
	l.mu.Lock()
	total, ok := l.stats.Revenue[c.Swap.MainCurrency]
	if !ok {
		total = new(big.Int)
		l.stats.Revenue[c.Swap.MainCurrency] = total
	}
	total.Add(total, c.Optimized.Revenue)
	l.mu.Unlock()

	log.Info().
		Str("txHash", c.Victim.Hash.Hex()).
		Str("pool", c.Swap.Pool.Hex()).
		Str("amountIn", formatUnits(c.Optimized.AmountIn, tok.Decimals)+" "+tok.Symbol).
		Str("revenue", formatUnits(c.Optimized.Revenue, tok.Decimals)+" "+tok.Symbol).
		Str("gasCost", formatUnits(c.Optimized.GasCost, tok.Decimals)+" "+tok.Symbol).
		Uint64("frontGas", c.Optimized.FrontGas).
		Msg("SANDWICH FOUND")
}

// LogBundle logs a bundle accepted by at least one relay
func (l *Logger) LogBundle(id string, b *types.Bundle, sub *types.Submission) {
	l.stats.BundlesSubmitted.Add(1)

	log.Info().
		Str("bundle", id).
		Uint64("block", b.TargetBlock).
		Int("sandwiches", len(b.Sandwiches)).
		Str("bundleHash", sub.BundleID).
		Str("txHash", sub.TxHash.Hex()).
		Strs("relays", sub.Relays).
		Msg("Bundle submitted")
}

// LogStats logs current statistics
func (l *Logger) LogStats() {
	elapsed := time.Since(l.stats.StartTime)

	l.mu.Lock()
	revenue := make([]string, 0, len(l.stats.Revenue))
	for addr, total := range l.stats.Revenue {
		tok := registry.MainCurrencies[addr]
		revenue = append(revenue, formatUnits(total, tok.Decimals)+" "+tok.Symbol)
	}
	l.mu.Unlock()

	log.Info().
		Uint64("blocksProcessed", l.stats.BlocksProcessed.Load()).
		Uint64("pendingSeen", l.stats.PendingSeen.Load()).
		Uint64("txsTracked", l.stats.TxsTracked.Load()).
		Uint64("swapsExtracted", l.stats.SwapsExtracted.Load()).
		Uint64("sandwichesFound", l.stats.SandwichesFound.Load()).
		Uint64("bundlesSubmitted", l.stats.BundlesSubmitted.Load()).
		Str("projectedRevenue", strings.Join(revenue, ", ")).
		Dur("uptime", elapsed).
		Msg("Sandwich Bot Stats")
}

// GetStats returns current statistics
func (l *Logger) GetStats() *Stats {
	return l.stats
}

// formatUnits renders a token amount with 6 decimal places
func formatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}

	v := new(big.Float).SetInt(amount)
	v.Quo(v, new(big.Float).SetInt(registry.Unit(decimals)))

	return fmt.Sprintf("%.6f", v)
}
