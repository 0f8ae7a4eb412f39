package tracker

import (
	"context"
	"math/big"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/devlongs/sandwich-bot/internal/bundle"
	"github.com/devlongs/sandwich-bot/internal/config"
	"github.com/devlongs/sandwich-bot/internal/metrics"
	"github.com/devlongs/sandwich-bot/internal/output"
	"github.com/devlongs/sandwich-bot/internal/stream"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

// Chain answers the inclusion questions the tracker asks synchronously
type Chain interface {
	BlockTransactionHashes(ctx context.Context, number uint64) ([]common.Hash, error)
	HasReceipt(ctx context.Context, txHash common.Hash) (bool, error)
}

// Dispatcher hands bundles to the submission side without blocking
type Dispatcher interface {
	Submit(ctx context.Context, b *types.Bundle) (string, bool)
}

type completion struct {
	hash   common.Hash
	block  *types.BlockContext
	result Result
}

// Engine is the single control loop fusing block and pending-tx events. It
// exclusively owns the tracked table and the current block context; workers
// report back through completion messages.
type Engine struct {
	chain     Chain
	processor Processor
	submitter Dispatcher
	metrics   *metrics.Metrics
	logger    *output.Logger
	cfg       config.SandwichConfig
	rpcTO     time.Duration

	events      <-chan stream.Event
	completions chan completion
	workers     *semaphore.Weighted
	wg          sync.WaitGroup

	pending map[common.Hash]*types.TrackedTx
	block   *types.BlockContext
}

// NewEngine creates the tracker control loop
func NewEngine(
	events <-chan stream.Event,
	chain Chain,
	processor Processor,
	submitter Dispatcher,
	m *metrics.Metrics,
	logger *output.Logger,
	cfg config.SandwichConfig,
	rpcTimeout time.Duration,
) *Engine {
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		chain:       chain,
		processor:   processor,
		submitter:   submitter,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
		rpcTO:       rpcTimeout,
		events:      events,
		completions: make(chan completion, workers),
		workers:     semaphore.NewWeighted(int64(workers)),
		pending:     make(map[common.Hash]*types.TrackedTx),
	}
}

// Run consumes events until ctx is cancelled or the event stream closes, then
// waits for in-flight workers.
func (e *Engine) Run(ctx context.Context) error {
	defer e.wg.Wait()

	log.Info().Int("workers", e.cfg.WorkerCount).Msg("Tracker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down tracker...")
			return ctx.Err()

		case ev, ok := <-e.events:
			if !ok {
				return nil
			}
			switch {
			case ev.Block != nil:
				e.handleBlock(ctx, ev.Block)
			case ev.Pending != nil:
				e.handlePending(ctx, ev.Pending)
			}

		case c := <-e.completions:
			e.applyCompletion(ctx, c)
		}
	}
}

// handleBlock replaces the block context, drops transactions the block
// confirmed and prunes everything that aged out.
func (e *Engine) handleBlock(ctx context.Context, block *types.BlockContext) {
	e.block = block
	e.metrics.LastBlock.WithLabelValues().Set(float64(block.Number))

	confirmed := 0
	rctx, cancel := context.WithTimeout(ctx, e.rpcTO)
	hashes, err := e.chain.BlockTransactionHashes(rctx, block.Number)
	cancel()
	if err != nil {
		log.Warn().Err(err).Uint64("block", block.Number).Msg("Failed to fetch block transactions")
	} else {
		included := mapset.NewThreadUnsafeSet[common.Hash](hashes...)
		for hash := range e.pending {
			if included.Contains(hash) {
				delete(e.pending, hash)
				confirmed++
			}
		}
	}

	pruned := 0
	for hash, tracked := range e.pending {
		if tracked.Age(block.Number) >= e.cfg.MaxPendingAge {
			delete(e.pending, hash)
			pruned++
		}
	}

	e.metrics.TrackedTxs.WithLabelValues().Set(float64(len(e.pending)))
	e.logger.LogBlock(block, confirmed, pruned, len(e.pending))
}

// handlePending tracks an admissible, still-unmined transaction and starts
// its evaluation if a worker is free.
func (e *Engine) handlePending(ctx context.Context, tx *types.PendingTx) {
	e.metrics.PendingSeen.WithLabelValues().Inc()

	if _, ok := e.pending[tx.Hash]; ok {
		return
	}
	if e.block == nil {
		e.reject("no_block")
		return
	}
	if !Admissible(tx, e.block.BaseFee) {
		e.reject("underpriced")
		return
	}

	rctx, cancel := context.WithTimeout(ctx, e.rpcTO)
	mined, err := e.chain.HasReceipt(rctx, tx.Hash)
	cancel()
	if err != nil {
		log.Warn().Err(err).Str("txHash", tx.Hash.Hex()).Msg("Receipt lookup failed")
		e.reject("rpc_error")
		return
	}
	if mined {
		e.reject("stale")
		return
	}

	tracked := &types.TrackedTx{Tx: tx, FirstSeenBlock: e.block.Number}
	e.pending[tx.Hash] = tracked
	e.logger.CountPending(true)
	e.metrics.TrackedTxs.WithLabelValues().Set(float64(len(e.pending)))

	e.dispatch(ctx, tracked)
}

func (e *Engine) reject(reason string) {
	e.logger.CountPending(false)
	e.metrics.PendingRejected.WithLabelValues(reason).Inc()
}

// dispatch evaluates tracked on a worker. When every worker is busy the
// transaction stays tracked but is never evaluated.
func (e *Engine) dispatch(ctx context.Context, tracked *types.TrackedTx) {
	if !e.workers.TryAcquire(1) {
		e.metrics.WorkersSaturated.WithLabelValues().Inc()
		log.Debug().Str("txHash", tracked.Tx.Hash.Hex()).Msg("Workers saturated, skipping evaluation")
		return
	}

	tracked.Evaluated = true
	block := e.block
	tx := tracked.Tx

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.workers.Release(1)

		// the opportunity is only valid until the next block
		wctx, cancel := context.WithDeadline(ctx, block.ReceivedAt.Add(e.cfg.BlockInterval))
		defer cancel()

		result := e.processor.Process(wctx, tx, block)

		select {
		case e.completions <- completion{hash: tx.Hash, block: block, result: result}:
		case <-ctx.Done():
		}
	}()
}

// applyCompletion stores a worker result if its transaction is still tracked
// and submits any optimized sandwiches computed against the current head.
func (e *Engine) applyCompletion(ctx context.Context, c completion) {
	tracked, ok := e.pending[c.hash]
	if !ok {
		e.metrics.StaleCompletions.WithLabelValues("untracked").Inc()
		return
	}
	tracked.Swaps = c.result.Swaps
	tracked.Candidates = c.result.Candidates

	if e.block == nil || c.block.Number != e.block.Number {
		e.metrics.StaleCompletions.WithLabelValues("head_moved").Inc()
		log.Debug().
			Str("txHash", c.hash.Hex()).
			Uint64("computedAt", c.block.Number).
			Msg("Discarding result computed against an old head")
		return
	}

	b := bundle.Assemble(c.block, c.result.Candidates)
	if b == nil {
		return
	}
	e.submitter.Submit(ctx, b)
}

// Admissible applies the fee floor: legacy gas price or fee-market max fee
// must cover the current base fee. Other encodings are never admissible.
func Admissible(tx *types.PendingTx, baseFee *big.Int) bool {
	if baseFee == nil {
		return false
	}
	switch tx.Type {
	case ethtypes.LegacyTxType:
		return tx.GasPrice != nil && tx.GasPrice.Cmp(baseFee) >= 0
	case ethtypes.DynamicFeeTxType:
		return tx.GasFeeCap != nil && tx.GasFeeCap.Cmp(baseFee) >= 0
	}
	return false
}

// Len returns the number of tracked transactions
func (e *Engine) Len() int {
	return len(e.pending)
}

// Tracked returns the tracked entry for hash
func (e *Engine) Tracked(hash common.Hash) (*types.TrackedTx, bool) {
	t, ok := e.pending[hash]
	return t, ok
}
