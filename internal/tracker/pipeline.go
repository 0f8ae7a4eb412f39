package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/internal/metrics"
	"github.com/devlongs/sandwich-bot/internal/output"
	"github.com/devlongs/sandwich-bot/internal/sandwich"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

// Result is what a worker learned about one pending transaction
type Result struct {
	Swaps      []types.SwapInfo
	Candidates []types.Candidate
}

// Processor evaluates a tracked transaction against a block. It runs off the
// control loop and must not touch tracker state.
type Processor interface {
	Process(ctx context.Context, tx *types.PendingTx, block *types.BlockContext) Result
}

// Extractor classifies the swaps a pending transaction performs
type Extractor interface {
	Extract(ctx context.Context, tx *types.PendingTx, block *types.BlockContext) []types.SwapInfo
}

// Optimizer sizes a candidate's front-run
type Optimizer interface {
	Optimize(ctx context.Context, c *types.Candidate, block *types.BlockContext) (*types.OptimizedSandwich, error)
}

// Pipeline chains extraction, candidate building and optimization
type Pipeline struct {
	extractor Extractor
	optimizer Optimizer
	metrics   *metrics.Metrics
	logger    *output.Logger
}

// NewPipeline creates the worker pipeline
func NewPipeline(extractor Extractor, optimizer Optimizer, m *metrics.Metrics, logger *output.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		optimizer: optimizer,
		metrics:   m,
		logger:    logger,
	}
}

func (p *Pipeline) Process(ctx context.Context, tx *types.PendingTx, block *types.BlockContext) Result {
	start := time.Now()
	defer func() {
		p.metrics.WorkerDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	}()

	swaps := p.extractor.Extract(ctx, tx, block)
	for i := range swaps {
		p.metrics.SwapsExtracted.WithLabelValues(swaps[i].Direction.String()).Inc()
		p.logger.LogSwap(&swaps[i])
	}

	candidates := sandwich.BuildCandidates(tx, swaps)
	p.metrics.Candidates.WithLabelValues().Add(float64(len(candidates)))

	for i := range candidates {
		// past the deadline the state is stale and the block is gone
		if ctx.Err() != nil {
			p.metrics.Sandwiches.WithLabelValues("timeout").Inc()
			break
		}

		opt, err := p.optimizer.Optimize(ctx, &candidates[i], block)
		switch {
		case err == nil:
			candidates[i].Optimized = opt
			p.metrics.Sandwiches.WithLabelValues("optimized").Inc()
			p.logger.LogSandwich(&candidates[i])
		case errors.Is(err, sandwich.ErrUnprofitable):
			p.metrics.Sandwiches.WithLabelValues("unprofitable").Inc()
		case errors.Is(err, sandwich.ErrInfeasible):
			p.metrics.Sandwiches.WithLabelValues("infeasible").Inc()
		default:
			p.metrics.Sandwiches.WithLabelValues("error").Inc()
			log.Debug().Err(err).Str("txHash", tx.Hash.Hex()).Str("pool", candidates[i].Swap.Pool.Hex()).Msg("Optimization failed")
		}
	}

	return Result{Swaps: swaps, Candidates: candidates}
}
