package bundle

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/internal/metrics"
	"github.com/devlongs/sandwich-bot/internal/output"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

// notifyTimeout bounds an alert delivery after a successful submission
const notifyTimeout = 5 * time.Second

// Backend signs the bot's legs and submits the bundle to relays
type Backend interface {
	SignAndSubmit(ctx context.Context, bundle *types.Bundle) (*types.Submission, error)
}

// Notifier is told about every bundle a relay accepted
type Notifier interface {
	Notify(ctx context.Context, blockNumber uint64, txHash common.Hash, bundleID string) error
}

// Submitter deduplicates bundles against recent history and dispatches new
// ones without blocking the caller. Submit must be called from one goroutine.
type Submitter struct {
	backend  Backend
	notifier Notifier
	history  *History
	metrics  *metrics.Metrics
	logger   *output.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewSubmitter creates a submitter whose dispatches give up after timeout
func NewSubmitter(backend Backend, notifier Notifier, m *metrics.Metrics, logger *output.Logger, timeout time.Duration) *Submitter {
	return &Submitter{
		backend:  backend,
		notifier: notifier,
		history:  NewHistory(HistoryCapacity),
		metrics:  m,
		logger:   logger,
		timeout:  timeout,
	}
}

// Submit dispatches b unless its identity was attempted recently. It reports
// the identity and whether a dispatch happened.
func (s *Submitter) Submit(ctx context.Context, b *types.Bundle) (string, bool) {
	id := Identity(b.VictimHashes())
	if s.history.Contains(id) {
		s.metrics.BundlesDeduped.WithLabelValues().Inc()
		log.Debug().Str("bundle", id).Uint64("block", b.TargetBlock).Msg("Bundle already attempted")
		return id, false
	}

	s.wg.Add(1)
	go s.dispatch(ctx, id, b)

	s.history.Push(id)
	return id, true
}

func (s *Submitter) dispatch(ctx context.Context, id string, b *types.Bundle) {
	defer s.wg.Done()

	submitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sub, err := s.backend.SignAndSubmit(submitCtx, b)
	if err != nil {
		log.Warn().Err(err).Str("bundle", id).Uint64("block", b.TargetBlock).Msg("Bundle submission failed")
		return
	}

	s.metrics.BundlesSubmitted.WithLabelValues().Inc()
	s.logger.LogBundle(id, b, sub)

	// the relay fan-out may have spent the whole submission budget
	notifyCtx, cancelNotify := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancelNotify()

	if err := s.notifier.Notify(notifyCtx, b.TargetBlock, sub.TxHash, sub.BundleID); err != nil {
		log.Warn().Err(err).Str("bundle", id).Msg("Alert delivery failed")
	}
}

// Wait blocks until in-flight dispatches finish
func (s *Submitter) Wait() {
	s.wg.Wait()
}
