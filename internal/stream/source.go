package stream

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	bottypes "github.com/devlongs/sandwich-bot/pkg/types"
)

// Subscriber is the subset of the eth client the source needs
type Subscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	SubscribePendingTransactions(ctx context.Context, ch chan<- *types.Transaction) (ethereum.Subscription, error)
}

// Source turns node subscriptions into Events on a Broadcaster
type Source struct {
	sub    Subscriber
	out    *Broadcaster
	signer types.Signer
	rng    *rand.Rand
}

// NewSource creates an event source for the given chain
func NewSource(sub Subscriber, out *Broadcaster, chainID *big.Int) *Source {
	return &Source{
		sub:    sub,
		out:    out,
		signer: types.LatestSignerForChainID(chainID),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run subscribes to heads and pending transactions and publishes them until
// ctx is cancelled or a subscription fails.
func (s *Source) Run(ctx context.Context) error {
	headers := make(chan *types.Header, 16)
	headSub, err := s.sub.SubscribeNewHead(ctx, headers)
	if err != nil {
		return fmt.Errorf("failed to subscribe to new heads: %w", err)
	}
	defer headSub.Unsubscribe()

	txs := make(chan *types.Transaction, 1024)
	txSub, err := s.sub.SubscribePendingTransactions(ctx, txs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to pending transactions: %w", err)
	}
	defer txSub.Unsubscribe()

	log.Info().Msg("Subscribed to new heads and pending transactions")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-headSub.Err():
			return fmt.Errorf("head subscription error: %w", err)

		case err := <-txSub.Err():
			return fmt.Errorf("pending tx subscription error: %w", err)

		case header := <-headers:
			if block := s.blockContext(header); block != nil {
				s.out.Publish(ctx, BlockEvent(block))
			}

		case tx := <-txs:
			if pending := s.pendingTx(tx); pending != nil {
				s.out.Publish(ctx, PendingEvent(pending))
			}
		}
	}
}

func (s *Source) blockContext(header *types.Header) *bottypes.BlockContext {
	if header == nil || header.Number == nil || header.BaseFee == nil {
		return nil
	}
	return &bottypes.BlockContext{
		Number:      header.Number.Uint64(),
		BaseFee:     new(big.Int).Set(header.BaseFee),
		NextBaseFee: PredictBaseFee(header.GasUsed, header.GasLimit, header.BaseFee, s.rng),
		GasUsed:     header.GasUsed,
		GasLimit:    header.GasLimit,
		ReceivedAt:  time.Now(),
	}
}

func (s *Source) pendingTx(tx *types.Transaction) *bottypes.PendingTx {
	if tx == nil {
		return nil
	}
	from, err := types.Sender(s.signer, tx)
	if err != nil {
		log.Debug().Err(err).Str("txHash", tx.Hash().Hex()).Msg("Dropping pending tx with unrecoverable sender")
		return nil
	}
	pending, err := bottypes.NewPendingTx(tx, from)
	if err != nil {
		log.Debug().Err(err).Str("txHash", tx.Hash().Hex()).Msg("Dropping unencodable pending tx")
		return nil
	}
	return pending
}
