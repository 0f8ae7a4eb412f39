package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/devlongs/sandwich-bot/pkg/types"
)

// Event carries exactly one of a new head or a pending transaction
type Event struct {
	Block   *types.BlockContext
	Pending *types.PendingTx
}

// BlockEvent wraps a new head
func BlockEvent(b *types.BlockContext) Event {
	return Event{Block: b}
}

// PendingEvent wraps a newly observed pending transaction
func PendingEvent(tx *types.PendingTx) Event {
	return Event{Pending: tx}
}

// Broadcaster fans events out to every subscriber. Block events are
// delivered reliably; pending transactions are dropped for a subscriber
// whose buffer is full, matching the best-effort nature of the mempool feed.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    []chan Event
	buffer  int
	dropped atomic.Uint64
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{buffer: buffer}
}

// Subscribe registers a new consumer
func (b *Broadcaster) Subscribe() <-chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to all subscribers
func (b *Broadcaster) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		if ev.Block != nil {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case ch <- ev:
		default:
			if n := b.dropped.Add(1); n%1000 == 1 {
				log.Warn().Uint64("dropped", n).Msg("Subscriber lagging, dropping pending transactions")
			}
		}
	}
}

// Close closes every subscriber channel
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
