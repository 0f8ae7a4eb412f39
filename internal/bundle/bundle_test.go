package bundle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/sandwich-bot/internal/config"
	"github.com/devlongs/sandwich-bot/internal/metrics"
	"github.com/devlongs/sandwich-bot/internal/output"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

func hash(prefix string) common.Hash {
	return common.HexToHash(prefix + "00000000000000000000000000000000000000000000000000000000")
}

func TestIdentityIsOrderAndDuplicateInsensitive(t *testing.T) {
	a := hash("0xaaaaaaaa")
	b := hash("0x11111111")

	got := Identity([]common.Hash{a, b, a})
	if got != "0x11111111-0xaaaaaaaa" {
		t.Fatalf("Identity = %q", got)
	}
	if Identity([]common.Hash{b, a}) != got {
		t.Fatal("identity depends on order")
	}
	if Identity([]common.Hash{a}) != "0xaaaaaaaa" {
		t.Fatalf("single identity = %q", Identity([]common.Hash{a}))
	}
}

func TestHistoryFIFO(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []string{"a", "b", "c"} {
		h.Push(id)
	}
	// lookups must not refresh "a"
	if !h.Contains("a") {
		t.Fatal("a should be present")
	}
	h.Push("d")

	if h.Contains("a") {
		t.Error("oldest entry should have been evicted")
	}
	for _, id := range []string{"b", "c", "d"} {
		if !h.Contains(id) {
			t.Errorf("%s should be present", id)
		}
	}
	if h.Len() != 3 {
		t.Errorf("Len = %d", h.Len())
	}

	h.Push("d")
	if h.Len() != 3 || !h.Contains("b") {
		t.Error("re-pushing a present id should be a no-op")
	}
}

func TestAssemble(t *testing.T) {
	block := &types.BlockContext{Number: 10, BaseFee: big.NewInt(7), NextBaseFee: big.NewInt(8)}
	candidates := []types.Candidate{
		{Victim: types.VictimTx{Hash: hash("0x01")}},
		{Victim: types.VictimTx{Hash: hash("0x02")}, Optimized: &types.OptimizedSandwich{Revenue: big.NewInt(1)}},
		{Victim: types.VictimTx{Hash: hash("0x03")}, Optimized: &types.OptimizedSandwich{Revenue: big.NewInt(5)}},
	}

	b := Assemble(block, candidates)
	if b == nil || len(b.Sandwiches) != 2 {
		t.Fatalf("unexpected bundle %+v", b)
	}
	if b.TargetBlock != 11 || b.BaseFee.Int64() != 8 {
		t.Errorf("target = %d, baseFee = %s", b.TargetBlock, b.BaseFee)
	}
	if b.Sandwiches[0].Optimized.Revenue.Int64() != 5 {
		t.Error("bundle should lead with the most profitable sandwich")
	}

	if Assemble(block, candidates[:1]) != nil {
		t.Error("no optimized candidates should yield no bundle")
	}
}

type fakeBackend struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeBackend) SignAndSubmit(_ context.Context, b *types.Bundle) (*types.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &types.Submission{BundleID: "0xbundle", TxHash: b.Sandwiches[0].Victim.Hash, Relays: []string{"flashbots"}}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	blocks []uint64
}

func (f *fakeNotifier) Notify(_ context.Context, block uint64, _ common.Hash, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, block)
	return nil
}

func newTestSubmitter(backend Backend, notifier Notifier) *Submitter {
	logger := output.NewLogger(config.LoggingConfig{Level: "error"})
	return NewSubmitter(backend, notifier, metrics.NewMetrics(nil, "test"), logger, time.Second)
}

func testBundle(victims ...common.Hash) *types.Bundle {
	b := &types.Bundle{TargetBlock: 101, BaseFee: big.NewInt(1)}
	for _, v := range victims {
		b.Sandwiches = append(b.Sandwiches, types.Candidate{
			Victim:    types.VictimTx{Hash: v},
			Optimized: &types.OptimizedSandwich{Revenue: big.NewInt(1)},
		})
	}
	return b
}

func TestSubmitterDeduplicates(t *testing.T) {
	backend := &fakeBackend{}
	notifier := &fakeNotifier{}
	s := newTestSubmitter(backend, notifier)
	ctx := context.Background()

	if _, ok := s.Submit(ctx, testBundle(hash("0xaaaaaaaa"), hash("0xbbbbbbbb"))); !ok {
		t.Fatal("first submission should dispatch")
	}
	// same victim set in another order
	if _, ok := s.Submit(ctx, testBundle(hash("0xbbbbbbbb"), hash("0xaaaaaaaa"))); ok {
		t.Fatal("duplicate identity should be dropped")
	}
	s.Wait()

	if backend.calls != 1 {
		t.Errorf("backend called %d times", backend.calls)
	}
	if len(notifier.blocks) != 1 || notifier.blocks[0] != 101 {
		t.Errorf("notifications = %v", notifier.blocks)
	}
}

func TestSubmitterHistoryWindow(t *testing.T) {
	backend := &fakeBackend{}
	s := newTestSubmitter(backend, &fakeNotifier{})
	ctx := context.Background()

	first := testBundle(hash("0x00000000"))
	s.Submit(ctx, first)
	for i := 1; i <= HistoryCapacity; i++ {
		s.Submit(ctx, testBundle(hash(fmt.Sprintf("0x%08x", i))))
	}
	// the first identity has fallen out of the 30-entry window
	if _, ok := s.Submit(ctx, first); !ok {
		t.Fatal("evicted identity should be submittable again")
	}
	s.Wait()

	if backend.calls != HistoryCapacity+2 {
		t.Errorf("backend called %d times", backend.calls)
	}
}

func TestSubmitterFailureStillRecorded(t *testing.T) {
	backend := &fakeBackend{err: errors.New("all relays failed")}
	notifier := &fakeNotifier{}
	s := newTestSubmitter(backend, notifier)

	s.Submit(context.Background(), testBundle(hash("0xcccccccc")))
	s.Wait()

	if len(notifier.blocks) != 0 {
		t.Error("failed submissions must not alert")
	}
	if _, ok := s.Submit(context.Background(), testBundle(hash("0xcccccccc"))); ok {
		t.Error("attempted identity should be suppressed even after failure")
	}
}

// slowBackend accepts only once its submission deadline has passed
type slowBackend struct{}

func (slowBackend) SignAndSubmit(ctx context.Context, b *types.Bundle) (*types.Submission, error) {
	<-ctx.Done()
	return &types.Submission{BundleID: "0xlate", TxHash: b.Sandwiches[0].Victim.Hash}, nil
}

type ctxNotifier struct {
	errs chan error
}

func (n *ctxNotifier) Notify(ctx context.Context, _ uint64, _ common.Hash, _ string) error {
	n.errs <- ctx.Err()
	return ctx.Err()
}

func TestSubmitterAlertOutlivesSubmissionBudget(t *testing.T) {
	notifier := &ctxNotifier{errs: make(chan error, 1)}
	logger := output.NewLogger(config.LoggingConfig{Level: "error"})
	s := NewSubmitter(slowBackend{}, notifier, metrics.NewMetrics(nil, "test"), logger, 20*time.Millisecond)

	s.Submit(context.Background(), testBundle(hash("0xdddddddd")))
	s.Wait()

	select {
	case err := <-notifier.errs:
		if err != nil {
			t.Fatalf("alert context already done: %v", err)
		}
	default:
		t.Fatal("accepted bundle was not alerted")
	}
}
