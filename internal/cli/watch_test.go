package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/vietddude/somicard/internal/core/domain"
)

const watchTxHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

// scriptedSource emits one state per watch, or nothing when state is nil.
type scriptedSource struct {
	state *domain.ReceiptState

	mu      sync.Mutex
	fn      func(domain.ReceiptState)
	stopped bool
}

func (s *scriptedSource) Watch(_ context.Context, _ string, fn func(domain.ReceiptState)) func() {
	s.mu.Lock()
	s.fn = fn
	s.mu.Unlock()
	if s.state != nil {
		go fn(*s.state)
	}
	return func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}
}

// countingNotifier counts outcome notifications.
type countingNotifier struct {
	mu        sync.Mutex
	confirmed int
	failed    int
}

func (n *countingNotifier) SendNotification(context.Context, domain.NotificationRecord) bool {
	return true
}

func (n *countingNotifier) TransactionInitiated(context.Context, domain.NotificationRecord) bool {
	return true
}

func (n *countingNotifier) TransactionConfirmed(context.Context, domain.NotificationRecord) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed++
	return true
}

func (n *countingNotifier) TransactionFailed(context.Context, domain.NotificationRecord, string, string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed++
	return true
}

func (n *countingNotifier) RequestBalance(context.Context, domain.BalanceRequest) bool {
	return true
}

func (n *countingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.confirmed, n.failed
}

func watchCustomer() domain.CustomerData {
	return domain.CustomerData{FirstName: "Ana", LastName: "Li", Email: "a@x.com", TokenAmount: "96.0000"}
}

func TestAwaitOutcome_Confirmed(t *testing.T) {
	src := &scriptedSource{state: &domain.ReceiptState{
		IsSuccess: true,
		Receipt:   &domain.Receipt{TransactionHash: watchTxHash, BlockNumber: 42, Status: 1},
	}}
	n := &countingNotifier{}
	var out bytes.Buffer

	code := awaitOutcome(context.Background(), &out, src, n, watchTxHash, watchCustomer())
	if code != exitOK {
		t.Fatalf("expected exit %d, got %d", exitOK, code)
	}
	if !strings.Contains(out.String(), "confirmed") || !strings.Contains(out.String(), "block 42") {
		t.Errorf("unexpected output %q", out.String())
	}
	if confirmed, _ := n.counts(); confirmed != 1 {
		t.Errorf("expected 1 confirmed notification, got %d", confirmed)
	}
}

func TestAwaitOutcome_Failed(t *testing.T) {
	src := &scriptedSource{state: &domain.ReceiptState{IsError: true, Err: errors.New("reverted")}}
	n := &countingNotifier{}
	var out bytes.Buffer

	code := awaitOutcome(context.Background(), &out, src, n, watchTxHash, watchCustomer())
	if code != exitFailed {
		t.Fatalf("expected exit %d, got %d", exitFailed, code)
	}
	if !strings.Contains(out.String(), "reverted") {
		t.Errorf("unexpected output %q", out.String())
	}
	if _, failed := n.counts(); failed != 1 {
		t.Errorf("expected 1 failed notification, got %d", failed)
	}
}

func TestAwaitOutcome_InterruptedStopsWatch(t *testing.T) {
	src := &scriptedSource{}
	n := &countingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code := awaitOutcome(ctx, &bytes.Buffer{}, src, n, watchTxHash, watchCustomer())
	if code != exitFailed {
		t.Fatalf("expected exit %d, got %d", exitFailed, code)
	}

	src.mu.Lock()
	stopped, fn := src.stopped, src.fn
	src.mu.Unlock()
	if !stopped {
		t.Error("watch was not stopped")
	}

	// A receipt delivered after the interrupt is ignored.
	fn(domain.ReceiptState{IsSuccess: true, Receipt: &domain.Receipt{TransactionHash: watchTxHash, Status: 1}})
	if confirmed, failed := n.counts(); confirmed != 0 || failed != 0 {
		t.Errorf("expected no notifications, got %d confirmed, %d failed", confirmed, failed)
	}
}
