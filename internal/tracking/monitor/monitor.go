// Package monitor turns receipt updates for a submitted transaction into
// exactly one notification per terminal outcome.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/infra/notify"
)

const defaultDispatchTimeout = 30 * time.Second

// View is the read-only display projection of a monitor.
type View struct {
	Hash         string          `json:"txHash"`
	Receipt      *domain.Receipt `json:"receipt,omitempty"`
	IsConfirming bool            `json:"isConfirming"`
	IsSuccess    bool            `json:"isSuccess"`
	IsError      bool            `json:"isError"`
	Err          error           `json:"-"`
}

// Monitor watches one transaction hash at a time. The notified flag is
// checked and set under mu before any dispatch starts, so each hash
// produces at most one dispatch and at most one callback.
type Monitor struct {
	notifier        notify.Notifier
	onSuccess       func()
	onError         func(error)
	now             func() time.Time
	log             *slog.Logger
	dispatchTimeout time.Duration

	mu       sync.Mutex
	hash     string
	customer *domain.CustomerData
	notified bool
	closed   bool
	state    domain.ReceiptState

	inflight sync.WaitGroup
}

// Option customises a Monitor.
type Option func(*Monitor)

// WithOnSuccess sets the callback run once the confirmed dispatch starts.
func WithOnSuccess(fn func()) Option {
	return func(m *Monitor) { m.onSuccess = fn }
}

// WithOnError sets the callback run with the chain error on failure.
func WithOnError(fn func(error)) Option {
	return func(m *Monitor) { m.onError = fn }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l.With("component", "monitor") }
}

// WithDispatchTimeout bounds each background dispatch.
func WithDispatchTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.dispatchTimeout = d
		}
	}
}

// New creates a monitor that reports through notifier.
func New(notifier notify.Notifier, opts ...Option) *Monitor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	m := &Monitor{
		notifier:        notifier,
		now:             time.Now,
		log:             slog.Default().With("component", "monitor"),
		dispatchTimeout: defaultDispatchTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTransaction updates the watched hash and customer snapshot. Any change
// of hash, including to "", re-arms the monitor.
func (m *Monitor) SetTransaction(hash string, customer *domain.CustomerData) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hash != m.hash {
		m.notified = false
		m.state = domain.ReceiptState{}
	}
	m.hash = hash

	if customer == nil {
		m.customer = nil
		return
	}
	snapshot := *customer
	m.customer = &snapshot
}

// Observe applies one receipt state emitted for the current hash.
func (m *Monitor) Observe(state domain.ReceiptState) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state = state

	switch {
	case state.IsSuccess && state.Receipt != nil && m.customer != nil && !m.notified:
		m.notified = true
		rec := domain.NewNotificationRecord(
			*m.customer, state.Receipt.TransactionHash, domain.StatusConfirmed, m.now())
		m.inflight.Add(1)
		m.mu.Unlock()

		m.dispatch(rec, func(ctx context.Context) bool {
			return m.notifier.TransactionConfirmed(ctx, rec)
		})
		if m.onSuccess != nil {
			m.onSuccess()
		}

	case state.IsError && state.Err != nil && m.customer != nil && !m.notified:
		m.notified = true
		hash := m.hash
		if hash == "" {
			hash = domain.MissingTxHash
		}
		rec := domain.NewNotificationRecord(*m.customer, hash, domain.StatusFailed, m.now())
		rec.ErrorMessage = state.Err.Error()
		m.inflight.Add(1)
		m.mu.Unlock()

		m.dispatch(rec, func(ctx context.Context) bool {
			return m.notifier.TransactionFailed(ctx, rec, hash, rec.ErrorMessage)
		})
		if m.onError != nil {
			m.onError(state.Err)
		}

	default:
		m.mu.Unlock()
	}
}

// dispatch sends in the background. The outcome is only logged. The caller
// has already counted it in inflight under mu.
func (m *Monitor) dispatch(rec domain.NotificationRecord, send func(context.Context) bool) {
	go func() {
		defer m.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.dispatchTimeout)
		defer cancel()

		if send(ctx) {
			m.log.Info("Notification dispatched", "status", rec.Status, "tx", rec.TransactionHash)
			return
		}
		m.log.Warn("Notification not delivered", "status", rec.Status, "tx", rec.TransactionHash)
	}()
}

// Wait blocks until every dispatch started so far has finished.
func (m *Monitor) Wait() {
	m.inflight.Wait()
}

// Close makes later Observe calls no-ops and waits for started dispatches.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.inflight.Wait()
}

// View returns the current display projection.
func (m *Monitor) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return View{
		Hash:         m.hash,
		Receipt:      m.state.Receipt,
		IsConfirming: m.state.IsConfirming,
		IsSuccess:    m.state.IsSuccess,
		IsError:      m.state.IsError,
		Err:          m.state.Err,
	}
}
