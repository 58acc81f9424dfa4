package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/infra/chain"
	"github.com/vietddude/somicard/internal/infra/notify"
	"github.com/vietddude/somicard/internal/tracking/metrics"
)

// Session outcomes.
const (
	OutcomePending   = "pending"
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
)

// Session binds one Monitor to one receipt subscription.
type Session struct {
	ID        string
	Hash      string
	Customer  domain.CustomerData
	CreatedAt time.Time

	monitor *Monitor
	stop    func()

	mu         sync.Mutex
	outcome    string
	finishedAt time.Time
}

// SessionView is the JSON projection of a session.
type SessionView struct {
	ID           string          `json:"id"`
	TxHash       string          `json:"txHash"`
	Status       string          `json:"status"`
	Receipt      *domain.Receipt `json:"receipt,omitempty"`
	IsConfirming bool            `json:"isConfirming"`
	IsSuccess    bool            `json:"isSuccess"`
	IsError      bool            `json:"isError"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}

func (s *Session) finish(outcome string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != OutcomePending {
		return
	}
	s.outcome = outcome
	s.finishedAt = at
	metrics.ActiveSessions.Dec()
	metrics.SessionsTotal.WithLabelValues(outcome).Inc()
}

func (s *Session) finished() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt, s.outcome != OutcomePending
}

func (s *Session) stopWatch() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// View returns the session projection.
func (s *Session) View() SessionView {
	v := s.monitor.View()

	s.mu.Lock()
	defer s.mu.Unlock()

	out := SessionView{
		ID:           s.ID,
		TxHash:       s.Hash,
		Status:       s.outcome,
		Receipt:      v.Receipt,
		IsConfirming: v.IsConfirming,
		IsSuccess:    v.IsSuccess,
		IsError:      v.IsError,
		CreatedAt:    s.CreatedAt,
	}
	if v.Err != nil {
		out.Error = v.Err.Error()
	}
	if !s.finishedAt.IsZero() {
		at := s.finishedAt
		out.FinishedAt = &at
	}
	return out
}

// Tracker owns the sessions started through the API. Each hash is tracked
// at most once.
type Tracker struct {
	source   chain.ReceiptSource
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// TrackerOption customises a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.log = l }
}

// WithTrackerClock overrides the time source.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker. Watches run until Close.
func NewTracker(source chain.ReceiptSource, notifier notify.Notifier, opts ...TrackerOption) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		source:   source,
		notifier: notifier,
		log:      slog.Default(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// Track starts watching hash for customer. Tracking a hash that already has a
// session returns that session.
func (t *Tracker) Track(hash string, customer domain.CustomerData) (*Session, error) {
	key := normalizeHash(hash)
	if key == "" {
		return nil, fmt.Errorf("%w: transaction hash is required", domain.ErrValidation)
	}
	if t.ctx.Err() != nil {
		return nil, fmt.Errorf("tracker closed")
	}

	t.mu.Lock()
	if s, ok := t.sessions[key]; ok {
		t.mu.Unlock()
		return s, nil
	}

	s := &Session{
		ID:        uuid.NewString(),
		Hash:      key,
		Customer:  customer,
		CreatedAt: t.now(),
		outcome:   OutcomePending,
	}
	s.monitor = New(t.notifier,
		WithLogger(t.log),
		WithClock(t.now),
		WithOnSuccess(func() {
			s.finish(OutcomeConfirmed, t.now())
			t.log.Info("Transaction confirmed", "session", s.ID, "tx", key)
		}),
		WithOnError(func(err error) {
			s.finish(OutcomeFailed, t.now())
			t.log.Warn("Transaction failed", "session", s.ID, "tx", key, "error", err)
		}),
	)
	s.monitor.SetTransaction(key, &customer)
	t.sessions[key] = s
	t.mu.Unlock()

	metrics.ActiveSessions.Inc()
	stop := t.source.Watch(t.ctx, key, s.monitor.Observe)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	t.log.Info("Tracking transaction", "session", s.ID, "tx", key)
	return s, nil
}

// Get returns the session for hash.
func (t *Tracker) Get(hash string) (SessionView, error) {
	t.mu.RLock()
	s, ok := t.sessions[normalizeHash(hash)]
	t.mu.RUnlock()
	if !ok {
		return SessionView{}, fmt.Errorf("%w: session for %s", domain.ErrNotFound, hash)
	}
	return s.View(), nil
}

// Sessions returns every session, oldest first.
func (t *Tracker) Sessions() []SessionView {
	t.mu.RLock()
	list := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		list = append(list, s)
	}
	t.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })

	views := make([]SessionView, len(list))
	for i, s := range list {
		views[i] = s.View()
	}
	return views
}

// Prune removes sessions that finished more than retention ago and returns
// how many were removed.
func (t *Tracker) Prune(retention time.Duration) int {
	threshold := t.now().Add(-retention)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, s := range t.sessions {
		at, done := s.finished()
		if !done || at.After(threshold) {
			continue
		}
		s.stopWatch()
		delete(t.sessions, key)
		removed++
	}
	return removed
}

// Close stops every watch. Dispatches already started run to completion;
// receipts arriving after Close are ignored.
func (t *Tracker) Close() {
	t.cancel()
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		s.monitor.Close()
	}
}
