package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/infra/chain"
	"github.com/vietddude/somicard/internal/tracking/monitor"
)

// QuoteSource exposes the current token quote.
type QuoteSource interface {
	Quote() domain.Quote
}

// NotifierStatus reports whether notifications are configured.
type NotifierStatus interface {
	Enabled() bool
}

// SessionLister lists tracked sessions.
type SessionLister interface {
	Sessions() []monitor.SessionView
}

// Monitor aggregates health status from the service's dependencies.
type Monitor struct {
	chainID  domain.ChainID
	rpc      chain.Pinger
	notifier NotifierStatus
	quotes   QuoteSource
	sessions SessionLister

	cacheFor   time.Duration
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. Any dependency may be nil.
func NewMonitor(
	chainID domain.ChainID,
	rpc chain.Pinger,
	notifier NotifierStatus,
	quotes QuoteSource,
	sessions SessionLister,
) *Monitor {
	return &Monitor{
		chainID:  chainID,
		rpc:      rpc,
		notifier: notifier,
		quotes:   quotes,
		sessions: sessions,
		cacheFor: 10 * time.Second,
	}
}

// CheckHealth checks every dependency.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid spamming RPC
	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		ChainID:      int64(m.chainID),
		Components:   make(map[string]ComponentHealth),
	}

	// 1. RPC reachability
	if m.rpc != nil {
		c := ComponentHealth{Status: StatusHealthy}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := m.rpc.Ping(pingCtx); err != nil {
			c = ComponentHealth{Status: StatusCritical, Detail: err.Error()}
		}
		cancel()
		report.Components["rpc"] = c
	}

	// 2. Notifications disabled is not an error, but worth surfacing
	if m.notifier != nil {
		c := ComponentHealth{Status: StatusHealthy}
		if !m.notifier.Enabled() {
			c = ComponentHealth{Status: StatusDegraded, Detail: domain.ErrConfigIncomplete.Error()}
		}
		report.Components["notifier"] = c
	}

	// 3. Price feed
	if m.quotes != nil {
		q := m.quotes.Quote()
		c := ComponentHealth{Status: StatusHealthy}
		switch {
		case q.Fallback:
			c = ComponentHealth{Status: StatusDegraded, Detail: "using fallback price: " + q.Err}
		case q.Price <= 0:
			c = ComponentHealth{Status: StatusDegraded, Detail: "price not loaded"}
		}
		report.Components["price"] = c
	}

	// 4. Sessions awaiting a receipt
	if m.sessions != nil {
		for _, s := range m.sessions.Sessions() {
			if s.Status == monitor.OutcomePending {
				report.ActiveSessions++
			}
		}
	}

	for _, c := range report.Components {
		report.SystemStatus = worst(report.SystemStatus, c.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
