// Package pricing keeps the latest token quote fresh for checkout.
package pricing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/tracking/metrics"
)

const (
	DefaultFallback = 1.25
	DefaultInterval = 30 * time.Second
)

// Fetcher returns the current USD price of the token.
type Fetcher interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// Cache shares quotes between processes. Only live prices are stored.
type Cache interface {
	Get(ctx context.Context) (domain.Quote, bool, error)
	Set(ctx context.Context, quote domain.Quote, ttl time.Duration) error
}

// Oracle polls a Fetcher and exposes the latest quote. When a fetch fails the
// quote falls back to a fixed price and carries an error message.
type Oracle struct {
	fetcher  Fetcher
	cache    Cache
	fallback float64
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	quote  domain.Quote
	subs   map[int]func(domain.Quote)
	nextID int
}

// Option customises an Oracle.
type Option func(*Oracle)

// WithFallback sets the price used when the feed fails.
func WithFallback(price float64) Option {
	return func(o *Oracle) { o.fallback = price }
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(o *Oracle) { o.interval = d }
}

// WithCache enables a shared quote cache.
func WithCache(c Cache) Option {
	return func(o *Oracle) { o.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Oracle) { o.log = l.With("component", "oracle") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// NewOracle creates an oracle. The initial quote is loading with no price.
func NewOracle(fetcher Fetcher, opts ...Option) *Oracle {
	o := &Oracle{
		fetcher:  fetcher,
		fallback: DefaultFallback,
		interval: DefaultInterval,
		log:      slog.Default().With("component", "oracle"),
		now:      time.Now,
		quote:    domain.Quote{Loading: true},
		subs:     make(map[int]func(domain.Quote)),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.interval <= 0 {
		o.interval = DefaultInterval
	}
	return o
}

// Run fetches immediately and then on every tick until ctx is done.
func (o *Oracle) Run(ctx context.Context) error {
	o.log.Info("Starting price oracle", "interval", o.interval, "fallback", o.fallback)

	o.Refresh(ctx)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.log.Info("Price oracle stopped")
			return nil
		case <-ticker.C:
			o.Refresh(ctx)
		}
	}
}

// Refresh runs one fetch cycle and returns the resulting quote. Loading goes
// true and then false exactly once.
func (o *Oracle) Refresh(ctx context.Context) domain.Quote {
	o.update(func(q *domain.Quote) {
		q.Loading = true
	})

	price, errMsg := o.load(ctx)

	return o.update(func(q *domain.Quote) {
		q.Price = price
		q.Err = errMsg
		q.Fallback = errMsg != ""
		q.Loading = false
		q.UpdatedAt = o.now()
	})
}

// load returns the live price, or the fallback with an error message.
func (o *Oracle) load(ctx context.Context) (float64, string) {
	if q, ok := o.cached(ctx); ok {
		metrics.PriceFetchesTotal.WithLabelValues("cache").Inc()
		return q.Price, ""
	}

	price, err := o.fetcher.FetchPrice(ctx)
	if err != nil {
		o.log.Warn("Price fetch failed, using fallback price", "fallback", o.fallback, "error", err)
		metrics.PriceFetchesTotal.WithLabelValues("fallback").Inc()
		return o.fallback, "Failed to fetch price"
	}

	metrics.PriceFetchesTotal.WithLabelValues("ok").Inc()
	o.store(ctx, price)
	return price, ""
}

func (o *Oracle) cached(ctx context.Context) (domain.Quote, bool) {
	if o.cache == nil {
		return domain.Quote{}, false
	}
	q, ok, err := o.cache.Get(ctx)
	if err != nil {
		o.log.Debug("Quote cache read failed", "error", err)
		return domain.Quote{}, false
	}
	if !ok || q.Fallback || q.Price <= 0 || o.now().Sub(q.UpdatedAt) >= o.interval {
		return domain.Quote{}, false
	}
	return q, true
}

func (o *Oracle) store(ctx context.Context, price float64) {
	if o.cache == nil {
		return
	}
	q := domain.Quote{Price: price, UpdatedAt: o.now()}
	if err := o.cache.Set(ctx, q, o.interval); err != nil {
		o.log.Debug("Quote cache write failed", "error", err)
	}
}

// update applies fn under the lock and notifies subscribers if the quote
// changed.
func (o *Oracle) update(fn func(q *domain.Quote)) domain.Quote {
	o.mu.Lock()
	before := o.quote
	fn(&o.quote)
	after := o.quote
	subs := make([]func(domain.Quote), 0, len(o.subs))
	for _, s := range o.subs {
		subs = append(subs, s)
	}
	o.mu.Unlock()

	if after == before {
		return after
	}
	if !after.Loading {
		metrics.TokenPrice.Set(after.Price)
	}
	for _, s := range subs {
		s(after)
	}
	return after
}

// Quote returns a copy of the current quote.
func (o *Oracle) Quote() domain.Quote {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.quote
}

// Subscribe registers fn for every quote change and returns a function that
// removes it.
func (o *Oracle) Subscribe(fn func(domain.Quote)) func() {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}
