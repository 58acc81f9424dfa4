package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vietddude/somicard/internal/core/domain"
)

type fakeFetcher struct {
	calls atomic.Int32
	price float64
	err   error
}

func (f *fakeFetcher) FetchPrice(ctx context.Context) (float64, error) {
	f.calls.Add(1)
	return f.price, f.err
}

type memCache struct {
	mu    sync.Mutex
	quote domain.Quote
	ok    bool
	sets  int
}

func (c *memCache) Get(ctx context.Context) (domain.Quote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quote, c.ok, nil
}

func (c *memCache) Set(ctx context.Context, q domain.Quote, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quote, c.ok = q, true
	c.sets++
	return nil
}

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// loadingTransitions counts true->false changes of Loading seen by a subscriber.
func loadingTransitions(o *Oracle) (*atomic.Int32, func()) {
	var n atomic.Int32
	var mu sync.Mutex
	last := o.Quote().Loading
	unsub := o.Subscribe(func(q domain.Quote) {
		mu.Lock()
		defer mu.Unlock()
		if last && !q.Loading {
			n.Add(1)
		}
		last = q.Loading
	})
	return &n, unsub
}

func TestOracle_InitialQuote(t *testing.T) {
	o := NewOracle(&fakeFetcher{price: 2}, quiet())
	q := o.Quote()
	assert.True(t, q.Loading)
	assert.Zero(t, q.Price)
}

func TestOracle_Refresh_Success(t *testing.T) {
	o := NewOracle(&fakeFetcher{price: 0.8}, quiet())
	n, unsub := loadingTransitions(o)
	defer unsub()

	q := o.Refresh(context.Background())
	assert.Equal(t, 0.8, q.Price)
	assert.False(t, q.Loading)
	assert.False(t, q.Fallback)
	assert.Empty(t, q.Err)
	assert.Equal(t, int32(1), n.Load())
}

func TestOracle_Refresh_Fallback(t *testing.T) {
	f := &fakeFetcher{err: errors.New("http 500")}
	o := NewOracle(f, quiet())
	n, unsub := loadingTransitions(o)
	defer unsub()

	q := o.Refresh(context.Background())
	assert.Equal(t, 1.25, q.Price)
	assert.True(t, q.Fallback)
	assert.NotEmpty(t, q.Err)
	assert.False(t, q.Loading)

	// The next successful cycle clears the error.
	f.err = nil
	f.price = 0.9
	q = o.Refresh(context.Background())
	assert.Equal(t, 0.9, q.Price)
	assert.Empty(t, q.Err)
	assert.False(t, q.Fallback)

	assert.Equal(t, int32(2), n.Load(), "loading true->false once per cycle")
}

func TestOracle_CustomFallback(t *testing.T) {
	o := NewOracle(&fakeFetcher{err: errors.New("down")}, quiet(), WithFallback(2.5))
	assert.Equal(t, 2.5, o.Refresh(context.Background()).Price)
}

func TestOracle_Cache(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cache := &memCache{}
	f := &fakeFetcher{price: 0.7}
	o := NewOracle(f, quiet(), WithCache(cache), WithClock(clock), WithInterval(30*time.Second))

	o.Refresh(context.Background())
	require.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 1, cache.sets)

	// A second replica with the same cache skips the fetch while fresh.
	f2 := &fakeFetcher{price: 99}
	o2 := NewOracle(f2, quiet(), WithCache(cache), WithClock(clock), WithInterval(30*time.Second))
	q := o2.Refresh(context.Background())
	assert.Equal(t, 0.7, q.Price)
	assert.Equal(t, int32(0), f2.calls.Load())

	// Expired entries are ignored.
	now = now.Add(31 * time.Second)
	q = o2.Refresh(context.Background())
	assert.Equal(t, 99.0, q.Price)
	assert.Equal(t, int32(1), f2.calls.Load())
}

func TestOracle_FallbackNotCached(t *testing.T) {
	cache := &memCache{}
	o := NewOracle(&fakeFetcher{err: errors.New("down")}, quiet(), WithCache(cache))
	o.Refresh(context.Background())
	assert.Equal(t, 0, cache.sets)
}

func TestOracle_Run_StopsOnCancel(t *testing.T) {
	f := &fakeFetcher{price: 1}
	o := NewOracle(f, quiet(), WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return f.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	calls := f.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, f.calls.Load(), "no fetch after cancel")
}

func TestOracle_Unsubscribe(t *testing.T) {
	o := NewOracle(&fakeFetcher{price: 1}, quiet())
	var calls atomic.Int32
	unsub := o.Subscribe(func(domain.Quote) { calls.Add(1) })

	o.Refresh(context.Background())
	seen := calls.Load()
	require.Positive(t, seen)

	unsub()
	unsub()
	o.Refresh(context.Background())
	assert.Equal(t, seen, calls.Load())
}
