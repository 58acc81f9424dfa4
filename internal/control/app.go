package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/somicard/internal/core/config"
	"github.com/vietddude/somicard/internal/core/worker"
	"github.com/vietddude/somicard/internal/infra/chain"
	"github.com/vietddude/somicard/internal/infra/notify"
	redisclient "github.com/vietddude/somicard/internal/infra/redis"
	"github.com/vietddude/somicard/internal/tracking/health"
	"github.com/vietddude/somicard/internal/tracking/monitor"
	"github.com/vietddude/somicard/internal/tracking/pricing"
)

const shutdownTimeout = 15 * time.Second

// ChainBackend is what the app needs from the chain connection.
type ChainBackend interface {
	chain.ReceiptSource
	chain.Pinger
	Close()
}

// App owns every long-running component of the service.
type App struct {
	cfg      *config.AppConfig
	log      *slog.Logger
	backend  ChainBackend
	redis    *redisclient.Client
	notifier *notify.Dispatcher
	oracle   *pricing.Oracle
	tracker  *monitor.Tracker
	pruner   *worker.Pruner
	server   *health.Server
}

// New connects to the chain and builds the app.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	log := slog.Default()

	backend, err := DialChain(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	app, err := Assemble(cfg, backend, ConnectRedis(cfg, log), log)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return app, nil
}

// Assemble wires the components around an existing chain backend. rdb may
// be nil.
func Assemble(cfg *config.AppConfig, backend ChainBackend, rdb *redisclient.Client, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	notifier, err := NewNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	oracle := NewOracle(cfg, QuoteCache(cfg, rdb), log)

	tracker := monitor.NewTracker(backend, notifier, monitor.WithTrackerLogger(log))

	server := health.NewServer(health.Config{
		Port:            cfg.Server.Port,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ChainID:         cfg.Chain.ID,
		Network:         cfg.Chain.Name,
		TreasuryAddress: cfg.Chain.TreasuryAddress,
		NotifyInitiated: cfg.Notifier.NotifyInitiated,
	}, health.Deps{
		Monitor:    health.NewMonitor(cfg.Chain.ID, backend, notifier, oracle, tracker),
		Quotes:     oracle,
		Tracker:    tracker,
		Notifier:   notifier,
		Calculator: NewCalculator(cfg),
		Logger:     log,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  backend,
		redis:    rdb,
		notifier: notifier,
		oracle:   oracle,
		tracker:  tracker,
		pruner:   worker.NewPruner(cfg.Server.SessionRetention, tracker, log),
		server:   server,
	}, nil
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Oracle returns the price oracle.
func (a *App) Oracle() *pricing.Oracle {
	return a.oracle
}

// Run serves until ctx is cancelled or a component fails, then shuts the
// HTTP server down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return a.oracle.Run(gCtx)
	})

	g.Go(func() error {
		a.pruner.Start(gCtx)
		return nil
	})

	g.Go(func() error {
		a.server.CleanupLoop(gCtx)
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.server.Stop(shutdownCtx)
	})

	a.log.Info("SOMI Card service started",
		"chain", a.cfg.Chain.Name,
		"chain_id", a.cfg.Chain.ID,
		"port", a.cfg.Server.Port,
		"notifications", a.notifier.Enabled(),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close stops watches, waits for in-flight notifications and releases
// connections.
func (a *App) Close() {
	a.tracker.Close()

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("Failed to close redis", "error", err)
		}
	}
	a.backend.Close()
}
