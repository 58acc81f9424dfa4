package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/vietddude/somicard/internal/core/checkout"
	"github.com/vietddude/somicard/internal/core/domain"
	"github.com/vietddude/somicard/internal/infra/notify"
	"github.com/vietddude/somicard/internal/tracking/monitor"
)

// OrderTracker starts and looks up transaction sessions.
type OrderTracker interface {
	Track(hash string, customer domain.CustomerData) (*monitor.Session, error)
	Get(hash string) (monitor.SessionView, error)
}

// Config holds the API settings.
type Config struct {
	Port            int
	RateLimit       float64 // requests per second per IP
	RateBurst       int
	AllowedOrigins  []string
	ChainID         domain.ChainID
	Network         string
	TreasuryAddress string
	NotifyInitiated bool
}

// Deps are the components the API serves.
type Deps struct {
	Monitor    *Monitor
	Quotes     QuoteSource
	Tracker    OrderTracker
	Notifier   notify.Notifier
	Calculator checkout.Calculator
	Logger     *slog.Logger
}

// Server provides the HTTP API.
type Server struct {
	cfg     Config
	deps    Deps
	log     *slog.Logger
	limiter *RateLimiter
	server  *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}

	s := &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log.With("component", "api"),
		limiter: NewRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/health/detailed", s.handleDetailed)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/price", s.handlePrice)
		r.Get("/orders/{txHash}", s.handleGetOrder)

		// Public write endpoints are rate limited per client IP.
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Limit)
			r.Post("/quotes", s.handleQuote)
			r.Post("/orders", s.handleCreateOrder)
			r.Post("/balance-requests", s.handleBalanceRequest)
		})
	})

	return r
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("API server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// CleanupLoop evicts idle rate-limiter entries until ctx is done.
func (s *Server) CleanupLoop(ctx context.Context) {
	s.limiter.Cleanup(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := StatusHealthy
	if s.deps.Monitor != nil {
		status = s.deps.Monitor.CheckHealth(r.Context()).SystemStatus
	}

	code := http.StatusOK
	if status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		writeJSON(w, http.StatusOK, HealthReport{SystemStatus: StatusHealthy})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Monitor.CheckHealth(r.Context()))
}
