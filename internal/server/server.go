package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/livepredict/internal/livesync"
	"github.com/rickgao/livepredict/internal/metrics"
	"github.com/rickgao/livepredict/internal/wallet"
)

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MetricsPath     string // Empty disables the metrics endpoint
	DefaultGame     string // Used by /api/matches when no game is given
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records request metrics and serves the registry at Config.MetricsPath.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server exposes the synchronization layer over HTTP and WebSocket.
type Server struct {
	cfg     Config
	svc     *livesync.Service
	session *wallet.Session
	metrics *metrics.Metrics
	logger  *slog.Logger

	hub     *Hub
	handler http.Handler

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	done     chan struct{}
}

// New creates a server.
func New(cfg Config, svc *livesync.Service, session *wallet.Session, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		session: session,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")

	s.hub = NewHub(svc, session, cfg.AllowedOrigins, s.metrics, s.logger)
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil && s.cfg.MetricsPath != "" {
		mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
	}

	// Matches
	mux.HandleFunc("GET /api/matches", s.handleListMatches)
	mux.HandleFunc("GET /api/matches/{id}", s.handleGetMatch)
	mux.HandleFunc("GET /api/matches/{id}/markets", s.handleMatchMarkets)

	// Markets
	mux.HandleFunc("GET /api/markets/active", s.handleActiveMarkets)
	mux.HandleFunc("GET /api/markets/{id}", s.handleGetMarket)
	mux.HandleFunc("GET /api/markets/{id}/bets", s.handleMarketBets)
	mux.HandleFunc("GET /api/markets/{id}/payout", s.handlePayout)
	mux.HandleFunc("POST /api/markets", s.handleCreateMarket)
	mux.HandleFunc("POST /api/markets/{id}/lock", s.handleLockMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", s.handleResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/cancel", s.handleCancelMarket)

	// Bets
	mux.HandleFunc("POST /api/bets", s.handlePlaceBet)
	mux.HandleFunc("POST /api/bets/{id}/claim", s.handleClaim)

	// Accounts and wallet
	mux.HandleFunc("GET /api/accounts/{owner}/bets", s.handleAccountBets)
	mux.HandleFunc("GET /api/accounts/{owner}/balance", s.handleAccountBalance)
	mux.HandleFunc("GET /api/wallet", s.handleWallet)
	mux.HandleFunc("POST /api/wallet/connect", s.handleConnect)
	mux.HandleFunc("POST /api/wallet/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /api/wallet/deposit", s.handleDeposit)
	mux.HandleFunc("POST /api/wallet/withdraw", s.handleWithdraw)

	// Sync state
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/errors", s.handleErrors)
	mux.HandleFunc("POST /api/retry", s.handleRetry)

	mux.HandleFunc("GET /ws", s.hub.HandleWS)

	var h http.Handler = mux
	h = s.instrument(h)
	h = cors(s.cfg.AllowedOrigins)(h)
	h = recoverer(s.logger)(h)
	return h
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpSrv != nil {
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.hub.Start(ctx)
	s.listener = ln
	s.done = make(chan struct{})
	s.httpSrv = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "err", err)
		}
	}(s.httpSrv, s.done)

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes every WebSocket client and shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpSrv, s.done
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	s.hub.Close()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	<-done
	s.logger.Info("http server stopped")
	return nil
}
