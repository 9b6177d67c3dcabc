package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/livepredict/internal/cache"
	"github.com/rickgao/livepredict/internal/config"
	"github.com/rickgao/livepredict/internal/connection"
	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/livesync"
	"github.com/rickgao/livepredict/internal/market"
	"github.com/rickgao/livepredict/internal/matchfeed"
	"github.com/rickgao/livepredict/internal/metrics"
	"github.com/rickgao/livepredict/internal/poller"
	"github.com/rickgao/livepredict/internal/server"
	"github.com/rickgao/livepredict/internal/version"
	"github.com/rickgao/livepredict/internal/wallet"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file (optional)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting livepredict",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("livepredict failed", "error", err)
		os.Exit(1)
	}
	logger.Info("livepredict stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Ledger client
	ledgerOpts := []ledger.ClientOption{
		ledger.WithTimeout(cfg.Ledger.Timeout),
		ledger.WithLogger(logger),
	}
	if m != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithObserver(m))
	}
	ledgerClient := ledger.NewClient(cfg.Ledger.Endpoint, cfg.Ledger.ApplicationID, cfg.Ledger.ChainID, ledgerOpts...)

	logger.Info("ledger configured",
		"url", ledgerClient.URL(),
		"timeout", cfg.Ledger.Timeout,
	)

	// Synchronization layer
	var storeOpts []cache.Option
	if m != nil {
		storeOpts = append(storeOpts, cache.WithObserver(m))
	}
	store := cache.New(storeOpts...)

	sched := poller.New(poller.Config{Timeout: cfg.Sync.PollTimeout}, logger)
	if m != nil {
		sched.SetObserver(m)
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer stopWithTimeout(logger, "scheduler", 10*time.Second, sched.Stop)

	bridgeOpts := []market.Option{market.WithLogger(logger)}
	if m != nil {
		bridgeOpts = append(bridgeOpts, market.WithReporter(m))
	}
	bridge := market.NewBridge(market.Config{DefaultLockAfter: cfg.Market.DefaultLockAfter}, ledgerClient, bridgeOpts...)

	svc := livesync.New(livesync.Config{
		MarketsInterval:         cfg.Sync.MarketsInterval,
		AccountInterval:         cfg.Sync.AccountInterval,
		StatsInterval:           cfg.Sync.StatsInterval,
		RunningMatchesInterval:  cfg.Sync.RunningMatchesInterval,
		UpcomingMatchesInterval: cfg.Sync.UpcomingMatchesInterval,
		MatchInterval:           cfg.Sync.MatchInterval,
	}, ledgerClient, bridge, store, sched, logger)

	// Signing bridge and wallet session
	clientCfg := connection.DefaultClientConfig()
	clientCfg.URL = cfg.Wallet.BridgeURL
	clientCfg.Origin = cfg.Wallet.Origin
	clientCfg.PingInterval = cfg.Wallet.PingInterval
	clientCfg.PingTimeout = 3 * cfg.Wallet.PingInterval
	clientCfg.RequestTimeout = cfg.Wallet.RequestTimeout

	signer := connection.NewBridge(
		connection.NewClient(clientCfg, logger),
		connection.BridgeConfig{
			ReconnectBaseWait: cfg.Wallet.ReconnectBaseDelay,
			ReconnectMaxWait:  cfg.Wallet.ReconnectMaxDelay,
		},
		logger,
	)
	if err := signer.Start(ctx); err != nil {
		return fmt.Errorf("start signing bridge: %w", err)
	}
	defer stopWithTimeout(logger, "signing bridge", 10*time.Second, signer.Stop)

	session := wallet.NewSession(signer, svc, wallet.Config{
		GracePeriod:     cfg.Wallet.GracePeriod,
		ProbeInterval:   cfg.Wallet.ProbeInterval,
		ProviderTimeout: cfg.Wallet.RequestTimeout,
		InstallURL:      cfg.Wallet.InstallURL,
	}, logger)
	svc.AttachWallet(session)
	if m != nil {
		defer m.WatchWallet(session)()
	}

	phase := session.Init(ctx)
	logger.Info("wallet session ready", "phase", phase, "bridge_url", cfg.Wallet.BridgeURL)

	// Match feed
	feed := matchfeed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Token,
		matchfeed.WithTimeout(cfg.Feed.Timeout),
		matchfeed.WithRateLimit(cfg.Feed.RateLimit, cfg.Feed.Burst),
		matchfeed.WithPageSize(cfg.Feed.PageSize),
		matchfeed.WithLogger(logger),
	)
	if cfg.Feed.Token == "" {
		logger.Warn("match feed token not set; feed requests will be rejected")
	}
	svc.AttachFeed(feed)

	// HTTP API
	serverOpts := []server.Option{
		server.WithLogger(logger),
	}
	if m != nil {
		serverOpts = append(serverOpts, server.WithMetrics(m))
	}
	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MetricsPath:     cfg.Metrics.Path,
		DefaultGame:     cfg.Feed.Game,
	}, svc, session, serverOpts...)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	logger.Info("livepredict running",
		"addr", srv.Addr(),
		"metrics", cfg.Metrics.Enabled,
	)

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	return nil
}

// newLogger builds the process logger from the log config.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func stopWithTimeout(logger *slog.Logger, name string, d time.Duration, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("stop failed", "component", name, "error", err)
	}
}
