package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID         = "livepredict"
	DefaultLedgerEndpoint     = "http://localhost:8081"
	DefaultLedgerTimeout      = 10 * time.Second
	DefaultBridgeURL          = "ws://localhost:8787/rpc"
	DefaultInstallURL         = "https://github.com/respeer-ai/linera-wallet"
	DefaultGracePeriod        = 3 * time.Second
	DefaultProbeInterval      = 100 * time.Millisecond
	DefaultWalletTimeout      = 30 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultFeedURL            = "https://api.pandascore.co"
	DefaultFeedPageSize       = 20
	DefaultFeedRateLimit      = 2.0
	DefaultFeedBurst          = 4
	DefaultFeedTimeout        = 15 * time.Second
	DefaultLockAfter          = time.Hour
	DefaultMarketsInterval    = 5 * time.Second
	DefaultAccountInterval    = 10 * time.Second
	DefaultStatsInterval      = 30 * time.Second
	DefaultPollTimeout        = 15 * time.Second
	DefaultRunningInterval    = time.Minute
	DefaultUpcomingInterval   = 5 * time.Minute
	DefaultMatchInterval      = 30 * time.Second
	DefaultServerAddr         = ":8080"
	DefaultReadTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 30 * time.Second
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// Ledger defaults
	if c.Ledger.Endpoint == "" {
		c.Ledger.Endpoint = DefaultLedgerEndpoint
	}
	if c.Ledger.Timeout == 0 {
		c.Ledger.Timeout = DefaultLedgerTimeout
	}

	// Wallet defaults
	if c.Wallet.BridgeURL == "" {
		c.Wallet.BridgeURL = DefaultBridgeURL
	}
	if c.Wallet.InstallURL == "" {
		c.Wallet.InstallURL = DefaultInstallURL
	}
	if c.Wallet.GracePeriod == 0 {
		c.Wallet.GracePeriod = DefaultGracePeriod
	}
	if c.Wallet.ProbeInterval == 0 {
		c.Wallet.ProbeInterval = DefaultProbeInterval
	}
	if c.Wallet.RequestTimeout == 0 {
		c.Wallet.RequestTimeout = DefaultWalletTimeout
	}
	if c.Wallet.PingInterval == 0 {
		c.Wallet.PingInterval = DefaultPingInterval
	}
	if c.Wallet.ReconnectBaseDelay == 0 {
		c.Wallet.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Wallet.ReconnectMaxDelay == 0 {
		c.Wallet.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	// Feed defaults
	if c.Feed.BaseURL == "" {
		c.Feed.BaseURL = DefaultFeedURL
	}
	if c.Feed.PageSize == 0 {
		c.Feed.PageSize = DefaultFeedPageSize
	}
	if c.Feed.RateLimit == 0 {
		c.Feed.RateLimit = DefaultFeedRateLimit
	}
	if c.Feed.Burst == 0 {
		c.Feed.Burst = DefaultFeedBurst
	}
	if c.Feed.Timeout == 0 {
		c.Feed.Timeout = DefaultFeedTimeout
	}

	if c.Market.DefaultLockAfter == 0 {
		c.Market.DefaultLockAfter = DefaultLockAfter
	}

	// Sync defaults
	if c.Sync.MarketsInterval == 0 {
		c.Sync.MarketsInterval = DefaultMarketsInterval
	}
	if c.Sync.AccountInterval == 0 {
		c.Sync.AccountInterval = DefaultAccountInterval
	}
	if c.Sync.StatsInterval == 0 {
		c.Sync.StatsInterval = DefaultStatsInterval
	}
	if c.Sync.PollTimeout == 0 {
		c.Sync.PollTimeout = DefaultPollTimeout
	}
	if c.Sync.RunningMatchesInterval == 0 {
		c.Sync.RunningMatchesInterval = DefaultRunningInterval
	}
	if c.Sync.UpcomingMatchesInterval == 0 {
		c.Sync.UpcomingMatchesInterval = DefaultUpcomingInterval
	}
	if c.Sync.MatchInterval == 0 {
		c.Sync.MatchInterval = DefaultMatchInterval
	}

	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
