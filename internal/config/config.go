package config

import "time"

// Config is the full configuration of the livepredict bridge.
type Config struct {
	Instance InstanceConfig `yaml:"instance" toml:"instance"`
	Ledger   LedgerConfig   `yaml:"ledger" toml:"ledger"`
	Wallet   WalletConfig   `yaml:"wallet" toml:"wallet"`
	Feed     FeedConfig     `yaml:"feed" toml:"feed"`
	Market   MarketConfig   `yaml:"market" toml:"market"`
	Sync     SyncConfig     `yaml:"sync" toml:"sync"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id" toml:"id"`
}

// LedgerConfig locates the ledger application. The three identifiers are read
// once at startup and treated as opaque.
type LedgerConfig struct {
	Endpoint      string        `yaml:"endpoint" toml:"endpoint"`
	ApplicationID string        `yaml:"application_id" toml:"application_id"`
	ChainID       string        `yaml:"chain_id" toml:"chain_id"`
	Timeout       time.Duration `yaml:"timeout" toml:"timeout"`
}

// WalletConfig configures the signing bridge and the wallet session.
type WalletConfig struct {
	BridgeURL          string        `yaml:"bridge_url" toml:"bridge_url"`
	Origin             string        `yaml:"origin" toml:"origin"`
	InstallURL         string        `yaml:"install_url" toml:"install_url"`
	GracePeriod        time.Duration `yaml:"grace_period" toml:"grace_period"`
	ProbeInterval      time.Duration `yaml:"probe_interval" toml:"probe_interval"`
	RequestTimeout     time.Duration `yaml:"request_timeout" toml:"request_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval" toml:"ping_interval"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay" toml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`
}

// FeedConfig configures the match feed client.
type FeedConfig struct {
	BaseURL   string        `yaml:"base_url" toml:"base_url"`
	Token     string        `yaml:"token" toml:"token"`
	Game      string        `yaml:"game" toml:"game"`
	PageSize  int           `yaml:"page_size" toml:"page_size"`
	RateLimit float64       `yaml:"rate_limit" toml:"rate_limit"`
	Burst     int           `yaml:"burst" toml:"burst"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
}

// MarketConfig configures the market bridge.
type MarketConfig struct {
	DefaultLockAfter time.Duration `yaml:"default_lock_after" toml:"default_lock_after"`
}

// SyncConfig configures refresh intervals.
type SyncConfig struct {
	MarketsInterval time.Duration `yaml:"markets_interval" toml:"markets_interval"`
	AccountInterval time.Duration `yaml:"account_interval" toml:"account_interval"`
	StatsInterval   time.Duration `yaml:"stats_interval" toml:"stats_interval"`
	PollTimeout     time.Duration `yaml:"poll_timeout" toml:"poll_timeout"`

	RunningMatchesInterval  time.Duration `yaml:"running_matches_interval" toml:"running_matches_interval"`
	UpcomingMatchesInterval time.Duration `yaml:"upcoming_matches_interval" toml:"upcoming_matches_interval"`
	MatchInterval           time.Duration `yaml:"match_interval" toml:"match_interval"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins" toml:"allowed_origins"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}
