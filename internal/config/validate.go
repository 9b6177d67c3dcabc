package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateURL("ledger.endpoint", c.Ledger.Endpoint, "http", "https"); err != nil {
		return err
	}
	if c.Ledger.ApplicationID == "" {
		return errors.New("ledger.application_id is required")
	}
	if c.Ledger.ChainID == "" {
		return errors.New("ledger.chain_id is required")
	}
	if c.Ledger.Timeout <= 0 {
		return errors.New("ledger.timeout must be > 0")
	}

	if err := validateURL("wallet.bridge_url", c.Wallet.BridgeURL, "ws", "wss"); err != nil {
		return err
	}
	if c.Wallet.ReconnectBaseDelay > c.Wallet.ReconnectMaxDelay {
		return fmt.Errorf("wallet.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			c.Wallet.ReconnectBaseDelay, c.Wallet.ReconnectMaxDelay)
	}

	if c.Feed.PageSize < 1 || c.Feed.PageSize > 100 {
		return fmt.Errorf("feed.page_size must be between 1 and 100, got %d", c.Feed.PageSize)
	}
	if c.Feed.RateLimit <= 0 {
		return errors.New("feed.rate_limit must be > 0")
	}
	if c.Feed.Burst < 1 {
		return errors.New("feed.burst must be >= 1")
	}

	if c.Sync.MarketsInterval <= 0 || c.Sync.AccountInterval <= 0 || c.Sync.StatsInterval <= 0 {
		return errors.New("sync intervals must be > 0")
	}
	if c.Sync.RunningMatchesInterval <= 0 || c.Sync.UpcomingMatchesInterval <= 0 || c.Sync.MatchInterval <= 0 {
		return errors.New("sync match intervals must be > 0")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return l, nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%s is not a valid url: %q", field, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use %s, got %q", field, strings.Join(schemes, " or "), u.Scheme)
}
