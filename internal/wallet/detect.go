package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Detection defaults.
const (
	DefaultGracePeriod   = 3 * time.Second
	DefaultProbeInterval = 100 * time.Millisecond
)

// WaitForProvider probes loc until a provider is found or the grace period elapses.
// The extension may inject itself some time after start-up.
func WaitForProvider(ctx context.Context, loc Locator, grace, interval time.Duration, logger *slog.Logger) (Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p, err := loc.Locate(ctx)
		if err == nil && p != nil {
			return p, nil
		}
		if err != nil && !errors.Is(err, ErrProviderNotFound) {
			logger.Debug("provider probe failed", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrExtensionNotFound
		case <-ticker.C:
		}
	}
}
