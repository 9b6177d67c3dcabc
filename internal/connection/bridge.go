package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/livepredict/internal/wallet"
)

// Bridge keeps a Client connected and exposes it as a wallet.Locator.
type Bridge struct {
	client *Client
	cfg    BridgeConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a bridge around client.
func NewBridge(client *Client, cfg BridgeConfig, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = DefaultBridgeConfig().ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = cfg.ReconnectBaseWait
	}
	return &Bridge{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// Start makes a first connection attempt and keeps reconnecting in the background.
// A failed first attempt is not an error: the extension may come up later.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)

	if err := b.client.Connect(b.ctx); err != nil {
		b.logger.Info("signing bridge not reachable yet", "error", err)
	}

	b.wg.Add(1)
	go b.run()

	return nil
}

// Stop closes the client and waits for the reconnect loop to exit.
func (b *Bridge) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	b.client.Close()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Client returns the underlying client.
func (b *Bridge) Client() *Client {
	return b.client
}

// Locate returns the client while it is connected.
func (b *Bridge) Locate(context.Context) (wallet.Provider, error) {
	if !b.client.IsConnected() {
		return nil, wallet.ErrProviderNotFound
	}
	return b.client, nil
}

func (b *Bridge) run() {
	defer b.wg.Done()

	for {
		if !b.client.IsConnected() && !b.reconnect() {
			return
		}

		select {
		case <-b.ctx.Done():
			return
		case err := <-b.client.Errors():
			b.logger.Warn("signing bridge error", "error", err)
		}
	}
}

// reconnect retries with exponential backoff. It returns false once the bridge is
// stopped or the client closed.
func (b *Bridge) reconnect() bool {
	wait := b.cfg.ReconnectBaseWait

	for {
		select {
		case <-b.ctx.Done():
			return false
		case <-time.After(wait):
		}

		b.logger.Debug("attempting signing bridge reconnection")

		err := b.client.Connect(b.ctx)
		if err == nil {
			b.logger.Info("signing bridge reconnected")
			return true
		}
		if err == ErrAlreadyClosed {
			return false
		}

		b.logger.Debug("reconnection failed", "error", err, "next_wait", wait)

		wait *= 2
		if wait > b.cfg.ReconnectMaxWait {
			wait = b.cfg.ReconnectMaxWait
		}
	}
}
