package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/model"
)

// DefaultLockAfter is the lock delay used when a match has no known start time.
const DefaultLockAfter = time.Hour

// Ledger is the subset of the ledger client used by the bridge.
type Ledger interface {
	GetMarketsByMatch(ctx context.Context, matchID string) ([]model.LedgerMarket, error)
	CreateMarket(ctx context.Context, p ledger.CreateMarketParams) error
}

// Reporter receives bridge failures.
type Reporter interface {
	ReportBridgeError(operation, matchID string, err error)
}

// Config holds Market Bridge configuration.
type Config struct {
	DefaultLockAfter time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLockAfter: DefaultLockAfter,
	}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithReporter sets the failure reporter.
func WithReporter(r Reporter) Option {
	return func(b *Bridge) {
		b.reporter = r
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.now = now
	}
}

// Bridge resolves matches to ledger markets.
type Bridge struct {
	cfg      Config
	ledger   Ledger
	cache    *Cache
	group    singleflight.Group
	logger   *slog.Logger
	reporter Reporter
	now      func() time.Time

	mu      sync.Mutex
	created map[string]bool
	errs    map[string]error
}

// NewBridge creates a bridge with an empty cache.
func NewBridge(cfg Config, l Ledger, opts ...Option) *Bridge {
	if cfg.DefaultLockAfter <= 0 {
		cfg.DefaultLockAfter = DefaultLockAfter
	}
	b := &Bridge{
		cfg:     cfg,
		ledger:  l,
		cache:   NewCache(),
		logger:  slog.Default(),
		now:     time.Now,
		created: make(map[string]bool),
		errs:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Cache returns the bridge's cache.
func (b *Bridge) Cache() *Cache {
	return b.cache
}

// GetOrCreateMarkets returns the markets of match, creating the match-winner market
// if the ledger has none. On failure it returns an empty slice and records the error.
func (b *Bridge) GetOrCreateMarkets(ctx context.Context, match model.Match) []model.LedgerMarket {
	if markets, ok := b.cache.Get(match.ID); ok {
		return markets
	}

	// The shared call outlives any single caller; each ledger request is still bounded
	// by the client timeout.
	shared := context.WithoutCancel(ctx)

	v, err, _ := b.group.Do(match.ID, func() (any, error) {
		return b.getOrCreate(shared, match)
	})
	if err != nil {
		b.report("get_or_create", match.ID, err)
		return []model.LedgerMarket{}
	}

	b.ClearError(match.ID)
	return copyMarkets(v.([]model.LedgerMarket))
}

func (b *Bridge) getOrCreate(ctx context.Context, match model.Match) ([]model.LedgerMarket, error) {
	if markets, ok := b.cache.Get(match.ID); ok {
		return markets, nil
	}

	gen := b.cache.begin(match.ID)
	defer b.cache.end(match.ID)

	markets, err := b.ledger.GetMarketsByMatch(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("query markets: %w", err)
	}
	if len(markets) > 0 {
		b.cache.putIfCurrent(match.ID, gen, markets)
		return markets, nil
	}

	if b.wasCreated(match.ID) {
		// Created earlier but not visible yet; never create twice.
		b.logger.Debug("market created but not yet visible", "match_id", match.ID)
		return markets, nil
	}

	params := b.creationParams(match)
	if err := b.ledger.CreateMarket(ctx, params); err != nil {
		return nil, fmt.Errorf("create market: %w", err)
	}
	b.markCreated(match.ID)

	b.logger.Info("market created",
		"match_id", match.ID,
		"title", params.Title,
		"locks_at", params.LocksAt,
	)

	markets, err = b.ledger.GetMarketsByMatch(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("query created markets: %w", err)
	}
	if len(markets) > 0 {
		b.cache.putIfCurrent(match.ID, gen, markets)
	}
	return markets, nil
}

// GetMarkets returns the markets of a match without ever creating one.
// Only non-empty results are cached.
func (b *Bridge) GetMarkets(ctx context.Context, matchID string) []model.LedgerMarket {
	markets, _ := b.readMarkets(ctx, matchID)
	return markets
}

// RefreshMarkets re-reads the markets of a match from the ledger, bypassing the cache.
// Unlike GetMarkets it also returns the failure of this read.
func (b *Bridge) RefreshMarkets(ctx context.Context, matchID string) ([]model.LedgerMarket, error) {
	b.cache.Invalidate(matchID)
	return b.readMarkets(ctx, matchID)
}

func (b *Bridge) readMarkets(ctx context.Context, matchID string) ([]model.LedgerMarket, error) {
	if markets, ok := b.cache.Get(matchID); ok {
		return markets, nil
	}

	shared := context.WithoutCancel(ctx)

	v, err, _ := b.group.Do("get:"+matchID, func() (any, error) {
		gen := b.cache.begin(matchID)
		defer b.cache.end(matchID)

		markets, err := b.ledger.GetMarketsByMatch(shared, matchID)
		if err != nil {
			return nil, fmt.Errorf("query markets: %w", err)
		}
		if len(markets) > 0 {
			b.cache.putIfCurrent(matchID, gen, markets)
		}
		return markets, nil
	})
	if err != nil {
		b.report("get", matchID, err)
		return []model.LedgerMarket{}, err
	}

	b.ClearError(matchID)
	return copyMarkets(v.([]model.LedgerMarket)), nil
}

// CreateMarket issues an explicit creation mutation and invalidates the match entry.
// Unlike the read paths, the error is returned so the caller can show it.
func (b *Bridge) CreateMarket(ctx context.Context, p ledger.CreateMarketParams) error {
	if p.MatchID == "" {
		return errors.New("create market: match id is required")
	}
	if p.MarketType == "" {
		p.MarketType = model.MarketTypeMatchWinner
	}

	err := b.ledger.CreateMarket(ctx, p)
	b.cache.Invalidate(p.MatchID)
	if err != nil {
		b.report("create", p.MatchID, err)
		return fmt.Errorf("create market: %w", err)
	}

	if p.MarketType == model.MarketTypeMatchWinner {
		b.markCreated(p.MatchID)
	}
	b.ClearError(p.MatchID)
	b.logger.Info("market created", "match_id", p.MatchID, "title", p.Title)
	return nil
}

// CreateMarketForMatch creates the match-winner market of match.
func (b *Bridge) CreateMarketForMatch(ctx context.Context, match model.Match) error {
	return b.CreateMarket(ctx, b.creationParams(match))
}

// ClearCache removes the given entries, or the whole cache when none are given.
func (b *Bridge) ClearCache(matchIDs ...string) {
	if len(matchIDs) == 0 {
		b.cache.Clear()
		return
	}
	for _, id := range matchIDs {
		b.cache.Invalidate(id)
	}
}

// InvalidateMarket removes the entries holding marketID and returns their match ids.
func (b *Bridge) InvalidateMarket(marketID int64) []string {
	return b.cache.InvalidateMarket(marketID)
}

// LastError returns the last failure recorded for a match.
func (b *Bridge) LastError(matchID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs[matchID]
}

// Errors returns all recorded failures by match id.
func (b *Bridge) Errors() map[string]error {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]error, len(b.errs))
	for k, v := range b.errs {
		out[k] = v
	}
	return out
}

// creationParams builds the match-winner market of a match.
func (b *Bridge) creationParams(match model.Match) ledger.CreateMarketParams {
	locksAt := b.now().Add(b.cfg.DefaultLockAfter).Unix()
	if match.StartTime != nil {
		locksAt = match.StartTime.Unix()
	}

	return ledger.CreateMarketParams{
		MatchID:    match.ID,
		MarketType: model.MarketTypeMatchWinner,
		Title:      fmt.Sprintf("%s vs %s - Match Winner", match.TeamA.Name, match.TeamB.Name),
		Options:    []string{match.TeamA.Name, match.TeamB.Name},
		LocksAt:    locksAt,
	}
}

func (b *Bridge) report(operation, matchID string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	b.mu.Lock()
	b.errs[matchID] = err
	b.mu.Unlock()

	b.logger.Warn("market bridge failure",
		"operation", operation,
		"match_id", matchID,
		"err", err,
	)
	if b.reporter != nil {
		b.reporter.ReportBridgeError(operation, matchID, err)
	}
}

// ClearError forgets the recorded failure of a match.
func (b *Bridge) ClearError(matchID string) {
	b.mu.Lock()
	delete(b.errs, matchID)
	b.mu.Unlock()
}

func (b *Bridge) wasCreated(matchID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.created[matchID]
}

func (b *Bridge) markCreated(matchID string) {
	b.mu.Lock()
	b.created[matchID] = true
	b.mu.Unlock()
}
