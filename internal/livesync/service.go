package livesync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/livepredict/internal/cache"
	"github.com/rickgao/livepredict/internal/market"
	"github.com/rickgao/livepredict/internal/model"
	"github.com/rickgao/livepredict/internal/poller"
)

// Ledger is the subset of the ledger client used by the synchronization layer.
type Ledger interface {
	GetActiveMarkets(ctx context.Context) ([]model.LedgerMarket, error)
	GetMarket(ctx context.Context, id int64) (*model.LedgerMarket, error)
	GetBalance(ctx context.Context, owner string) (int64, error)
	GetUserBets(ctx context.Context, owner string) ([]model.LedgerBet, error)
	GetMarketBets(ctx context.Context, marketID int64) ([]model.LedgerBet, error)
	CalculatePayout(ctx context.Context, marketID int64, optionID int, amount int64) (*model.PotentialPayout, error)
	GetTotalVolume(ctx context.Context) (int64, error)
	GetProtocolFees(ctx context.Context) (int64, error)
	GetFeeRate(ctx context.Context) (float64, error)

	PlaceBet(ctx context.Context, marketID int64, optionID int, amount int64) error
	LockMarket(ctx context.Context, marketID int64) error
	ResolveMarket(ctx context.Context, marketID int64, winningOption int) error
	CancelMarket(ctx context.Context, marketID int64) error
	ClaimWinnings(ctx context.Context, betID int64) error
	Deposit(ctx context.Context, amount int64) error
	Withdraw(ctx context.Context, amount int64) error
}

// Wallet is the wallet session as seen by the synchronization layer.
type Wallet interface {
	Owner() (string, bool)
	Wallet() model.WalletState
	RefreshBalance(ctx context.Context) error
}

// Config holds refresh intervals.
type Config struct {
	MarketsInterval time.Duration // Active markets, per-match markets, market bets (default: 5s)
	AccountInterval time.Duration // Balances and user bets (default: 10s)
	StatsInterval   time.Duration // Total volume and protocol fees (default: 30s)

	RunningMatchesInterval  time.Duration // Running matches of the feed (default: 60s)
	UpcomingMatchesInterval time.Duration // Upcoming and past matches of the feed (default: 5m)
	MatchInterval           time.Duration // A single feed match (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MarketsInterval:         5 * time.Second,
		AccountInterval:         10 * time.Second,
		StatsInterval:           30 * time.Second,
		RunningMatchesInterval:  time.Minute,
		UpcomingMatchesInterval: 5 * time.Minute,
		MatchInterval:           30 * time.Second,
	}
}

// Stats are the protocol-wide aggregates.
type Stats struct {
	TotalVolume  int64   `json:"totalVolume"`
	ProtocolFees int64   `json:"protocolFees"`
	FeeRate      float64 `json:"feeRate"`
}

// Service is the synchronization layer.
type Service struct {
	cfg    Config
	ledger Ledger
	bridge *market.Bridge
	store  *cache.Store
	sched  *poller.Scheduler
	wallet Wallet
	feed   Feed
	logger *slog.Logger
}

// New creates a service. The wallet is attached later with AttachWallet because the
// wallet session reads balances through the service.
func New(cfg Config, l Ledger, bridge *market.Bridge, store *cache.Store, sched *poller.Scheduler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.MarketsInterval <= 0 {
		cfg.MarketsInterval = def.MarketsInterval
	}
	if cfg.AccountInterval <= 0 {
		cfg.AccountInterval = def.AccountInterval
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = def.StatsInterval
	}
	if cfg.RunningMatchesInterval <= 0 {
		cfg.RunningMatchesInterval = def.RunningMatchesInterval
	}
	if cfg.UpcomingMatchesInterval <= 0 {
		cfg.UpcomingMatchesInterval = def.UpcomingMatchesInterval
	}
	if cfg.MatchInterval <= 0 {
		cfg.MatchInterval = def.MatchInterval
	}
	return &Service{
		cfg:    cfg,
		ledger: l,
		bridge: bridge,
		store:  store,
		sched:  sched,
		logger: logger,
	}
}

// AttachWallet sets the wallet session whose address owns account reads.
func (s *Service) AttachWallet(w Wallet) {
	s.wallet = w
}

// Config returns the refresh intervals.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) owner() (string, bool) {
	if s.wallet == nil {
		return "", false
	}
	return s.wallet.Owner()
}

// ActiveMarkets returns the markets open for betting.
func (s *Service) ActiveMarkets(ctx context.Context) ([]model.LedgerMarket, error) {
	return cache.Fetch(ctx, s.store, KeyActiveMarkets, s.cfg.MarketsInterval, s.ledger.GetActiveMarkets)
}

// Market returns one market.
func (s *Service) Market(ctx context.Context, id int64) (*model.LedgerMarket, error) {
	m, err := cache.Fetch(ctx, s.store, MarketKey(id), s.cfg.MarketsInterval, func(ctx context.Context) (*model.LedgerMarket, error) {
		return s.ledger.GetMarket(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	cp := *m
	return &cp, nil
}

// MarketBets returns the bets placed on a market.
func (s *Service) MarketBets(ctx context.Context, marketID int64) ([]model.LedgerBet, error) {
	return cache.Fetch(ctx, s.store, MarketBetsKey(marketID), s.cfg.MarketsInterval, func(ctx context.Context) ([]model.LedgerBet, error) {
		return s.ledger.GetMarketBets(ctx, marketID)
	})
}

// MatchMarkets returns the markets of a match without creating any.
func (s *Service) MatchMarkets(ctx context.Context, matchID string) ([]model.LedgerMarket, error) {
	return cache.Fetch(ctx, s.store, MatchKey(matchID), s.cfg.MarketsInterval, func(ctx context.Context) ([]model.LedgerMarket, error) {
		return s.bridge.RefreshMarkets(ctx, matchID)
	})
}

// EnsureMatchMarkets returns the markets of a match, creating its match-winner market
// if needed. A failure yields an empty slice together with the recorded error.
func (s *Service) EnsureMatchMarkets(ctx context.Context, match model.Match) ([]model.LedgerMarket, error) {
	markets := s.bridge.GetOrCreateMarkets(ctx, match)
	if err := s.bridge.LastError(match.ID); err != nil {
		s.store.RecordError(MatchKey(match.ID), err)
		return markets, err
	}
	if len(markets) > 0 {
		s.store.Put(MatchKey(match.ID), markets)
	}
	return markets, nil
}

// GetBalance returns the ledger balance of owner. It satisfies wallet.BalanceSource.
func (s *Service) GetBalance(ctx context.Context, owner string) (int64, error) {
	return cache.Fetch(ctx, s.store, BalanceKey(owner), s.cfg.AccountInterval, func(ctx context.Context) (int64, error) {
		return s.ledger.GetBalance(ctx, owner)
	})
}

// UserBets returns the bets of owner.
func (s *Service) UserBets(ctx context.Context, owner string) ([]model.LedgerBet, error) {
	return cache.Fetch(ctx, s.store, UserBetsKey(owner), s.cfg.AccountInterval, func(ctx context.Context) ([]model.LedgerBet, error) {
		return s.ledger.GetUserBets(ctx, owner)
	})
}

// FeeRate returns the protocol fee rate. It is fetched once per session.
func (s *Service) FeeRate(ctx context.Context) (float64, error) {
	return cache.Fetch(ctx, s.store, KeyFeeRate, 0, s.ledger.GetFeeRate)
}

// Stats returns volume, fees and the fee rate, fetched concurrently.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := cache.Fetch(gctx, s.store, KeyTotalVolume, s.cfg.StatsInterval, s.ledger.GetTotalVolume)
		st.TotalVolume = v
		return err
	})
	g.Go(func() error {
		v, err := cache.Fetch(gctx, s.store, KeyProtocolFees, s.cfg.StatsInterval, s.ledger.GetProtocolFees)
		st.ProtocolFees = v
		return err
	})
	g.Go(func() error {
		v, err := s.FeeRate(gctx)
		st.FeeRate = v
		return err
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// CalculatePotentialPayout previews a bet at the current pools. It is never cached.
func (s *Service) CalculatePotentialPayout(ctx context.Context, marketID int64, optionID int, amount int64) (*model.PotentialPayout, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("calculate payout: amount must be positive")
	}
	return s.ledger.CalculatePayout(ctx, marketID, optionID, amount)
}

// LastError returns the last failure recorded for a query or mutation key.
func (s *Service) LastError(key string) error {
	if err := s.store.LastError(key); err != nil {
		return err
	}
	if matchID, ok := strings.CutPrefix(key, "match:"); ok {
		return s.bridge.LastError(matchID)
	}
	return nil
}

// Errors returns every recorded failure as key -> message.
func (s *Service) Errors() map[string]string {
	out := make(map[string]string)
	for key, err := range s.store.Errors() {
		out[key] = err.Error()
	}
	for matchID, err := range s.bridge.Errors() {
		key := MatchKey(matchID)
		if _, ok := out[key]; !ok {
			out[key] = err.Error()
		}
	}
	return out
}

// ErrorKeys returns the keys with a recorded failure, sorted.
func (s *Service) ErrorKeys() []string {
	errs := s.Errors()
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Retry clears the failure of key and invalidates it, so watchers refetch now.
func (s *Service) Retry(key string) {
	if matchID, ok := strings.CutPrefix(key, "match:"); ok {
		s.bridge.ClearCache(matchID)
		s.bridge.ClearError(matchID)
	}
	s.store.Retry(key)
	s.logger.Debug("retry requested", "key", key)
}

// OnInvalidate registers fn for every invalidated key.
func (s *Service) OnInvalidate(fn func(key string)) func() {
	return s.store.Subscribe(fn)
}
