package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/livepredict/internal/cache"
	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/livesync"
	"github.com/rickgao/livepredict/internal/market"
	"github.com/rickgao/livepredict/internal/matchfeed"
	"github.com/rickgao/livepredict/internal/metrics"
	"github.com/rickgao/livepredict/internal/model"
	"github.com/rickgao/livepredict/internal/poller"
	"github.com/rickgao/livepredict/internal/wallet"
)

const testOwner = "0xabcd"

// fakeLedger is an in-memory ledger.
type fakeLedger struct {
	mu       sync.Mutex
	markets  map[int64]*model.LedgerMarket
	bets     []model.LedgerBet
	balances map[string]int64
	volume   int64
	nextID   int64
	failNext error
	calls    map[string]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		markets:  make(map[int64]*model.LedgerMarket),
		balances: make(map[string]int64),
		nextID:   100,
		calls:    make(map[string]int),
	}
}

func (f *fakeLedger) addMarket(id int64, matchID string, pools ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &model.LedgerMarket{ID: id, MatchID: matchID, Status: model.StatusOpen, MarketType: model.MarketTypeMatchWinner}
	for i, p := range pools {
		m.Options = append(m.Options, model.MarketOption{ID: i, Pool: p})
	}
	f.markets[id] = m
}

func (f *fakeLedger) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeLedger) begin(op string) error {
	f.calls[op]++
	err := f.failNext
	f.failNext = nil
	return err
}

func cloneMarket(m *model.LedgerMarket) model.LedgerMarket {
	cp := *m
	cp.Options = append([]model.MarketOption(nil), m.Options...)
	return cp
}

func (f *fakeLedger) GetActiveMarkets(ctx context.Context) ([]model.LedgerMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("activeMarkets"); err != nil {
		return nil, err
	}
	out := []model.LedgerMarket{}
	for _, m := range f.markets {
		if m.Status == model.StatusOpen {
			out = append(out, cloneMarket(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeLedger) GetMarket(ctx context.Context, id int64) (*model.LedgerMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("market"); err != nil {
		return nil, err
	}
	m, ok := f.markets[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := cloneMarket(m)
	return &cp, nil
}

func (f *fakeLedger) GetMarketsByMatch(ctx context.Context, matchID string) ([]model.LedgerMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("marketsByMatch"); err != nil {
		return nil, err
	}
	var out []model.LedgerMarket
	for _, m := range f.markets {
		if m.MatchID == matchID {
			out = append(out, cloneMarket(m))
		}
	}
	return out, nil
}

func (f *fakeLedger) CreateMarket(ctx context.Context, p ledger.CreateMarketParams) error {
	// Widen the window in which concurrent callers could race.
	time.Sleep(10 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("createMarket"); err != nil {
		return err
	}
	f.nextID++
	m := &model.LedgerMarket{ID: f.nextID, MatchID: p.MatchID, MarketType: p.MarketType, Title: p.Title, Status: model.StatusOpen, LocksAt: p.LocksAt}
	for i, label := range p.Options {
		m.Options = append(m.Options, model.MarketOption{ID: i, Label: label})
	}
	f.markets[m.ID] = m
	return nil
}

func (f *fakeLedger) GetBalance(ctx context.Context, owner string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("balance"); err != nil {
		return 0, err
	}
	return f.balances[owner], nil
}

func (f *fakeLedger) GetUserBets(ctx context.Context, owner string) ([]model.LedgerBet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("userBets"); err != nil {
		return nil, err
	}
	out := []model.LedgerBet{}
	for _, b := range f.bets {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeLedger) GetMarketBets(ctx context.Context, marketID int64) ([]model.LedgerBet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("marketBets"); err != nil {
		return nil, err
	}
	out := []model.LedgerBet{}
	for _, b := range f.bets {
		if b.MarketID == marketID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeLedger) CalculatePayout(ctx context.Context, marketID int64, optionID int, amount int64) (*model.PotentialPayout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("payout"); err != nil {
		return nil, err
	}
	if _, ok := f.markets[marketID]; !ok {
		return nil, ledger.ErrNotFound
	}
	return &model.PotentialPayout{Odds: 1.5, PotentialPayout: float64(amount) * 1.5, FeeRate: 0.02}, nil
}

func (f *fakeLedger) GetTotalVolume(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("volume"); err != nil {
		return 0, err
	}
	return f.volume, nil
}

func (f *fakeLedger) GetProtocolFees(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("fees"); err != nil {
		return 0, err
	}
	return f.volume / 50, nil
}

func (f *fakeLedger) GetFeeRate(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("feeRate"); err != nil {
		return 0, err
	}
	return 0.02, nil
}

func (f *fakeLedger) PlaceBet(ctx context.Context, marketID int64, optionID int, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("placeBet"); err != nil {
		return err
	}
	m, ok := f.markets[marketID]
	if !ok {
		return &ledger.RemoteError{Message: "Market not found"}
	}
	if m.Status != model.StatusOpen {
		return &ledger.RemoteError{Message: "Market is not open for betting"}
	}
	m.Options[optionID].Pool += amount
	f.volume += amount
	f.bets = append(f.bets, model.LedgerBet{ID: int64(len(f.bets) + 1), Owner: testOwner, MarketID: marketID, OptionID: optionID, Amount: amount})
	f.balances[testOwner] -= amount
	return nil
}

func (f *fakeLedger) setStatus(op string, marketID int64, st model.MarketStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(op); err != nil {
		return err
	}
	if m, ok := f.markets[marketID]; ok {
		m.Status = st
	}
	return nil
}

func (f *fakeLedger) LockMarket(ctx context.Context, marketID int64) error {
	return f.setStatus("lock", marketID, model.StatusLocked)
}

func (f *fakeLedger) ResolveMarket(ctx context.Context, marketID int64, winningOption int) error {
	return f.setStatus("resolve", marketID, model.StatusResolved)
}

func (f *fakeLedger) CancelMarket(ctx context.Context, marketID int64) error {
	return f.setStatus("cancel", marketID, model.StatusCancelled)
}

func (f *fakeLedger) ClaimWinnings(ctx context.Context, betID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin("claim")
}

func (f *fakeLedger) Deposit(ctx context.Context, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("deposit"); err != nil {
		return err
	}
	f.balances[testOwner] += amount
	return nil
}

func (f *fakeLedger) Withdraw(ctx context.Context, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("withdraw"); err != nil {
		return err
	}
	f.balances[testOwner] -= amount
	return nil
}

// fakeFeed serves a fixed set of matches.
type fakeFeed struct {
	mu       sync.Mutex
	matches  map[string]model.Match
	lastGame string
	calls    map[string]int
}

func newFakeFeed(matches ...model.Match) *fakeFeed {
	f := &fakeFeed{matches: make(map[string]model.Match), calls: make(map[string]int)}
	for _, m := range matches {
		f.matches[m.ID] = m
	}
	return f
}

func (f *fakeFeed) GetMatches(ctx context.Context, action, game string) ([]model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGame = game
	f.calls[action]++

	var out []model.Match
	for _, m := range f.matches {
		if action == matchfeed.ActionRunning && m.Status == model.MatchRunning ||
			action == matchfeed.ActionUpcoming && m.Status == model.MatchNotStarted ||
			action == matchfeed.ActionPast && m.Status == model.MatchFinished {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeFeed) GetMatch(ctx context.Context, matchID string) (*model.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["match"]++
	m, ok := f.matches[matchID]
	if !ok {
		return nil, matchfeed.ErrNotFound
	}
	return &m, nil
}

func (f *fakeFeed) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

// fakeProvider answers the connect flow with one account.
type fakeProvider struct {
	reject bool
}

func (p *fakeProvider) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	switch method {
	case wallet.MethodRequestAccounts:
		if p.reject {
			return nil, &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User rejected the request"}
		}
		return json.RawMessage(`["` + testOwner + `"]`), nil
	case wallet.MethodChainID:
		return json.RawMessage(`"testnet"`), nil
	case wallet.MethodDisconnect:
		return json.RawMessage(`null`), nil
	}
	return nil, errors.New("unsupported method " + method)
}

type harness struct {
	ledger  *fakeLedger
	feed    *fakeFeed
	sched   *poller.Scheduler
	svc     *livesync.Service
	session *wallet.Session
	metrics *metrics.Metrics
	srv     *Server
	ts      *httptest.Server
}

// newHarness serves market 7 of match ps-1 (pools 100/50) and an upcoming match ps-2
// without markets. A nil provider leaves the wallet extension unavailable.
func newHarness(t *testing.T, provider wallet.Provider) *harness {
	t.Helper()

	fl := newFakeLedger()
	fl.addMarket(7, "ps-1", 100, 50)
	fl.balances[testOwner] = 1000

	start := time.Now().Add(2 * time.Hour)
	feed := newFakeFeed(
		model.Match{ID: "ps-1", Status: model.MatchRunning, TeamA: model.Team{Name: "Alpha"}, TeamB: model.Team{Name: "Beta"}, Game: "CS2"},
		model.Match{ID: "ps-2", Status: model.MatchNotStarted, TeamA: model.Team{Name: "Gamma"}, TeamB: model.Team{Name: "Delta"}, Game: "CS2", StartTime: &start},
	)

	m := metrics.New()
	sched := poller.New(poller.DefaultConfig(), nil)
	store := cache.New()
	bridge := market.NewBridge(market.DefaultConfig(), fl)
	svc := livesync.New(livesync.Config{
		MarketsInterval: time.Hour,
		AccountInterval: time.Hour,
		StatsInterval:   time.Hour,
	}, fl, bridge, store, sched, nil)

	var loc wallet.Locator
	if provider != nil {
		loc = wallet.StaticLocator(provider)
	} else {
		loc = wallet.StaticLocator(nil)
	}
	session := wallet.NewSession(loc, svc, wallet.Config{GracePeriod: 30 * time.Millisecond, ProbeInterval: 5 * time.Millisecond}, nil)
	session.Init(context.Background())
	svc.AttachWallet(session)
	svc.AttachFeed(feed)

	srv := New(Config{MetricsPath: "/metrics", DefaultGame: "cs2"}, svc, session, WithMetrics(m))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Hub().Close)
	t.Cleanup(func() { sched.Stop(context.Background()) })

	return &harness{
		ledger:  fl,
		feed:    feed,
		sched:   sched,
		svc:     svc,
		session: session,
		metrics: m,
		srv:     srv,
		ts:      ts,
	}
}
