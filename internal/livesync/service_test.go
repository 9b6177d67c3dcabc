package livesync

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/livepredict/internal/cache"
	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/market"
	"github.com/rickgao/livepredict/internal/model"
	"github.com/rickgao/livepredict/internal/poller"
)

// fakeLedger is an in-memory ledger with pari-mutuel pools.
type fakeLedger struct {
	mu       sync.Mutex
	markets  map[int64]*model.LedgerMarket
	bets     []model.LedgerBet
	balances map[string]int64
	volume   int64
	nextID   int64
	failNext error

	calls map[string]int
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

// begin records a call and returns a pending injected failure.
func (f *fakeLedger) begin(op string) error {
	f.calls[op]++
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeLedger) GetActiveMarkets(ctx context.Context) ([]model.LedgerMarket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("activeMarkets"); err != nil {
		return nil, err
	}
	var out []model.LedgerMarket
	for _, m := range f.markets {
		if m.Status == model.StatusOpen {
			out = append(out, copyMarket(m))
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
	cp := copyMarket(m)
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
			out = append(out, copyMarket(m))
		}
	}
	return out, nil
}

func (f *fakeLedger) CreateMarket(ctx context.Context, p ledger.CreateMarketParams) error {
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
	var out []model.LedgerBet
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
	var out []model.LedgerBet
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
	return &model.PotentialPayout{Odds: 2, PotentialPayout: float64(amount) * 2, FeeRate: 0.02}, nil
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
		return &ledger.RemoteError{Message: "market not found"}
	}
	m.Options[optionID].Pool += amount
	f.volume += amount
	f.bets = append(f.bets, model.LedgerBet{ID: int64(len(f.bets) + 1), Owner: "0xabc", MarketID: marketID, OptionID: optionID, Amount: amount})
	f.balances["0xabc"] -= amount
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
	f.balances["0xabc"] += amount
	return nil
}

func (f *fakeLedger) Withdraw(ctx context.Context, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("withdraw"); err != nil {
		return err
	}
	f.balances["0xabc"] -= amount
	return nil
}

func copyMarket(m *model.LedgerMarket) model.LedgerMarket {
	cp := *m
	cp.Options = append([]model.MarketOption(nil), m.Options...)
	return cp
}

// fakeWallet is a connected or disconnected wallet session.
type fakeWallet struct {
	owner     string
	refreshes atomic.Int32
}

func (w *fakeWallet) Owner() (string, bool) {
	return w.owner, w.owner != ""
}

func (w *fakeWallet) Wallet() model.WalletState {
	if w.owner == "" {
		return model.BaselineWalletState()
	}
	addr := w.owner
	return model.WalletState{Connected: true, Address: &addr, Balance: model.ZeroBalance()}
}

func (w *fakeWallet) RefreshBalance(ctx context.Context) error {
	w.refreshes.Add(1)
	return nil
}

type harness struct {
	svc    *Service
	ledger *fakeLedger
	bridge *market.Bridge
	store  *cache.Store
	wallet *fakeWallet
	sched  *poller.Scheduler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fl := newFakeLedger()
	fl.addMarket(7, "ps-1", 100, 50)
	fl.balances["0xabc"] = 1000

	bridge := market.NewBridge(market.DefaultConfig(), fl)
	store := cache.New()
	sched := poller.New(poller.DefaultConfig(), nil)
	t.Cleanup(func() { sched.Stop(context.Background()) })

	svc := New(Config{MarketsInterval: time.Hour, AccountInterval: time.Hour, StatsInterval: time.Hour}, fl, bridge, store, sched, nil)
	w := &fakeWallet{owner: "0xabc"}
	svc.AttachWallet(w)

	return &harness{svc: svc, ledger: fl, bridge: bridge, store: store, wallet: w, sched: sched}
}

func TestService_ReadsAreCached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		markets, err := h.svc.ActiveMarkets(ctx)
		if err != nil {
			t.Fatalf("ActiveMarkets failed: %v", err)
		}
		if len(markets) != 1 {
			t.Fatalf("len(markets) = %d, want 1", len(markets))
		}
	}
	if n := h.ledger.count("activeMarkets"); n != 1 {
		t.Errorf("ledger calls = %d, want 1", n)
	}
}

func TestService_MarketReturnsCopy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := h.svc.Market(ctx, 7)
	if err != nil {
		t.Fatalf("Market failed: %v", err)
	}
	m.Title = "changed"

	again, _ := h.svc.Market(ctx, 7)
	if again.Title == "changed" {
		t.Error("Market must return a copy")
	}
}

// A bet on market 7 shows the updated pool on the next read.
func TestService_PlaceBetRefreshesMarket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	before, err := h.svc.Market(ctx, 7)
	if err != nil {
		t.Fatalf("Market failed: %v", err)
	}
	if before.Options[0].Pool != 100 {
		t.Fatalf("pool = %d, want 100", before.Options[0].Pool)
	}

	if err := h.svc.PlaceBet(ctx, 7, 0, 50); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}

	after, err := h.svc.Market(ctx, 7)
	if err != nil {
		t.Fatalf("Market failed: %v", err)
	}
	if after.Options[0].Pool != 150 {
		t.Errorf("pool = %d, want 150", after.Options[0].Pool)
	}
	if h.wallet.refreshes.Load() != 1 {
		t.Errorf("balance refreshes = %d, want 1", h.wallet.refreshes.Load())
	}

	bal, _ := h.svc.GetBalance(ctx, "0xabc")
	if bal != 950 {
		t.Errorf("balance = %d, want 950", bal)
	}
}

func TestService_InvalidationTable(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(ctx context.Context, s *Service) error
		want     []string
		balances int32
	}{
		{
			name: "create market",
			mutate: func(ctx context.Context, s *Service) error {
				return s.CreateMarket(ctx, ledger.CreateMarketParams{MatchID: "ps-2", Title: "A vs B - Match Winner", Options: []string{"A", "B"}})
			},
			want: []string{"activeMarkets", "match:ps-2"},
		},
		{
			name: "place bet",
			mutate: func(ctx context.Context, s *Service) error {
				return s.PlaceBet(ctx, 7, 1, 10)
			},
			want:     []string{"activeMarkets", "balance:0xabc", "market:7", "marketBets:7", "match:ps-1", "protocolFees", "totalVolume", "userBets:0xabc"},
			balances: 1,
		},
		{
			name: "lock",
			mutate: func(ctx context.Context, s *Service) error {
				return s.LockMarket(ctx, 7)
			},
			want: []string{"activeMarkets", "market:7", "match:ps-1"},
		},
		{
			name: "resolve",
			mutate: func(ctx context.Context, s *Service) error {
				return s.ResolveMarket(ctx, 7, 0)
			},
			want: []string{"activeMarkets", "market:7", "marketBets:7", "match:ps-1"},
		},
		{
			name: "cancel",
			mutate: func(ctx context.Context, s *Service) error {
				return s.CancelMarket(ctx, 7)
			},
			want: []string{"activeMarkets", "market:7", "marketBets:7", "match:ps-1"},
		},
		{
			name: "claim",
			mutate: func(ctx context.Context, s *Service) error {
				return s.ClaimWinnings(ctx, 1)
			},
			want:     []string{"activeMarkets", "balance:0xabc", "userBets:0xabc"},
			balances: 1,
		},
		{
			name: "deposit",
			mutate: func(ctx context.Context, s *Service) error {
				return s.Deposit(ctx, 10)
			},
			want:     []string{"activeMarkets", "balance:0xabc"},
			balances: 1,
		},
		{
			name: "withdraw",
			mutate: func(ctx context.Context, s *Service) error {
				return s.Withdraw(ctx, 10)
			},
			want:     []string{"activeMarkets", "balance:0xabc"},
			balances: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			// Warm the per-match entry so the bridge holds market 7.
			if _, err := h.svc.MatchMarkets(ctx, "ps-1"); err != nil {
				t.Fatalf("MatchMarkets failed: %v", err)
			}

			var mu sync.Mutex
			var got []string
			h.svc.OnInvalidate(func(key string) {
				mu.Lock()
				got = append(got, key)
				mu.Unlock()
			})

			if err := tt.mutate(ctx, h.svc); err != nil {
				t.Fatalf("mutation failed: %v", err)
			}

			mu.Lock()
			defer mu.Unlock()
			sort.Strings(got)
			if len(got) != len(tt.want) {
				t.Fatalf("invalidated %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("invalidated %v, want %v", got, tt.want)
					break
				}
			}
			if n := h.wallet.refreshes.Load(); n != tt.balances {
				t.Errorf("balance refreshes = %d, want %d", n, tt.balances)
			}
		})
	}
}

func TestService_DisconnectedWalletSkipsAccountKeys(t *testing.T) {
	h := newHarness(t)
	h.wallet.owner = ""
	ctx := context.Background()

	var got []string
	h.svc.OnInvalidate(func(key string) { got = append(got, key) })

	if err := h.svc.PlaceBet(ctx, 7, 0, 5); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	for _, k := range got {
		if strings.HasPrefix(k, "balance:") || strings.HasPrefix(k, "userBets:") {
			t.Errorf("unexpected account key %q", k)
		}
	}
	if h.wallet.refreshes.Load() != 0 {
		t.Error("balance must not refresh without a wallet")
	}
}

func TestService_MutationErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var invalidated atomic.Int32
	h.svc.OnInvalidate(func(string) { invalidated.Add(1) })

	h.ledger.mu.Lock()
	h.ledger.failNext = &ledger.RemoteError{Message: "market is locked"}
	h.ledger.mu.Unlock()

	err := h.svc.PlaceBet(ctx, 7, 0, 10)
	var remote *ledger.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if invalidated.Load() != 0 {
		t.Error("failed mutation must not invalidate")
	}
	if h.svc.LastError(MutationKey(OpPlaceBet)) == nil {
		t.Error("failure should be recorded")
	}

	if err := h.svc.PlaceBet(ctx, 7, 0, 10); err != nil {
		t.Fatalf("PlaceBet failed: %v", err)
	}
	if err := h.svc.LastError(MutationKey(OpPlaceBet)); err != nil {
		t.Errorf("LastError = %v after success", err)
	}

	if err := h.svc.Deposit(ctx, 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("Deposit(0) err = %v, want ErrInvalidAmount", err)
	}
	if h.ledger.count("deposit") != 0 {
		t.Error("invalid amount must not reach the ledger")
	}
}

func TestService_EnsureMatchMarkets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	start := time.Now().Add(2 * time.Hour)

	match := model.Match{
		ID:        "ps-9",
		TeamA:     model.Team{Name: "Alpha"},
		TeamB:     model.Team{Name: "Beta"},
		StartTime: &start,
	}

	markets, err := h.svc.EnsureMatchMarkets(ctx, match)
	if err != nil {
		t.Fatalf("EnsureMatchMarkets failed: %v", err)
	}
	if len(markets) != 1 || markets[0].Title != "Alpha vs Beta - Match Winner" {
		t.Fatalf("markets = %+v", markets)
	}

	// The per-match read is served from the store.
	before := h.ledger.count("marketsByMatch")
	got, err := h.svc.MatchMarkets(ctx, "ps-9")
	if err != nil || len(got) != 1 {
		t.Fatalf("MatchMarkets = %v, %v", got, err)
	}
	if h.ledger.count("marketsByMatch") != before {
		t.Error("MatchMarkets should hit the store")
	}
}

func TestService_ErrorsAndRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ledger.mu.Lock()
	h.ledger.failNext = &ledger.TimeoutError{Operation: "getMarketsByMatch", After: "10s"}
	h.ledger.mu.Unlock()

	markets, err := h.svc.EnsureMatchMarkets(ctx, model.Match{ID: "ps-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(markets) != 0 {
		t.Errorf("markets = %v, want empty", markets)
	}
	if !errors.Is(h.svc.LastError("match:ps-1"), ledger.ErrTimeout) {
		t.Errorf("LastError = %v", h.svc.LastError("match:ps-1"))
	}
	if keys := h.svc.ErrorKeys(); len(keys) != 1 || keys[0] != "match:ps-1" {
		t.Errorf("ErrorKeys() = %v", keys)
	}

	h.svc.Retry("match:ps-1")
	if err := h.svc.LastError("match:ps-1"); err != nil {
		t.Errorf("LastError after Retry = %v", err)
	}

	got, err := h.svc.MatchMarkets(ctx, "ps-1")
	if err != nil || len(got) != 1 {
		t.Errorf("MatchMarkets after Retry = %v, %v", got, err)
	}
}

func TestService_Stats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ledger.mu.Lock()
	h.ledger.volume = 5000
	h.ledger.mu.Unlock()

	st, err := h.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.TotalVolume != 5000 || st.ProtocolFees != 100 || st.FeeRate != 0.02 {
		t.Errorf("Stats() = %+v", st)
	}

	h.svc.Stats(ctx)
	if h.ledger.count("feeRate") != 1 {
		t.Errorf("fee rate fetched %d times, want 1", h.ledger.count("feeRate"))
	}
}

func TestService_CalculatePotentialPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.CalculatePotentialPayout(ctx, 7, 0, 0); err == nil {
		t.Error("expected error for zero amount")
	}
	for i := 0; i < 2; i++ {
		p, err := h.svc.CalculatePotentialPayout(ctx, 7, 0, 100)
		if err != nil {
			t.Fatalf("CalculatePotentialPayout failed: %v", err)
		}
		if p.PotentialPayout != 200 {
			t.Errorf("PotentialPayout = %v, want 200", p.PotentialPayout)
		}
	}
	if h.ledger.count("payout") != 2 {
		t.Error("payout previews must not be cached")
	}
}
