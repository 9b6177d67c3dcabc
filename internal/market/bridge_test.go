package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/model"
)

// fakeLedger stores markets per match in memory.
type fakeLedger struct {
	mu        sync.Mutex
	markets   map[string][]model.LedgerMarket
	nextID    int64
	delay     time.Duration
	queryErr  error
	createErr error
	created   []ledger.CreateMarketParams

	queries atomic.Int32
	creates atomic.Int32
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{markets: make(map[string][]model.LedgerMarket), nextID: 1}
}

func (f *fakeLedger) GetMarketsByMatch(ctx context.Context, matchID string) ([]model.LedgerMarket, error) {
	f.queries.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return append([]model.LedgerMarket(nil), f.markets[matchID]...), nil
}

func (f *fakeLedger) CreateMarket(ctx context.Context, p ledger.CreateMarketParams) error {
	f.creates.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, p)

	options := make([]model.MarketOption, len(p.Options))
	for i, label := range p.Options {
		options[i] = model.MarketOption{ID: i, Label: label}
	}
	f.markets[p.MatchID] = append(f.markets[p.MatchID], model.LedgerMarket{
		ID:         f.nextID,
		MatchID:    p.MatchID,
		MarketType: p.MarketType,
		Title:      p.Title,
		Options:    options,
		Status:     model.StatusOpen,
		LocksAt:    p.LocksAt,
	})
	f.nextID++
	return nil
}

type recordingReporter struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingReporter) ReportBridgeError(operation, matchID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, operation+":"+matchID)
}

func testMatch(id string, start *time.Time) model.Match {
	return model.Match{
		ID:        id,
		Status:    model.MatchNotStarted,
		TeamA:     model.Team{ID: "1", Name: "TeamA"},
		TeamB:     model.Team{ID: "2", Name: "TeamB"},
		StartTime: start,
	}
}

func TestGetOrCreateMarkets_CreatesMatchWinner(t *testing.T) {
	fl := newFakeLedger()
	b := NewBridge(DefaultConfig(), fl)

	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	markets := b.GetOrCreateMarkets(context.Background(), testMatch("ps-42", &start))

	if len(markets) != 1 {
		t.Fatalf("len(markets) = %d, want 1", len(markets))
	}
	m := markets[0]
	if m.Title != "TeamA vs TeamB - Match Winner" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.MarketType != model.MarketTypeMatchWinner {
		t.Errorf("MarketType = %q", m.MarketType)
	}
	if len(m.Options) != 2 || m.Options[0].Label != "TeamA" || m.Options[1].Label != "TeamB" {
		t.Errorf("Options = %+v", m.Options)
	}
	if m.LocksAt != start.Unix() {
		t.Errorf("LocksAt = %d, want %d", m.LocksAt, start.Unix())
	}
	if m.Status != model.StatusOpen {
		t.Errorf("Status = %s, want OPEN", m.Status)
	}
	if n := fl.creates.Load(); n != 1 {
		t.Errorf("creates = %d, want 1", n)
	}
}

func TestGetOrCreateMarkets_DefaultLockTime(t *testing.T) {
	fl := newFakeLedger()
	now := time.Unix(1_700_000_000, 0)
	b := NewBridge(DefaultConfig(), fl, WithClock(func() time.Time { return now }))

	markets := b.GetOrCreateMarkets(context.Background(), testMatch("ps-7", nil))
	if len(markets) != 1 {
		t.Fatalf("len(markets) = %d, want 1", len(markets))
	}
	if want := now.Add(time.Hour).Unix(); markets[0].LocksAt != want {
		t.Errorf("LocksAt = %d, want %d", markets[0].LocksAt, want)
	}
}

func TestGetOrCreateMarkets_ConcurrentCreatesOnce(t *testing.T) {
	fl := newFakeLedger()
	fl.delay = 20 * time.Millisecond
	b := NewBridge(DefaultConfig(), fl)
	match := testMatch("ps-99", nil)

	const n = 20
	results := make([][]model.LedgerMarket, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.GetOrCreateMarkets(context.Background(), match)
		}(i)
	}
	wg.Wait()

	if c := fl.creates.Load(); c != 1 {
		t.Fatalf("creates = %d, want 1", c)
	}
	for i, r := range results {
		if len(r) != 1 || r[0].ID != results[0][0].ID {
			t.Errorf("result[%d] = %+v, want the shared market", i, r)
		}
	}
}

func TestGetOrCreateMarkets_CachedWithoutNetwork(t *testing.T) {
	fl := newFakeLedger()
	b := NewBridge(DefaultConfig(), fl)
	match := testMatch("ps-1", nil)

	b.GetOrCreateMarkets(context.Background(), match)
	queries := fl.queries.Load()

	b.GetOrCreateMarkets(context.Background(), match)
	b.GetMarkets(context.Background(), match.ID)

	if got := fl.queries.Load(); got != queries {
		t.Errorf("queries = %d, want %d (served from cache)", got, queries)
	}
}

func TestGetOrCreateMarkets_ExistingMarkets(t *testing.T) {
	fl := newFakeLedger()
	fl.markets["ps-5"] = []model.LedgerMarket{{ID: 11, MatchID: "ps-5", Status: model.StatusLocked}}
	b := NewBridge(DefaultConfig(), fl)

	markets := b.GetOrCreateMarkets(context.Background(), testMatch("ps-5", nil))
	if len(markets) != 1 || markets[0].ID != 11 {
		t.Fatalf("markets = %+v", markets)
	}
	if fl.creates.Load() != 0 {
		t.Error("must not create when markets exist")
	}
}

func TestGetOrCreateMarkets_FailureDegradesToEmpty(t *testing.T) {
	fl := newFakeLedger()
	fl.createErr = &ledger.RemoteError{Message: "market already exists for match"}
	rep := &recordingReporter{}
	b := NewBridge(DefaultConfig(), fl, WithReporter(rep))

	markets := b.GetOrCreateMarkets(context.Background(), testMatch("ps-3", nil))
	if markets == nil || len(markets) != 0 {
		t.Fatalf("markets = %#v, want empty non-nil slice", markets)
	}

	var remote *ledger.RemoteError
	if err := b.LastError("ps-3"); !errors.As(err, &remote) {
		t.Fatalf("LastError() = %v, want *ledger.RemoteError", err)
	}
	if len(rep.calls) != 1 || rep.calls[0] != "get_or_create:ps-3" {
		t.Errorf("reporter calls = %v", rep.calls)
	}
	if b.Cache().Len() != 0 {
		t.Error("failure must not populate the cache")
	}

	fl.mu.Lock()
	fl.createErr = nil
	fl.mu.Unlock()

	if got := b.GetOrCreateMarkets(context.Background(), testMatch("ps-3", nil)); len(got) != 1 {
		t.Fatalf("retry markets = %+v", got)
	}
	if b.LastError("ps-3") != nil {
		t.Error("success should clear the recorded error")
	}
}

func TestGetMarkets_NeverCreates(t *testing.T) {
	fl := newFakeLedger()
	b := NewBridge(DefaultConfig(), fl)

	for i := 0; i < 2; i++ {
		if got := b.GetMarkets(context.Background(), "ps-8"); len(got) != 0 {
			t.Fatalf("GetMarkets() = %+v", got)
		}
	}
	if fl.creates.Load() != 0 {
		t.Error("GetMarkets must never create")
	}
	if q := fl.queries.Load(); q != 2 {
		t.Errorf("queries = %d, want 2 (empty results are not cached)", q)
	}
}

func TestGetMarkets_QueryError(t *testing.T) {
	fl := newFakeLedger()
	fl.queryErr = &ledger.TimeoutError{Operation: "marketsByMatch", After: "10s"}
	b := NewBridge(DefaultConfig(), fl)

	if got := b.GetMarkets(context.Background(), "ps-8"); got == nil || len(got) != 0 {
		t.Fatalf("GetMarkets() = %#v", got)
	}
	if !errors.Is(b.LastError("ps-8"), ledger.ErrTimeout) {
		t.Errorf("LastError() = %v, want timeout", b.LastError("ps-8"))
	}
	if len(b.Errors()) != 1 {
		t.Errorf("Errors() = %v", b.Errors())
	}
}

func TestRefreshMarkets(t *testing.T) {
	fl := newFakeLedger()
	fl.markets["ps-2"] = []model.LedgerMarket{{ID: 1, MatchID: "ps-2", Options: []model.MarketOption{{ID: 0, Pool: 0}}}}
	b := NewBridge(DefaultConfig(), fl)

	b.GetMarkets(context.Background(), "ps-2")

	fl.mu.Lock()
	fl.markets["ps-2"][0].Options[0].Pool = 100
	fl.mu.Unlock()

	got, err := b.RefreshMarkets(context.Background(), "ps-2")
	if err != nil {
		t.Fatalf("RefreshMarkets() error = %v", err)
	}
	if len(got) != 1 || got[0].Options[0].Pool != 100 {
		t.Errorf("RefreshMarkets() = %+v, want updated pool", got)
	}
}

func TestRefreshMarkets_ReturnsOwnOutcome(t *testing.T) {
	fl := newFakeLedger()
	fl.markets["ps-2"] = []model.LedgerMarket{{ID: 1, MatchID: "ps-2"}}
	b := NewBridge(DefaultConfig(), fl)

	fl.mu.Lock()
	fl.queryErr = ledger.ErrTimeout
	fl.mu.Unlock()
	if _, err := b.RefreshMarkets(context.Background(), "ps-2"); !errors.Is(err, ledger.ErrTimeout) {
		t.Fatalf("RefreshMarkets() error = %v, want timeout", err)
	}

	fl.mu.Lock()
	fl.queryErr = nil
	fl.mu.Unlock()

	// A failure recorded by another caller must not leak into a successful read.
	b.report("get_or_create", "ps-2", errors.New("create market: rejected"))
	got, err := b.RefreshMarkets(context.Background(), "ps-2")
	if err != nil || len(got) != 1 {
		t.Errorf("RefreshMarkets() = %d markets, %v; want 1, nil", len(got), err)
	}
}

func TestGetMarkets_CanceledCallerDoesNotFailRead(t *testing.T) {
	fl := newFakeLedger()
	fl.markets["ps-3"] = []model.LedgerMarket{{ID: 5, MatchID: "ps-3"}}
	b := NewBridge(DefaultConfig(), fl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got := b.GetMarkets(ctx, "ps-3"); len(got) != 1 {
		t.Errorf("GetMarkets() = %+v, want 1 market", got)
	}
	if err := b.LastError("ps-3"); err != nil {
		t.Errorf("LastError() = %v, want nil", err)
	}
}

func TestCreateMarket_Explicit(t *testing.T) {
	fl := newFakeLedger()
	b := NewBridge(DefaultConfig(), fl)
	start := time.Unix(1_800_000_000, 0)

	if err := b.CreateMarketForMatch(context.Background(), testMatch("ps-4", &start)); err != nil {
		t.Fatalf("CreateMarketForMatch() error = %v", err)
	}
	if len(fl.created) != 1 || fl.created[0].LocksAt != start.Unix() {
		t.Fatalf("created = %+v", fl.created)
	}

	// The implicit path must not create a second time.
	markets := b.GetOrCreateMarkets(context.Background(), testMatch("ps-4", &start))
	if len(markets) != 1 || fl.creates.Load() != 1 {
		t.Errorf("markets = %d, creates = %d", len(markets), fl.creates.Load())
	}

	fl.createErr = &ledger.RemoteError{Message: "locksAt must be in the future"}
	err := b.CreateMarket(context.Background(), ledger.CreateMarketParams{MatchID: "ps-5", Title: "x"})
	var remote *ledger.RemoteError
	if !errors.As(err, &remote) || remote.Message != "locksAt must be in the future" {
		t.Errorf("CreateMarket() error = %v", err)
	}
	if err := b.CreateMarket(context.Background(), ledger.CreateMarketParams{}); err == nil {
		t.Error("expected error for missing match id")
	}
}

func TestClearCache(t *testing.T) {
	fl := newFakeLedger()
	fl.markets["ps-1"] = []model.LedgerMarket{{ID: 1, MatchID: "ps-1"}}
	fl.markets["ps-2"] = []model.LedgerMarket{{ID: 2, MatchID: "ps-2"}}
	b := NewBridge(DefaultConfig(), fl)

	b.GetMarkets(context.Background(), "ps-1")
	b.GetMarkets(context.Background(), "ps-2")
	if b.Cache().Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Cache().Len())
	}

	b.ClearCache("ps-1")
	if _, ok := b.Cache().Get("ps-1"); ok {
		t.Error("ps-1 should be cleared")
	}
	if _, ok := b.Cache().Get("ps-2"); !ok {
		t.Error("ps-2 should be kept")
	}

	if ids := b.InvalidateMarket(2); len(ids) != 1 || ids[0] != "ps-2" {
		t.Errorf("InvalidateMarket() = %v", ids)
	}

	b.GetMarkets(context.Background(), "ps-1")
	b.ClearCache()
	if b.Cache().Len() != 0 {
		t.Errorf("Len() after ClearCache() = %d", b.Cache().Len())
	}
}
