package wallet

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/livepredict/internal/model"
)

// Phase is the lifecycle phase of a Session.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseDetecting     Phase = "detecting"
	PhaseUnavailable   Phase = "unavailable"
	PhaseDisconnected  Phase = "disconnected"
	PhaseConnecting    Phase = "connecting"
	PhaseConnected     Phase = "connected"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{
	PhaseUninitialized,
	PhaseDetecting,
	PhaseUnavailable,
	PhaseDisconnected,
	PhaseConnecting,
	PhaseConnected,
}

// BalanceSource returns the ledger balance of an owner in whole units.
type BalanceSource interface {
	GetBalance(ctx context.Context, owner string) (int64, error)
}

// Config holds session settings.
type Config struct {
	GracePeriod     time.Duration
	ProbeInterval   time.Duration
	ProviderTimeout time.Duration
	InstallURL      string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod:     DefaultGracePeriod,
		ProbeInterval:   DefaultProbeInterval,
		ProviderTimeout: 30 * time.Second,
		InstallURL:      DefaultInstallURL,
	}
}

// State is a point-in-time snapshot of a Session.
type State struct {
	SessionID        string            `json:"sessionId"`
	Phase            Phase             `json:"phase"`
	Wallet           model.WalletState `json:"wallet"`
	Available        bool              `json:"available"`
	Error            string            `json:"error,omitempty"`
	BalanceError     string            `json:"balanceError,omitempty"`
	ShowInstallGuide bool              `json:"showInstallGuide"`
	InstallURL       string            `json:"installUrl"`
}

// Session tracks the connection to the signing extension.
type Session struct {
	locator  Locator
	balances BalanceSource
	config   Config
	logger   *slog.Logger

	// ctx bounds work started by provider events.
	ctx context.Context

	mu           sync.Mutex
	id           string
	provider     Provider
	phase        Phase
	wallet       model.WalletState
	gen          uint64
	errMsg       string
	balanceErr   string
	installGuide bool
	subscribed   bool

	subsMu sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// NewSession creates a session. Call Init to detect the provider.
func NewSession(locator Locator, balances BalanceSource, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.InstallURL == "" {
		cfg.InstallURL = DefaultInstallURL
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = DefaultConfig().ProviderTimeout
	}
	return &Session{
		locator:  locator,
		balances: balances,
		config:   cfg,
		logger:   logger.With("component", "wallet"),
		ctx:      context.Background(),
		id:       uuid.NewString(),
		phase:    PhaseUninitialized,
		wallet:   model.BaselineWalletState(),
		subs:     make(map[int]func(State)),
	}
}

// Init detects the provider within the grace period and subscribes to its events.
// The context also bounds work triggered later by provider events.
func (s *Session) Init(ctx context.Context) Phase {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.dispatch(event{kind: evDetecting})

	p, err := WaitForProvider(ctx, s.locator, s.config.GracePeriod, s.config.ProbeInterval, s.logger)
	if err != nil {
		s.logger.Info("wallet extension not detected", "err", err)
		s.dispatch(event{kind: evUnavailable})
		return s.Phase()
	}

	s.dispatch(event{kind: evAvailable, provider: p})
	s.subscribeEvents(p)
	s.logger.Info("wallet extension detected")
	return s.Phase()
}

// redetect probes the locator once without waiting for a grace period.
func (s *Session) redetect(ctx context.Context) {
	p, err := s.locator.Locate(ctx)
	if err != nil || p == nil {
		return
	}
	if _, err := s.dispatch(event{kind: evAvailable, provider: p}); err != nil {
		return
	}
	s.subscribeEvents(p)
	s.logger.Info("wallet extension detected after start-up")
}

func (s *Session) subscribeEvents(p Provider) {
	es, ok := p.(EventSource)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return
	}
	s.subscribed = true
	s.mu.Unlock()

	es.On(EventAccountsChanged, s.onAccountsChanged)
	es.On(EventChainChanged, s.onChainChanged)
	es.On(EventDisconnect, func(json.RawMessage) {
		s.logger.Info("wallet disconnected by provider")
		s.dispatch(event{kind: evReset})
	})
}

// Connect requests account access, then loads the balance once.
// It is a no-op while a connect is already in flight. When the extension was not
// found at start-up, it is looked up once more before giving up.
func (s *Session) Connect(ctx context.Context) error {
	if s.Phase() == PhaseUnavailable {
		s.redetect(ctx)
	}

	eff, err := s.dispatch(event{kind: evConnectRequested})
	if err != nil || !eff.connect {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	defer cancel()

	raw, err := eff.provider.Request(reqCtx, MethodRequestAccounts, nil)
	if err != nil {
		err = translateProviderError(err)
		s.logger.Warn("wallet connect failed", "err", err)
		s.dispatch(event{kind: evConnectFailed, err: err})
		return err
	}

	accounts := parseAccounts(raw)
	if len(accounts) == 0 {
		s.dispatch(event{kind: evConnectFailed, err: ErrNoAccount})
		return ErrNoAccount
	}

	chainID := s.queryChainID(reqCtx, eff.provider)

	eff, _ = s.dispatch(event{kind: evConnected, gen: eff.gen, address: accounts[0], chainID: chainID})
	if !eff.connected {
		return ErrInterrupted
	}
	if !eff.fetchBalance {
		return nil
	}

	s.logger.Info("wallet connected", "address", accounts[0], "chain_id", chainID)
	// A failed fetch degrades to a zero balance and does not fail the connect.
	_ = s.fetchBalance(ctx, eff)
	return nil
}

// Disconnect notifies the provider and resets the session to the baseline.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	p := s.provider
	s.mu.Unlock()

	if p != nil {
		reqCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
		if _, err := p.Request(reqCtx, MethodDisconnect, nil); err != nil {
			s.logger.Debug("provider disconnect failed", "err", err)
		}
		cancel()
	}

	s.dispatch(event{kind: evReset, clearError: true})
}

// RefreshBalance reloads the balance of the connected account.
// On failure the balance degrades to zero and the error is returned and recorded.
func (s *Session) RefreshBalance(ctx context.Context) error {
	s.mu.Lock()
	if !s.wallet.Connected || s.wallet.Address == nil {
		s.mu.Unlock()
		return nil
	}
	eff := effect{fetchBalance: true, gen: s.gen, address: *s.wallet.Address}
	s.mu.Unlock()

	return s.fetchBalance(ctx, eff)
}

func (s *Session) fetchBalance(ctx context.Context, eff effect) error {
	if s.balances == nil {
		return nil
	}

	amount, err := s.balances.GetBalance(ctx, eff.address)
	if err != nil {
		s.logger.Warn("balance fetch failed", "address", eff.address, "err", err)
		s.dispatch(event{kind: evBalanceFailed, gen: eff.gen, address: eff.address, err: err})
		return err
	}

	s.dispatch(event{kind: evBalance, gen: eff.gen, address: eff.address, balance: decimal.NewFromInt(amount)})
	return nil
}

func (s *Session) queryChainID(ctx context.Context, p Provider) string {
	raw, err := p.Request(ctx, MethodChainID, nil)
	if err != nil {
		s.logger.Debug("chain id query failed", "err", err)
		return "unknown"
	}
	if id := parseChainID(raw); id != "" {
		return id
	}
	return "unknown"
}

func (s *Session) onAccountsChanged(data json.RawMessage) {
	accounts := parseAccounts(data)
	if len(accounts) == 0 {
		s.logger.Info("wallet accounts cleared")
		s.dispatch(event{kind: evReset})
		return
	}

	eff, _ := s.dispatch(event{kind: evAccountChanged, address: accounts[0]})
	if !eff.fetchBalance {
		return
	}

	s.mu.Lock()
	ctx, p := s.ctx, s.provider
	s.mu.Unlock()

	s.logger.Info("wallet account changed", "address", eff.address)
	if p != nil {
		reqCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
		chainID := s.queryChainID(reqCtx, p)
		cancel()
		s.dispatch(event{kind: evChainResolved, gen: eff.gen, chainID: chainID})
	}
	_ = s.fetchBalance(ctx, eff)
}

func (s *Session) onChainChanged(data json.RawMessage) {
	s.dispatch(event{kind: evChainChanged, chainID: parseChainID(data)})
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Wallet returns the current wallet state.
func (s *Session) Wallet() model.WalletState {
	return s.State().Wallet
}

// Owner returns the connected account address.
func (s *Session) Owner() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wallet.Connected || s.wallet.Address == nil {
		return "", false
	}
	return *s.wallet.Address, true
}

// Subscribe registers fn to receive every state change. The returned function
// removes the subscription.
func (s *Session) Subscribe(fn func(State)) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Session) notify(st State) {
	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (s *Session) snapshotLocked() State {
	w := s.wallet
	if w.Address != nil {
		addr := *w.Address
		w.Address = &addr
	}
	if w.ChainID != nil {
		chain := *w.ChainID
		w.ChainID = &chain
	}
	return State{
		SessionID:        s.id,
		Phase:            s.phase,
		Wallet:           w,
		Available:        s.provider != nil,
		Error:            s.errMsg,
		BalanceError:     s.balanceErr,
		ShowInstallGuide: s.installGuide,
		InstallURL:       s.config.InstallURL,
	}
}
