package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Ledger Types
// -----------------------------------------------------------------------------

// MarketStatus is the lifecycle state of a ledger market.
type MarketStatus string

const (
	StatusOpen      MarketStatus = "OPEN"
	StatusLocked    MarketStatus = "LOCKED"
	StatusResolved  MarketStatus = "RESOLVED"
	StatusCancelled MarketStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible.
func (s MarketStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// MarketTypeMatchWinner is the market type created for every match.
const MarketTypeMatchWinner = "match_winner"

// OddsScale is the fixed-point scale of LedgerBet.Odds.
const OddsScale = 10_000

// DefaultOdds is shown for an option while its pool or the market pool is empty.
var DefaultOdds = decimal.NewFromInt(2)

// MarketOption is one outcome of a market with its staked pool.
type MarketOption struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Pool  int64  `json:"pool"`
}

// LedgerMarket is a wagering venue tied to one external match.
type LedgerMarket struct {
	ID            int64          `json:"id"`            // Ledger-assigned
	MatchID       string         `json:"matchId"`       // External match key (e.g. "ps-42")
	MarketType    string         `json:"marketType"`    // e.g. "match_winner"
	Title         string         `json:"title"`         // Display title
	Options       []MarketOption `json:"options"`       // Ordered outcomes
	Status        MarketStatus   `json:"status"`        // OPEN, LOCKED, RESOLVED, CANCELLED
	CreatedAt     int64          `json:"createdAt"`     // Seconds since epoch
	LocksAt       int64          `json:"locksAt"`       // Bets rejected after this (seconds)
	WinningOption *int           `json:"winningOption"` // Set only when RESOLVED
}

// TotalPool returns the sum of all option pools.
func (m *LedgerMarket) TotalPool() int64 {
	var total int64
	for _, o := range m.Options {
		total += o.Pool
	}
	return total
}

// Option returns the option with the given id.
func (m *LedgerMarket) Option(id int) (MarketOption, bool) {
	for _, o := range m.Options {
		if o.ID == id {
			return o, true
		}
	}
	return MarketOption{}, false
}

// ImpliedOdds returns the pari-mutuel odds of an option (total pool / option pool).
// DefaultOdds is returned while either pool is empty.
func (m *LedgerMarket) ImpliedOdds(optionID int) decimal.Decimal {
	opt, ok := m.Option(optionID)
	total := m.TotalPool()
	if !ok || total <= 0 || opt.Pool <= 0 {
		return DefaultOdds
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(opt.Pool))
}

// AcceptsBets reports whether a bet placed at now would be accepted by the ledger.
func (m *LedgerMarket) AcceptsBets(now time.Time) bool {
	return m.Status == StatusOpen && now.Unix() < m.LocksAt
}

// LedgerBet is one wager recorded on the ledger.
type LedgerBet struct {
	ID       int64  `json:"id"`
	Owner    string `json:"owner"`    // Wallet address
	MarketID int64  `json:"marketId"` // Foreign key to LedgerMarket
	OptionID int    `json:"optionId"`
	Amount   int64  `json:"amount"`   // Stake, immutable
	Odds     int64  `json:"odds"`     // Snapshot at placement (scaled by OddsScale)
	PlacedAt int64  `json:"placedAt"` // Seconds since epoch
	Settled  bool   `json:"settled"`
	Payout   *int64 `json:"payout"` // Meaningful only when Settled
}

// OddsDecimal returns the placement odds as a decimal.
func (b *LedgerBet) OddsDecimal() decimal.Decimal {
	return decimal.New(b.Odds, 0).Div(decimal.NewFromInt(OddsScale))
}

// SettledPayout returns the payout of a settled bet, 0 otherwise.
func (b *LedgerBet) SettledPayout() int64 {
	if !b.Settled || b.Payout == nil {
		return 0
	}
	return *b.Payout
}

// PotentialPayout is the ledger's preview of a bet at current pools.
type PotentialPayout struct {
	Odds            float64 `json:"odds"`
	PotentialPayout float64 `json:"potentialPayout"`
	FeeRate         float64 `json:"feeRate"`
}

// -----------------------------------------------------------------------------
// Wallet Types
// -----------------------------------------------------------------------------

// Balance is the wallet's funds snapshot. Total is always Available + Locked.
type Balance struct {
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
	Total     decimal.Decimal `json:"total"`
}

// NewBalance builds a Balance with a consistent total.
func NewBalance(available, locked decimal.Decimal) Balance {
	return Balance{
		Available: available,
		Locked:    locked,
		Total:     available.Add(locked),
	}
}

// ZeroBalance is the balance of a disconnected wallet.
func ZeroBalance() Balance {
	return NewBalance(decimal.Zero, decimal.Zero)
}

// WalletState is transient session data and is never persisted.
type WalletState struct {
	Connected bool    `json:"connected"`
	Address   *string `json:"address"`
	ChainID   *string `json:"chainId"`
	Balance   Balance `json:"balance"`
}

// BaselineWalletState is the disconnected, zero-balance state.
func BaselineWalletState() WalletState {
	return WalletState{Balance: ZeroBalance()}
}

// IsBaseline reports whether s equals the baseline state.
func (s WalletState) IsBaseline() bool {
	return !s.Connected &&
		s.Address == nil &&
		s.ChainID == nil &&
		s.Balance.Available.IsZero() &&
		s.Balance.Locked.IsZero() &&
		s.Balance.Total.IsZero()
}

// -----------------------------------------------------------------------------
// Match Feed Types
// -----------------------------------------------------------------------------

// MatchStatus is the feed's lifecycle state of a match.
type MatchStatus string

const (
	MatchNotStarted MatchStatus = "not_started"
	MatchRunning    MatchStatus = "running"
	MatchFinished   MatchStatus = "finished"
)

// Team is one side of a match.
type Team struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	Logo      string `json:"logo,omitempty"`
	Score     int    `json:"score"`
}

// Match is the normalized match record produced by the feed client.
type Match struct {
	ID         string      `json:"id"` // "ps-<feed id>"
	Status     MatchStatus `json:"status"`
	TeamA      Team        `json:"teamA"`
	TeamB      Team        `json:"teamB"`
	StartTime  *time.Time  `json:"startTime"`
	Game       string      `json:"game"`
	Tournament string      `json:"tournament"`
	MapsA      int         `json:"mapsA"` // Games won by TeamA
	MapsB      int         `json:"mapsB"`
}
