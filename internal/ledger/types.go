package ledger

// APIMarket is a market as returned by the ledger (snake_case fields).
type APIMarket struct {
	ID            int64       `json:"id"`
	MatchID       string      `json:"match_id"`
	MarketType    string      `json:"market_type"`
	Title         string      `json:"title"`
	Options       []APIOption `json:"options"`
	Status        string      `json:"status"`
	CreatedAt     int64       `json:"created_at"`
	LocksAt       int64       `json:"locks_at"`
	WinningOption *int        `json:"winning_option"`
}

// APIOption is one market option with its pool.
type APIOption struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Pool  int64  `json:"pool"`
}

// APIBet is a bet as returned by the ledger.
type APIBet struct {
	ID       int64  `json:"id"`
	Owner    string `json:"owner"`
	MarketID int64  `json:"market_id"`
	OptionID int    `json:"option_id"`
	Amount   int64  `json:"amount"`
	Odds     int64  `json:"odds"`
	PlacedAt int64  `json:"placed_at"`
	Settled  bool   `json:"settled"`
	Payout   *int64 `json:"payout"`
}

// APIPayout is the calculate_payout result.
type APIPayout struct {
	Odds            float64 `json:"odds"`
	PotentialPayout float64 `json:"potential_payout"`
	FeeRate         float64 `json:"fee_rate"`
}

// ActiveMarketsResponse from active_markets.
type ActiveMarketsResponse struct {
	ActiveMarkets []APIMarket `json:"active_markets"`
}

// MarketResponse from market(id).
type MarketResponse struct {
	Market *APIMarket `json:"market"`
}

// MarketsByMatchResponse from markets_by_match(match_id).
type MarketsByMatchResponse struct {
	MarketsByMatch []APIMarket `json:"markets_by_match"`
}

// BalanceResponse from balance(owner).
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// UserBetsResponse from user_bets(owner).
type UserBetsResponse struct {
	UserBets []APIBet `json:"user_bets"`
}

// MarketBetsResponse from market_bets(market_id).
type MarketBetsResponse struct {
	MarketBets []APIBet `json:"market_bets"`
}

// CalculatePayoutResponse from calculate_payout.
type CalculatePayoutResponse struct {
	CalculatePayout *APIPayout `json:"calculate_payout"`
}

// TotalVolumeResponse from total_volume.
type TotalVolumeResponse struct {
	TotalVolume int64 `json:"total_volume"`
}

// ProtocolFeesResponse from protocol_fees.
type ProtocolFeesResponse struct {
	ProtocolFees int64 `json:"protocol_fees"`
}

// FeeRateResponse from feeRate.
type FeeRateResponse struct {
	FeeRate float64 `json:"feeRate"`
}

// CreateMarketParams are the arguments of the createMarket mutation.
type CreateMarketParams struct {
	MatchID    string
	MarketType string
	Title      string
	Options    []string
	LocksAt    int64
}
