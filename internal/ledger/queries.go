package ledger

import (
	"context"
	"fmt"

	"github.com/rickgao/livepredict/internal/model"
)

// GetActiveMarkets fetches all markets that are not in a terminal state.
func (c *Client) GetActiveMarkets(ctx context.Context) ([]model.LedgerMarket, error) {
	var resp ActiveMarketsResponse
	if err := c.Request(ctx, OpActiveMarkets, nil, &resp); err != nil {
		return nil, fmt.Errorf("get active markets: %w", err)
	}
	return marketsToModel(resp.ActiveMarkets), nil
}

// GetMarket fetches a single market. It returns ErrNotFound when the ledger has no such market.
func (c *Client) GetMarket(ctx context.Context, id int64) (*model.LedgerMarket, error) {
	var resp MarketResponse
	if err := c.Request(ctx, OpMarket, map[string]any{"id": id}, &resp); err != nil {
		return nil, fmt.Errorf("get market %d: %w", id, err)
	}
	if resp.Market == nil {
		return nil, fmt.Errorf("get market %d: %w", id, ErrNotFound)
	}
	m := resp.Market.ToModel()
	return &m, nil
}

// GetMarketsByMatch fetches all markets created for an external match id.
func (c *Client) GetMarketsByMatch(ctx context.Context, matchID string) ([]model.LedgerMarket, error) {
	var resp MarketsByMatchResponse
	if err := c.Request(ctx, OpMarketsByMatch, map[string]any{"matchId": matchID}, &resp); err != nil {
		return nil, fmt.Errorf("get markets for match %s: %w", matchID, err)
	}
	return marketsToModel(resp.MarketsByMatch), nil
}

// GetBalance fetches the ledger balance of an owner.
func (c *Client) GetBalance(ctx context.Context, owner string) (int64, error) {
	var resp BalanceResponse
	if err := c.Request(ctx, OpBalance, map[string]any{"owner": owner}, &resp); err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return resp.Balance, nil
}

// GetUserBets fetches all bets placed by an owner.
func (c *Client) GetUserBets(ctx context.Context, owner string) ([]model.LedgerBet, error) {
	var resp UserBetsResponse
	if err := c.Request(ctx, OpUserBets, map[string]any{"owner": owner}, &resp); err != nil {
		return nil, fmt.Errorf("get user bets: %w", err)
	}
	return betsToModel(resp.UserBets), nil
}

// GetMarketBets fetches all bets placed on a market.
func (c *Client) GetMarketBets(ctx context.Context, marketID int64) ([]model.LedgerBet, error) {
	var resp MarketBetsResponse
	if err := c.Request(ctx, OpMarketBets, map[string]any{"marketId": marketID}, &resp); err != nil {
		return nil, fmt.Errorf("get bets for market %d: %w", marketID, err)
	}
	return betsToModel(resp.MarketBets), nil
}

// CalculatePayout previews a bet against the current pools.
// It returns ErrNotFound when the ledger cannot price the bet (unknown market or option).
func (c *Client) CalculatePayout(ctx context.Context, marketID int64, optionID int, amount int64) (*model.PotentialPayout, error) {
	vars := map[string]any{
		"marketId": marketID,
		"optionId": optionID,
		"amount":   amount,
	}

	var resp CalculatePayoutResponse
	if err := c.Request(ctx, OpCalculatePayout, vars, &resp); err != nil {
		return nil, fmt.Errorf("calculate payout: %w", err)
	}
	if resp.CalculatePayout == nil {
		return nil, fmt.Errorf("calculate payout: %w", ErrNotFound)
	}
	p := resp.CalculatePayout.ToModel()
	return &p, nil
}

// GetTotalVolume fetches the cumulative staked volume.
func (c *Client) GetTotalVolume(ctx context.Context) (int64, error) {
	var resp TotalVolumeResponse
	if err := c.Request(ctx, OpTotalVolume, nil, &resp); err != nil {
		return 0, fmt.Errorf("get total volume: %w", err)
	}
	return resp.TotalVolume, nil
}

// GetProtocolFees fetches the fees collected by the protocol.
func (c *Client) GetProtocolFees(ctx context.Context) (int64, error) {
	var resp ProtocolFeesResponse
	if err := c.Request(ctx, OpProtocolFees, nil, &resp); err != nil {
		return 0, fmt.Errorf("get protocol fees: %w", err)
	}
	return resp.ProtocolFees, nil
}

// GetFeeRate fetches the global fee rate.
func (c *Client) GetFeeRate(ctx context.Context) (float64, error) {
	var resp FeeRateResponse
	if err := c.Request(ctx, OpFeeRate, nil, &resp); err != nil {
		return 0, fmt.Errorf("get fee rate: %w", err)
	}
	return resp.FeeRate, nil
}
