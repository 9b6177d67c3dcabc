package ledger

import (
	"context"
	"fmt"
)

// CreateMarket creates a market for an external match.
func (c *Client) CreateMarket(ctx context.Context, p CreateMarketParams) error {
	vars := map[string]any{
		"matchId":    p.MatchID,
		"marketType": p.MarketType,
		"title":      p.Title,
		"options":    p.Options,
		"locksAt":    p.LocksAt,
	}
	if err := c.Request(ctx, OpCreateMarket, vars, nil); err != nil {
		return fmt.Errorf("create market for match %s: %w", p.MatchID, err)
	}
	return nil
}

// PlaceBet stakes amount on an option. The ledger rejects bets after the market's locksAt.
func (c *Client) PlaceBet(ctx context.Context, marketID int64, optionID int, amount int64) error {
	vars := map[string]any{
		"marketId": marketID,
		"optionId": optionID,
		"amount":   amount,
	}
	if err := c.Request(ctx, OpPlaceBet, vars, nil); err != nil {
		return fmt.Errorf("place bet on market %d: %w", marketID, err)
	}
	return nil
}

// LockMarket stops a market from accepting bets.
func (c *Client) LockMarket(ctx context.Context, marketID int64) error {
	if err := c.Request(ctx, OpLockMarket, map[string]any{"marketId": marketID}, nil); err != nil {
		return fmt.Errorf("lock market %d: %w", marketID, err)
	}
	return nil
}

// ResolveMarket settles a market with its winning option.
func (c *Client) ResolveMarket(ctx context.Context, marketID int64, winningOption int) error {
	vars := map[string]any{
		"marketId":      marketID,
		"winningOption": winningOption,
	}
	if err := c.Request(ctx, OpResolveMarket, vars, nil); err != nil {
		return fmt.Errorf("resolve market %d: %w", marketID, err)
	}
	return nil
}

// CancelMarket cancels a market and refunds its bets.
func (c *Client) CancelMarket(ctx context.Context, marketID int64) error {
	if err := c.Request(ctx, OpCancelMarket, map[string]any{"marketId": marketID}, nil); err != nil {
		return fmt.Errorf("cancel market %d: %w", marketID, err)
	}
	return nil
}

// ClaimWinnings pays out a settled winning bet.
func (c *Client) ClaimWinnings(ctx context.Context, betID int64) error {
	if err := c.Request(ctx, OpClaimWinnings, map[string]any{"betId": betID}, nil); err != nil {
		return fmt.Errorf("claim winnings for bet %d: %w", betID, err)
	}
	return nil
}

// Deposit moves funds into the application.
func (c *Client) Deposit(ctx context.Context, amount int64) error {
	if err := c.Request(ctx, OpDeposit, map[string]any{"amount": amount}, nil); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// Withdraw moves funds out of the application.
func (c *Client) Withdraw(ctx context.Context, amount int64) error {
	if err := c.Request(ctx, OpWithdraw, map[string]any{"amount": amount}, nil); err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return nil
}
