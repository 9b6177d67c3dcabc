package livesync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/model"
)

// Mutation names, used as error keys and in logs.
const (
	OpCreateMarket  = "createMarket"
	OpPlaceBet      = "placeBet"
	OpLockMarket    = "lockMarket"
	OpResolveMarket = "resolveMarket"
	OpCancelMarket  = "cancelMarket"
	OpClaimWinnings = "claimWinnings"
	OpDeposit       = "deposit"
	OpWithdraw      = "withdraw"
)

// ErrInvalidAmount is returned for a non-positive amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// CreateMarket creates a market through the bridge.
func (s *Service) CreateMarket(ctx context.Context, p ledger.CreateMarketParams) error {
	err := s.bridge.CreateMarket(ctx, p)
	if err := s.finish(OpCreateMarket, err); err != nil {
		return err
	}
	s.invalidate(KeyActiveMarkets, MatchKey(p.MatchID))
	s.logger.Info("market created", "match_id", p.MatchID, "title", p.Title)
	return nil
}

// CreateMarketForMatch creates the match-winner market of match.
func (s *Service) CreateMarketForMatch(ctx context.Context, match model.Match) error {
	err := s.bridge.CreateMarketForMatch(ctx, match)
	if err := s.finish(OpCreateMarket, err); err != nil {
		return err
	}
	s.invalidate(KeyActiveMarkets, MatchKey(match.ID))
	s.logger.Info("market created", "match_id", match.ID)
	return nil
}

// PlaceBet stakes amount on an option of a market.
func (s *Service) PlaceBet(ctx context.Context, marketID int64, optionID int, amount int64) error {
	if amount <= 0 {
		return s.finish(OpPlaceBet, fmt.Errorf("place bet: %w", ErrInvalidAmount))
	}

	err := s.ledger.PlaceBet(ctx, marketID, optionID, amount)
	if err := s.finish(OpPlaceBet, err); err != nil {
		return err
	}

	keys := []string{KeyActiveMarkets, MarketKey(marketID), MarketBetsKey(marketID), KeyTotalVolume, KeyProtocolFees}
	keys = append(keys, s.matchKeys(marketID)...)
	keys = append(keys, s.accountKeys()...)
	s.invalidate(keys...)
	s.refreshBalance(ctx)

	s.logger.Info("bet placed", "market_id", marketID, "option_id", optionID, "amount", amount)
	return nil
}

// LockMarket closes a market for betting.
func (s *Service) LockMarket(ctx context.Context, marketID int64) error {
	err := s.ledger.LockMarket(ctx, marketID)
	if err := s.finish(OpLockMarket, err); err != nil {
		return err
	}

	keys := append([]string{KeyActiveMarkets, MarketKey(marketID)}, s.matchKeys(marketID)...)
	s.invalidate(keys...)
	s.logger.Info("market locked", "market_id", marketID)
	return nil
}

// ResolveMarket settles a market on its winning option.
func (s *Service) ResolveMarket(ctx context.Context, marketID int64, winningOption int) error {
	err := s.ledger.ResolveMarket(ctx, marketID, winningOption)
	if err := s.finish(OpResolveMarket, err); err != nil {
		return err
	}

	keys := append([]string{KeyActiveMarkets, MarketKey(marketID), MarketBetsKey(marketID)}, s.matchKeys(marketID)...)
	s.invalidate(keys...)
	s.logger.Info("market resolved", "market_id", marketID, "winning_option", winningOption)
	return nil
}

// CancelMarket cancels a market so its bets can be refunded.
func (s *Service) CancelMarket(ctx context.Context, marketID int64) error {
	err := s.ledger.CancelMarket(ctx, marketID)
	if err := s.finish(OpCancelMarket, err); err != nil {
		return err
	}

	keys := append([]string{KeyActiveMarkets, MarketKey(marketID), MarketBetsKey(marketID)}, s.matchKeys(marketID)...)
	s.invalidate(keys...)
	s.logger.Info("market cancelled", "market_id", marketID)
	return nil
}

// ClaimWinnings claims the payout or refund of a bet.
func (s *Service) ClaimWinnings(ctx context.Context, betID int64) error {
	err := s.ledger.ClaimWinnings(ctx, betID)
	if err := s.finish(OpClaimWinnings, err); err != nil {
		return err
	}

	s.invalidate(append([]string{KeyActiveMarkets}, s.accountKeys()...)...)
	s.refreshBalance(ctx)
	s.logger.Info("winnings claimed", "bet_id", betID)
	return nil
}

// Deposit credits amount to the connected account.
func (s *Service) Deposit(ctx context.Context, amount int64) error {
	return s.transfer(ctx, OpDeposit, amount, s.ledger.Deposit)
}

// Withdraw debits amount from the connected account.
func (s *Service) Withdraw(ctx context.Context, amount int64) error {
	return s.transfer(ctx, OpWithdraw, amount, s.ledger.Withdraw)
}

func (s *Service) transfer(ctx context.Context, op string, amount int64, fn func(context.Context, int64) error) error {
	if amount <= 0 {
		return s.finish(op, fmt.Errorf("%s: %w", op, ErrInvalidAmount))
	}

	err := fn(ctx, amount)
	if err := s.finish(op, err); err != nil {
		return err
	}

	keys := []string{KeyActiveMarkets}
	if owner, ok := s.owner(); ok {
		keys = append(keys, BalanceKey(owner))
	}
	s.invalidate(keys...)
	s.refreshBalance(ctx)

	s.logger.Info("balance updated", "operation", op, "amount", amount)
	return nil
}

// finish records or clears the error of a mutation and returns err.
func (s *Service) finish(op string, err error) error {
	s.store.RecordError(MutationKey(op), err)
	if err != nil {
		s.logger.Warn("mutation failed", "operation", op, "err", err)
	}
	return err
}

// matchKeys drops every per-match entry that holds marketID and returns their keys.
func (s *Service) matchKeys(marketID int64) []string {
	matchIDs := s.bridge.InvalidateMarket(marketID)

	if v, ok := s.store.Get(MarketKey(marketID)); ok {
		if m, ok := v.(*model.LedgerMarket); ok && m != nil && m.MatchID != "" {
			s.bridge.ClearCache(m.MatchID)
			matchIDs = append(matchIDs, m.MatchID)
		}
	}

	keys := make([]string, 0, len(matchIDs))
	for _, id := range matchIDs {
		keys = append(keys, MatchKey(id))
	}
	return keys
}

// accountKeys returns the account reads of the connected wallet, if any.
func (s *Service) accountKeys() []string {
	owner, ok := s.owner()
	if !ok {
		return nil
	}
	return []string{BalanceKey(owner), UserBetsKey(owner)}
}

// invalidate drops the given keys once each.
func (s *Service) invalidate(keys ...string) {
	seen := make(map[string]bool, len(keys))
	uniq := keys[:0:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)
	s.store.Invalidate(uniq...)
}

func (s *Service) refreshBalance(ctx context.Context) {
	if s.wallet == nil {
		return
	}
	if _, ok := s.wallet.Owner(); !ok {
		return
	}
	if err := s.wallet.RefreshBalance(ctx); err != nil {
		s.logger.Debug("balance refresh after mutation failed", "err", err)
	}
}
