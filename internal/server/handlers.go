package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/matchfeed"
	"github.com/rickgao/livepredict/internal/model"
	"github.com/rickgao/livepredict/internal/version"
	"github.com/rickgao/livepredict/internal/wallet"
)

const maxBodyBytes = 64 << 10

type healthResponse struct {
	Status  string       `json:"status"`
	Version version.Info `json:"version"`
	Wallet  wallet.Phase `json:"wallet"`
	Clients int          `json:"clients"`
	Errors  []string     `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Get(),
		Wallet:  s.session.Phase(),
		Clients: s.hub.Count(),
		Errors:  s.svc.ErrorKeys(),
	})
}

// -----------------------------------------------------------------------------
// Matches
// -----------------------------------------------------------------------------

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	game := q.Get("game")
	if game == "" {
		game = s.cfg.DefaultGame
	}

	var (
		matches []model.Match
		err     error
	)
	switch action := q.Get("action"); action {
	case "", matchfeed.ActionRunning, matchfeed.ActionUpcoming, matchfeed.ActionPast:
		matches, err = s.svc.Matches(r.Context(), action, game)
	default:
		err = badRequest(fmt.Sprintf("unknown action %q", action))
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if matches == nil {
		matches = []model.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	match, err := s.lookupMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type matchMarketsResponse struct {
	Match   *model.Match         `json:"match"`
	Markets []model.LedgerMarket `json:"markets"`
	Error   string               `json:"error,omitempty"`
	Kind    string               `json:"kind,omitempty"`
}

// handleMatchMarkets returns the markets of a match, creating its match-winner market
// on first view. A ledger failure still answers 200 with an empty list and the error.
func (s *Server) handleMatchMarkets(w http.ResponseWriter, r *http.Request) {
	match, err := s.lookupMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	markets, err := s.svc.EnsureMatchMarkets(r.Context(), *match)
	resp := matchMarketsResponse{Match: match, Markets: markets}
	if resp.Markets == nil {
		resp.Markets = []model.LedgerMarket{}
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Kind = errorKind(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) lookupMatch(ctx context.Context, matchID string) (*model.Match, error) {
	return s.svc.FeedMatch(ctx, matchID)
}

// -----------------------------------------------------------------------------
// Markets
// -----------------------------------------------------------------------------

func (s *Server) handleActiveMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.svc.ActiveMarkets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markets)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.svc.Market(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if m == nil {
		s.writeError(w, r, fmt.Errorf("market %d: %w", id, ledger.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMarketBets(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bets, err := s.svc.MarketBets(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	option, err := strconv.Atoi(q.Get("option"))
	if err != nil {
		s.writeError(w, r, badRequest("option must be an integer"))
		return
	}
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil || amount <= 0 {
		s.writeError(w, r, badRequest("amount must be a positive integer"))
		return
	}

	p, err := s.svc.CalculatePotentialPayout(r.Context(), id, option, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p == nil {
		s.writeError(w, r, fmt.Errorf("payout for market %d option %d: %w", id, option, ledger.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createMarketRequest struct {
	MatchID    string   `json:"matchId"`
	MarketType string   `json:"marketType"`
	Title      string   `json:"title"`
	Options    []string `json:"options"`
	LocksAt    int64    `json:"locksAt"`
}

// handleCreateMarket creates an explicit market, or the match-winner market of
// matchId when only the match is given.
func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.MatchID == "" {
		s.writeError(w, r, badRequest("matchId is required"))
		return
	}

	var err error
	if req.Title == "" && len(req.Options) == 0 {
		var match *model.Match
		match, err = s.lookupMatch(r.Context(), req.MatchID)
		if err == nil {
			err = s.svc.CreateMarketForMatch(r.Context(), *match)
		}
	} else {
		if len(req.Options) < 2 {
			s.writeError(w, r, badRequest("at least two options are required"))
			return
		}
		if req.MarketType == "" {
			req.MarketType = model.MarketTypeMatchWinner
		}
		err = s.svc.CreateMarket(r.Context(), ledger.CreateMarketParams{
			MatchID:    req.MatchID,
			MarketType: req.MarketType,
			Title:      req.Title,
			Options:    req.Options,
			LocksAt:    req.LocksAt,
		})
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"matchId": req.MatchID})
}

func (s *Server) handleLockMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err == nil {
		err = s.svc.LockMarket(r.Context(), id)
	}
	s.writeMutation(w, r, err)
}

type resolveRequest struct {
	WinningOption *int `json:"winningOption"`
}

func (s *Server) handleResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.WinningOption == nil {
		s.writeError(w, r, badRequest("winningOption is required"))
		return
	}
	s.writeMutation(w, r, s.svc.ResolveMarket(r.Context(), id, *req.WinningOption))
}

func (s *Server) handleCancelMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err == nil {
		err = s.svc.CancelMarket(r.Context(), id)
	}
	s.writeMutation(w, r, err)
}

// -----------------------------------------------------------------------------
// Bets
// -----------------------------------------------------------------------------

type placeBetRequest struct {
	MarketID int64 `json:"marketId"`
	OptionID int   `json:"optionId"`
	Amount   int64 `json:"amount"`
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.requireWallet(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMutation(w, r, s.svc.PlaceBet(r.Context(), req.MarketID, req.OptionID, req.Amount))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.requireWallet(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMutation(w, r, s.svc.ClaimWinnings(r.Context(), id))
}

// -----------------------------------------------------------------------------
// Accounts and wallet
// -----------------------------------------------------------------------------

func (s *Server) handleAccountBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.svc.UserBets(r.Context(), r.PathValue("owner"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bets)
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	balance, err := s.svc.GetBalance(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "balance": balance})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Connect(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.session.Disconnect(r.Context())
	writeJSON(w, http.StatusOK, s.session.State())
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, true)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, false)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, deposit bool) {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.requireWallet(); err != nil {
		s.writeError(w, r, err)
		return
	}

	var err error
	if deposit {
		err = s.svc.Deposit(r.Context(), req.Amount)
	} else {
		err = s.svc.Withdraw(r.Context(), req.Amount)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.State())
}

func (s *Server) requireWallet() error {
	if _, ok := s.session.Owner(); !ok {
		return errWalletRequired
	}
	return nil
}

// -----------------------------------------------------------------------------
// Sync state
// -----------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Errors())
}

type retryRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Key == "" {
		s.writeError(w, r, badRequest("key is required"))
		return
	}
	s.svc.Retry(req.Key)
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

type okResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) writeMutation(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, badRequest(fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is empty")
		}
		return badRequest("invalid request body: " + strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}
