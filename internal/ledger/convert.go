package ledger

import "github.com/rickgao/livepredict/internal/model"

// ToModel converts an APIMarket to model.LedgerMarket.
func (m *APIMarket) ToModel() model.LedgerMarket {
	options := make([]model.MarketOption, 0, len(m.Options))
	for _, o := range m.Options {
		options = append(options, model.MarketOption{
			ID:    o.ID,
			Label: o.Label,
			Pool:  o.Pool,
		})
	}

	return model.LedgerMarket{
		ID:            m.ID,
		MatchID:       m.MatchID,
		MarketType:    m.MarketType,
		Title:         m.Title,
		Options:       options,
		Status:        model.MarketStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		LocksAt:       m.LocksAt,
		WinningOption: m.WinningOption,
	}
}

// ToModel converts an APIBet to model.LedgerBet.
func (b *APIBet) ToModel() model.LedgerBet {
	return model.LedgerBet{
		ID:       b.ID,
		Owner:    b.Owner,
		MarketID: b.MarketID,
		OptionID: b.OptionID,
		Amount:   b.Amount,
		Odds:     b.Odds,
		PlacedAt: b.PlacedAt,
		Settled:  b.Settled,
		Payout:   b.Payout,
	}
}

// ToModel converts an APIPayout to model.PotentialPayout.
func (p *APIPayout) ToModel() model.PotentialPayout {
	return model.PotentialPayout{
		Odds:            p.Odds,
		PotentialPayout: p.PotentialPayout,
		FeeRate:         p.FeeRate,
	}
}

func marketsToModel(in []APIMarket) []model.LedgerMarket {
	out := make([]model.LedgerMarket, 0, len(in))
	for i := range in {
		out = append(out, in[i].ToModel())
	}
	return out
}

func betsToModel(in []APIBet) []model.LedgerBet {
	out := make([]model.LedgerBet, 0, len(in))
	for i := range in {
		out = append(out, in[i].ToModel())
	}
	return out
}
