package ledger

const marketFields = `
		id
		match_id
		market_type
		title
		options {
			id
			label
			pool
		}
		status
		created_at
		locks_at
		winning_option`

const betFields = `
		id
		owner
		market_id
		option_id
		amount
		odds
		placed_at
		settled
		payout`

// Queries.
var (
	OpActiveMarkets = Operation{
		Name:  "GetActiveMarkets",
		Query: `query GetActiveMarkets { active_markets {` + marketFields + ` } }`,
	}

	OpMarket = Operation{
		Name:  "GetMarket",
		Query: `query GetMarket($id: Int!) { market(id: $id) {` + marketFields + ` } }`,
	}

	OpMarketsByMatch = Operation{
		Name:  "GetMarketsByMatch",
		Query: `query GetMarketsByMatch($matchId: String!) { markets_by_match(match_id: $matchId) {` + marketFields + ` } }`,
	}

	OpBalance = Operation{
		Name:  "GetBalance",
		Query: `query GetBalance($owner: String!) { balance(owner: $owner) }`,
	}

	OpUserBets = Operation{
		Name:  "GetUserBets",
		Query: `query GetUserBets($owner: String!) { user_bets(owner: $owner) {` + betFields + ` } }`,
	}

	OpMarketBets = Operation{
		Name:  "GetMarketBets",
		Query: `query GetMarketBets($marketId: Int!) { market_bets(market_id: $marketId) {` + betFields + ` } }`,
	}

	OpCalculatePayout = Operation{
		Name: "CalculatePayout",
		Query: `query CalculatePayout($marketId: Int!, $optionId: Int!, $amount: Int!) {
	calculate_payout(market_id: $marketId, option_id: $optionId, amount: $amount) {
		odds
		potential_payout
		fee_rate
	}
}`,
	}

	OpTotalVolume = Operation{
		Name:  "GetTotalVolume",
		Query: `query GetTotalVolume { total_volume }`,
	}

	OpProtocolFees = Operation{
		Name:  "GetProtocolFees",
		Query: `query GetProtocolFees { protocol_fees }`,
	}

	OpFeeRate = Operation{
		Name:  "GetFeeRate",
		Query: `query GetFeeRate { feeRate }`,
	}
)

// Mutations.
var (
	OpCreateMarket = Operation{
		Name: "CreateMarket",
		Query: `mutation CreateMarket($matchId: String!, $marketType: String!, $title: String!, $options: [String!]!, $locksAt: Int!) {
	createMarket(matchId: $matchId, marketType: $marketType, title: $title, options: $options, locksAt: $locksAt)
}`,
	}

	OpPlaceBet = Operation{
		Name:  "PlaceBet",
		Query: `mutation PlaceBet($marketId: Int!, $optionId: Int!, $amount: Int!) { placeBet(marketId: $marketId, optionId: $optionId, amount: $amount) }`,
	}

	OpLockMarket = Operation{
		Name:  "LockMarket",
		Query: `mutation LockMarket($marketId: Int!) { lockMarket(marketId: $marketId) }`,
	}

	OpResolveMarket = Operation{
		Name:  "ResolveMarket",
		Query: `mutation ResolveMarket($marketId: Int!, $winningOption: Int!) { resolveMarket(marketId: $marketId, winningOption: $winningOption) }`,
	}

	OpCancelMarket = Operation{
		Name:  "CancelMarket",
		Query: `mutation CancelMarket($marketId: Int!) { cancelMarket(marketId: $marketId) }`,
	}

	OpClaimWinnings = Operation{
		Name:  "ClaimWinnings",
		Query: `mutation ClaimWinnings($betId: Int!) { claimWinnings(betId: $betId) }`,
	}

	OpDeposit = Operation{
		Name:  "Deposit",
		Query: `mutation Deposit($amount: Int!) { deposit(amount: $amount) }`,
	}

	OpWithdraw = Operation{
		Name:  "Withdraw",
		Query: `mutation Withdraw($amount: Int!) { withdraw(amount: $amount) }`,
	}
)
