package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rickgao/livepredict/internal/config"
	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/matchfeed"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or TOML config file (optional)")
	owner := flag.String("owner", "", "account to read balance and bets for")
	matchID := flag.String("match", "", "match id to list markets for (e.g. ps-42)")
	feed := flag.Bool("feed", false, "also probe the match feed")
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	client := ledger.NewClient(
		cfg.Ledger.Endpoint,
		cfg.Ledger.ApplicationID,
		cfg.Ledger.ChainID,
		ledger.WithTimeout(cfg.Ledger.Timeout),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("Ledger: %s\n", client.URL())

	// Test 1: Active markets
	fmt.Println("\n=== Testing ActiveMarkets ===")
	markets, err := client.GetActiveMarkets(ctx)
	if err != nil {
		fail("GetActiveMarkets", err)
	}
	fmt.Printf("Fetched %d active markets\n", len(markets))
	for i, m := range markets {
		if i >= 5 {
			break
		}
		fmt.Printf("  %d. #%d %s (match %s, status %s, pool %d)\n", i+1, m.ID, m.Title, m.MatchID, m.Status, m.TotalPool())
	}

	// Test 2: Single market and its bets
	if len(markets) > 0 {
		id := markets[0].ID
		fmt.Printf("\n=== Testing Market (%d) ===\n", id)
		m, err := client.GetMarket(ctx, id)
		if err != nil {
			fail("GetMarket", err)
		}
		for _, o := range m.Options {
			fmt.Printf("  Option %d %q: pool %d, odds %s\n", o.ID, o.Label, o.Pool, m.ImpliedOdds(o.ID).StringFixed(2))
		}

		bets, err := client.GetMarketBets(ctx, id)
		if err != nil {
			fail("GetMarketBets", err)
		}
		fmt.Printf("Bets on market: %d\n", len(bets))

		if len(m.Options) > 0 {
			p, err := client.CalculatePayout(ctx, id, m.Options[0].ID, 100)
			if err != nil {
				fail("CalculatePayout", err)
			}
			fmt.Printf("Payout preview for 100 on option %d: %.2f (odds %.4f, fee %.4f)\n",
				m.Options[0].ID, p.PotentialPayout, p.Odds, p.FeeRate)
		}
	}

	// Test 3: Protocol stats
	fmt.Println("\n=== Testing Stats ===")
	volume, err := client.GetTotalVolume(ctx)
	if err != nil {
		fail("GetTotalVolume", err)
	}
	fees, err := client.GetProtocolFees(ctx)
	if err != nil {
		fail("GetProtocolFees", err)
	}
	rate, err := client.GetFeeRate(ctx)
	if err != nil {
		fail("GetFeeRate", err)
	}
	fmt.Printf("Total volume: %d, protocol fees: %d, fee rate: %.4f\n", volume, fees, rate)

	// Test 4: Account
	if *owner != "" {
		fmt.Printf("\n=== Testing Account (%s) ===\n", *owner)
		balance, err := client.GetBalance(ctx, *owner)
		if err != nil {
			fail("GetBalance", err)
		}
		bets, err := client.GetUserBets(ctx, *owner)
		if err != nil {
			fail("GetUserBets", err)
		}
		fmt.Printf("Balance: %d, bets: %d\n", balance, len(bets))
	}

	// Test 5: Markets of a match
	if *matchID != "" {
		fmt.Printf("\n=== Testing MarketsByMatch (%s) ===\n", *matchID)
		byMatch, err := client.GetMarketsByMatch(ctx, *matchID)
		if err != nil {
			fail("GetMarketsByMatch", err)
		}
		fmt.Printf("Markets for match: %d\n", len(byMatch))
	}

	// Test 6: Match feed
	if *feed {
		fmt.Println("\n=== Testing Match Feed ===")
		fc := matchfeed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Token, matchfeed.WithTimeout(cfg.Feed.Timeout))
		matches, err := fc.ListMatches(ctx, cfg.Feed.Game)
		if err != nil {
			log.Fatalf("ListMatches failed: %v", err)
		}
		fmt.Printf("Fetched %d matches\n", len(matches))
		for i, m := range matches {
			if i >= 5 {
				break
			}
			fmt.Printf("  %d. %s %s vs %s (%s)\n", i+1, m.ID, m.TeamA.Name, m.TeamB.Name, m.Status)
		}
	}

	fmt.Println("\n=== All ledger probes passed! ===")
}

// fail prints the error with its guidance and exits.
func fail(op string, err error) {
	fmt.Fprintf(os.Stderr, "%s failed [%s]: %v\n", op, ledger.Classify(err), err)
	if hint := ledger.Guidance(err); hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
	os.Exit(1)
}
