// livewatch connects to a running livepredict service and streams topic updates to console.
// Usage: go run ./cmd/livewatch --url ws://localhost:8080/ws --topics activeMarkets,stats,wallet
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/livepredict/internal/model"
)

// message is a frame pushed by the service.
type message struct {
	Type   string          `json:"type"`
	Topic  string          `json:"topic"`
	Topics []string        `json:"topics"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
	Kind   string          `json:"kind"`
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "livepredict WebSocket URL")
	topics := flag.String("topics", "activeMarkets,stats,wallet", "comma-separated topics to watch")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, *url, nil)
	dialCancel()
	if err != nil {
		logger.Error("failed to connect", "url", *url, "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	var list []string
	for _, t := range strings.Split(*topics, ",") {
		if t = strings.TrimSpace(t); t != "" {
			list = append(list, t)
		}
	}
	if err := conn.WriteJSON(map[string]any{"action": "subscribe", "topics": list}); err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	logger.Info("streaming started - press Ctrl+C to stop", "topics", list)

	context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	})

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				logger.Error("connection lost", "error", err)
			}
			break
		}
		printMessage(msg, *verbose)
	}

	logger.Info("shutdown complete")
}

func printMessage(msg message, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Printf("[%s] %s\n", strings.ToUpper(msg.Type), data)
		return
	}

	switch msg.Type {
	case "subscribed", "unsubscribed":
		fmt.Printf("[%s] %s\n", strings.ToUpper(msg.Type), strings.Join(msg.Topics, ", "))
		return
	case "error":
		fmt.Printf("[ERROR] topic=%s kind=%s %s\n", msg.Topic, msg.Kind, msg.Error)
		return
	}

	if msg.Error != "" {
		fmt.Printf("[%s] failed kind=%s %s\n", msg.Topic, msg.Kind, msg.Error)
		return
	}

	switch kind, _, _ := strings.Cut(msg.Topic, ":"); kind {
	case "activeMarkets", "match":
		var markets []model.LedgerMarket
		if json.Unmarshal(msg.Data, &markets) == nil {
			fmt.Printf("[%s] %d markets\n", msg.Topic, len(markets))
			for _, m := range markets {
				printMarket(m)
			}
			return
		}
	case "market":
		var m model.LedgerMarket
		if json.Unmarshal(msg.Data, &m) == nil {
			fmt.Printf("[%s]\n", msg.Topic)
			printMarket(m)
			return
		}
	case "marketBets", "userBets":
		var bets []model.LedgerBet
		if json.Unmarshal(msg.Data, &bets) == nil {
			fmt.Printf("[%s] %d bets\n", msg.Topic, len(bets))
			return
		}
	case "wallet":
		var st struct {
			Phase  string            `json:"phase"`
			Wallet model.WalletState `json:"wallet"`
			Error  string            `json:"error"`
		}
		if json.Unmarshal(msg.Data, &st) == nil {
			addr := "-"
			if st.Wallet.Address != nil {
				addr = *st.Wallet.Address
			}
			fmt.Printf("[wallet] phase=%s address=%s available=%s error=%q\n",
				st.Phase, addr, st.Wallet.Balance.Available, st.Error)
			return
		}
	}

	fmt.Printf("[%s] %s\n", msg.Topic, msg.Data)
}

func printMarket(m model.LedgerMarket) {
	fmt.Printf("  #%d %s status=%s pool=%d", m.ID, m.Title, m.Status, m.TotalPool())
	for _, o := range m.Options {
		fmt.Printf(" | %s %s", o.Label, m.ImpliedOdds(o.ID).StringFixed(2))
	}
	fmt.Println()
}
