package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"paperdesk/pkg/market/upbit"
)

// feed_check connects to the live ticker stream and logs every frame, so
// the exchange connectivity can be verified without starting the server.
//
// Usage:
//   go run ./scripts/feed_check
//
// Environment:
//   FEED_URL   (default: the public upbit endpoint)
//   MARKETS    (default "BTC/USD,ETH/USD")

func main() {
	log.Println("=== feed check starting ===")

	markets := strings.Split(envOr("MARKETS", "BTC/USD,ETH/USD"), ",")
	for i := range markets {
		markets[i] = strings.TrimSpace(markets[i])
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := upbit.NewStreamClient(os.Getenv("FEED_URL"))
	tickers, cancel, err := client.SubscribeTicker(ctx, markets)
	if err != nil {
		log.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	log.Printf("subscribed to %v, waiting for frames (Ctrl-C to stop)", markets)
	count := 0
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Printf("=== feed check done: %d frames in %v ===", count, time.Since(start).Round(time.Second))
			return
		case tk, ok := <-tickers:
			if !ok {
				log.Printf("stream closed after %d frames", count)
				return
			}
			count++
			log.Printf("[%s] price=%.2f change=%.4f high=%.2f low=%.2f vol=%.4f",
				tk.Market(), tk.TradePrice, tk.ChangeRate, tk.HighPrice, tk.LowPrice, tk.AccVolume)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
