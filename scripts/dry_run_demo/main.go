package main

import (
	"log"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/internal/session"
)

// dry_run_demo walks a single in-memory session through a few realistic
// trading flows. It does not touch the network or the database.
//
// Usage:
//   go run ./scripts/dry_run_demo
//
// It will:
//   1) Market BUY then SELL on the same market.
//   2) Place a limit order and fill it with a crossing tick.
//   3) Open a leveraged long and ride it into liquidation.

func main() {
	log.Println("=== paperdesk demo starting ===")

	bus := events.NewBus()
	sess := session.New("demo", session.Config{SeedCurrency: "USD", SeedBalance: 10_000}, bus)
	sess.HandleTick(domain.Tick{Market: "BTC/USD", Price: 100})

	log.Println("[SCENARIO 1] Market BUY then SELL on BTC/USD")
	if tx, err := sess.MarketBuy("BTC/USD", 10); err != nil {
		log.Fatalf("market buy: %v", err)
	} else {
		log.Printf("bought %.4f BTC for %.2f USD (fee %.4f)", tx.Amount, tx.Total, tx.Fee)
	}
	if tx, err := sess.MarketSell("BTC/USD", 5); err != nil {
		log.Fatalf("market sell: %v", err)
	} else {
		log.Printf("sold %.4f BTC for %.2f USD (fee %.4f)", tx.Amount, tx.Total, tx.Fee)
	}

	log.Println("[SCENARIO 2] Limit BUY filled by a crossing tick")
	order, err := sess.PlaceLimit("BTC/USD", domain.OrderBuy, 2, 90)
	if err != nil {
		log.Fatalf("place limit: %v", err)
	}
	log.Printf("placed limit buy %s: %.4f BTC @ %.2f", order.ID, order.Amount, order.LimitPrice)
	sess.HandleTick(domain.Tick{Market: "BTC/USD", Price: 89})
	if n := len(sess.Snapshot().PendingOrders); n == 0 {
		log.Println("limit order filled")
	} else {
		log.Printf("limit order still pending (%d open)", n)
	}

	log.Println("[SCENARIO 3] 10x long into liquidation")
	pos, err := sess.OpenPosition("BTC/USD", domain.PositionLong, 500, 10)
	if err != nil {
		log.Fatalf("open position: %v", err)
	}
	log.Printf("opened long: size=%.2f entry=%.2f liq=%.2f", pos.Size, pos.EntryPrice, pos.LiquidationPrice)
	sess.HandleTick(domain.Tick{Market: "BTC/USD", Price: pos.LiquidationPrice * 0.99})

	snap := sess.Snapshot()
	log.Printf("final balances: %v", snap.Balances)
	log.Printf("journal entries: %d (latest: %s)", len(snap.Transactions), snap.Transactions[0].Kind)
	log.Println("=== demo complete ===")
}
