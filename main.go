package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paperdesk/internal/api"
	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/internal/market"
	"paperdesk/internal/persistence"
	"paperdesk/internal/session"
	"paperdesk/pkg/cache"
	"paperdesk/pkg/config"
	"paperdesk/pkg/db"
	"paperdesk/pkg/market/upbit"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting paperdesk on port %s (db: %s)", cfg.Port, cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	// Persistence: batch writer coalesces snapshot writes per state change.
	writer := persistence.NewBatchWriter(database.DB, cfg.BatchMaxSize,
		time.Duration(cfg.BatchFlushMs)*time.Millisecond)
	store := persistence.NewStore(database.Queries(), writer)
	go store.Run(ctx, bus)

	// Per-market settings (start prices for the mock feed).
	markets := cfg.Markets
	startPrices := map[string]float64{}
	if cfg.MarketsPath != "" {
		entries, err := config.LoadMarkets(cfg.MarketsPath)
		if err != nil {
			log.Printf("markets file load failed, using MARKETS env: %v", err)
		} else {
			markets = markets[:0]
			for _, e := range entries {
				markets = append(markets, e.Symbol)
				if e.StartPrice > 0 {
					startPrices[e.Symbol] = e.StartPrice
				}
			}
		}
	}

	// Sessions restore persisted state on first touch.
	sessionCfg := session.Config{
		SeedCurrency:         cfg.SeedCurrency,
		SeedBalance:          cfg.SeedBalance,
		ScanActiveMarketOnly: cfg.ScanActiveMarketOnly,
	}
	sessions := session.NewManager(func(userID string) (*session.Session, error) {
		sess := session.New(userID, sessionCfg, bus)
		st, found, err := store.LoadState(ctx, userID)
		if err != nil {
			return nil, err
		}
		if found {
			sess.Restore(st)
		}
		return sess, nil
	})

	// Price feed (mock first, real later)
	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Bus:         bus,
			Markets:     markets,
			StartPrices: startPrices,
			Interval:    time.Second,
		}
		mock.Start(ctx)
		log.Printf("mock feed started for %v", markets)
	} else {
		stream := upbit.NewStreamClient(cfg.FeedURL)
		go stream.Stream(ctx, markets, func(t upbit.Ticker) {
			bus.Publish(events.EventPriceTick, domain.Tick{
				Market:     t.Market(),
				Price:      t.TradePrice,
				ChangeRate: t.ChangeRate,
				HighPrice:  t.HighPrice,
				LowPrice:   t.LowPrice,
				Volume:     t.AccVolume,
			})
		})
		log.Printf("live feed started for %v", markets)
	}

	// Tick fan-out into the process-wide price cache and live sessions.
	ticks := cache.NewShardedTickCache()
	tickSub, unsubTicks := bus.Subscribe(events.EventPriceTick, 256)
	defer unsubTicks()
	go func() {
		for msg := range tickSub {
			tick, ok := msg.(domain.Tick)
			if !ok {
				continue
			}
			ticks.Set(tick)
			sessions.Broadcast(tick)
		}
	}()

	// Drop idle sessions; their state stays on disk.
	if cfg.SessionIdleMinutes > 0 {
		ttl := time.Duration(cfg.SessionIdleMinutes) * time.Minute
		go func() {
			ticker := time.NewTicker(ttl / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					sessions.CleanupIdle(ttl)
				}
			}
		}()
	}

	// API
	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}
	server := api.NewServer(bus, sessions, ticks, api.SystemMeta{
		Markets:     markets,
		UseMockFeed: cfg.UseMockFeed,
		Version:     buildVersion,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	cancel()
	if err := writer.Close(); err != nil {
		log.Printf("final flush failed: %v", err)
	}
}
