package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/internal/session"
	"paperdesk/pkg/db"
)

// BenchmarkTransactionInsert benchmarks concurrent journal row inserts.
func BenchmarkTransactionInsert(b *testing.B) {
	database, err := db.New(":memory:")
	if err != nil {
		b.Fatalf("Failed to create database: %v", err)
	}
	defer database.Close()

	if err := db.ApplyMigrations(database); err != nil {
		b.Fatalf("Failed to apply migrations: %v", err)
	}

	q := database.Queries()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		userID := fmt.Sprintf("user-%d", i%100) // 100 different users
		row := db.TransactionRow{
			ID:        fmt.Sprintf("tx-%d", i),
			UserID:    userID,
			Kind:      "buy",
			Market:    "BTC/USD",
			Amount:    0.01,
			Price:     50_000,
			Total:     500,
			Fee:       0.25,
			CreatedAt: time.Now(),
		}
		if err := q.InsertTransaction(ctx, row); err != nil {
			b.Errorf("InsertTransaction failed: %v", err)
		}
	}
}

// BenchmarkSessionManagerGetOrCreate benchmarks concurrent session lookup.
func BenchmarkSessionManagerGetOrCreate(b *testing.B) {
	bus := events.NewBus()
	cfg := session.Config{SeedCurrency: "USD", SeedBalance: 10_000}
	sessions := session.NewManager(func(userID string) (*session.Session, error) {
		return session.New(userID, cfg, bus), nil
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			userID := fmt.Sprintf("user-%d", i%100)
			_, _ = sessions.GetOrCreate(userID)
			i++
		}
	})
}

// BenchmarkBroadcast benchmarks tick fan-out across 100 live sessions.
func BenchmarkBroadcast(b *testing.B) {
	bus := events.NewBus()
	cfg := session.Config{SeedCurrency: "USD", SeedBalance: 10_000}
	sessions := session.NewManager(func(userID string) (*session.Session, error) {
		return session.New(userID, cfg, bus), nil
	})
	for u := 0; u < 100; u++ {
		_, _ = sessions.GetOrCreate(fmt.Sprintf("user-%d", u))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sessions.Broadcast(domain.Tick{Market: "BTC/USD", Price: 50_000 + float64(i%100)})
	}
}

// TestConcurrentMultiUserLoad drives commands and ticks into many sessions
// at once and verifies per-user accounting never tears.
func TestConcurrentMultiUserLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	bus := events.NewBus()
	cfg := session.Config{SeedCurrency: "USD", SeedBalance: 1_000_000}
	sessions := session.NewManager(func(userID string) (*session.Session, error) {
		return session.New(userID, cfg, bus), nil
	})

	const numUsers = 20
	const ordersPerUser = 50

	// Sessions must exist and have a price before the workers start.
	for u := 0; u < numUsers; u++ {
		if _, err := sessions.GetOrCreate(fmt.Sprintf("user-%d", u)); err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
	}
	sessions.Broadcast(domain.Tick{Market: "BTC/USD", Price: 50_000})

	var wg sync.WaitGroup
	var successCount int64
	var errorCount int64
	startTime := time.Now()

	// Tick stream runs concurrently with the command load.
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		price := 50_000.0
		for {
			select {
			case <-stop:
				return
			default:
			}
			price += 1
			sessions.Broadcast(domain.Tick{Market: "BTC/USD", Price: price})
			time.Sleep(time.Millisecond)
		}
	}()

	for u := 0; u < numUsers; u++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			sess := sessions.Get(userID)
			for i := 0; i < ordersPerUser; i++ {
				if _, err := sess.MarketBuy("BTC/USD", 0.001); err != nil {
					atomic.AddInt64(&errorCount, 1)
					continue
				}
				atomic.AddInt64(&successCount, 1)
			}
		}(fmt.Sprintf("user-%d", u))
	}

	// Wait for the command workers, then stop the tick stream.
	total := int64(numUsers * ordersPerUser)
	deadline := time.Now().Add(30 * time.Second)
	for atomic.LoadInt64(&successCount)+atomic.LoadInt64(&errorCount) < total {
		if time.Now().After(deadline) {
			t.Fatalf("stress run stalled at %d/%d orders",
				atomic.LoadInt64(&successCount)+atomic.LoadInt64(&errorCount), total)
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(stop)
	wg.Wait()

	elapsed := time.Since(startTime)
	t.Logf("Processed %d orders (%d failed) across %d users in %v",
		successCount, errorCount, numUsers, elapsed)

	if errorCount != 0 {
		t.Errorf("expected no failed orders, got %d", errorCount)
	}

	// Every session must balance: journal length matches fills, and funds
	// never go negative.
	for u := 0; u < numUsers; u++ {
		snap := sessions.Get(fmt.Sprintf("user-%d", u)).Snapshot()
		if got := len(snap.Transactions); got != ordersPerUser {
			t.Errorf("user-%d journal length %d, want %d", u, got, ordersPerUser)
		}
		for cur, bal := range snap.Balances {
			if bal < 0 {
				t.Errorf("user-%d has negative %s balance %.8f", u, cur, bal)
			}
		}
		if snap.Balances["BTC"] <= 0 {
			t.Errorf("user-%d bought nothing", u)
		}
	}
}
