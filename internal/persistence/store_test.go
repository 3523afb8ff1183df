package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/pkg/db"
)

func setupStore(t *testing.T) (*Store, *db.Database) {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))

	writer := NewBatchWriter(database.DB, 100, time.Hour) // flush manually in tests
	t.Cleanup(func() { writer.Close() })

	return NewStore(database.Queries(), writer), database
}

func sampleState() domain.State {
	return domain.State{
		Balances: map[string]float64{"USD": 9000, "BTC": 1},
		Transactions: []domain.Transaction{
			{ID: "tx1", Kind: domain.TxBuy, Market: "BTC/USD", Amount: 1, Price: 1000, Total: 1000, Fee: 0.5, Time: time.Now()},
		},
		Timezone: "UTC",
	}
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	store.HandleState(events.StatePayload{UserID: "alice", State: sampleState()})
	require.NoError(t, store.Flush())

	st, found, err := store.LoadState(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 9000.0, st.Balances["USD"])
	require.Len(t, st.Transactions, 1)
	require.Equal(t, "UTC", st.Timezone)
}

func TestStoreMissingUser(t *testing.T) {
	store, _ := setupStore(t)

	_, found, err := store.LoadState(context.Background(), "nobody")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreCorruptSnapshotStartsFresh(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()

	require.NoError(t, database.Queries().SaveSnapshot(ctx, "alice", "{not json"))

	_, found, err := store.LoadState(ctx, "alice")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreWritesJournalRowsOnce(t *testing.T) {
	store, database := setupStore(t)
	ctx := context.Background()

	st := sampleState()
	payload := events.StatePayload{UserID: "alice", State: st}

	// The same state arriving twice must not duplicate journal rows.
	store.HandleState(payload)
	store.HandleState(payload)

	st.Transactions = append(st.Transactions, domain.Transaction{
		ID: "tx2", Kind: domain.TxLiquidation, Market: "BTC/USD",
		Amount: 2, Price: 500, Total: 1000, Time: time.Now(),
		Close: &domain.CloseDetail{Leverage: 10, PnL: -100},
	})
	store.HandleState(events.StatePayload{UserID: "alice", State: st})
	require.NoError(t, store.Flush())

	rows, err := database.Queries().GetTransactionsByUser(ctx, "alice", 100)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	n, err := database.Queries().CountTransactionsByUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestStoreRunConsumesBus(t *testing.T) {
	store, database := setupStore(t)
	bus := events.NewBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, bus)
		close(done)
	}()

	// Give the subscriber a moment to register before publishing.
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.EventStateChanged, events.StatePayload{UserID: "bob", State: sampleState()})

	require.Eventually(t, func() bool {
		store.Flush()
		_, err := database.Queries().LoadSnapshot(context.Background(), "bob")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}
