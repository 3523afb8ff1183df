package session

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SeedBalance = 10_000
	return New("u1", cfg, events.NewBus())
}

func TestTickThenMarketBuy(t *testing.T) {
	s := newTestSession(t)

	if ok := s.HandleTick(domain.Tick{Market: "BTC/USD", Price: 100}); !ok {
		t.Fatal("valid tick rejected")
	}

	tx, err := s.MarketBuy("BTC/USD", 10)
	require.NoError(t, err)
	require.Equal(t, domain.TxBuy, tx.Kind)

	st := s.Snapshot()
	if got := st.Balances["BTC"]; got != 10 {
		t.Errorf("BTC balance = %v, want 10", got)
	}
	// 10 000 - (1000 notional + 0.5 taker fee)
	if got := st.Balances["USD"]; math.Abs(got-8999.5) > 1e-9 {
		t.Errorf("USD balance = %v, want 8999.5", got)
	}
}

func TestInvalidTicksDropped(t *testing.T) {
	s := newTestSession(t)

	cases := []domain.Tick{
		{Market: "", Price: 100},
		{Market: "BTC/USD", Price: 0},
		{Market: "BTC/USD", Price: -5},
		{Market: "BTC/USD", Price: math.NaN()},
		{Market: "BTC/USD", Price: math.Inf(1)},
	}
	for _, tc := range cases {
		if s.HandleTick(tc) {
			t.Errorf("tick %+v accepted, want drop", tc)
		}
	}
	if _, ok := s.Price("BTC/USD"); ok {
		t.Error("price table polluted by invalid tick")
	}
}

func TestScanActiveMarketOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeedBalance = 10_000
	cfg.ScanActiveMarketOnly = true
	s := New("u1", cfg, events.NewBus())

	s.HandleTick(domain.Tick{Market: "BTC/USD", Price: 100})
	_, err := s.PlaceLimit("BTC/USD", domain.OrderBuy, 1, 90)
	require.NoError(t, err)

	// No active market set: the crossing tick must leave the order pending.
	s.HandleTick(domain.Tick{Market: "BTC/USD", Price: 85})
	require.Len(t, s.Snapshot().PendingOrders, 1)

	s.SetActiveMarket("BTC/USD")
	s.HandleTick(domain.Tick{Market: "BTC/USD", Price: 85})
	require.Empty(t, s.Snapshot().PendingOrders)
}

func TestScanAllMarketsByDefault(t *testing.T) {
	s := newTestSession(t)

	s.HandleTick(domain.Tick{Market: "ETH/USD", Price: 50})
	_, err := s.PlaceLimit("ETH/USD", domain.OrderBuy, 1, 40)
	require.NoError(t, err)

	// Active market never set; default policy still fills the order.
	s.HandleTick(domain.Tick{Market: "ETH/USD", Price: 39})
	require.Empty(t, s.Snapshot().PendingOrders)
}

func TestLiquidationOnTick(t *testing.T) {
	s := newTestSession(t)
	s.HandleTick(domain.Tick{Market: "BTC/USD", Price: 100})

	p, err := s.OpenPosition("BTC/USD", domain.PositionLong, 100, 10)
	require.NoError(t, err)

	s.HandleTick(domain.Tick{Market: "BTC/USD", Price: p.LiquidationPrice - 0.01})
	require.Empty(t, s.Snapshot().LeveragePositions)

	txs := s.Snapshot().Transactions
	require.NotEmpty(t, txs)
	require.Equal(t, domain.TxLiquidation, txs[0].Kind)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := newTestSession(t)
	s.HandleTick(domain.Tick{Market: "BTC/USD", Price: 100})
	_, err := s.MarketBuy("BTC/USD", 5)
	require.NoError(t, err)
	_, err = s.PlaceLimit("BTC/USD", domain.OrderSell, 2, 150)
	require.NoError(t, err)
	_, err = s.OpenPosition("BTC/USD", domain.PositionShort, 50, 3)
	require.NoError(t, err)

	st := s.Snapshot()

	s2 := newTestSession(t)
	s2.Restore(st)
	got := s2.Snapshot()

	require.Equal(t, st.Balances, got.Balances)
	require.Len(t, got.Transactions, len(st.Transactions))
	require.Len(t, got.PendingOrders, 1)
	require.Len(t, got.LeveragePositions, 1)
	require.Equal(t, st.Timezone, got.Timezone)
}

func TestRestoreToleratesPartialState(t *testing.T) {
	s := newTestSession(t)

	// Nothing present at all.
	s.Restore(domain.State{})
	if got := s.Snapshot().Balances["USD"]; got != 10_000 {
		t.Errorf("seed balance lost on empty restore: %v", got)
	}

	// Corrupt numbers are coerced or dropped, never propagated.
	s.Restore(domain.State{
		Balances: map[string]float64{"USD": math.NaN(), "BTC": -3},
		Transactions: []domain.Transaction{
			{ID: "t1", Kind: domain.TxBuy, Market: "BTC/USD", Amount: math.Inf(1), Price: 100},
		},
		PendingOrders: []domain.PendingOrder{
			{ID: "o1", Side: domain.OrderBuy, Market: "BTC/USD", Amount: -1, LimitPrice: 90},
		},
		Timezone: "Asia/Seoul",
	})

	st := s.Snapshot()
	if st.Balances["USD"] != 0 || st.Balances["BTC"] != 0 {
		t.Errorf("corrupt balances not coerced: %v", st.Balances)
	}
	require.Empty(t, st.Transactions)
	require.Empty(t, st.PendingOrders)
	require.Equal(t, "Asia/Seoul", st.Timezone)
}

func TestStateChangePublishedOnTrade(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventStateChanged, 8)
	defer unsub()

	cfg := DefaultConfig()
	cfg.SeedBalance = 10_000
	s := New("u1", cfg, bus)

	s.HandleTick(domain.Tick{Market: "BTC/USD", Price: 100})
	_, err := s.MarketBuy("BTC/USD", 1)
	require.NoError(t, err)

	select {
	case msg := <-ch:
		payload, ok := msg.(events.StatePayload)
		require.True(t, ok)
		require.Equal(t, "u1", payload.UserID)
		require.Contains(t, payload.State.Balances, "BTC")
	case <-time.After(time.Second):
		t.Fatal("no state change event after trade")
	}
}

func TestManagerLifecycle(t *testing.T) {
	created := 0
	m := NewManager(func(userID string) (*Session, error) {
		created++
		return New(userID, DefaultConfig(), events.NewBus()), nil
	})

	s1, err := m.GetOrCreate("alice")
	require.NoError(t, err)
	s2, err := m.GetOrCreate("alice")
	require.NoError(t, err)
	if s1 != s2 {
		t.Error("second GetOrCreate returned a different session")
	}
	require.Equal(t, 1, created)

	_, err = m.GetOrCreate("bob")
	require.NoError(t, err)
	require.Equal(t, 2, m.UserCount())

	m.Remove("bob")
	require.Equal(t, 1, m.UserCount())
	require.Nil(t, m.Get("bob"))
}

func TestManagerBroadcast(t *testing.T) {
	m := NewManager(func(userID string) (*Session, error) {
		return New(userID, DefaultConfig(), events.NewBus()), nil
	})
	a, _ := m.GetOrCreate("alice")
	b, _ := m.GetOrCreate("bob")

	m.Broadcast(domain.Tick{Market: "BTC/USD", Price: 123})

	for name, s := range map[string]*Session{"alice": a, "bob": b} {
		if p, ok := s.Price("BTC/USD"); !ok || p != 123 {
			t.Errorf("%s did not receive broadcast tick: %v %v", name, p, ok)
		}
	}
}

func TestManagerCleanupIdle(t *testing.T) {
	m := NewManager(func(userID string) (*Session, error) {
		return New(userID, DefaultConfig(), events.NewBus()), nil
	})
	m.GetOrCreate("alice")

	m.lastSeen["alice"] = time.Now().Add(-time.Hour)
	m.CleanupIdle(30 * time.Minute)
	require.Equal(t, 0, m.UserCount())

	m.GetOrCreate("alice")
	m.CleanupIdle(0) // disabled
	require.Equal(t, 1, m.UserCount())
}
