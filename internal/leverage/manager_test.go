package leverage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/internal/fees"
	"paperdesk/internal/journal"
	"paperdesk/internal/ledger"
	"paperdesk/internal/market"
)

func newTestManager(t *testing.T, usd float64) (*Manager, *ledger.Ledger, *market.Table, *journal.Journal) {
	t.Helper()
	l := ledger.NewSeeded("USD", usd)
	prices := market.NewTable()
	j := journal.New()
	m := NewManager("u1", l, j, prices, nil)
	return m, l, prices, j
}

func TestOpenStartsDownTheOpeningFee(t *testing.T) {
	m, l, prices, _ := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)

	p, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)

	openingFee := 100 * 2 * fees.TakerRate
	assert.InDelta(t, 200, p.Size, 1e-9)
	assert.InDelta(t, 100, p.EntryPrice, 1e-9)
	assert.InDelta(t, -openingFee, p.PnL, 1e-9)
	assert.InDelta(t, 10_000-100-openingFee, l.Balance("USD"), 1e-9)
}

func TestOpenRejections(t *testing.T) {
	m, l, prices, _ := newTestManager(t, 50)

	_, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	prices.Update("BTC/USD", 100)
	_, err = m.Open("BTC/USD", domain.PositionLong, 100, 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = m.Open("BTC/USD", domain.PositionLong, -5, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = m.Open("BTC/USD", domain.PositionLong, 10, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.InDelta(t, 50, l.Balance("USD"), 1e-9)
	assert.Empty(t, m.Positions())
}

// Averaging: 200 notional @ 100 plus 200 notional @ 200 weighs out to an
// entry of 150.
func TestAveragingVolumeWeightsEntry(t *testing.T) {
	m, _, prices, _ := newTestManager(t, 10_000)

	prices.Update("BTC/USD", 100)
	first, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)

	prices.Update("BTC/USD", 200)
	averaged, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)

	assert.Equal(t, first.ID, averaged.ID, "same side+leverage+market must merge")
	assert.InDelta(t, 400, averaged.Size, 1e-9)
	assert.InDelta(t, 150, averaged.EntryPrice, 1e-9)
	assert.InDelta(t, 200, averaged.Margin, 1e-9)
	require.Len(t, m.Positions(), 1)

	// A different leverage opens a separate position.
	_, err = m.Open("BTC/USD", domain.PositionLong, 100, 3)
	require.NoError(t, err)
	assert.Len(t, m.Positions(), 2)
}

// Liquidation boundary: a 10x long at 100 liquidates exactly at
// 100*(1 - 0.1 + 0.005 + takerRate); one cent above must not trigger.
func TestLiquidationBoundaryLong(t *testing.T) {
	m, _, prices, _ := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)

	p, err := m.Open("BTC/USD", domain.PositionLong, 100, 10)
	require.NoError(t, err)

	liq := 100 * (1 - 0.1 + MaintenanceMarginRate + fees.TakerRate)
	assert.InDelta(t, liq, p.LiquidationPrice, 1e-9)

	assert.Empty(t, m.MarkPrice("BTC/USD", liq+0.01))
	require.Len(t, m.Positions(), 1)

	liquidated := m.MarkPrice("BTC/USD", liq)
	require.Len(t, liquidated, 1)
	assert.Equal(t, domain.TxLiquidation, liquidated[0].Kind)
	assert.Empty(t, m.Positions())
}

func TestLiquidationBoundaryShort(t *testing.T) {
	m, _, prices, _ := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)

	p, err := m.Open("BTC/USD", domain.PositionShort, 100, 10)
	require.NoError(t, err)

	liq := 100 * (1 + 0.1 + MaintenanceMarginRate + fees.TakerRate)
	assert.InDelta(t, liq, p.LiquidationPrice, 1e-9)

	assert.Empty(t, m.MarkPrice("BTC/USD", liq-0.01))
	liquidated := m.MarkPrice("BTC/USD", liq)
	require.Len(t, liquidated, 1)
}

// The entire margin is forfeited on liquidation, regardless of the
// computed unrealized pnl at the liquidation tick.
func TestLiquidationForfeitsExactlyMargin(t *testing.T) {
	m, l, prices, _ := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)

	_, err := m.Open("BTC/USD", domain.PositionLong, 100, 10)
	require.NoError(t, err)
	before := l.Balance("USD")

	liquidated := m.MarkPrice("BTC/USD", 50) // far through the trigger
	require.Len(t, liquidated, 1)

	assert.InDelta(t, before-100, l.Balance("USD"), 1e-9)
	require.NotNil(t, liquidated[0].Close)
	assert.InDelta(t, -100, liquidated[0].Close.PnL, 1e-9)

	// A second tick at the same price is a no-op.
	assert.Empty(t, m.MarkPrice("BTC/USD", 50))
}

// Closing 50% halves size, margin and opening fee, realizes half the
// proportional opening fee plus a closing fee on half the notional.
func TestPartialCloseScaling(t *testing.T) {
	m, l, prices, _ := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)

	p, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)
	openingFee := p.OpeningFee
	before := l.Balance("USD")

	tx, err := m.Close(p.ID, 50)
	require.NoError(t, err)
	require.NotNil(t, tx.Close)

	halfOpen := openingFee / 2
	closingFee := 200 * 0.5 * fees.TakerRate
	wantPnL := 0 - halfOpen - closingFee // flat price, pure fees
	assert.InDelta(t, wantPnL, tx.Close.PnL, 1e-9)
	assert.InDelta(t, halfOpen, tx.Close.OpeningFee, 1e-9)
	assert.InDelta(t, closingFee, tx.Close.ClosingFee, 1e-9)
	assert.InDelta(t, before+50+wantPnL, l.Balance("USD"), 1e-9)

	remaining, ok := m.Position(p.ID)
	require.True(t, ok)
	assert.InDelta(t, 100, remaining.Size, 1e-9)
	assert.InDelta(t, 50, remaining.Margin, 1e-9)
	assert.InDelta(t, halfOpen, remaining.OpeningFee, 1e-9)
}

func TestFullCloseRemovesPosition(t *testing.T) {
	m, l, prices, j := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)

	p, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)

	prices.Update("BTC/USD", 110)
	m.MarkPrice("BTC/USD", 110)

	tx, err := m.Close(p.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.TxCloseLong, tx.Kind)

	// rawPnl = 10% of 200 notional = 20.
	assert.InDelta(t, 20, tx.Close.RawPnL, 1e-9)
	assert.Empty(t, m.Positions())
	assert.Equal(t, 1, j.Len())
	assert.Greater(t, l.Balance("USD"), 10_000-1.0, "profitable close must come back above the entry cost")

	_, err = m.Close(p.ID, 100)
	assert.ErrorIs(t, err, domain.ErrUnknownPosition)
}

func TestCloseRejectsWhileProcessing(t *testing.T) {
	m, _, prices, _ := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)

	p, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)

	require.True(t, m.tryAcquireClose(p.ID))
	_, err = m.Close(p.ID, 100)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessing)
	m.releaseClose(p.ID)

	// The lock is released on every exit path, so the close now proceeds.
	_, err = m.Close(p.ID, 100)
	assert.NoError(t, err)
}

func TestCloseAllSweepsSequentially(t *testing.T) {
	m, _, prices, _ := newTestManager(t, 10_000)
	prices.Update("BTC/USD", 100)
	prices.Update("ETH/USD", 50)

	_, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)
	_, err = m.Open("ETH/USD", domain.PositionShort, 100, 3)
	require.NoError(t, err)

	closed := m.CloseAll()
	assert.Len(t, closed, 2)
	assert.Empty(t, m.Positions())
}

func TestMarginCallWarnsOncePerCooldown(t *testing.T) {
	bus := events.NewBus()
	l := ledger.NewSeeded("USD", 10_000)
	prices := market.NewTable()
	m := NewManager("u1", l, journal.New(), prices, bus)

	now := time.Unix(1_700_000_000, 0)
	m.SetClock(func() time.Time { return now })

	warnings, unsub := bus.Subscribe(events.EventMarginCall, 10)
	defer unsub()

	prices.Update("BTC/USD", 100)
	_, err := m.Open("BTC/USD", domain.PositionLong, 100, 2)
	require.NoError(t, err)

	// 51.0 sits between the margin call threshold and the liquidation
	// trigger for a 2x long from 100.
	m.MarkPrice("BTC/USD", 51.0)
	m.MarkPrice("BTC/USD", 50.9)
	assert.Len(t, drain(warnings), 1, "second tick within cooldown must stay silent")

	now = now.Add(MarginCallCooldown + time.Second)
	m.MarkPrice("BTC/USD", 50.9)
	assert.Len(t, drain(warnings), 1, "warning re-arms after the cooldown")
}

func drain(ch <-chan any) []any {
	var out []any
	for {
		select {
		case v := <-ch:
			out = append(out, v)
		default:
			return out
		}
	}
}
