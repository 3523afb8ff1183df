package leverage

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/internal/fees"
	"paperdesk/internal/journal"
	"paperdesk/internal/ledger"
	"paperdesk/internal/market"
	"paperdesk/pkg/num"
)

// MarginCallCooldown is how long the one-shot margin call warning stays
// suppressed while the condition persists.
const MarginCallCooldown = 30 * time.Second

// Manager owns one user's leverage positions. Opens and closes settle
// through the ledger; every close, partial close and liquidation is
// journaled with a snapshot of the position economics.
type Manager struct {
	userID  string
	ledger  *ledger.Ledger
	journal *journal.Journal
	prices  *market.Table
	bus     *events.Bus

	mu        sync.Mutex
	positions []*domain.Position
	closing   map[string]bool // per-position advisory close locks

	now func() time.Time
}

// NewManager creates a leverage manager bound to one user's ledger and
// journal.
func NewManager(userID string, l *ledger.Ledger, j *journal.Journal, prices *market.Table, bus *events.Bus) *Manager {
	return &Manager{
		userID:  userID,
		ledger:  l,
		journal: j,
		prices:  prices,
		bus:     bus,
		closing: make(map[string]bool),
		now:     time.Now,
	}
}

// Open creates a new leveraged position, or averages into an existing one
// with the same side, leverage and market. Margin plus the opening fee is
// debited up front; a fresh position starts already down the cost of
// entry.
func (m *Manager) Open(mkt string, side domain.PositionSide, margin float64, leverage int) (domain.Position, error) {
	_, quote, ok := domain.SplitMarket(mkt)
	if !ok || !num.Positive(margin) || leverage < 1 {
		return domain.Position{}, fmt.Errorf("open %s %s margin=%v lev=%d: %w", side, mkt, margin, leverage, domain.ErrInvalidInput)
	}
	if side != domain.PositionLong && side != domain.PositionShort {
		return domain.Position{}, fmt.Errorf("open position side %q: %w", side, domain.ErrInvalidInput)
	}
	price, ok := m.prices.Price(mkt)
	if !ok {
		return domain.Position{}, fmt.Errorf("open %s: %w", mkt, domain.ErrPriceUnavailable)
	}

	addedSize := margin * float64(leverage)
	openingFee := fees.Amount(addedSize, fees.Taker)
	if err := m.ledger.Debit(quote, margin+openingFee); err != nil {
		return domain.Position{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Average into an identical (side, leverage, market) position if one
	// exists: volume-weighted entry, accumulated margin and opening fee.
	for _, p := range m.positions {
		if p.Market == mkt && p.Side == side && p.Leverage == leverage {
			newSize := p.Size + addedSize
			p.EntryPrice = (p.EntryPrice*p.Size + price*addedSize) / newSize
			p.Size = newSize
			p.Margin += margin
			p.OpeningFee += openingFee
			mark(p, price)
			log.Printf("leverage %s: averaged %s %s size=%.2f entry=%.2f", m.userID, side, mkt, p.Size, p.EntryPrice)
			m.publishOpened(*p)
			return *p, nil
		}
	}

	p := &domain.Position{
		ID:             uuid.NewString(),
		Side:           side,
		Market:         mkt,
		Margin:         margin,
		Leverage:       leverage,
		Size:           addedSize,
		EntryPrice:     price,
		OpeningFee:     openingFee,
		TradingFeeRate: fees.TakerRate,
		CreatedAt:      m.now(),
	}
	mark(p, price)
	m.positions = append(m.positions, p)
	log.Printf("leverage %s: opened %s %s margin=%.2f lev=%d entry=%.2f liq=%.2f",
		m.userID, side, mkt, margin, leverage, price, p.LiquidationPrice)
	m.publishOpened(*p)
	return *p, nil
}

// Close realizes percentage ∈ (0,100] of a position at the current price.
// At 100 the position is removed; otherwise size, margin and opening fee
// shrink proportionally. A close already in flight for the same id is
// rejected with ErrAlreadyProcessing and must not be retried blindly.
func (m *Manager) Close(id string, percentage float64) (domain.Transaction, error) {
	if !num.Positive(percentage) || percentage > 100 {
		return domain.Transaction{}, fmt.Errorf("close %s pct=%v: %w", id, percentage, domain.ErrInvalidInput)
	}

	if !m.tryAcquireClose(id) {
		log.Printf("leverage %s: close %s rejected, already processing", m.userID, id)
		return domain.Transaction{}, fmt.Errorf("close %s: %w", id, domain.ErrAlreadyProcessing)
	}
	defer m.releaseClose(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.findLocked(id)
	if p == nil {
		return domain.Transaction{}, fmt.Errorf("close %s: %w", id, domain.ErrUnknownPosition)
	}
	price, ok := m.prices.Price(p.Market)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("close %s %s: %w", id, p.Market, domain.ErrPriceUnavailable)
	}

	ratio := percentage / 100
	rawPnL := rawPnLAt(p, price, ratio)
	proportionalOpen := p.OpeningFee * ratio
	closingFee := p.Size * ratio * p.TradingFeeRate
	finalPnL := rawPnL - proportionalOpen - closingFee
	creditAmount := p.Margin*ratio + finalPnL

	quote := domain.QuoteCurrency(p.Market)
	if creditAmount >= 0 {
		_ = m.ledger.Credit(quote, creditAmount)
	} else {
		// Loss beyond the returned margin; the ledger's non-negative
		// invariant still protects the user's other funds.
		m.ledger.ForceDebit(quote, -creditAmount)
	}

	kind := domain.TxCloseLong
	if p.Side == domain.PositionShort {
		kind = domain.TxCloseShort
	}
	tx := domain.Transaction{
		ID:     uuid.NewString(),
		Kind:   kind,
		Market: p.Market,
		Amount: p.Size * ratio / p.EntryPrice,
		Price:  price,
		Total:  p.Size * ratio,
		Fee:    closingFee,
		Time:   m.now(),
		Close: &domain.CloseDetail{
			Leverage:   p.Leverage,
			PnL:        finalPnL,
			RawPnL:     rawPnL,
			OpeningFee: proportionalOpen,
			ClosingFee: closingFee,
			EntryPrice: p.EntryPrice,
			ExitPrice:  price,
			Percentage: percentage,
		},
	}
	m.journal.Append(tx)

	if percentage == 100 {
		m.removeLocked(id)
	} else {
		p.Size *= 1 - ratio
		p.Margin *= 1 - ratio
		p.OpeningFee *= 1 - ratio
		mark(p, price)
	}

	log.Printf("leverage %s: closed %.0f%% of %s pnl=%.2f credit=%.2f", m.userID, percentage, id, finalPnL, creditAmount)
	if m.bus != nil {
		m.bus.Publish(events.EventPositionClosed, events.TradePayload{UserID: m.userID, Transaction: tx})
	}
	return tx, nil
}

// CloseAll closes every open position sequentially over a snapshot of the
// position list, so the per-position lock discipline is never bypassed by
// fan-out. Individual failures are logged and do not stop the sweep.
func (m *Manager) CloseAll() []domain.Transaction {
	m.mu.Lock()
	ids := make([]string, 0, len(m.positions))
	for _, p := range m.positions {
		ids = append(ids, p.ID)
	}
	m.mu.Unlock()

	var closed []domain.Transaction
	for _, id := range ids {
		tx, err := m.Close(id, 100)
		if err != nil {
			log.Printf("leverage %s: close-all %s: %v", m.userID, id, err)
			continue
		}
		closed = append(closed, tx)
	}
	return closed
}

// MarkPrice refreshes every position on the tick's market, fires margin
// call warnings and force-liquidates crossed positions. It returns any
// liquidation transactions. A fault in one position must not prevent
// evaluation of the rest.
func (m *Manager) MarkPrice(mkt string, price float64) []domain.Transaction {
	m.mu.Lock()
	snapshot := make([]*domain.Position, len(m.positions))
	copy(snapshot, m.positions)
	m.mu.Unlock()

	var liquidated []domain.Transaction
	for _, p := range snapshot {
		if p.Market != mkt {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("leverage %s: mark %s panic recovered: %v", m.userID, p.ID, r)
				}
			}()

			m.mu.Lock()
			mark(p, price)
			m.checkMarginCallLocked(p, price)
			trigger := shouldLiquidate(p, price)
			m.mu.Unlock()

			if trigger {
				if tx, ok := m.liquidate(p.ID, price); ok {
					liquidated = append(liquidated, tx)
				}
			}
		}()
	}
	return liquidated
}

// liquidate forfeits the entire margin of a position: the position is
// removed, the ledger is debited by margin, and a liquidation record is
// journaled. Remove-then-settle makes a double trigger within one tick a
// no-op.
func (m *Manager) liquidate(id string, price float64) (domain.Transaction, bool) {
	m.mu.Lock()
	p := m.findLocked(id)
	if p == nil {
		m.mu.Unlock()
		return domain.Transaction{}, false
	}
	m.removeLocked(id)
	m.mu.Unlock()

	quote := domain.QuoteCurrency(p.Market)
	m.ledger.ForceDebit(quote, p.Margin)

	tx := domain.Transaction{
		ID:     uuid.NewString(),
		Kind:   domain.TxLiquidation,
		Market: p.Market,
		Amount: p.Size / p.EntryPrice,
		Price:  price,
		Total:  p.Size,
		Fee:    0,
		Time:   m.now(),
		Close: &domain.CloseDetail{
			Leverage:   p.Leverage,
			PnL:        -p.Margin, // the whole margin is forfeited, whatever the marked pnl was
			RawPnL:     rawPnLAt(p, price, 1),
			OpeningFee: p.OpeningFee,
			ClosingFee: 0,
			EntryPrice: p.EntryPrice,
			ExitPrice:  price,
			Percentage: 100,
		},
	}
	m.journal.Append(tx)

	log.Printf("leverage %s: LIQUIDATED %s %s entry=%.2f exit=%.2f margin=%.2f",
		m.userID, p.Side, p.Market, p.EntryPrice, price, p.Margin)
	if m.bus != nil {
		m.bus.Publish(events.EventLiquidation, events.TradePayload{UserID: m.userID, Transaction: tx})
	}
	return tx, true
}

// checkMarginCallLocked fires a single warning when the margin ratio drops
// under the threshold, then re-arms after the cooldown while the condition
// persists.
func (m *Manager) checkMarginCallLocked(p *domain.Position, price float64) {
	now := m.now()
	if p.MarginCallWarned && now.Sub(p.MarginCallWarnedAt) >= MarginCallCooldown {
		p.MarginCallWarned = false
	}
	if p.MarginRatio >= MarginCallThreshold || p.MarginCallWarned {
		return
	}
	p.MarginCallWarned = true
	p.MarginCallWarnedAt = now
	log.Printf("leverage %s: margin call %s %s ratio=%.4f", m.userID, p.Side, p.Market, p.MarginRatio)
	if m.bus != nil {
		m.bus.Publish(events.EventMarginCall, events.MarginCallPayload{
			UserID:      m.userID,
			PositionID:  p.ID,
			Market:      p.Market,
			MarginRatio: p.MarginRatio,
			Price:       price,
		})
	}
}

// Positions returns a copy of all open positions.
func (m *Manager) Positions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}

// Position returns one position by id.
func (m *Manager) Position(id string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.findLocked(id); p != nil {
		return *p, true
	}
	return domain.Position{}, false
}

// Restore replaces open positions from a persisted snapshot, dropping
// entries whose core economics are missing or non-finite. Derived fields
// are recomputed on the next tick.
func (m *Manager) Restore(positions []domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = m.positions[:0]
	for _, p := range positions {
		if p.ID == "" || p.Market == "" || p.Leverage < 1 {
			continue
		}
		if !num.Positive(p.Margin) || !num.Positive(p.Size) || !num.Positive(p.EntryPrice) {
			continue
		}
		if p.TradingFeeRate <= 0 || !num.Finite(p.TradingFeeRate) {
			p.TradingFeeRate = fees.TakerRate
		}
		p.OpeningFee = num.CoerceNonNegative(p.OpeningFee)
		cp := p
		mark(&cp, num.CoerceDefault(cp.CurrentPrice, cp.EntryPrice))
		m.positions = append(m.positions, &cp)
	}
}

// SetClock overrides the manager clock; used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func (m *Manager) publishOpened(p domain.Position) {
	if m.bus != nil {
		m.bus.Publish(events.EventPositionOpened, p)
	}
}

func (m *Manager) findLocked(id string) *domain.Position {
	for _, p := range m.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (m *Manager) removeLocked(id string) {
	for i, p := range m.positions {
		if p.ID == id {
			m.positions = append(m.positions[:i], m.positions[i+1:]...)
			return
		}
	}
}

// tryAcquireClose takes the advisory lock for a position id. It returns
// false when another close of the same position is still in flight.
func (m *Manager) tryAcquireClose(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing[id] {
		return false
	}
	m.closing[id] = true
	return true
}

// releaseClose releases the advisory lock on every exit path of Close.
func (m *Manager) releaseClose(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.closing, id)
}
