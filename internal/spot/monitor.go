package spot

import (
	"log"
	"time"

	"github.com/google/uuid"

	"paperdesk/internal/domain"
)

// CheckPending scans open limit orders for the tick's market and executes
// every crossed order: buys when the tick is at or below the limit price,
// sells when at or above. Execution fills at the limit price, never the
// tick price, so favorable slippage is not passed through. Crossed orders
// execute all-or-nothing in arrival order. A fault in one order must not
// prevent evaluation of the rest.
func (e *Engine) CheckPending(tickMarket string, tickPrice float64) []domain.Transaction {
	// Snapshot to avoid mutating the collection while iterating it.
	e.mu.Lock()
	snapshot := make([]*domain.PendingOrder, len(e.pending))
	copy(snapshot, e.pending)
	e.mu.Unlock()

	var executed []domain.Transaction
	for _, o := range snapshot {
		if o.Market != tickMarket || !crossed(o, tickPrice) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("pending order %s: execution panic recovered: %v", o.ID, r)
				}
			}()
			if tx, ok := e.executeLimit(o); ok {
				executed = append(executed, tx)
			}
		}()
	}
	return executed
}

func crossed(o *domain.PendingOrder, tickPrice float64) bool {
	if o.Side == domain.OrderBuy {
		return tickPrice <= o.LimitPrice
	}
	return tickPrice >= o.LimitPrice
}

// executeLimit converts a pending order into a journal transaction. The
// remove-then-settle order makes execution idempotent if the same order is
// somehow visited twice within one tick.
func (e *Engine) executeLimit(o *domain.PendingOrder) (domain.Transaction, bool) {
	e.mu.Lock()
	found := false
	for i, p := range e.pending {
		if p.ID == o.ID {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			found = true
			break
		}
	}
	e.mu.Unlock()
	if !found {
		return domain.Transaction{}, false
	}

	notional := o.Amount * o.LimitPrice
	var kind domain.TxKind
	var fee float64
	if o.Side == domain.OrderBuy {
		kind = domain.TxBuy
		fee = o.TotalCost - notional
		_ = e.ledger.Credit(o.Crypto, o.Amount)
	} else {
		kind = domain.TxSell
		fee = notional - o.TotalRevenue
		_ = e.ledger.Credit(domain.QuoteCurrency(o.Market), o.TotalRevenue)
	}

	tx := domain.Transaction{
		ID:     uuid.NewString(),
		Kind:   kind,
		Market: o.Market,
		Amount: o.Amount,
		Price:  o.LimitPrice, // the user receives exactly the price they asked for
		Total:  notional,
		Fee:    fee,
		Time:   e.now(),
	}
	e.record(tx)
	return tx, true
}

// SetClock overrides the engine clock; used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}
