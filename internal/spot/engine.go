// Package spot executes market orders immediately and manages escrowed
// limit orders until a tick crosses their limit price.
package spot

import (
	"errors"
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

// Engine settles spot trades against the ledger and journal. Limit orders
// escrow their full cost (buy) or base amount (sell) at placement, so a
// user can never place orders exceeding available funds.
type Engine struct {
	userID  string
	ledger  *ledger.Ledger
	journal *journal.Journal
	prices  *market.Table
	bus     *events.Bus

	mu      sync.Mutex
	pending []*domain.PendingOrder // insertion order is execution order

	now func() time.Time
}

// NewEngine creates a spot engine bound to one user's ledger and journal.
func NewEngine(userID string, l *ledger.Ledger, j *journal.Journal, prices *market.Table, bus *events.Bus) *Engine {
	return &Engine{
		userID:  userID,
		ledger:  l,
		journal: j,
		prices:  prices,
		bus:     bus,
		now:     time.Now,
	}
}

// MarketBuy executes an immediate buy at the current reference price,
// charging the taker fee on top of the notional.
func (e *Engine) MarketBuy(mkt string, amount float64) (domain.Transaction, error) {
	base, quote, ok := domain.SplitMarket(mkt)
	if !ok || !num.Positive(amount) {
		return domain.Transaction{}, fmt.Errorf("market buy %s %v: %w", mkt, amount, domain.ErrInvalidInput)
	}
	price, ok := e.prices.Price(mkt)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("market buy %s: %w", mkt, domain.ErrPriceUnavailable)
	}

	notional := amount * price
	fee := fees.Amount(notional, fees.Taker)
	if err := e.ledger.Debit(quote, notional+fee); err != nil {
		return domain.Transaction{}, err
	}
	if err := e.ledger.Credit(base, amount); err != nil {
		// Undo the debit; the ledger must never be left half-applied.
		_ = e.ledger.Credit(quote, notional+fee)
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		ID:     uuid.NewString(),
		Kind:   domain.TxBuy,
		Market: mkt,
		Amount: amount,
		Price:  price,
		Total:  notional,
		Fee:    fee,
		Time:   e.now(),
	}
	e.record(tx)
	return tx, nil
}

// MarketSell executes an immediate sell at the current reference price,
// crediting the quote proceeds net of the taker fee.
func (e *Engine) MarketSell(mkt string, amount float64) (domain.Transaction, error) {
	base, quote, ok := domain.SplitMarket(mkt)
	if !ok || !num.Positive(amount) {
		return domain.Transaction{}, fmt.Errorf("market sell %s %v: %w", mkt, amount, domain.ErrInvalidInput)
	}
	price, ok := e.prices.Price(mkt)
	if !ok {
		return domain.Transaction{}, fmt.Errorf("market sell %s: %w", mkt, domain.ErrPriceUnavailable)
	}

	if err := e.ledger.Debit(base, amount); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.Transaction{}, fmt.Errorf("market sell %s %.8f: %w", mkt, amount, domain.ErrInsufficientBalance)
		}
		return domain.Transaction{}, err
	}
	notional := amount * price
	fee := fees.Amount(notional, fees.Taker)
	if err := e.ledger.Credit(quote, notional-fee); err != nil {
		_ = e.ledger.Credit(base, amount)
		return domain.Transaction{}, err
	}

	tx := domain.Transaction{
		ID:     uuid.NewString(),
		Kind:   domain.TxSell,
		Market: mkt,
		Amount: amount,
		Price:  price,
		Total:  notional,
		Fee:    fee,
		Time:   e.now(),
	}
	e.record(tx)
	return tx, nil
}

// PlaceLimit escrows funds for a limit order. The maker fee is computed
// against the limit price, not the current price.
func (e *Engine) PlaceLimit(mkt string, side domain.OrderSide, amount, limitPrice float64) (domain.PendingOrder, error) {
	base, quote, ok := domain.SplitMarket(mkt)
	if !ok || !num.Positive(amount) || !num.Positive(limitPrice) {
		return domain.PendingOrder{}, fmt.Errorf("limit %s %s: %w", side, mkt, domain.ErrInvalidInput)
	}
	if side != domain.OrderBuy && side != domain.OrderSell {
		return domain.PendingOrder{}, fmt.Errorf("limit order side %q: %w", side, domain.ErrInvalidInput)
	}

	notional := amount * limitPrice
	fee := fees.Amount(notional, fees.Maker)

	order := &domain.PendingOrder{
		ID:         uuid.NewString(),
		Side:       side,
		Market:     mkt,
		Crypto:     base,
		Amount:     amount,
		LimitPrice: limitPrice,
		FeeRate:    fees.MakerRate,
		Status:     "pending",
		CreatedAt:  e.now(),
	}

	if side == domain.OrderBuy {
		order.TotalCost = notional + fee
		if err := e.ledger.Debit(quote, order.TotalCost); err != nil {
			return domain.PendingOrder{}, err
		}
	} else {
		order.TotalRevenue = notional - fee
		if err := e.ledger.Debit(base, amount); err != nil {
			if errors.Is(err, domain.ErrInsufficientFunds) {
				return domain.PendingOrder{}, fmt.Errorf("limit sell %s %.8f: %w", mkt, amount, domain.ErrInsufficientBalance)
			}
			return domain.PendingOrder{}, err
		}
	}

	e.mu.Lock()
	e.pending = append(e.pending, order)
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(events.EventOrderPlaced, events.OrderPayload{UserID: e.userID, Order: *order})
	}
	return *order, nil
}

// CancelLimit refunds the exact original escrow and removes the order.
// Cancelling an unknown id is a silent no-op, so cancellation is
// idempotent.
func (e *Engine) CancelLimit(id string) {
	e.mu.Lock()
	var order *domain.PendingOrder
	for i, o := range e.pending {
		if o.ID == id {
			order = o
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	if order == nil {
		return
	}

	if order.Side == domain.OrderBuy {
		_ = e.ledger.Credit(domain.QuoteCurrency(order.Market), order.TotalCost)
	} else {
		_ = e.ledger.Credit(order.Crypto, order.Amount)
	}

	if e.bus != nil {
		e.bus.Publish(events.EventOrderCancelled, events.OrderPayload{UserID: e.userID, Order: *order})
	}
}

// Pending returns a copy of open limit orders in arrival order.
func (e *Engine) Pending() []domain.PendingOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.PendingOrder, 0, len(e.pending))
	for _, o := range e.pending {
		out = append(out, *o)
	}
	return out
}

// Restore replaces the pending order book from a persisted snapshot,
// dropping orders with missing or non-finite numerics. Escrow is assumed
// to already be reflected in the restored balances.
func (e *Engine) Restore(orders []domain.PendingOrder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = e.pending[:0]
	for _, o := range orders {
		if o.ID == "" || o.Market == "" {
			continue
		}
		if !num.Positive(o.Amount) || !num.Positive(o.LimitPrice) {
			continue
		}
		o.TotalCost = num.CoerceNonNegative(o.TotalCost)
		o.TotalRevenue = num.CoerceNonNegative(o.TotalRevenue)
		o.FeeRate = num.CoerceNonNegative(o.FeeRate)
		o.Status = "pending"
		cp := o
		e.pending = append(e.pending, &cp)
	}
}

func (e *Engine) record(tx domain.Transaction) {
	e.journal.Append(tx)
	if e.bus != nil {
		e.bus.Publish(events.EventTradeExecuted, events.TradePayload{UserID: e.userID, Transaction: tx})
	}
	log.Printf("spot %s: %s %s %.8f @ %.2f fee=%.4f", e.userID, tx.Kind, tx.Market, tx.Amount, tx.Price, tx.Fee)
}
