// Package ledger holds per-currency balances for one user and exposes the
// debit/credit primitives every trade settles through.
package ledger

import (
	"fmt"
	"sync"

	"paperdesk/internal/domain"
	"paperdesk/pkg/num"
)

// Ledger maps currency symbols to non-negative amounts. A debit that would
// drive a balance below zero is rejected before any mutation, so callers
// can treat a rejection as a strict no-op.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]float64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[string]float64)}
}

// NewSeeded creates a ledger with a single starting balance.
func NewSeeded(currency string, amount float64) *Ledger {
	l := New()
	if num.Positive(amount) {
		l.balances[currency] = amount
	}
	return l
}

// Credit adds amount to the currency balance. Non-finite or negative
// amounts are rejected.
func (l *Ledger) Credit(currency string, amount float64) error {
	if currency == "" || !num.NonNegative(amount) {
		return fmt.Errorf("credit %s %v: %w", currency, amount, domain.ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[currency] += amount
	return nil
}

// Debit removes amount from the currency balance. Returns
// ErrInsufficientFunds without mutating when the balance cannot cover it.
func (l *Ledger) Debit(currency string, amount float64) error {
	if currency == "" || !num.NonNegative(amount) {
		return fmt.Errorf("debit %s %v: %w", currency, amount, domain.ErrInvalidInput)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[currency] < amount {
		return fmt.Errorf("debit %s %.8f, have %.8f: %w",
			currency, amount, l.balances[currency], domain.ErrInsufficientFunds)
	}
	l.balances[currency] -= amount
	return nil
}

// ForceDebit removes up to amount from the currency balance, clamping at
// zero, and returns the amount actually taken. Used by system-initiated
// settlements (liquidation, losses on close) that must always succeed
// while still preserving the non-negative invariant.
func (l *Ledger) ForceDebit(currency string, amount float64) float64 {
	if currency == "" || !num.Positive(amount) {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	taken := amount
	if l.balances[currency] < taken {
		taken = l.balances[currency]
	}
	l.balances[currency] -= taken
	return taken
}

// Balance returns the current balance for a currency (zero if unknown).
func (l *Ledger) Balance(currency string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[currency]
}

// Balances returns a copy of all non-zero balances.
func (l *Ledger) Balances() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]float64, len(l.balances))
	for cur, amt := range l.balances {
		if amt != 0 {
			out[cur] = amt
		}
	}
	return out
}

// Restore replaces all balances from a persisted snapshot with defensive
// coercion: non-finite or negative values collapse to zero.
func (l *Ledger) Restore(balances map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances = make(map[string]float64, len(balances))
	for cur, amt := range balances {
		if cur == "" {
			continue
		}
		l.balances[cur] = num.CoerceNonNegative(amt)
	}
}
