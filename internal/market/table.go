// Package market tracks the last observed reference price per market and
// provides the tick feeds that drive the simulation.
package market

import (
	"sync"

	"paperdesk/pkg/num"
)

// Table holds the last-known price per market symbol. Only valid ticks
// (finite, positive price) update it.
type Table struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewTable creates an empty price table.
func NewTable() *Table {
	return &Table{prices: make(map[string]float64)}
}

// Update records a tick price. It returns false and leaves the table
// untouched when the price is not a finite positive number.
func (t *Table) Update(market string, price float64) bool {
	if market == "" || !num.Positive(price) {
		return false
	}
	t.mu.Lock()
	t.prices[market] = price
	t.mu.Unlock()
	return true
}

// Price returns the last observed price for a market.
func (t *Table) Price(market string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.prices[market]
	return p, ok
}

// Snapshot returns a copy of all known prices.
func (t *Table) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.prices))
	for m, p := range t.prices {
		out[m] = p
	}
	return out
}
