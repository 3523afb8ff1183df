// Package journal keeps the append-only transaction log and derives the
// average purchase cost of spot holdings from it.
package journal

import (
	"sync"

	"paperdesk/internal/domain"
	"paperdesk/pkg/num"
)

// Journal is the ordered log of completed trades, closes and liquidations.
// Records are appended once and never mutated. Liquidations are prepended
// for recency display; buy/sell records keep their chronological relative
// order, which is all the average-cost replay depends on.
type Journal struct {
	mu  sync.RWMutex
	txs []domain.Transaction

	// Average-cost cache, keyed by currency. An entry is valid only while
	// the journal length and the caller's holding balance both match what
	// was seen at computation time. Pure optimization: a from-scratch
	// replay always produces the same answer.
	avgCache map[string]avgEntry
}

type avgEntry struct {
	txCount int
	holding float64
	avg     float64
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{avgCache: make(map[string]avgEntry)}
}

// Append records a completed transaction. Liquidation records go to the
// front of the log, everything else to the back.
func (j *Journal) Append(tx domain.Transaction) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if tx.Kind == domain.TxLiquidation {
		j.txs = append([]domain.Transaction{tx}, j.txs...)
	} else {
		j.txs = append(j.txs, tx)
	}

	// Any new record involving a currency invalidates its cached average.
	if base := domain.BaseCurrency(tx.Market); base != "" {
		delete(j.avgCache, base)
	}
}

// Transactions returns a copy of the full log in display order.
func (j *Journal) Transactions() []domain.Transaction {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]domain.Transaction, len(j.txs))
	copy(out, j.txs)
	return out
}

// Len returns the number of journal records.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.txs)
}

// AverageCost returns the weighted average purchase price for a spot
// holding, using the cache when the journal and holding are unchanged.
// holding is the caller's current balance of the currency.
func (j *Journal) AverageCost(currency string, holding float64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e, ok := j.avgCache[currency]; ok && e.txCount == len(j.txs) && e.holding == holding {
		return e.avg
	}
	avg := replayAverageCost(j.txs, currency)
	j.avgCache[currency] = avgEntry{txCount: len(j.txs), holding: holding, avg: avg}
	return avg
}

// ReplayAverageCost computes the average purchase price by a full replay
// of the log, bypassing the cache.
func (j *Journal) ReplayAverageCost(currency string) float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return replayAverageCost(j.txs, currency)
}

// replayAverageCost walks buy/sell records of the currency in order. Buys
// update a running weighted average; sells reduce the running balance
// without moving the average (cost basis is held across partial sells)
// and reset it once the balance reaches zero.
func replayAverageCost(txs []domain.Transaction, currency string) float64 {
	var avg, bal float64
	for _, tx := range txs {
		if !tx.IsSpot() || domain.BaseCurrency(tx.Market) != currency {
			continue
		}
		switch tx.Kind {
		case domain.TxBuy:
			total := bal + tx.Amount
			if total > 0 {
				avg = (avg*bal + tx.Price*tx.Amount) / total
			}
			bal = total
		case domain.TxSell:
			bal -= tx.Amount
			if bal <= 1e-9 { // float dust counts as fully sold out
				bal = 0
				avg = 0
			}
		}
	}
	return avg
}

// Restore replaces the log from a persisted snapshot, dropping records
// with non-finite numerics rather than crashing on corrupted state.
func (j *Journal) Restore(txs []domain.Transaction) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.txs = j.txs[:0]
	j.avgCache = make(map[string]avgEntry)
	for _, tx := range txs {
		if tx.Market == "" {
			continue
		}
		if !num.Finite(tx.Amount) || !num.Finite(tx.Price) || !num.Finite(tx.Total) || !num.Finite(tx.Fee) {
			continue
		}
		j.txs = append(j.txs, tx)
	}
}
