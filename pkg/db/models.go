package db

import "time"

// Snapshot is the persisted full-session state for one user, stored as an
// opaque JSON blob so the engine's shape can evolve without migrations.
type Snapshot struct {
	UserID    string
	State     string // JSON
	UpdatedAt time.Time
}

// TransactionRow is a normalized journal entry, duplicated out of the
// snapshot blob so history can be queried without deserializing state.
type TransactionRow struct {
	ID          string
	UserID      string
	Kind        string
	Market      string
	Amount      float64
	Price       float64
	Total       float64
	Fee         float64
	CloseDetail string // JSON, empty for spot trades
	CreatedAt   time.Time
}
