// Package persistence subscribes to state change events and writes session
// snapshots plus normalized journal rows to SQLite.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"paperdesk/internal/domain"
	"paperdesk/internal/events"
	"paperdesk/pkg/db"
)

// Store persists session state. Snapshots are stored as one JSON blob per
// user; journal entries are additionally written as normalized rows so
// history survives snapshot overwrites and can be queried directly.
type Store struct {
	queries *db.UserQueries
	writer  *BatchWriter

	mu   sync.Mutex
	seen map[string]map[string]struct{} // userID -> persisted tx ids
}

// NewStore creates a store on top of the query layer and batch writer.
func NewStore(queries *db.UserQueries, writer *BatchWriter) *Store {
	return &Store{
		queries: queries,
		writer:  writer,
		seen:    make(map[string]map[string]struct{}),
	}
}

// Run consumes state change events until the context is cancelled.
func (s *Store) Run(ctx context.Context, bus *events.Bus) {
	ch, unsub := bus.Subscribe(events.EventStateChanged, 256)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			payload, ok := msg.(events.StatePayload)
			if !ok {
				continue
			}
			s.HandleState(payload)
		}
	}
}

// HandleState queues one user's latest state for writing.
func (s *Store) HandleState(payload events.StatePayload) {
	if payload.UserID == "" {
		return
	}

	blob, err := json.Marshal(payload.State)
	if err != nil {
		log.Printf("⚠️ persistence: marshal state for %s: %v", payload.UserID, err)
		return
	}

	s.writer.WriteQuery(`
		INSERT INTO snapshots (user_id, state, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			updated_at = CURRENT_TIMESTAMP
	`, payload.UserID, string(blob))

	for _, tx := range payload.State.Transactions {
		if !s.markSeen(payload.UserID, tx.ID) {
			continue
		}
		s.writer.WriteQuery(`
			INSERT OR IGNORE INTO transactions
				(id, user_id, kind, market, amount, price, total, fee, close_detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)
		`, tx.ID, payload.UserID, string(tx.Kind), tx.Market, tx.Amount, tx.Price,
			tx.Total, tx.Fee, marshalCloseDetail(tx), tx.Time)
	}
}

// LoadState restores a user's persisted state, if any.
func (s *Store) LoadState(ctx context.Context, userID string) (domain.State, bool, error) {
	blob, err := s.queries.LoadSnapshot(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return domain.State{}, false, nil
	}
	if err != nil {
		return domain.State{}, false, err
	}

	var st domain.State
	if err := json.Unmarshal([]byte(blob), &st); err != nil {
		// A corrupt blob must not brick the session; start fresh.
		log.Printf("⚠️ persistence: corrupt snapshot for %s, starting fresh: %v", userID, err)
		return domain.State{}, false, nil
	}

	// Already-persisted ids must not be re-queued on the next state change.
	s.mu.Lock()
	ids := make(map[string]struct{}, len(st.Transactions))
	for _, tx := range st.Transactions {
		ids[tx.ID] = struct{}{}
	}
	s.seen[userID] = ids
	s.mu.Unlock()

	return st, true, nil
}

// Flush forces pending writes to disk.
func (s *Store) Flush() error {
	return s.writer.Flush()
}

func (s *Store) markSeen(userID, txID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.seen[userID]
	if !ok {
		ids = make(map[string]struct{})
		s.seen[userID] = ids
	}
	if _, dup := ids[txID]; dup {
		return false
	}
	ids[txID] = struct{}{}
	return true
}

func marshalCloseDetail(tx domain.Transaction) string {
	if tx.Close == nil {
		return ""
	}
	blob, err := json.Marshal(tx.Close)
	if err != nil {
		return ""
	}
	return string(blob)
}
