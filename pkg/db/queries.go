// Package db provides user-isolated persistence for session snapshots and
// the transaction journal.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// UserQueries provides user-isolated database queries.
type UserQueries struct {
	db *sql.DB
}

// NewUserQueries creates a new UserQueries instance.
func NewUserQueries(db *sql.DB) *UserQueries {
	return &UserQueries{db: db}
}

// ----------------------------------------
// Snapshot Queries
// ----------------------------------------

// SaveSnapshot upserts the full session state for a user.
func (q *UserQueries) SaveSnapshot(ctx context.Context, userID, stateJSON string) error {
	if userID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO snapshots (user_id, state, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			updated_at = CURRENT_TIMESTAMP
	`, userID, stateJSON)

	return err
}

// LoadSnapshot returns the stored state JSON for a user.
func (q *UserQueries) LoadSnapshot(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrUserIDRequired
	}

	var state string
	err := q.db.QueryRowContext(ctx, `
		SELECT state FROM snapshots WHERE user_id = ?
	`, userID).Scan(&state)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query snapshot: %w", err)
	}
	return state, nil
}

// DeleteSnapshot removes a user's stored state.
func (q *UserQueries) DeleteSnapshot(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `DELETE FROM snapshots WHERE user_id = ?`, userID)
	return err
}

// ----------------------------------------
// Transaction Queries
// ----------------------------------------

// InsertTransaction appends one journal row; duplicate ids are ignored so
// replayed writes stay idempotent.
func (q *UserQueries) InsertTransaction(ctx context.Context, row TransactionRow) error {
	if row.UserID == "" {
		return ErrUserIDRequired
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, user_id, kind, market, amount, price, total, fee, close_detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), COALESCE(?, CURRENT_TIMESTAMP))
	`, row.ID, row.UserID, row.Kind, row.Market, row.Amount, row.Price, row.Total, row.Fee, row.CloseDetail, row.CreatedAt)

	return err
}

// InsertTransactions writes a batch of journal rows in one transaction.
func (q *UserQueries) InsertTransactions(ctx context.Context, rows []TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions
			(id, user_id, kind, market, amount, price, total, fee, close_detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), COALESCE(?, CURRENT_TIMESTAMP))
	`)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if row.UserID == "" {
			return ErrUserIDRequired
		}
		if _, err := stmt.ExecContext(ctx, row.ID, row.UserID, row.Kind, row.Market,
			row.Amount, row.Price, row.Total, row.Fee, row.CloseDetail, row.CreatedAt); err != nil {
			return fmt.Errorf("insert transaction %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

// GetTransactionsByUser returns the most recent journal rows for a user.
func (q *UserQueries) GetTransactionsByUser(ctx context.Context, userID string, limit int) ([]TransactionRow, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, kind, market, amount, price, total, COALESCE(fee, 0),
		       COALESCE(close_detail, ''), created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetTransactionsByMarket returns a user's journal rows for one market.
func (q *UserQueries) GetTransactionsByMarket(ctx context.Context, userID, market string, limit int) ([]TransactionRow, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, kind, market, amount, price, total, COALESCE(fee, 0),
		       COALESCE(close_detail, ''), created_at
		FROM transactions
		WHERE user_id = ? AND market = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, market, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions by market: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// CountTransactionsByUser returns the journal length for a user.
func (q *UserQueries) CountTransactionsByUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserIDRequired
	}

	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func scanTransactions(rows *sql.Rows) ([]TransactionRow, error) {
	var res []TransactionRow
	for rows.Next() {
		var r TransactionRow
		if err := rows.Scan(&r.ID, &r.UserID, &r.Kind, &r.Market, &r.Amount,
			&r.Price, &r.Total, &r.Fee, &r.CloseDetail, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, r)
	}
	return res, rows.Err()
}
