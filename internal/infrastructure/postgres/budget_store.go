package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"burndown/internal/domain/budget"
)

// BudgetStore implements budget.Store. Counter updates are single upserts, so
// concurrent processes never lose an increment.
type BudgetStore struct {
	db *DB
}

var _ budget.Store = (*BudgetStore)(nil)

// NewBudgetStore creates a new PostgreSQL budget store
func NewBudgetStore(db *DB) *BudgetStore {
	return &BudgetStore{db: db}
}

// GetCallCount returns the month's counter, zero if no call was made yet
func (s *BudgetStore) GetCallCount(ctx context.Context, month string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT call_count FROM plaid_budget_counters WHERE month = $1`, month).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get call count: %w", err)
	}
	return count, nil
}

// AddCalls adds n to the month's counter and returns the new total
func (s *BudgetStore) AddCalls(ctx context.Context, month string, n int64) (int64, error) {
	query := `
		INSERT INTO plaid_budget_counters (month, call_count, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (month) DO UPDATE
		SET call_count = plaid_budget_counters.call_count + EXCLUDED.call_count,
		    updated_at = NOW()
		RETURNING call_count
	`

	var total int64
	if err := s.db.QueryRowContext(ctx, query, month, n).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to add calls: %w", err)
	}
	return total, nil
}

// TryAddCalls adds n only if the total stays within limit. The WHERE clause on
// the conflict update makes the check and the add one statement.
func (s *BudgetStore) TryAddCalls(ctx context.Context, month string, n, limit int64) (int64, bool, error) {
	if n > limit {
		used, err := s.GetCallCount(ctx, month)
		return used, false, err
	}

	query := `
		INSERT INTO plaid_budget_counters (month, call_count, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (month) DO UPDATE
		SET call_count = plaid_budget_counters.call_count + EXCLUDED.call_count,
		    updated_at = NOW()
		WHERE plaid_budget_counters.call_count + EXCLUDED.call_count <= $3
		RETURNING call_count
	`

	var total int64
	err := s.db.QueryRowContext(ctx, query, month, n, limit).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		used, err := s.GetCallCount(ctx, month)
		return used, false, err
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to reserve calls: %w", err)
	}
	return total, true, nil
}

// GetLastSync returns the connection's last sync time
func (s *BudgetStore) GetLastSync(ctx context.Context, connectionID string) (time.Time, bool, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT last_sync_ms FROM plaid_sync_cooldowns WHERE connection_id = $1`, connectionID).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last sync: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// SetLastSync stamps the connection's last sync time
func (s *BudgetStore) SetLastSync(ctx context.Context, connectionID string, at time.Time) error {
	query := `
		INSERT INTO plaid_sync_cooldowns (connection_id, last_sync_ms)
		VALUES ($1, $2)
		ON CONFLICT (connection_id) DO UPDATE SET last_sync_ms = EXCLUDED.last_sync_ms
	`
	if _, err := s.db.ExecContext(ctx, query, connectionID, at.UnixMilli()); err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	return nil
}

// DeleteLastSync removes the cooldown record; a missing record is not an error
func (s *BudgetStore) DeleteLastSync(ctx context.Context, connectionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plaid_sync_cooldowns WHERE connection_id = $1`, connectionID); err != nil {
		return fmt.Errorf("failed to delete last sync: %w", err)
	}
	return nil
}
