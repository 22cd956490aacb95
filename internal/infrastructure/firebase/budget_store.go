// Package firebase stores budget counters and cooldowns in Firestore.
package firebase

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"burndown/internal/domain/budget"
)

const (
	countersCollection  = "plaidBudget"
	cooldownsCollection = "plaidSyncCooldowns"

	fieldCallCount  = "callCount"
	fieldUpdatedAt  = "updatedAt"
	fieldLastSyncMs = "lastSyncMs"
)

// BudgetStore implements budget.Store on Firestore. Plain increments use the
// server-side Increment transform; conditional reserves run in a transaction.
type BudgetStore struct {
	client *firestore.Client
}

var _ budget.Store = (*BudgetStore)(nil)

// NewBudgetStore creates a Firestore-backed budget store
func NewBudgetStore(client *firestore.Client) *BudgetStore {
	return &BudgetStore{client: client}
}

func (s *BudgetStore) counter(month string) *firestore.DocumentRef {
	return s.client.Collection(countersCollection).Doc(month)
}

func (s *BudgetStore) cooldown(connectionID string) *firestore.DocumentRef {
	return s.client.Collection(cooldownsCollection).Doc(connectionID)
}

// GetCallCount returns the month's counter, zero if the document does not exist
func (s *BudgetStore) GetCallCount(ctx context.Context, month string) (int64, error) {
	snap, err := s.counter(month).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get call count: %w", err)
	}
	return callCount(snap)
}

// AddCalls increments the month's counter server-side and returns the value read back
func (s *BudgetStore) AddCalls(ctx context.Context, month string, n int64) (int64, error) {
	_, err := s.counter(month).Set(ctx, map[string]any{
		fieldCallCount: firestore.Increment(n),
		fieldUpdatedAt: firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return 0, fmt.Errorf("failed to add calls: %w", err)
	}
	return s.GetCallCount(ctx, month)
}

// TryAddCalls adds n inside a transaction only if the total stays within limit
func (s *BudgetStore) TryAddCalls(ctx context.Context, month string, n, limit int64) (int64, bool, error) {
	ref := s.counter(month)

	var used int64
	var ok bool
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		used, ok = 0, false

		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if used, err = callCount(snap); err != nil {
				return err
			}
		}

		if used+n > limit {
			return nil
		}

		used += n
		ok = true
		return tx.Set(ref, map[string]any{
			fieldCallCount: used,
			fieldUpdatedAt: firestore.ServerTimestamp,
		}, firestore.MergeAll)
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to reserve calls: %w", err)
	}
	return used, ok, nil
}

// GetLastSync returns the connection's last sync time
func (s *BudgetStore) GetLastSync(ctx context.Context, connectionID string) (time.Time, bool, error) {
	snap, err := s.cooldown(connectionID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last sync: %w", err)
	}

	v, err := snap.DataAt(fieldLastSyncMs)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read last sync: %w", err)
	}
	ms, ok := v.(int64)
	if !ok {
		return time.Time{}, false, fmt.Errorf("unexpected %s type %T", fieldLastSyncMs, v)
	}
	return time.UnixMilli(ms), true, nil
}

// SetLastSync stamps the connection's last sync time
func (s *BudgetStore) SetLastSync(ctx context.Context, connectionID string, at time.Time) error {
	if _, err := s.cooldown(connectionID).Set(ctx, map[string]any{fieldLastSyncMs: at.UnixMilli()}); err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}
	return nil
}

// DeleteLastSync removes the cooldown document
func (s *BudgetStore) DeleteLastSync(ctx context.Context, connectionID string) error {
	if _, err := s.cooldown(connectionID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete last sync: %w", err)
	}
	return nil
}

func callCount(snap *firestore.DocumentSnapshot) (int64, error) {
	v, err := snap.DataAt(fieldCallCount)
	if err != nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected %s type %T", fieldCallCount, v)
	}
}
