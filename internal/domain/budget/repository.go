package budget

import (
	"context"
	"time"
)

// Store is the backing store for call counters and cooldown stamps.
// Implementations must perform AddCalls and TryAddCalls as single atomic
// operations at the storage layer, never as a read followed by a write.
type Store interface {
	// GetCallCount returns the counter for month, or zero if it does not exist yet.
	GetCallCount(ctx context.Context, month string) (int64, error)

	// AddCalls atomically adds n to the month's counter, creating it if needed,
	// and returns the new total.
	AddCalls(ctx context.Context, month string, n int64) (int64, error)

	// TryAddCalls atomically adds n only if the result stays within limit.
	// It reports whether the add happened and the counter value afterwards.
	TryAddCalls(ctx context.Context, month string, n, limit int64) (int64, bool, error)

	// GetLastSync returns the last recorded sync time for a connection.
	GetLastSync(ctx context.Context, connectionID string) (time.Time, bool, error)

	// SetLastSync stamps the connection's last sync time.
	SetLastSync(ctx context.Context, connectionID string, at time.Time) error

	// DeleteLastSync removes the cooldown record for a connection.
	DeleteLastSync(ctx context.Context, connectionID string) error
}
