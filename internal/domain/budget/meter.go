package budget

import (
	"context"
	"fmt"
	"time"
)

// Meter answers budget and cooldown questions on top of a Store.
// It holds no counters in memory, so any number of processes may share one Store.
type Meter struct {
	store    Store
	limit    int64
	cooldown time.Duration
	now      func() time.Time
}

// NewMeter creates a meter whose monthly limit is derived from cfg.
func NewMeter(store Store, cfg Config) *Meter {
	return &Meter{
		store:    store,
		limit:    CallLimit(cfg.MonthlyBudget, cfg.CostPerCall),
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}
}

// Limit returns the number of billable calls allowed per month.
func (m *Meter) Limit() int64 {
	return m.limit
}

// CheckBudget reports whether callsNeeded more calls fit in this month's quota.
// It never writes.
func (m *Meter) CheckBudget(ctx context.Context, callsNeeded int) (*Status, error) {
	if callsNeeded < 1 {
		callsNeeded = 1
	}

	month := MonthKey(m.now())
	used, err := m.store.GetCallCount(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("failed to read call count for %s: %w", month, err)
	}

	status := m.status(month, used)
	status.Allowed = used+int64(callsNeeded) <= m.limit
	return status, nil
}

// IncrementCallCount atomically adds n (at least 1) to this month's counter.
func (m *Meter) IncrementCallCount(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}

	month := MonthKey(m.now())
	if _, err := m.store.AddCalls(ctx, month, int64(n)); err != nil {
		return fmt.Errorf("failed to increment call count for %s: %w", month, err)
	}
	return nil
}

// Reserve claims n calls in one atomic conditional increment. Allowed is false,
// and nothing is written, when the claim would exceed the limit.
func (m *Meter) Reserve(ctx context.Context, n int) (*Status, error) {
	if n < 1 {
		n = 1
	}

	month := MonthKey(m.now())
	used, ok, err := m.store.TryAddCalls(ctx, month, int64(n), m.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve calls for %s: %w", month, err)
	}

	status := m.status(month, used)
	status.Allowed = ok
	return status, nil
}

// CheckCooldown reports how long the caller must wait before syncing connectionID again.
func (m *Meter) CheckCooldown(ctx context.Context, connectionID string) (*CooldownStatus, error) {
	last, ok, err := m.store.GetLastSync(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last sync for %s: %w", connectionID, err)
	}
	if !ok {
		return &CooldownStatus{Allowed: true}, nil
	}

	elapsed := m.now().Sub(last)
	if elapsed >= m.cooldown {
		return &CooldownStatus{Allowed: true}, nil
	}
	return &CooldownStatus{Allowed: false, WaitMs: (m.cooldown - elapsed).Milliseconds()}, nil
}

// RecordSyncTime stamps now as the connection's last sync.
func (m *Meter) RecordSyncTime(ctx context.Context, connectionID string) error {
	if err := m.store.SetLastSync(ctx, connectionID, m.now()); err != nil {
		return fmt.Errorf("failed to record sync time for %s: %w", connectionID, err)
	}
	return nil
}

// ClearCooldown forgets the connection's last sync, used when it is disconnected.
func (m *Meter) ClearCooldown(ctx context.Context, connectionID string) error {
	if err := m.store.DeleteLastSync(ctx, connectionID); err != nil {
		return fmt.Errorf("failed to clear cooldown for %s: %w", connectionID, err)
	}
	return nil
}

func (m *Meter) status(month string, used int64) *Status {
	remaining := m.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Used:      used,
		Limit:     m.limit,
		Remaining: remaining,
		Month:     month,
	}
}
