// Package plaidsync pulls transaction and balance updates for a household's
// linked connections and reconciles them into the household document.
package plaidsync

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"burndown/internal/domain/budget"
	"burndown/internal/domain/connection"
	"burndown/internal/domain/ledger"
	"burndown/internal/infrastructure/plaid"
)

// Domain errors
var (
	// ErrNoFinancialData means the household has no document to reconcile into yet.
	ErrNoFinancialData = errors.New("no financial data found, initialize your data first")
	ErrInvalidInput    = errors.New("invalid input")
)

const defaultPageSize = 500

var (
	syncTracer              = otel.Tracer("burndown/plaidsync")
	syncMeter               = otel.Meter("burndown/plaidsync")
	accountsUpdatedTotal, _ = syncMeter.Int64Counter("sync.accounts.updated", metric.WithDescription("Document entries written by reconciliation"))
)

// Meter is the slice of the budget meter the service needs.
type Meter interface {
	CheckBudget(ctx context.Context, callsNeeded int) (*budget.Status, error)
	CheckCooldown(ctx context.Context, connectionID string) (*budget.CooldownStatus, error)
	RecordSyncTime(ctx context.Context, connectionID string) error
	ClearCooldown(ctx context.Context, connectionID string) error
}

// Options tunes sync behavior.
type Options struct {
	PageSize        int
	EnforceCooldown bool
}

// Service orchestrates syncs, the link flow and connection management.
// The client it is given should already be budget-guarded.
type Service struct {
	client          plaid.ClientInterface
	connections     connection.Repository
	documents       ledger.Store
	meter           Meter
	pageSize        int
	enforceCooldown bool
	now             func() time.Time
}

// NewService creates a new sync service
func NewService(
	client plaid.ClientInterface,
	connections connection.Repository,
	documents ledger.Store,
	meter Meter,
	opts Options,
) *Service {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Service{
		client:          client,
		connections:     connections,
		documents:       documents,
		meter:           meter,
		pageSize:        pageSize,
		enforceCooldown: opts.EnforceCooldown,
		now:             time.Now,
	}
}

// BudgetStatus reports this month's usage without consuming anything.
func (s *Service) BudgetStatus(ctx context.Context) (*budget.Status, error) {
	return s.meter.CheckBudget(ctx, 1)
}
