package plaid

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"burndown/internal/domain/budget"
	"burndown/internal/shared/telemetry"
)

var (
	plaidTracer      = otel.Tracer("burndown/plaid")
	plaidMeter       = otel.Meter("burndown/plaid")
	callsTotal, _    = plaidMeter.Int64Counter("plaid.calls.total", metric.WithDescription("Billable provider calls by operation and status"))
	budgetRejects, _ = plaidMeter.Int64Counter("plaid.budget.rejected", metric.WithDescription("Provider calls refused by the monthly budget"))
)

// Meter is the slice of the budget meter the guarded client needs.
type Meter interface {
	CheckBudget(ctx context.Context, callsNeeded int) (*budget.Status, error)
	IncrementCallCount(ctx context.Context, n int) error
	Reserve(ctx context.Context, n int) (*budget.Status, error)
}

// GuardedClient wraps a ClientInterface so that every call is checked against and
// counted toward the monthly budget. Failed upstream calls are not counted.
//
// In strict mode the check and the count happen in one atomic reserve before the
// call, so concurrent callers can never overshoot the limit. The price is that a
// reserved call which then fails upstream is still counted.
type GuardedClient struct {
	inner  ClientInterface
	meter  Meter
	strict bool
}

var _ ClientInterface = (*GuardedClient)(nil)

// NewGuardedClient creates a budget-guarded client around inner.
func NewGuardedClient(inner ClientInterface, meter Meter, strict bool) *GuardedClient {
	return &GuardedClient{
		inner:  inner,
		meter:  meter,
		strict: strict,
	}
}

func (g *GuardedClient) CreateLinkToken(ctx context.Context, householdID string) (*LinkTokenResponse, error) {
	return guard(ctx, g, "CreateLinkToken", func(ctx context.Context) (*LinkTokenResponse, error) {
		return g.inner.CreateLinkToken(ctx, householdID)
	})
}

func (g *GuardedClient) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error) {
	return guard(ctx, g, "ExchangePublicToken", func(ctx context.Context) (*ExchangeResponse, error) {
		return g.inner.ExchangePublicToken(ctx, publicToken)
	})
}

func (g *GuardedClient) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*TransactionsSyncResponse, error) {
	return guard(ctx, g, "SyncTransactions", func(ctx context.Context) (*TransactionsSyncResponse, error) {
		return g.inner.SyncTransactions(ctx, accessToken, cursor, count)
	})
}

func (g *GuardedClient) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	return guard(ctx, g, "GetAccounts", func(ctx context.Context) (*AccountsResponse, error) {
		return g.inner.GetAccounts(ctx, accessToken)
	})
}

func (g *GuardedClient) RemoveItem(ctx context.Context, accessToken string) error {
	_, err := guard(ctx, g, "RemoveItem", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.RemoveItem(ctx, accessToken)
	})
	return err
}

// guard runs one billable call: check the budget, forward, then count it on success.
func guard[T any](ctx context.Context, g *GuardedClient, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T

	ctx, span := plaidTracer.Start(ctx, "plaid."+op,
		trace.WithAttributes(
			attribute.String("plaid.operation", op),
			attribute.Bool("budget.strict", g.strict),
		),
		trace.WithAttributes(telemetry.HouseholdAttrs(ctx)...),
	)
	defer span.End()

	status, err := g.admit(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}
	if !status.Allowed {
		exceeded := &budget.ExceededError{Operation: op, Status: *status}
		budgetRejects.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
		span.SetStatus(codes.Error, exceeded.Error())
		log.Printf("Budget: blocked %s for household %s (%d/%d used for %s)", op, telemetry.Household(ctx), status.Used, status.Limit, status.Month)
		return zero, exceeded
	}

	result, err := call(ctx)
	if err != nil {
		callsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("status", "error"),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	callsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", "success"),
	))

	if !g.strict {
		// The call already succeeded upstream; a counter failure is logged, not returned.
		if err := g.meter.IncrementCallCount(ctx, 1); err != nil {
			span.RecordError(err)
			log.Printf("Budget: failed to count %s call: %v", op, err)
		}
	}

	return result, nil
}

func (g *GuardedClient) admit(ctx context.Context) (*budget.Status, error) {
	if g.strict {
		status, err := g.meter.Reserve(ctx, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to reserve budget: %w", err)
		}
		return status, nil
	}

	status, err := g.meter.CheckBudget(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to check budget: %w", err)
	}
	return status, nil
}
