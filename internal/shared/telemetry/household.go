package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
)

// HouseholdKey is the baggage member and span attribute naming the household a request acts for.
const HouseholdKey = "household.id"

// WithHousehold records the household in the context baggage so spans started
// further down (storage, upstream calls) can be attributed to it.
func WithHousehold(ctx context.Context, householdID string) context.Context {
	if householdID == "" {
		return ctx
	}
	member, err := baggage.NewMemberRaw(HouseholdKey, householdID)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// Household returns the household recorded by WithHousehold, or "".
func Household(ctx context.Context) string {
	return baggage.FromContext(ctx).Member(HouseholdKey).Value()
}

// HouseholdAttrs returns the household span attribute, or nothing when none is recorded.
func HouseholdAttrs(ctx context.Context) []attribute.KeyValue {
	if id := Household(ctx); id != "" {
		return []attribute.KeyValue{attribute.String(HouseholdKey, id)}
	}
	return nil
}
