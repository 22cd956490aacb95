// Package budget meters billable calls to the aggregation provider.
package budget

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrBudgetExceeded matches any *ExceededError via errors.Is.
var ErrBudgetExceeded = errors.New("monthly API call budget exceeded")

// Status is a point-in-time view of the current month's counter.
type Status struct {
	Allowed   bool   `json:"allowed"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Month     string `json:"month"`
}

// CooldownStatus reports whether a connection may be synced again.
type CooldownStatus struct {
	Allowed bool  `json:"allowed"`
	WaitMs  int64 `json:"waitMs"`
}

// ExceededError is returned by the guarded client when a call would overrun the quota.
type ExceededError struct {
	Operation string
	Status    Status
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%s: %s blocked (used %d of %d for %s, %d remaining)",
		ErrBudgetExceeded, e.Operation, e.Status.Used, e.Status.Limit, e.Status.Month, e.Status.Remaining)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrBudgetExceeded
}

// Config holds the operator-tunable quota settings.
type Config struct {
	MonthlyBudget float64 // dollars
	CostPerCall   float64 // dollars
	Cooldown      time.Duration
}

// CallLimit is floor(monthlyBudget / costPerCall). A non-positive cost yields zero calls.
func CallLimit(monthlyBudget, costPerCall float64) int64 {
	cost := decimal.NewFromFloat(costPerCall)
	if !cost.IsPositive() {
		return 0
	}
	limit := decimal.NewFromFloat(monthlyBudget).Div(cost).Floor()
	if limit.IsNegative() {
		return 0
	}
	return limit.IntPart()
}

// MonthKey formats the counter key for t, e.g. "2026-10".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
