package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"burndown/internal/domain/budget"
	"burndown/internal/domain/plaidsync"
)

// HouseholdSyncer runs a full sync for one household.
type HouseholdSyncer interface {
	SyncHousehold(ctx context.Context, householdID, connectionID string) (*plaidsync.SyncResult, error)
}

// HouseholdLister enumerates households that have linked institutions.
type HouseholdLister interface {
	ListHouseholdIDs(ctx context.Context) ([]string, error)
}

// HouseholdSyncJob syncs every connection of one household.
type HouseholdSyncJob struct {
	householdID string
	syncer      HouseholdSyncer
}

func NewHouseholdSyncJob(householdID string, syncer HouseholdSyncer) *HouseholdSyncJob {
	return &HouseholdSyncJob{householdID: householdID, syncer: syncer}
}

// Execute runs the sync. Households without a document and an exhausted
// budget are logged and not treated as failures.
func (j *HouseholdSyncJob) Execute(ctx context.Context) error {
	log.Printf("Starting scheduled sync for household %s", j.householdID)

	result, err := j.syncer.SyncHousehold(ctx, j.householdID, "")
	switch {
	case errors.Is(err, budget.ErrBudgetExceeded):
		log.Printf("Household %s: skipped, %v", j.householdID, err)
		return nil
	case errors.Is(err, plaidsync.ErrNoFinancialData):
		log.Printf("Household %s: skipped, no financial data", j.householdID)
		return nil
	case err != nil:
		return fmt.Errorf("sync failed: %w", err)
	}

	log.Printf("Household %s: sync completed, accounts updated=%d, connections=%d, skipped=%d",
		j.householdID, result.AccountsUpdated, len(result.Connections), len(result.Skipped))
	return nil
}

func (j *HouseholdSyncJob) HouseholdID() string {
	return j.householdID
}

func (j *HouseholdSyncJob) Description() string {
	return fmt.Sprintf("Plaid sync for household %s", j.householdID)
}

// NewHouseholdJobProvider builds one sync job per household with a connection.
func NewHouseholdJobProvider(lister HouseholdLister, syncer HouseholdSyncer) JobProvider {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := lister.ListHouseholdIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list households: %w", err)
		}

		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, NewHouseholdSyncJob(id, syncer))
		}
		return jobs, nil
	}
}
