package plaidsync

import (
	"context"
	"fmt"
	"log"

	"burndown/internal/infrastructure/plaid"
)

// ConnectionAccounts is the accounts listing for one connection. Error is set,
// and Accounts empty, when that connection could not be read.
type ConnectionAccounts struct {
	ConnectionID    string          `json:"connectionId"`
	InstitutionName string          `json:"institutionName"`
	Accounts        []plaid.Account `json:"accounts"`
	Error           string          `json:"error,omitempty"`
}

// ListAccounts fetches live accounts for every connection of a household.
// A failing connection is reported inline and does not hide its siblings.
func (s *Service) ListAccounts(ctx context.Context, householdID string) ([]ConnectionAccounts, error) {
	conns, err := s.connections.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	results := make([]ConnectionAccounts, 0, len(conns))
	for _, conn := range conns {
		entry := ConnectionAccounts{
			ConnectionID:    conn.ID,
			InstitutionName: conn.InstitutionName,
			Accounts:        []plaid.Account{},
		}

		resp, err := s.client.GetAccounts(ctx, conn.AccessToken)
		if err != nil {
			log.Printf("Household %s: Failed to get accounts for %s: %v", householdID, conn.ID, err)
			entry.Error = err.Error()
		} else {
			entry.Accounts = resp.Accounts
		}

		results = append(results, entry)
	}

	return results, nil
}
