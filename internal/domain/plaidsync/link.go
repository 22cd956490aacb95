package plaidsync

import (
	"context"
	"fmt"
	"log"

	"burndown/internal/domain/connection"
	"burndown/internal/infrastructure/plaid"
)

// Institution identifies the bank the user picked in the link flow.
type Institution struct {
	ID   string `json:"institutionId"`
	Name string `json:"institutionName"`
}

// CreateLinkToken starts the link flow for a household.
func (s *Service) CreateLinkToken(ctx context.Context, householdID string) (*plaid.LinkTokenResponse, error) {
	if householdID == "" {
		return nil, fmt.Errorf("%w: household ID is required", ErrInvalidInput)
	}
	return s.client.CreateLinkToken(ctx, householdID)
}

// ExchangePublicToken finishes the link flow and stores the new connection with no cursor.
func (s *Service) ExchangePublicToken(ctx context.Context, householdID, publicToken string, institution Institution) (*connection.Connection, error) {
	if householdID == "" || publicToken == "" {
		return nil, fmt.Errorf("%w: household ID and public token are required", ErrInvalidInput)
	}

	resp, err := s.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}

	conn, err := s.connections.Create(ctx, connection.CreateParams{
		HouseholdID:     householdID,
		ID:              resp.ItemID,
		AccessToken:     resp.AccessToken,
		InstitutionID:   institution.ID,
		InstitutionName: institution.Name,
	})
	if err != nil {
		if rmErr := s.client.RemoveItem(ctx, resp.AccessToken); rmErr != nil {
			log.Printf("Household %s: Failed to revoke unsaved item %s: %v", householdID, resp.ItemID, rmErr)
		} else {
			log.Printf("Household %s: Revoked unsaved item %s", householdID, resp.ItemID)
		}
		return nil, fmt.Errorf("failed to save connection: %w", err)
	}

	log.Printf("Household %s: Linked %s (%s)", householdID, conn.ID, institution.Name)
	return conn, nil
}

// ListConnections returns the household's connections without credentials.
func (s *Service) ListConnections(ctx context.Context, householdID string) ([]connection.View, error) {
	conns, err := s.connections.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	views := make([]connection.View, 0, len(conns))
	for _, c := range conns {
		views = append(views, c.View())
	}
	return views, nil
}

// Disconnect revokes the connection upstream and deletes it locally. Upstream
// revocation is best effort: any failure, budget exhaustion included, is logged
// and the local delete still happens.
func (s *Service) Disconnect(ctx context.Context, householdID, connectionID string) error {
	conn, err := s.connections.Get(ctx, householdID, connectionID)
	if err != nil {
		return err
	}

	if err := s.client.RemoveItem(ctx, conn.AccessToken); err != nil {
		log.Printf("Household %s: Failed to revoke %s upstream, deleting locally anyway: %v", householdID, conn.ID, err)
	}

	if err := s.connections.Delete(ctx, householdID, connectionID); err != nil {
		return err
	}

	if err := s.meter.ClearCooldown(ctx, connectionID); err != nil {
		log.Printf("Household %s: Failed to clear cooldown for %s: %v", householdID, connectionID, err)
	}

	log.Printf("Household %s: Disconnected %s", householdID, connectionID)
	return nil
}
