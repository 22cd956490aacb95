package connection

import "context"

// Repository defines the interface for connection data access.
// Every lookup is scoped by household; (householdID, id) is unique.
type Repository interface {
	// Create stores a new connection with an empty cursor
	Create(ctx context.Context, params CreateParams) (*Connection, error)

	// Get retrieves one connection, or ErrConnectionNotFound
	Get(ctx context.Context, householdID, id string) (*Connection, error)

	// ListByHousehold retrieves all connections of a household, oldest first
	ListByHousehold(ctx context.Context, householdID string) ([]*Connection, error)

	// ListHouseholdIDs returns every household that has at least one connection
	ListHouseholdIDs(ctx context.Context) ([]string, error)

	// UpdateCursor stores the latest sync cursor
	UpdateCursor(ctx context.Context, householdID, id, cursor string) error

	// Delete removes a connection, or returns ErrConnectionNotFound
	Delete(ctx context.Context, householdID, id string) error
}
