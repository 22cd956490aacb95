package ledger

import "context"

// Store persists one document per household as a whole. There is no
// optimistic concurrency; the last Put wins.
type Store interface {
	// Get returns the household's document, or ErrDocumentNotFound
	Get(ctx context.Context, householdID string) (*Document, error)

	// Put overwrites the household's document
	Put(ctx context.Context, householdID string, doc *Document) error
}
