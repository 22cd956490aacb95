package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"burndown/internal/domain/ledger"
)

// DocumentStore implements ledger.Store on a JSONB column.
type DocumentStore struct {
	db *DB
}

var _ ledger.Store = (*DocumentStore)(nil)

// NewDocumentStore creates a new PostgreSQL document store
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Get retrieves a household's document
func (s *DocumentStore) Get(ctx context.Context, householdID string) (*ledger.Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM household_documents WHERE household_id = $1`, householdID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	var doc ledger.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

// Put overwrites a household's document
func (s *DocumentStore) Put(ctx context.Context, householdID string, doc *ledger.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	query := `
		INSERT INTO household_documents (household_id, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (household_id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, householdID, string(data)); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}
