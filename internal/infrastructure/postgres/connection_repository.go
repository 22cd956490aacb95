package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"burndown/internal/domain/connection"
)

// TokenCipher encrypts access tokens at rest, bound to the row that owns them.
type TokenCipher interface {
	Encrypt(plaintext, owner string) (string, error)
	Decrypt(ciphertext, owner string) (string, error)
}

// tokenOwner is the value an access token is bound to.
func tokenOwner(householdID, id string) string {
	return householdID + "/" + id
}

// ConnectionRepository implements the connection.Repository interface for PostgreSQL
type ConnectionRepository struct {
	db     *DB
	cipher TokenCipher
}

var _ connection.Repository = (*ConnectionRepository)(nil)

// NewConnectionRepository creates a new PostgreSQL connection repository
func NewConnectionRepository(db *DB, cipher TokenCipher) *ConnectionRepository {
	return &ConnectionRepository{db: db, cipher: cipher}
}

// Create stores a new connection. Re-linking the same item replaces its
// credential and resets the cursor.
func (r *ConnectionRepository) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", connection.ErrInvalidInput, err)
	}

	token, err := r.cipher.Encrypt(params.AccessToken, tokenOwner(params.HouseholdID, params.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	query := `
		INSERT INTO plaid_connections (household_id, id, access_token, institution_id, institution_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (household_id, id) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    institution_id = EXCLUDED.institution_id,
		    institution_name = EXCLUDED.institution_name,
		    sync_cursor = NULL,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`

	conn := &connection.Connection{
		HouseholdID:     params.HouseholdID,
		ID:              params.ID,
		AccessToken:     params.AccessToken,
		InstitutionID:   params.InstitutionID,
		InstitutionName: params.InstitutionName,
	}

	err = r.db.QueryRowContext(ctx, query,
		params.HouseholdID, params.ID, token, params.InstitutionID, params.InstitutionName,
	).Scan(&conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	return conn, nil
}

// Get retrieves one connection
func (r *ConnectionRepository) Get(ctx context.Context, householdID, id string) (*connection.Connection, error) {
	query := `
		SELECT household_id, id, access_token, institution_id, institution_name, sync_cursor, created_at, updated_at
		FROM plaid_connections
		WHERE household_id = $1 AND id = $2
	`

	conn, err := r.scan(r.db.QueryRowContext(ctx, query, householdID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ListByHousehold retrieves all connections of a household
func (r *ConnectionRepository) ListByHousehold(ctx context.Context, householdID string) ([]*connection.Connection, error) {
	query := `
		SELECT household_id, id, access_token, institution_id, institution_name, sync_cursor, created_at, updated_at
		FROM plaid_connections
		WHERE household_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		conn, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return conns, nil
}

// ListHouseholdIDs returns every household with at least one connection
func (r *ConnectionRepository) ListHouseholdIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT household_id FROM plaid_connections ORDER BY household_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list households: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan household: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating households: %w", err)
	}

	return ids, nil
}

// UpdateCursor stores the latest sync cursor
func (r *ConnectionRepository) UpdateCursor(ctx context.Context, householdID, id, cursor string) error {
	query := `
		UPDATE plaid_connections
		SET sync_cursor = $3, updated_at = NOW()
		WHERE household_id = $1 AND id = $2
	`

	result, err := r.db.ExecContext(ctx, query, householdID, id, cursor)
	if err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}
	return requireAffected(result, connection.ErrConnectionNotFound)
}

// Delete removes a connection
func (r *ConnectionRepository) Delete(ctx context.Context, householdID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM plaid_connections WHERE household_id = $1 AND id = $2`, householdID, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return requireAffected(result, connection.ErrConnectionNotFound)
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *ConnectionRepository) scan(row scanner) (*connection.Connection, error) {
	var conn connection.Connection
	var token string
	var cursor sql.NullString

	err := row.Scan(
		&conn.HouseholdID, &conn.ID, &token, &conn.InstitutionID, &conn.InstitutionName,
		&cursor, &conn.CreatedAt, &conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conn.AccessToken, err = r.cipher.Decrypt(token, tokenOwner(conn.HouseholdID, conn.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token for %s: %w", conn.ID, err)
	}
	if cursor.Valid {
		conn.Cursor = cursor.String
	}

	return &conn, nil
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
