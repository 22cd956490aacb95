// Package connection models linked institution connections and their sync cursors.
package connection

import (
	"errors"
	"time"
)

// Domain errors
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// Connection is one linked institution login owned by a household.
// The access token is held in plaintext in memory only; repositories encrypt it at rest.
type Connection struct {
	HouseholdID     string    `json:"householdId"`
	ID              string    `json:"id"`
	AccessToken     string    `json:"-"`
	InstitutionID   string    `json:"institutionId"`
	InstitutionName string    `json:"institutionName"`
	Cursor          string    `json:"cursor,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// View is the public shape of a connection, safe to return to clients.
type View struct {
	ID              string    `json:"id"`
	InstitutionID   string    `json:"institutionId"`
	InstitutionName string    `json:"institutionName"`
	HasSynced       bool      `json:"hasSynced"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// View strips the credential and cursor.
func (c *Connection) View() View {
	return View{
		ID:              c.ID,
		InstitutionID:   c.InstitutionID,
		InstitutionName: c.InstitutionName,
		HasSynced:       c.Cursor != "",
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

// CreateParams contains parameters for creating a new connection
type CreateParams struct {
	HouseholdID     string
	ID              string
	AccessToken     string
	InstitutionID   string
	InstitutionName string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.HouseholdID == "" {
		return errors.New("household ID is required")
	}
	if p.ID == "" {
		return errors.New("connection ID is required")
	}
	if p.AccessToken == "" {
		return errors.New("access token is required")
	}
	return nil
}
