package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"burndown/internal/domain/budget"
	"burndown/internal/domain/connection"
	"burndown/internal/domain/plaidsync"
	"burndown/internal/infrastructure/plaid"
	"burndown/internal/shared/middleware"
)

// PlaidService is what the handler needs from the sync service.
type PlaidService interface {
	CreateLinkToken(ctx context.Context, householdID string) (*plaid.LinkTokenResponse, error)
	ExchangePublicToken(ctx context.Context, householdID, publicToken string, institution plaidsync.Institution) (*connection.Connection, error)
	ListConnections(ctx context.Context, householdID string) ([]connection.View, error)
	Disconnect(ctx context.Context, householdID, connectionID string) error
	ListAccounts(ctx context.Context, householdID string) ([]plaidsync.ConnectionAccounts, error)
	SyncHousehold(ctx context.Context, householdID, connectionID string) (*plaidsync.SyncResult, error)
	BudgetStatus(ctx context.Context) (*budget.Status, error)
}

// PlaidHandler serves the link flow, connection management and sync endpoints.
type PlaidHandler struct {
	service PlaidService
}

func NewPlaidHandler(service PlaidService) *PlaidHandler {
	return &PlaidHandler{service: service}
}

type LinkTokenResponse struct {
	LinkToken  string `json:"linkToken"`
	Expiration string `json:"expiration"`
}

type ExchangeRequest struct {
	PublicToken     string `json:"publicToken"`
	InstitutionID   string `json:"institutionId"`
	InstitutionName string `json:"institutionName"`
}

type SyncRequest struct {
	ConnectionID string `json:"connectionId"`
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Usage   *budget.Status `json:"usage,omitempty"`
}

// HandleLinkToken creates a link token for the household
func (h *PlaidHandler) HandleLinkToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	householdID, ok := requireHousehold(w, r)
	if !ok {
		return
	}

	resp, err := h.service.CreateLinkToken(r.Context(), householdID)
	if err != nil {
		writeServiceError(w, householdID, "create link token", err)
		return
	}

	writeJSON(w, http.StatusOK, LinkTokenResponse{LinkToken: resp.LinkToken, Expiration: resp.Expiration})
}

// HandleExchange finishes the link flow and stores the connection
func (h *PlaidHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	householdID, ok := requireHousehold(w, r)
	if !ok {
		return
	}

	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request body"})
		return
	}
	if req.PublicToken == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "publicToken is required"})
		return
	}

	conn, err := h.service.ExchangePublicToken(r.Context(), householdID, req.PublicToken, plaidsync.Institution{
		ID:   req.InstitutionID,
		Name: req.InstitutionName,
	})
	if err != nil {
		writeServiceError(w, householdID, "exchange public token", err)
		return
	}

	writeJSON(w, http.StatusCreated, conn.View())
}

// HandleConnections lists the household's connections
func (h *PlaidHandler) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	householdID, ok := requireHousehold(w, r)
	if !ok {
		return
	}

	views, err := h.service.ListConnections(r.Context(), householdID)
	if err != nil {
		writeServiceError(w, householdID, "list connections", err)
		return
	}

	writeJSON(w, http.StatusOK, views)
}

// HandleConnectionByID handles DELETE on a single connection
func (h *PlaidHandler) HandleConnectionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	householdID, ok := requireHousehold(w, r)
	if !ok {
		return
	}

	connectionID := r.PathValue("id")
	if connectionID == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Connection ID is required"})
		return
	}

	if err := h.service.Disconnect(r.Context(), householdID, connectionID); err != nil {
		writeServiceError(w, householdID, "disconnect", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAccounts returns live accounts per connection
func (h *PlaidHandler) HandleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	householdID, ok := requireHousehold(w, r)
	if !ok {
		return
	}

	accounts, err := h.service.ListAccounts(r.Context(), householdID)
	if err != nil {
		writeServiceError(w, householdID, "list accounts", err)
		return
	}

	writeJSON(w, http.StatusOK, accounts)
}

// HandleSync runs a sync for the household. An empty body syncs every connection.
func (h *PlaidHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	householdID, ok := requireHousehold(w, r)
	if !ok {
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid request body"})
		return
	}

	result, err := h.service.SyncHousehold(r.Context(), householdID, req.ConnectionID)
	if err != nil {
		writeSyncError(w, householdID, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleBudget reports this month's usage
func (h *PlaidHandler) HandleBudget(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireHousehold(w, r); !ok {
		return
	}

	status, err := h.service.BudgetStatus(r.Context())
	if err != nil {
		log.Printf("Error reading budget status: %v", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to read budget status"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func requireHousehold(w http.ResponseWriter, r *http.Request) (string, bool) {
	householdID, ok := middleware.HouseholdID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return householdID, true
}

// writeSyncError maps sync failures. Upstream errors are 502; local storage
// failures are 500 and their text stays in the log.
func writeSyncError(w http.ResponseWriter, householdID string, err error) {
	if classifyError(w, err) {
		return
	}

	var apiErr *plaid.APIError
	if errors.As(err, &apiErr) {
		log.Printf("Household %s: Sync failed upstream: %v", householdID, err)
		writeError(w, http.StatusBadGateway, ErrorResponse{Error: "sync_failed", Message: apiErr.ErrorMessage})
		return
	}

	log.Printf("Household %s: Sync failed: %v", householdID, err)
	writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to sync"})
}

func writeServiceError(w http.ResponseWriter, householdID, op string, err error) {
	if classifyError(w, err) {
		return
	}

	var apiErr *plaid.APIError
	if errors.As(err, &apiErr) {
		log.Printf("Household %s: Upstream error during %s: %v", householdID, op, err)
		writeError(w, http.StatusBadGateway, ErrorResponse{Error: "upstream_error", Message: apiErr.ErrorMessage})
		return
	}

	log.Printf("Household %s: Failed to %s: %v", householdID, op, err)
	writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to " + op})
}

// classifyError writes the response for known domain errors and reports whether it did.
func classifyError(w http.ResponseWriter, err error) bool {
	var exceeded *budget.ExceededError
	switch {
	case errors.As(err, &exceeded):
		usage := exceeded.Status
		writeError(w, http.StatusTooManyRequests, ErrorResponse{
			Error:   "budget_exceeded",
			Message: "Monthly API call budget exceeded",
			Usage:   &usage,
		})
	case errors.Is(err, connection.ErrConnectionNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Connection not found"})
	case errors.Is(err, plaidsync.ErrNoFinancialData):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "no_financial_data", Message: "No financial data found, initialize your data first"})
	case errors.Is(err, plaidsync.ErrInvalidInput), errors.Is(err, connection.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: err.Error()})
	default:
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
