// Package plaid talks to the bank-data aggregation provider.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout       = 60 * time.Second
	linkTokenPath        = "/link/token/create"
	exchangePath         = "/item/public_token/exchange"
	transactionsSyncPath = "/transactions/sync"
	accountsPath         = "/accounts/get"
	itemRemovePath       = "/item/remove"
)

// Config carries credentials and link defaults for the provider.
type Config struct {
	BaseURL      string
	ClientID     string
	Secret       string
	ClientName   string
	Products     []string
	CountryCodes []string
}

// Client handles communication with the provider API
type Client struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	secret       string
	clientName   string
	products     []string
	countryCodes []string
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new provider API client
func NewClient(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		secret:       cfg.Secret,
		clientName:   cfg.ClientName,
		products:     cfg.Products,
		countryCodes: cfg.CountryCodes,
	}
}

type linkTokenRequest struct {
	ClientName   string        `json:"client_name"`
	Language     string        `json:"language"`
	CountryCodes []string      `json:"country_codes"`
	Products     []string      `json:"products"`
	User         linkTokenUser `json:"user"`
}

type linkTokenUser struct {
	ClientUserID string `json:"client_user_id"`
}

// CreateLinkToken creates a short-lived token the browser uses to open the link flow.
func (c *Client) CreateLinkToken(ctx context.Context, householdID string) (*LinkTokenResponse, error) {
	req := linkTokenRequest{
		ClientName:   c.clientName,
		Language:     "en",
		CountryCodes: c.countryCodes,
		Products:     c.products,
		User:         linkTokenUser{ClientUserID: householdID},
	}

	var resp LinkTokenResponse
	if err := c.post(ctx, linkTokenPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExchangePublicToken trades a link-flow public token for a long-lived access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error) {
	req := map[string]string{"public_token": publicToken}

	var resp ExchangeResponse
	if err := c.post(ctx, exchangePath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type transactionsSyncRequest struct {
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// SyncTransactions fetches one page of changes since cursor. An empty cursor starts from the beginning.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*TransactionsSyncResponse, error) {
	req := transactionsSyncRequest{
		AccessToken: accessToken,
		Cursor:      cursor,
		Count:       count,
	}

	var resp TransactionsSyncResponse
	if err := c.post(ctx, transactionsSyncPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccounts fetches the accounts and balances of a connection.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	req := map[string]string{"access_token": accessToken}

	var resp AccountsResponse
	if err := c.post(ctx, accountsPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveItem revokes the access token upstream.
func (c *Client) RemoveItem(ctx context.Context, accessToken string) error {
	req := map[string]string{"access_token": accessToken}
	return c.post(ctx, itemRemovePath, req, nil)
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PLAID-CLIENT-ID", c.clientID)
	req.Header.Set("PLAID-SECRET", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.ErrorType == "" {
			return fmt.Errorf("API request to %s failed with status %d: %s", path, resp.StatusCode, string(respBody))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
