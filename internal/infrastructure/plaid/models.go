package plaid

import (
	"fmt"
	"strings"
)

// Account types as reported by the provider.
const (
	AccountTypeDepository = "depository"
	AccountTypeCredit     = "credit"
)

// LinkTokenResponse is returned by /link/token/create.
type LinkTokenResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration"`
	RequestID  string `json:"request_id"`
}

// ExchangeResponse is returned by /item/public_token/exchange.
type ExchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
	RequestID   string `json:"request_id"`
}

// TransactionsSyncResponse is one page of /transactions/sync.
type TransactionsSyncResponse struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
	RequestID  string               `json:"request_id"`
}

// Transaction is a single posted or pending transaction.
type Transaction struct {
	TransactionID   string   `json:"transaction_id"`
	AccountID       string   `json:"account_id"`
	Amount          float64  `json:"amount"`
	ISOCurrencyCode *string  `json:"iso_currency_code"`
	Date            string   `json:"date"`
	Name            string   `json:"name"`
	MerchantName    *string  `json:"merchant_name"`
	Pending         bool     `json:"pending"`
	Category        []string `json:"category,omitempty"`
}

// RemovedTransaction identifies a transaction the provider no longer reports.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// AccountsResponse is returned by /accounts/get.
type AccountsResponse struct {
	Accounts  []Account `json:"accounts"`
	Item      *Item     `json:"item,omitempty"`
	RequestID string    `json:"request_id"`
}

// Item describes the connection the accounts belong to.
type Item struct {
	ItemID        string  `json:"item_id"`
	InstitutionID *string `json:"institution_id"`
}

// Account represents an account from /accounts/get
type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName *string  `json:"official_name"`
	Type         string   `json:"type"`
	Subtype      *string  `json:"subtype"`
	Mask         *string  `json:"mask"`
	Balances     Balances `json:"balances"`
}

// Balances holds the provider-reported figures; any of them may be absent.
type Balances struct {
	Available              *float64 `json:"available"`
	Current                *float64 `json:"current"`
	Limit                  *float64 `json:"limit"`
	ISOCurrencyCode        *string  `json:"iso_currency_code"`
	UnofficialCurrencyCode *string  `json:"unofficial_currency_code"`
}

// DisplayName prefers the official name when the institution provides one.
func (a *Account) DisplayName() string {
	if a.OfficialName != nil && *a.OfficialName != "" {
		return *a.OfficialName
	}
	return a.Name
}

// IsDepository reports whether the account is a cash account.
func (a *Account) IsDepository() bool {
	return strings.EqualFold(a.Type, AccountTypeDepository)
}

// IsCredit reports whether the account is a credit card or line of credit.
func (a *Account) IsCredit() bool {
	return strings.EqualFold(a.Type, AccountTypeCredit)
}

// APIError is the provider's error envelope, returned for any non-200 response.
type APIError struct {
	StatusCode     int    `json:"-"`
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaid API error (status %d): %s %s - %s", e.StatusCode, e.ErrorType, e.ErrorCode, e.ErrorMessage)
}
