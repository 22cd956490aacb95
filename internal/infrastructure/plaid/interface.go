package plaid

import (
	"context"
)

// ClientInterface defines the calls the service makes against the aggregation provider.
// Every method is billable.
type ClientInterface interface {
	CreateLinkToken(ctx context.Context, householdID string) (*LinkTokenResponse, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResponse, error)
	SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*TransactionsSyncResponse, error)
	GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error)
	RemoveItem(ctx context.Context, accessToken string) error
}
