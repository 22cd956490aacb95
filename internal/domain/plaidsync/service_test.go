package plaidsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"burndown/internal/domain/budget"
	"burndown/internal/domain/connection"
	"burndown/internal/domain/ledger"
	"burndown/internal/infrastructure/plaid"
)

const household = "household-1"

var fixedNow = time.Date(2026, time.March, 14, 8, 30, 0, 0, time.UTC)

type testEnv struct {
	service     *Service
	client      *MockClient
	connections *memoryConnections
	documents   *memoryDocuments
	budgetStore *memoryBudgetStore
	meter       *budget.Meter
}

func newTestEnv(opts Options, conns ...*connection.Connection) *testEnv {
	client := &MockClient{}
	connections := newMemoryConnections(conns...)
	documents := newMemoryDocuments()
	budgetStore := newMemoryBudgetStore()
	meter := budget.NewMeter(budgetStore, budget.Config{MonthlyBudget: 10, CostPerCall: 0.10, Cooldown: time.Hour})
	guarded := plaid.NewGuardedClient(client, meter, false)

	service := NewService(guarded, connections, documents, meter, opts)
	service.now = func() time.Time { return fixedNow }

	return &testEnv{
		service:     service,
		client:      client,
		connections: connections,
		documents:   documents,
		budgetStore: budgetStore,
		meter:       meter,
	}
}

func (e *testEnv) used(t *testing.T) int64 {
	t.Helper()
	status, err := e.meter.CheckBudget(context.Background(), 1)
	require.NoError(t, err)
	return status.Used
}

func (e *testEnv) storedDocument(t *testing.T) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.Unmarshal(e.documents.docs[household], &doc))
	return doc
}

func newConnection(id string) *connection.Connection {
	return &connection.Connection{
		HouseholdID:     household,
		ID:              id,
		AccessToken:     "access-" + id,
		InstitutionID:   "ins_1",
		InstitutionName: "First Platypus Bank",
	}
}

func ptr[T any](v T) *T { return &v }

func TestSyncHousehold_EndToEnd(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"))
	env.documents.seed(household, `{"cashAccounts": [], "creditCards": [], "goals": [{"name": "Emergency fund"}]}`)

	env.client.SyncTransactionsFunc = func(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncResponse, error) {
		assert.Equal(t, "access-item-1", accessToken)
		assert.Empty(t, cursor)
		assert.Equal(t, 500, count)
		return &plaid.TransactionsSyncResponse{
			Added:      []plaid.Transaction{{TransactionID: "t1"}, {TransactionID: "t2"}, {TransactionID: "t3"}},
			NextCursor: "c1",
			HasMore:    false,
		}, nil
	}
	env.client.GetAccountsFunc = func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
		return &plaid.AccountsResponse{Accounts: []plaid.Account{
			{
				AccountID: "acc-checking",
				Name:      "Plaid Checking",
				Type:      "depository",
				Subtype:   ptr("checking"),
				Balances:  plaid.Balances{Available: ptr(500.25), Current: ptr(510.0)},
			},
			{
				AccountID: "acc-card",
				Name:      "Plaid Credit Card",
				Type:      "credit",
				Subtype:   ptr("credit card"),
				Balances:  plaid.Balances{Current: ptr(-75.0), Limit: ptr(1000.0)},
			},
		}}, nil
	}

	result, err := env.service.SyncHousehold(context.Background(), household, "")
	require.NoError(t, err)

	assert.Equal(t, "c1", env.connections.cursor(household, "item-1"))
	assert.Equal(t, 2, result.AccountsUpdated)
	require.Len(t, result.Connections, 1)
	assert.Equal(t, 3, result.Connections[0].TransactionsAdded)
	assert.Equal(t, int64(2), env.used(t))

	doc := env.storedDocument(t)
	cash := doc["cashAccounts"].([]any)
	require.Len(t, cash, 1)
	cashEntry := cash[0].(map[string]any)
	assert.Equal(t, 500.25, cashEntry["amount"])
	assert.Equal(t, "Plaid Checking (checking)", cashEntry["name"])
	assert.Equal(t, "acc-checking", cashEntry["plaidAccountId"])

	cards := doc["creditCards"].([]any)
	require.Len(t, cards, 1)
	card := cards[0].(map[string]any)
	assert.Equal(t, 75.0, card["balance"])
	assert.Equal(t, 1000.0, card["creditLimit"])
	assert.Equal(t, 0.0, card["minimumPayment"])
	assert.Equal(t, 0.0, card["apr"])

	assert.Equal(t, map[string]any{"lastSync": "2026-03-14T08:30:00.000Z"}, doc["plaidSync"])
	assert.Len(t, doc["goals"].([]any), 1)
}

func TestSyncHousehold_PersistsLastCursor(t *testing.T) {
	env := newTestEnv(Options{PageSize: 2}, newConnection("item-1"))
	env.documents.seed(household, `{}`)

	var cursors []string
	env.client.SyncTransactionsFunc = func(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncResponse, error) {
		cursors = append(cursors, cursor)
		assert.Equal(t, 2, count)
		if cursor == "" {
			return &plaid.TransactionsSyncResponse{NextCursor: "A", HasMore: true}, nil
		}
		return &plaid.TransactionsSyncResponse{NextCursor: "B", HasMore: false}, nil
	}

	result, err := env.service.SyncHousehold(context.Background(), household, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "A"}, cursors)
	assert.Equal(t, "B", env.connections.cursor(household, "item-1"))
	assert.Equal(t, 2, result.Connections[0].Pages)
	assert.Equal(t, int64(3), env.used(t), "two pages plus one accounts call")
}

func TestSyncHousehold_ResumesFromStoredCursor(t *testing.T) {
	conn := newConnection("item-1")
	conn.Cursor = "c7"
	env := newTestEnv(Options{}, conn)
	env.documents.seed(household, `{}`)

	env.client.SyncTransactionsFunc = func(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncResponse, error) {
		assert.Equal(t, "c7", cursor)
		return &plaid.TransactionsSyncResponse{NextCursor: "c8"}, nil
	}

	_, err := env.service.SyncHousehold(context.Background(), household, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "c8", env.connections.cursor(household, "item-1"))
}

func TestSyncHousehold_MissingDocument(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"))
	env.client.SyncTransactionsFunc = func(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncResponse, error) {
		t.Error("no upstream call expected without a document")
		return nil, errors.New("unexpected")
	}

	_, err := env.service.SyncHousehold(context.Background(), household, "")
	assert.ErrorIs(t, err, ErrNoFinancialData)
	assert.Zero(t, env.used(t))
}

func TestSyncHousehold_UnknownConnection(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"))
	env.documents.seed(household, `{}`)

	_, err := env.service.SyncHousehold(context.Background(), household, "item-404")
	assert.ErrorIs(t, err, connection.ErrConnectionNotFound)
}

func TestSyncHousehold_AbortsWithoutWritingDocument(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"), newConnection("item-2"))
	original := `{"cashAccounts": [{"id": "x", "name": "Checking", "amount": 1}]}`
	env.documents.seed(household, original)

	env.client.GetAccountsFunc = func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
		if accessToken == "access-item-2" {
			return nil, &plaid.APIError{StatusCode: 400, ErrorType: "ITEM_ERROR", ErrorCode: "ITEM_LOGIN_REQUIRED"}
		}
		return &plaid.AccountsResponse{Accounts: []plaid.Account{
			{AccountID: "acc-1", Name: "Checking", Type: "depository", Balances: plaid.Balances{Available: ptr(99.0)}},
		}}, nil
	}

	_, err := env.service.SyncHousehold(context.Background(), household, "")
	require.Error(t, err)

	var apiErr *plaid.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Zero(t, env.documents.puts)
	assert.JSONEq(t, original, string(env.documents.docs[household]))

	_, recorded, _ := env.budgetStore.GetLastSync(context.Background(), "item-1")
	assert.False(t, recorded, "cooldown must not start for a sync that was not saved")
}

func TestSyncHousehold_BudgetExhausted(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"))
	env.documents.seed(household, `{}`)
	env.budgetStore.counts[budget.MonthKey(time.Now())] = 100

	called := false
	env.client.SyncTransactionsFunc = func(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncResponse, error) {
		called = true
		return &plaid.TransactionsSyncResponse{}, nil
	}

	_, err := env.service.SyncHousehold(context.Background(), household, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, budget.ErrBudgetExceeded)
	assert.False(t, called)

	var exceeded *budget.ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, int64(100), exceeded.Status.Limit)
}

func TestSyncHousehold_CooldownSkipsRecentConnections(t *testing.T) {
	env := newTestEnv(Options{EnforceCooldown: true}, newConnection("item-1"))
	env.documents.seed(household, `{}`)

	_, err := env.service.SyncHousehold(context.Background(), household, "")
	require.NoError(t, err)
	usedAfterFirst := env.used(t)

	result, err := env.service.SyncHousehold(context.Background(), household, "")
	require.NoError(t, err)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "item-1", result.Skipped[0].ConnectionID)
	assert.Greater(t, result.Skipped[0].WaitMs, int64(0))
	assert.Equal(t, usedAfterFirst, env.used(t))
	assert.Equal(t, 1, env.documents.puts)
}

func TestSyncHousehold_IgnoresOtherAccountTypes(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"))
	env.documents.seed(household, `{}`)
	env.client.GetAccountsFunc = func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
		return &plaid.AccountsResponse{Accounts: []plaid.Account{
			{AccountID: "acc-inv", Name: "Brokerage", Type: "investment", Balances: plaid.Balances{Current: ptr(1e4)}},
		}}, nil
	}

	result, err := env.service.SyncHousehold(context.Background(), household, "")
	require.NoError(t, err)
	assert.Zero(t, result.AccountsUpdated)
}

func TestSyncHousehold_IgnoresAccountsWithoutID(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"))
	original := `{"cashAccounts": [{"id": "a", "name": "Savings", "amount": 10}]}`
	env.documents.seed(household, original)
	env.client.GetAccountsFunc = func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
		return &plaid.AccountsResponse{Accounts: []plaid.Account{
			{AccountID: "", Name: "Totally Unrelated", Type: "depository", Balances: plaid.Balances{Current: ptr(500.0)}},
		}}, nil
	}

	result, err := env.service.SyncHousehold(context.Background(), household, "")
	require.NoError(t, err)
	assert.Zero(t, result.AccountsUpdated)

	cash := env.storedDocument(t)["cashAccounts"].([]any)
	require.Len(t, cash, 1)
	entry := cash[0].(map[string]any)
	assert.Equal(t, 10.0, entry["amount"])
	assert.NotContains(t, entry, "plaidAccountId")
}

func TestListAccounts_IsolatesFailures(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"), newConnection("item-2"))
	env.client.GetAccountsFunc = func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
		if accessToken == "access-item-1" {
			return nil, errors.New("institution down")
		}
		return &plaid.AccountsResponse{Accounts: []plaid.Account{{AccountID: "acc-2", Name: "Savings", Type: "depository"}}}, nil
	}

	results, err := env.service.ListAccounts(context.Background(), household)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "item-1", results[0].ConnectionID)
	assert.Contains(t, results[0].Error, "institution down")
	assert.Empty(t, results[0].Accounts)

	assert.Empty(t, results[1].Error)
	require.Len(t, results[1].Accounts, 1)
	assert.Equal(t, "acc-2", results[1].Accounts[0].AccountID)
	assert.Equal(t, int64(1), env.used(t), "failed calls are not billed")
}

func TestExchangePublicToken(t *testing.T) {
	env := newTestEnv(Options{})

	conn, err := env.service.ExchangePublicToken(context.Background(), household, "public-sandbox", Institution{ID: "ins_3", Name: "Chase"})
	require.NoError(t, err)
	assert.Equal(t, "item-new", conn.ID)
	assert.Empty(t, conn.Cursor)

	stored, err := env.connections.Get(context.Background(), household, "item-new")
	require.NoError(t, err)
	assert.Equal(t, "access-sandbox-token", stored.AccessToken)
	assert.Equal(t, "Chase", stored.InstitutionName)

	_, err = env.service.ExchangePublicToken(context.Background(), household, "", Institution{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExchangePublicToken_RevokesItemWhenSaveFails(t *testing.T) {
	env := newTestEnv(Options{})
	env.connections.createErr = errors.New("database unavailable")

	var revoked string
	env.client.RemoveItemFunc = func(ctx context.Context, accessToken string) error {
		revoked = accessToken
		return nil
	}

	_, err := env.service.ExchangePublicToken(context.Background(), household, "public-sandbox", Institution{ID: "ins_3", Name: "Chase"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database unavailable")
	assert.Equal(t, "access-sandbox-token", revoked)

	_, err = env.connections.Get(context.Background(), household, "item-new")
	assert.ErrorIs(t, err, connection.ErrConnectionNotFound)
}

func TestListConnections(t *testing.T) {
	env := newTestEnv(Options{}, newConnection("item-1"))

	views, err := env.service.ListConnections(context.Background(), household)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "item-1", views[0].ID)
	assert.False(t, views[0].HasSynced)
}

func TestDisconnect(t *testing.T) {
	tests := []struct {
		name      string
		removeErr error
		exhausted bool
	}{
		{name: "upstream succeeds"},
		{name: "upstream fails", removeErr: errors.New("item already removed")},
		{name: "budget exhausted", exhausted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(Options{}, newConnection("item-1"))
			env.client.RemoveItemFunc = func(ctx context.Context, accessToken string) error {
				return tt.removeErr
			}
			if tt.exhausted {
				env.budgetStore.counts[budget.MonthKey(time.Now())] = 100
			}
			require.NoError(t, env.meter.RecordSyncTime(context.Background(), "item-1"))

			err := env.service.Disconnect(context.Background(), household, "item-1")
			require.NoError(t, err)

			_, err = env.connections.Get(context.Background(), household, "item-1")
			assert.ErrorIs(t, err, connection.ErrConnectionNotFound)

			cooldown, err := env.meter.CheckCooldown(context.Background(), "item-1")
			require.NoError(t, err)
			assert.True(t, cooldown.Allowed)
		})
	}
}

func TestDisconnect_NotFound(t *testing.T) {
	env := newTestEnv(Options{})

	err := env.service.Disconnect(context.Background(), household, "item-404")
	assert.ErrorIs(t, err, connection.ErrConnectionNotFound)
}

func TestBudgetStatus(t *testing.T) {
	env := newTestEnv(Options{})
	env.budgetStore.counts[budget.MonthKey(time.Now())] = 40

	status, err := env.service.BudgetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, int64(40), status.Used)
	assert.Equal(t, int64(60), status.Remaining)

	// Reading the status never consumes budget.
	assert.Equal(t, int64(40), env.used(t))
}

func TestSyncResult_JSONShape(t *testing.T) {
	result := &SyncResult{
		AccountsUpdated: 1,
		Updates:         []*ledger.AccountUpdate{{PlaidAccountID: "acc-1", Kind: "cash", Action: ledger.ActionCreated}},
		Skipped:         []SkippedConnection{},
		Document:        ledger.NewDocument(),
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Contains(t, got, "accountsUpdated")
	assert.Contains(t, got, "updates")
	assert.Contains(t, got, "skipped")
	assert.Contains(t, got, "data")
}
