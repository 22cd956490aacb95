package plaidsync

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"burndown/internal/domain/connection"
	"burndown/internal/domain/ledger"
	"burndown/internal/infrastructure/plaid"
)

// MockClient implements plaid.ClientInterface
type MockClient struct {
	CreateLinkTokenFunc     func(ctx context.Context, householdID string) (*plaid.LinkTokenResponse, error)
	ExchangePublicTokenFunc func(ctx context.Context, publicToken string) (*plaid.ExchangeResponse, error)
	SyncTransactionsFunc    func(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncResponse, error)
	GetAccountsFunc         func(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error)
	RemoveItemFunc          func(ctx context.Context, accessToken string) error
}

func (m *MockClient) CreateLinkToken(ctx context.Context, householdID string) (*plaid.LinkTokenResponse, error) {
	if m.CreateLinkTokenFunc != nil {
		return m.CreateLinkTokenFunc(ctx, householdID)
	}
	return &plaid.LinkTokenResponse{LinkToken: "link-sandbox-token"}, nil
}

func (m *MockClient) ExchangePublicToken(ctx context.Context, publicToken string) (*plaid.ExchangeResponse, error) {
	if m.ExchangePublicTokenFunc != nil {
		return m.ExchangePublicTokenFunc(ctx, publicToken)
	}
	return &plaid.ExchangeResponse{AccessToken: "access-sandbox-token", ItemID: "item-new"}, nil
}

func (m *MockClient) SyncTransactions(ctx context.Context, accessToken, cursor string, count int) (*plaid.TransactionsSyncResponse, error) {
	if m.SyncTransactionsFunc != nil {
		return m.SyncTransactionsFunc(ctx, accessToken, cursor, count)
	}
	return &plaid.TransactionsSyncResponse{NextCursor: "c1"}, nil
}

func (m *MockClient) GetAccounts(ctx context.Context, accessToken string) (*plaid.AccountsResponse, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, accessToken)
	}
	return &plaid.AccountsResponse{Accounts: []plaid.Account{}}, nil
}

func (m *MockClient) RemoveItem(ctx context.Context, accessToken string) error {
	if m.RemoveItemFunc != nil {
		return m.RemoveItemFunc(ctx, accessToken)
	}
	return nil
}

// memoryConnections implements connection.Repository
type memoryConnections struct {
	mu        sync.Mutex
	conns     map[string]*connection.Connection // householdID/id
	createErr error
}

func newMemoryConnections(conns ...*connection.Connection) *memoryConnections {
	r := &memoryConnections{conns: make(map[string]*connection.Connection)}
	for _, c := range conns {
		r.conns[c.HouseholdID+"/"+c.ID] = c
	}
	return r
}

func (r *memoryConnections) Create(ctx context.Context, params connection.CreateParams) (*connection.Connection, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	c := &connection.Connection{
		HouseholdID:     params.HouseholdID,
		ID:              params.ID,
		AccessToken:     params.AccessToken,
		InstitutionID:   params.InstitutionID,
		InstitutionName: params.InstitutionName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.conns[c.HouseholdID+"/"+c.ID] = c
	return c, nil
}

func (r *memoryConnections) Get(ctx context.Context, householdID, id string) (*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[householdID+"/"+id]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *memoryConnections) ListByHousehold(ctx context.Context, householdID string) ([]*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*connection.Connection
	for _, c := range r.conns {
		if c.HouseholdID == householdID {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryConnections) ListHouseholdIDs(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range r.conns {
		if _, ok := seen[c.HouseholdID]; !ok {
			seen[c.HouseholdID] = struct{}{}
			ids = append(ids, c.HouseholdID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memoryConnections) UpdateCursor(ctx context.Context, householdID, id, cursor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[householdID+"/"+id]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	c.Cursor = cursor
	return nil
}

func (r *memoryConnections) Delete(ctx context.Context, householdID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := householdID + "/" + id
	if _, ok := r.conns[key]; !ok {
		return connection.ErrConnectionNotFound
	}
	delete(r.conns, key)
	return nil
}

func (r *memoryConnections) cursor(householdID, id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[householdID+"/"+id]; ok {
		return c.Cursor
	}
	return ""
}

// memoryDocuments implements ledger.Store, storing documents as JSON like the real stores.
type memoryDocuments struct {
	mu   sync.Mutex
	docs map[string][]byte
	puts int
}

func newMemoryDocuments() *memoryDocuments {
	return &memoryDocuments{docs: make(map[string][]byte)}
}

func (s *memoryDocuments) seed(householdID, raw string) {
	s.docs[householdID] = []byte(raw)
}

func (s *memoryDocuments) Get(ctx context.Context, householdID string) (*ledger.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[householdID]
	if !ok {
		return nil, ledger.ErrDocumentNotFound
	}
	var doc ledger.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *memoryDocuments) Put(ctx context.Context, householdID string, doc *ledger.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	s.docs[householdID] = raw
	s.puts++
	return nil
}

// memoryBudgetStore implements budget.Store
type memoryBudgetStore struct {
	mu       sync.Mutex
	counts   map[string]int64
	lastSync map[string]time.Time
}

func newMemoryBudgetStore() *memoryBudgetStore {
	return &memoryBudgetStore{counts: make(map[string]int64), lastSync: make(map[string]time.Time)}
}

func (s *memoryBudgetStore) GetCallCount(ctx context.Context, month string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[month], nil
}

func (s *memoryBudgetStore) AddCalls(ctx context.Context, month string, n int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[month] += n
	return s.counts[month], nil
}

func (s *memoryBudgetStore) TryAddCalls(ctx context.Context, month string, n, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[month]+n > limit {
		return s.counts[month], false, nil
	}
	s.counts[month] += n
	return s.counts[month], true, nil
}

func (s *memoryBudgetStore) GetLastSync(ctx context.Context, connectionID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSync[connectionID]
	return t, ok, nil
}

func (s *memoryBudgetStore) SetLastSync(ctx context.Context, connectionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync[connectionID] = at
	return nil
}

func (s *memoryBudgetStore) DeleteLastSync(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSync, connectionID)
	return nil
}
