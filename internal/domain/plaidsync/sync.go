package plaidsync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"burndown/internal/domain/connection"
	"burndown/internal/domain/ledger"
	"burndown/internal/infrastructure/plaid"
	"burndown/internal/shared/telemetry"
)

// SyncResult contains the results of a sync operation
type SyncResult struct {
	HouseholdID     string                  `json:"-"`
	AccountsUpdated int                     `json:"accountsUpdated"`
	Updates         []*ledger.AccountUpdate `json:"updates"`
	Connections     []ConnectionResult      `json:"connections"`
	Skipped         []SkippedConnection     `json:"skipped"`
	Document        *ledger.Document        `json:"data"`
}

// ConnectionResult reports what the transaction pull did for one connection.
type ConnectionResult struct {
	ConnectionID        string `json:"connectionId"`
	InstitutionName     string `json:"institutionName"`
	Pages               int    `json:"pages"`
	TransactionsAdded   int    `json:"transactionsAdded"`
	TransactionsChanged int    `json:"transactionsModified"`
	TransactionsRemoved int    `json:"transactionsRemoved"`
}

// SkippedConnection is a connection left alone because it synced too recently.
type SkippedConnection struct {
	ConnectionID    string `json:"connectionId"`
	InstitutionName string `json:"institutionName"`
	WaitMs          int64  `json:"waitMs"`
}

// SyncHousehold syncs every connection of a household, or only connectionID when
// it is non-empty. Connections are processed one after another; the first failure
// aborts the whole sync before the document is written.
func (s *Service) SyncHousehold(ctx context.Context, householdID, connectionID string) (*SyncResult, error) {
	ctx = telemetry.WithHousehold(ctx, householdID)
	ctx, span := syncTracer.Start(ctx, "plaidsync.SyncHousehold",
		trace.WithAttributes(
			attribute.String("household.id", householdID),
			attribute.String("connection.id", connectionID),
		),
	)
	defer span.End()

	result, err := s.syncHousehold(ctx, householdID, connectionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("sync.accounts_updated", result.AccountsUpdated))
	return result, nil
}

func (s *Service) syncHousehold(ctx context.Context, householdID, connectionID string) (*SyncResult, error) {
	if householdID == "" {
		return nil, fmt.Errorf("%w: household ID is required", ErrInvalidInput)
	}

	conns, err := s.loadConnections(ctx, householdID, connectionID)
	if err != nil {
		return nil, err
	}

	doc, err := s.documents.Get(ctx, householdID)
	if err != nil {
		if errors.Is(err, ledger.ErrDocumentNotFound) {
			return nil, ErrNoFinancialData
		}
		return nil, fmt.Errorf("failed to load financial document: %w", err)
	}

	result := &SyncResult{
		HouseholdID: householdID,
		Updates:     []*ledger.AccountUpdate{},
		Connections: []ConnectionResult{},
		Skipped:     []SkippedConnection{},
		Document:    doc,
	}

	log.Printf("Household %s: Syncing %d connection(s)", householdID, len(conns))

	var synced []string
	for _, conn := range conns {
		if s.enforceCooldown {
			cooldown, err := s.meter.CheckCooldown(ctx, conn.ID)
			if err != nil {
				return nil, err
			}
			if !cooldown.Allowed {
				log.Printf("Household %s: Skipping %s, synced recently (wait %dms)", householdID, conn.ID, cooldown.WaitMs)
				result.Skipped = append(result.Skipped, SkippedConnection{
					ConnectionID:    conn.ID,
					InstitutionName: conn.InstitutionName,
					WaitMs:          cooldown.WaitMs,
				})
				continue
			}
		}

		if err := s.syncConnection(ctx, conn, doc, result); err != nil {
			log.Printf("Household %s: Sync aborted at connection %s: %v", householdID, conn.ID, err)
			return nil, fmt.Errorf("connection %s: %w", conn.ID, err)
		}
		synced = append(synced, conn.ID)
	}

	if len(conns) > 0 && len(synced) == 0 {
		return result, nil
	}

	if err := doc.StampSync(s.now()); err != nil {
		return nil, fmt.Errorf("failed to stamp document: %w", err)
	}
	if err := s.documents.Put(ctx, householdID, doc); err != nil {
		return nil, fmt.Errorf("failed to save financial document: %w", err)
	}

	// Cooldown starts only once the document holding the new balances is saved.
	for _, id := range synced {
		if err := s.meter.RecordSyncTime(ctx, id); err != nil {
			log.Printf("Household %s: Failed to record sync time for %s: %v", householdID, id, err)
		}
	}

	result.AccountsUpdated = len(result.Updates)
	accountsUpdatedTotal.Add(ctx, int64(result.AccountsUpdated))

	log.Printf("Household %s: Sync complete - Accounts updated: %d, Skipped: %d",
		householdID, result.AccountsUpdated, len(result.Skipped))

	return result, nil
}

func (s *Service) loadConnections(ctx context.Context, householdID, connectionID string) ([]*connection.Connection, error) {
	if connectionID != "" {
		conn, err := s.connections.Get(ctx, householdID, connectionID)
		if err != nil {
			return nil, err
		}
		return []*connection.Connection{conn}, nil
	}

	conns, err := s.connections.ListByHousehold(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return conns, nil
}

// syncConnection drains the transaction cursor, stores it, then reconciles balances into doc.
func (s *Service) syncConnection(ctx context.Context, conn *connection.Connection, doc *ledger.Document, result *SyncResult) error {
	pull := ConnectionResult{
		ConnectionID:    conn.ID,
		InstitutionName: conn.InstitutionName,
	}

	cursor := conn.Cursor
	for {
		page, err := s.client.SyncTransactions(ctx, conn.AccessToken, cursor, s.pageSize)
		if err != nil {
			return fmt.Errorf("failed to sync transactions: %w", err)
		}

		pull.Pages++
		pull.TransactionsAdded += len(page.Added)
		pull.TransactionsChanged += len(page.Modified)
		pull.TransactionsRemoved += len(page.Removed)
		cursor = page.NextCursor

		if !page.HasMore {
			break
		}
	}

	if cursor != "" {
		if err := s.connections.UpdateCursor(ctx, conn.HouseholdID, conn.ID, cursor); err != nil {
			return fmt.Errorf("failed to save cursor: %w", err)
		}
	}

	log.Printf("Household %s: Connection %s pulled %d page(s), %d added, %d modified, %d removed",
		conn.HouseholdID, conn.ID, pull.Pages, pull.TransactionsAdded, pull.TransactionsChanged, pull.TransactionsRemoved)

	accounts, err := s.client.GetAccounts(ctx, conn.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to get accounts: %w", err)
	}

	now := s.now()
	for _, acct := range accounts.Accounts {
		if acct.AccountID == "" {
			log.Printf("Household %s: Ignoring %s account %q with no id", conn.HouseholdID, acct.Type, acct.Name)
			continue
		}
		fetched := toFetched(acct)

		var update *ledger.AccountUpdate
		switch {
		case acct.IsDepository():
			update, err = ledger.ReconcileCash(doc, fetched, now)
		case acct.IsCredit():
			update, err = ledger.ReconcileCredit(doc, fetched, now)
		default:
			log.Printf("Household %s: Ignoring %s account %s", conn.HouseholdID, acct.Type, acct.AccountID)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to reconcile account %s: %w", acct.AccountID, err)
		}

		result.Updates = append(result.Updates, update)
		log.Printf("Household %s: %s %s entry %s for account %s",
			conn.HouseholdID, update.Action, update.Kind, update.EntryID, acct.AccountID)
	}

	result.Connections = append(result.Connections, pull)
	return nil
}

func toFetched(acct plaid.Account) ledger.FetchedAccount {
	fetched := ledger.FetchedAccount{
		ID:        acct.AccountID,
		Name:      acct.Name,
		Available: acct.Balances.Available,
		Current:   acct.Balances.Current,
		Limit:     acct.Balances.Limit,
	}
	if acct.OfficialName != nil {
		fetched.OfficialName = *acct.OfficialName
	}
	if acct.Subtype != nil {
		fetched.Subtype = *acct.Subtype
	}
	return fetched
}
