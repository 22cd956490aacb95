package ledger

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// How a fetched account was resolved against the document.
const (
	ActionMatched = "matched" // already pinned by upstream id
	ActionLinked  = "linked"  // fuzzy name match, now pinned
	ActionCreated = "created"
)

// ErrMissingAccountID is returned when a fetched account carries no upstream id.
var ErrMissingAccountID = errors.New("fetched account has no id")

// FetchedAccount is a provider account reduced to what reconciliation needs.
type FetchedAccount struct {
	ID           string
	Name         string
	OfficialName string
	Subtype      string
	Available    *float64
	Current      *float64
	Limit        *float64
}

// displayName prefers the official name when the institution provides one.
func (a FetchedAccount) displayName() string {
	if a.OfficialName != "" {
		return a.OfficialName
	}
	return a.Name
}

// AccountUpdate summarizes what reconciliation did with one fetched account.
type AccountUpdate struct {
	PlaidAccountID string   `json:"plaidAccountId"`
	EntryID        string   `json:"entryId"`
	Name           string   `json:"name"`
	Kind           string   `json:"kind"` // cash | credit
	Action         string   `json:"action"`
	Balance        float64  `json:"balance"`
	CreditLimit    *float64 `json:"creditLimit,omitempty"`
}

// RoundAmount rounds to cents, half away from zero.
func RoundAmount(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// NewEntryID synthesizes an id for an entry the reconciler creates.
func NewEntryID() string {
	return uuid.NewString()
}

// ReconcileCash folds a depository account into the cash account collection.
// The balance is the available figure when reported, otherwise the current one.
func ReconcileCash(doc *Document, acct FetchedAccount, now time.Time) (*AccountUpdate, error) {
	if acct.ID == "" {
		return nil, ErrMissingAccountID
	}

	balance := 0.0
	switch {
	case acct.Available != nil:
		balance = *acct.Available
	case acct.Current != nil:
		balance = *acct.Current
	}
	balance = RoundAmount(balance)

	entry, action := resolve(doc.CashAccounts, acct)
	if entry == nil {
		entry = newEntry()
		if err := entry.set(fieldID, NewEntryID()); err != nil {
			return nil, err
		}
		if err := entry.set(fieldName, createdName(acct)); err != nil {
			return nil, err
		}
		doc.CashAccounts = append(doc.CashAccounts, entry)
	}

	if err := entry.set(fieldAmount, balance); err != nil {
		return nil, err
	}
	if err := pin(entry, acct.ID, now); err != nil {
		return nil, err
	}

	return &AccountUpdate{
		PlaidAccountID: acct.ID,
		EntryID:        entry.ID(),
		Name:           entry.Name(),
		Kind:           "cash",
		Action:         action,
		Balance:        balance,
	}, nil
}

// ReconcileCredit folds a credit account into the credit card collection.
// Balances are stored as positive amounts owed.
func ReconcileCredit(doc *Document, acct FetchedAccount, now time.Time) (*AccountUpdate, error) {
	if acct.ID == "" {
		return nil, ErrMissingAccountID
	}

	balance := 0.0
	if acct.Current != nil {
		balance = math.Abs(*acct.Current)
	}
	balance = RoundAmount(balance)

	entry, action := resolve(doc.CreditCards, acct)
	if entry == nil {
		entry = newEntry()
		fields := []struct {
			key   string
			value any
		}{
			{fieldID, NewEntryID()},
			{fieldName, createdName(acct)},
			{fieldCreditLimit, 0.0},
			{fieldMinimumPayment, 0.0},
			{fieldAPR, 0.0},
		}
		for _, f := range fields {
			if err := entry.set(f.key, f.value); err != nil {
				return nil, err
			}
		}
		doc.CreditCards = append(doc.CreditCards, entry)
	}

	if err := entry.set(fieldBalance, balance); err != nil {
		return nil, err
	}

	update := &AccountUpdate{
		PlaidAccountID: acct.ID,
		Kind:           "credit",
		Action:         action,
		Balance:        balance,
	}

	if acct.Limit != nil {
		limit := RoundAmount(*acct.Limit)
		if err := entry.set(fieldCreditLimit, limit); err != nil {
			return nil, err
		}
		update.CreditLimit = &limit
	}
	if err := pin(entry, acct.ID, now); err != nil {
		return nil, err
	}

	update.EntryID = entry.ID()
	update.Name = entry.Name()
	return update, nil
}

// resolve finds the entry for acct: an exact upstream id match first, then the
// first unpinned entry, in collection order, whose name appears inside the
// account's display name. Opaque elements are never candidates, and an account
// without an id skips the exact pass.
// A nil entry means a new one must be created.
func resolve(entries []*Entry, acct FetchedAccount) (*Entry, string) {
	if acct.ID != "" {
		for _, e := range entries {
			if !e.Opaque() && e.PlaidAccountID() == acct.ID {
				return e, ActionMatched
			}
		}
	}

	target := strings.ToLower(acct.displayName())
	for _, e := range entries {
		if e.Opaque() || e.PlaidAccountID() != "" {
			continue
		}
		name := strings.ToLower(e.Name())
		if name == "" {
			continue
		}
		if nameMatches(target, name) {
			return e, ActionLinked
		}
	}

	return nil, ActionCreated
}

// nameMatches reports whether the lower-cased entry name is contained in the
// lower-cased account name, either as a substring or word by word
// ("chase checking" matches "chase total checking").
func nameMatches(target, name string) bool {
	if strings.Contains(target, name) {
		return true
	}

	words := make(map[string]struct{})
	for _, w := range strings.Fields(target) {
		words[w] = struct{}{}
	}
	nameWords := strings.Fields(name)
	if len(nameWords) == 0 {
		return false
	}
	for _, w := range nameWords {
		if _, ok := words[w]; !ok {
			return false
		}
	}
	return true
}

func createdName(acct FetchedAccount) string {
	if acct.Subtype != "" {
		return acct.Name + " (" + acct.Subtype + ")"
	}
	return acct.Name
}

func pin(e *Entry, accountID string, now time.Time) error {
	if err := e.set(fieldPlaidAccountID, accountID); err != nil {
		return err
	}
	return e.set(fieldPlaidLastSync, FormatTime(now))
}
