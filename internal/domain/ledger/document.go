// Package ledger holds the household's hand-edited financial document and the
// rules for folding provider accounts into it.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDocumentNotFound is returned by a Store when the household has no document yet.
var ErrDocumentNotFound = errors.New("financial document not found")

const (
	keyCashAccounts = "cashAccounts"
	keyCreditCards  = "creditCards"
	keyPlaidSync    = "plaidSync"
	keyLastSync     = "lastSync"
)

// Document is the household's financial document. Only the cash account and
// credit card collections are decoded; every other top-level key is carried
// through untouched.
type Document struct {
	CashAccounts []*Entry
	CreditCards  []*Entry

	fields map[string]json.RawMessage
}

// NewDocument returns an empty document with both collections present.
func NewDocument() *Document {
	return &Document{
		CashAccounts: []*Entry{},
		CreditCards:  []*Entry{},
		fields:       make(map[string]json.RawMessage),
	}
}

// LastSync returns plaidSync.lastSync, or "" if the document was never synced.
func (d *Document) LastSync() string {
	raw, ok := d.fields[keyPlaidSync]
	if !ok {
		return ""
	}
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(meta[keyLastSync], &s); err != nil {
		return ""
	}
	return s
}

// StampSync sets plaidSync.lastSync, keeping any other keys under plaidSync.
func (d *Document) StampSync(at time.Time) error {
	if d.fields == nil {
		d.fields = make(map[string]json.RawMessage)
	}

	meta := make(map[string]json.RawMessage)
	if raw, ok := d.fields[keyPlaidSync]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("plaidSync is not an object: %w", err)
		}
	}

	stamp, err := json.Marshal(FormatTime(at))
	if err != nil {
		return err
	}
	meta[keyLastSync] = stamp

	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	d.fields[keyPlaidSync] = raw
	return nil
}

func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.fields)+2)
	for k, v := range d.fields {
		out[k] = v
	}
	if d.CashAccounts != nil {
		out[keyCashAccounts] = d.CashAccounts
	}
	if d.CreditCards != nil {
		out[keyCreditCards] = d.CreditCards
	}
	return json.Marshal(out)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	cash, err := decodeEntries(fields, keyCashAccounts)
	if err != nil {
		return err
	}
	credit, err := decodeEntries(fields, keyCreditCards)
	if err != nil {
		return err
	}

	d.CashAccounts = cash
	d.CreditCards = credit
	d.fields = fields
	return nil
}

// decodeEntries pulls one collection out of fields. Elements are decoded one by
// one so that nulls and other non-object values survive as opaque entries
// instead of nil pointers.
func decodeEntries(fields map[string]json.RawMessage, key string) ([]*Entry, error) {
	raw, ok := fields[key]
	if !ok {
		return nil, nil
	}
	delete(fields, key)

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	if elems == nil {
		return nil, nil
	}

	entries := make([]*Entry, 0, len(elems))
	for i, elem := range elems {
		e := &Entry{}
		if err := e.UnmarshalJSON(elem); err != nil {
			return nil, fmt.Errorf("invalid %s[%d]: %w", key, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FormatTime renders timestamps the way the document stores them (ISO-8601, UTC, milliseconds).
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
