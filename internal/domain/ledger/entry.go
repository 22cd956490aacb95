package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Entry field names the reconciler reads or writes.
const (
	fieldID             = "id"
	fieldName           = "name"
	fieldAmount         = "amount"
	fieldBalance        = "balance"
	fieldCreditLimit    = "creditLimit"
	fieldMinimumPayment = "minimumPayment"
	fieldAPR            = "apr"
	fieldPlaidAccountID = "plaidAccountId"
	fieldPlaidLastSync  = "plaidLastSync"
)

// Entry is one cash account or credit card in the household document.
// Fields are kept as raw JSON so that anything the reconciler does not
// own is written back byte for byte. An element that is not a JSON object
// is held verbatim in raw and never reconciled.
type Entry struct {
	fields map[string]json.RawMessage
	raw    json.RawMessage
}

func newEntry() *Entry {
	return &Entry{fields: make(map[string]json.RawMessage)}
}

// ID returns the entry id as text. Numeric ids are returned in their JSON form.
func (e *Entry) ID() string {
	raw, ok := e.fields[fieldID]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// Name returns the user-visible label.
func (e *Entry) Name() string {
	return e.stringField(fieldName)
}

// PlaidAccountID returns the pinned upstream account id, or "" if the entry is unpinned.
func (e *Entry) PlaidAccountID() string {
	return e.stringField(fieldPlaidAccountID)
}

// PlaidLastSync returns the last reconciliation stamp, if any.
func (e *Entry) PlaidLastSync() string {
	return e.stringField(fieldPlaidLastSync)
}

// Number returns a numeric field. Strings holding a number are accepted too.
func (e *Entry) Number(key string) (float64, bool) {
	raw, ok := e.fields[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Has reports whether the field is present.
func (e *Entry) Has(key string) bool {
	_, ok := e.fields[key]
	return ok
}

// Opaque reports whether the element is not an object and is carried through as is.
func (e *Entry) Opaque() bool {
	return e == nil || e.raw != nil
}

func (e *Entry) stringField(key string) string {
	raw, ok := e.fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func (e *Entry) set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	e.fields[key] = raw
	return nil
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.raw != nil {
		return e.raw, nil
	}
	if e.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.fields)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		e.fields = nil
		e.raw = append(json.RawMessage(nil), trimmed...)
		return nil
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	e.fields = fields
	e.raw = nil
	return nil
}
