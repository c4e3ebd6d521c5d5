package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one transaction as delivered by the upstream aggregator.
type Record struct {
	ExternalID  string              `json:"external_id"`
	Description string              `json:"description"`
	Amount      decimal.NullDecimal `json:"amount"`
	Date        time.Time           `json:"date"`
	AccountID   string              `json:"account_id"`
}

// ErrMalformed wraps every Decode failure.
var ErrMalformed = errors.New("malformed feed")

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// rawRecord accepts the loose shapes aggregators send: numeric or string ids,
// numeric or string amounts, and several date layouts.
type rawRecord struct {
	ExternalID  flexString          `json:"external_id"`
	Description string              `json:"description"`
	Amount      decimal.NullDecimal `json:"amount"`
	Date        string              `json:"date"`
	AccountID   flexString          `json:"account_id"`
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// Decode parses a feed document. Both a bare JSON array of records and the
// wrapped form {"transactions": [...]} are accepted.
func Decode(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("Decode: empty document: %w", ErrMalformed)
	}

	var raws []rawRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("Decode: unmarshal records: %w: %w", ErrMalformed, err)
		}
	} else {
		var env struct {
			Transactions []rawRecord `json:"transactions"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("Decode: unmarshal envelope: %w: %w", ErrMalformed, err)
		}
		raws = env.Transactions
	}

	records := make([]Record, 0, len(raws))
	for i, raw := range raws {
		rec, err := raw.toRecord()
		if err != nil {
			return nil, fmt.Errorf("Decode: record %d (%s): %w: %w", i, raw.ExternalID, ErrMalformed, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// DecodeRecord parses a single JSON record object.
func DecodeRecord(data []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("DecodeRecord: %w: %w", ErrMalformed, err)
	}
	rec, err := raw.toRecord()
	if err != nil {
		return Record{}, fmt.Errorf("DecodeRecord: %w: %w", ErrMalformed, err)
	}
	return rec, nil
}

func (raw rawRecord) toRecord() (Record, error) {
	date, err := parseDate(raw.Date)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ExternalID:  strings.TrimSpace(string(raw.ExternalID)),
		Description: raw.Description,
		Amount:      raw.Amount,
		Date:        date,
		AccountID:   strings.TrimSpace(string(raw.AccountID)),
	}, nil
}

// parseDate returns the zero time for an empty string; ingestion rejects it later.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Encode writes records in the wrapped form.
func Encode(records []Record) ([]byte, error) {
	type out struct {
		ExternalID  string              `json:"external_id"`
		Description string              `json:"description"`
		Amount      decimal.NullDecimal `json:"amount"`
		Date        string              `json:"date"`
		AccountID   string              `json:"account_id"`
	}
	env := struct {
		Transactions []out `json:"transactions"`
	}{Transactions: make([]out, 0, len(records))}

	for _, r := range records {
		env.Transactions = append(env.Transactions, out{
			ExternalID:  r.ExternalID,
			Description: r.Description,
			Amount:      r.Amount,
			Date:        r.Date.Format(time.RFC3339),
			AccountID:   r.AccountID,
		})
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("Encode: %w", err)
	}
	return data, nil
}
