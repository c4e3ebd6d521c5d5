package ingest

import (
	"strings"

	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/feed"
	"github.com/shopspring/decimal"
)

// maxAmount is the exclusive bound of NUMERIC(10,2).
var maxAmount = decimal.New(1, domain.MaxAmountDigits-domain.AmountScale)

// ValidateRecord checks that a feed record can be stored. It returns the first
// problem found as a *domain.ValidationError.
func ValidateRecord(rec feed.Record) error {
	switch {
	case strings.TrimSpace(rec.ExternalID) == "":
		return domain.NewValidationError("external_id", "missing")
	case strings.TrimSpace(rec.Description) == "":
		return domain.NewValidationError("description", "missing")
	case strings.TrimSpace(rec.AccountID) == "":
		return domain.NewValidationError("account_id", "missing")
	case rec.Date.IsZero():
		return domain.NewValidationError("date", "missing")
	case !rec.Amount.Valid:
		return domain.NewValidationError("amount", "missing")
	}

	amount := rec.Amount.Decimal
	if !amount.Equal(amount.Round(domain.AmountScale)) {
		return domain.NewValidationError("amount", "more than 2 decimal places: "+amount.String())
	}
	if amount.Abs().GreaterThanOrEqual(maxAmount) {
		return domain.NewValidationError("amount", "out of range: "+amount.String())
	}

	return nil
}
