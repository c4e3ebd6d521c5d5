package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountScale is the fixed number of fractional digits stored for amounts (NUMERIC(10,2)).
const AmountScale = 2

// MaxAmountDigits is the total number of digits a stored amount may carry.
const MaxAmountDigits = 10

// Transaction is a single financial event imported from the aggregator feed.
// It is immutable once created, except for RecurringTransactionID which the
// recurrence matcher sets when the transaction joins a series.
type Transaction struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	AccountID string `json:"account_id"`

	// ExternalID is the aggregator-assigned id. Unique per user.
	ExternalID string `json:"external_id"`

	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`

	RecurringTransactionID *int64 `json:"recurring_transaction_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// InSeries reports whether the transaction already belongs to a recurring series.
func (t *Transaction) InSeries() bool {
	return t.RecurringTransactionID != nil
}
