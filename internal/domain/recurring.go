package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RecurringTransaction groups transactions judged to be instances of the same
// recurring charge. It stores no description, amount or date of its own: those
// are read from the most recently appended member, regardless of member dates.
type RecurringTransaction struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	// Members in append order, oldest first.
	Members []Transaction `json:"transactions"`
}

// Latest returns the most recently appended member.
func (r *RecurringTransaction) Latest() (Transaction, bool) {
	if len(r.Members) == 0 {
		return Transaction{}, false
	}
	return r.Members[len(r.Members)-1], true
}

// Description of the last appended member, empty for a group without members.
func (r *RecurringTransaction) Description() string {
	t, _ := r.Latest()
	return t.Description
}

// Amount of the last appended member.
func (r *RecurringTransaction) Amount() decimal.Decimal {
	t, _ := r.Latest()
	return t.Amount
}

// Date of the last appended member.
func (r *RecurringTransaction) Date() time.Time {
	t, _ := r.Latest()
	return t.Date
}

// IsRecurring reports whether the group has matched more than once. Single-member
// groups are only candidates and are hidden from series listings.
func (r *RecurringTransaction) IsRecurring() bool {
	return len(r.Members) > 1
}

// Append adds t as the newest member.
func (r *RecurringTransaction) Append(t Transaction) {
	id := r.ID
	t.RecurringTransactionID = &id
	r.Members = append(r.Members, t)
}

// MarshalJSON includes the derived fields alongside the members.
func (r *RecurringTransaction) MarshalJSON() ([]byte, error) {
	type view struct {
		ID          int64            `json:"id"`
		UserID      int64            `json:"user_id"`
		CreatedAt   time.Time        `json:"created_at"`
		Description string           `json:"description"`
		Amount      *decimal.Decimal `json:"amount,omitempty"`
		Date        *time.Time       `json:"date,omitempty"`
		Count       int              `json:"transaction_count"`
		Members     []Transaction    `json:"transactions"`
	}

	v := view{
		ID:          r.ID,
		UserID:      r.UserID,
		CreatedAt:   r.CreatedAt,
		Description: r.Description(),
		Count:       len(r.Members),
		Members:     r.Members,
	}
	if latest, ok := r.Latest(); ok {
		v.Amount = &latest.Amount
		v.Date = &latest.Date
	}
	if v.Members == nil {
		v.Members = []Transaction{}
	}
	return json.Marshal(v)
}
