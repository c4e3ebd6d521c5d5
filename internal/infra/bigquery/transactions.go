package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/txn-recurrence/internal/domain"
)

// TransactionRow is one member transaction of an exported series.
type TransactionRow struct {
	TransactionID int64 `bigquery:"transaction_id"` // REQUIRED
	SeriesID      int64 `bigquery:"series_id"`      // REQUIRED
	UserID        int64 `bigquery:"user_id"`        // REQUIRED

	ExternalID string              `bigquery:"external_id"` // REQUIRED
	AccountID  bigquery.NullString `bigquery:"account_id"`  // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC

	RawDescription string `bigquery:"raw_description"` // REQUIRED

	// SeriesPosition is the 1-based append position inside the series.
	SeriesPosition int64 `bigquery:"series_position"`

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED, partition column
}

func (r *TransactionRow) insertID() string {
	return fmt.Sprintf("%d-%d-%d", r.UserID, r.TransactionID, r.ExportedTS.UnixMicro())
}

// TransactionRows flattens the members of every series, keeping append order.
func TransactionRows(userID int64, series []*domain.RecurringTransaction, exportedAt time.Time) []*TransactionRow {
	var rows []*TransactionRow
	for _, s := range series {
		for i, t := range s.Members {
			rows = append(rows, &TransactionRow{
				TransactionID:   t.ID,
				SeriesID:        s.ID,
				UserID:          userID,
				ExternalID:      t.ExternalID,
				AccountID:       bigquery.NullString{StringVal: t.AccountID, Valid: t.AccountID != ""},
				TransactionDate: civil.DateOf(t.Date),
				Amount:          t.Amount.Rat(),
				RawDescription:  t.Description,
				SeriesPosition:  int64(i + 1),
				ExportedTS:      exportedAt,
			})
		}
	}
	return rows
}

var transactionSchema = func() bigquery.Schema {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		panic(fmt.Sprintf("bigquery: inferring transaction schema: %v", err))
	}
	return schema
}()
