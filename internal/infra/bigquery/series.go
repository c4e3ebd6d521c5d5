package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/txn-recurrence/internal/domain"
)

// RecurringSeriesRow is one recurring series in a user's export snapshot.
type RecurringSeriesRow struct {
	SeriesID int64 `bigquery:"series_id"` // REQUIRED
	UserID   int64 `bigquery:"user_id"`   // REQUIRED

	Description string   `bigquery:"description"` // REQUIRED, latest member's
	Amount      *big.Rat `bigquery:"amount"`      // REQUIRED NUMERIC

	FirstDate civil.Date `bigquery:"first_date"` // REQUIRED
	LastDate  civil.Date `bigquery:"last_date"`  // REQUIRED

	TransactionCount int64   `bigquery:"transaction_count"` // REQUIRED
	MemberIDs        []int64 `bigquery:"member_ids"`        // REPEATED INT64, append order

	SeriesCreatedTS time.Time `bigquery:"series_created_ts"` // REQUIRED
	ExportedTS      time.Time `bigquery:"exported_ts"`       // REQUIRED, partition column
}

// insertID lets BigQuery drop duplicate rows when a streaming insert is retried.
func (r *RecurringSeriesRow) insertID() string {
	return fmt.Sprintf("%d-%d-%d", r.UserID, r.SeriesID, r.ExportedTS.UnixMicro())
}

// SeriesRows maps series onto export rows stamped with exportedAt. Series
// without members are skipped.
func SeriesRows(userID int64, series []*domain.RecurringTransaction, exportedAt time.Time) []*RecurringSeriesRow {
	rows := make([]*RecurringSeriesRow, 0, len(series))
	for _, s := range series {
		if len(s.Members) == 0 {
			continue
		}

		first := s.Members[0].Date
		ids := make([]int64, 0, len(s.Members))
		for _, t := range s.Members {
			ids = append(ids, t.ID)
			if t.Date.Before(first) {
				first = t.Date
			}
		}

		rows = append(rows, &RecurringSeriesRow{
			SeriesID:         s.ID,
			UserID:           userID,
			Description:      s.Description(),
			Amount:           s.Amount().Rat(),
			FirstDate:        civil.DateOf(first),
			LastDate:         civil.DateOf(s.Date()),
			TransactionCount: int64(len(s.Members)),
			MemberIDs:        ids,
			SeriesCreatedTS:  s.CreatedAt,
			ExportedTS:       exportedAt,
		})
	}
	return rows
}

// seriesSchema is inferred once from RecurringSeriesRow.
var seriesSchema = func() bigquery.Schema {
	schema, err := bigquery.InferSchema(RecurringSeriesRow{})
	if err != nil {
		panic(fmt.Sprintf("bigquery: inferring recurring series schema: %v", err))
	}
	return schema
}()
