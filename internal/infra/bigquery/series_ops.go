package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

const (
	seriesTable       = "recurring_series"
	transactionsTable = "recurring_series_transactions"
)

// Dataset identifies where exports are written.
type Dataset struct {
	ProjectID string
	DatasetID string
}

func (d Dataset) qualified(table string) string {
	return "`" + d.ProjectID + "." + d.DatasetID + "." + table + "`"
}

// EnsureTableWithClient creates the table with schema, partitioned daily on
// exported_ts, unless it already exists.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, table string, schema bigquery.Schema) error {
	t := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(table)

	_, err := t.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: reading %s metadata: %w", table, err)
	}

	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "exported_ts",
		},
	}
	if err := t.Create(ctx, meta); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
			return nil
		}
		return fmt.Errorf("EnsureTable: creating %s: %w", table, err)
	}
	return nil
}

// InsertSeriesWithClient streams series rows into <dataset>.recurring_series.
func InsertSeriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*RecurringSeriesRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, r := range rows {
		savers = append(savers, &bigquery.StructSaver{Struct: r, Schema: seriesSchema, InsertID: r.insertID()})
	}

	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(seriesTable).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertSeries: inserting rows: %w", err)
	}
	return nil
}

// InsertTransactionsWithClient streams member rows into
// <dataset>.recurring_series_transactions.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, r := range rows {
		savers = append(savers, &bigquery.StructSaver{Struct: r, Schema: transactionSchema, InsertID: r.insertID()})
	}

	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(transactionsTable).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// LatestSeriesWithClient returns the rows of the user's most recent export
// snapshot ordered by series id.
func LatestSeriesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID int64) ([]*RecurringSeriesRow, error) {
	table := ds.qualified(seriesTable)
	q := client.Query(`
		SELECT
			series_id,
			user_id,
			description,
			amount,
			first_date,
			last_date,
			transaction_count,
			member_ids,
			series_created_ts,
			exported_ts
		FROM ` + table + `
		WHERE user_id = @user_id
		  AND exported_ts = (SELECT MAX(exported_ts) FROM ` + table + ` WHERE user_id = @user_id)
		ORDER BY series_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LatestSeries: query read: %w", err)
	}

	var rows []*RecurringSeriesRow
	for {
		var r RecurringSeriesRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LatestSeries: iter next: %w", err)
		}
		rows = append(rows, &r)
	}

	return rows, nil
}
