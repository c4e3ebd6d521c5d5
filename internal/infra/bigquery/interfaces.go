// Package bigquery exports recurring series to a BigQuery dataset for
// analytics. The relational store stays the source of truth; exports are
// append-only snapshots keyed by exported_ts.
package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/txn-recurrence/internal/domain"
	"github.com/dvloznov/txn-recurrence/internal/logger"
)

// SeriesWarehouse is the export surface used by the CLI.
type SeriesWarehouse interface {
	ExportRecurringSeries(ctx context.Context, userID int64, series []*domain.RecurringTransaction) (int, error)
	LatestSeries(ctx context.Context, userID int64) ([]*RecurringSeriesRow, error)
	DeleteUserExports(ctx context.Context, userID int64) error
	Close() error
}

// SeriesExporter writes series snapshots through a shared BigQuery client.
type SeriesExporter struct {
	client *bigquery.Client
	ds     Dataset
	now    func() time.Time
}

// NewSeriesExporter creates an exporter with its own client for projectID.
func NewSeriesExporter(ctx context.Context, projectID, datasetID string) (*SeriesExporter, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewSeriesExporter: creating client: %w", err)
	}
	return NewSeriesExporterWithClient(client, Dataset{ProjectID: projectID, DatasetID: datasetID}), nil
}

// NewSeriesExporterWithClient creates an exporter around an existing client.
func NewSeriesExporterWithClient(client *bigquery.Client, ds Dataset) *SeriesExporter {
	return &SeriesExporter{
		client: client,
		ds:     ds,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the BigQuery client connection.
func (e *SeriesExporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// ExportRecurringSeries writes one snapshot of the user's series and their
// members and returns the number of series rows written. Both tables are
// created on first use.
func (e *SeriesExporter) ExportRecurringSeries(ctx context.Context, userID int64, series []*domain.RecurringTransaction) (int, error) {
	log := logger.FromContext(ctx)

	if err := EnsureTableWithClient(ctx, e.client, e.ds, seriesTable, seriesSchema); err != nil {
		return 0, err
	}
	if err := EnsureTableWithClient(ctx, e.client, e.ds, transactionsTable, transactionSchema); err != nil {
		return 0, err
	}

	exportedAt := e.now()
	seriesRows := SeriesRows(userID, series, exportedAt)
	if err := InsertSeriesWithClient(ctx, e.client, e.ds, seriesRows); err != nil {
		return 0, err
	}
	txRows := TransactionRows(userID, series, exportedAt)
	if err := InsertTransactionsWithClient(ctx, e.client, e.ds, txRows); err != nil {
		return 0, err
	}

	log.Info().
		Int64("user_id", userID).
		Int("series", len(seriesRows)).
		Int("transactions", len(txRows)).
		Time("exported_ts", exportedAt).
		Msg("exported recurring series")

	return len(seriesRows), nil
}

// LatestSeries delegates to LatestSeriesWithClient.
func (e *SeriesExporter) LatestSeries(ctx context.Context, userID int64) ([]*RecurringSeriesRow, error) {
	return LatestSeriesWithClient(ctx, e.client, e.ds, userID)
}

// DeleteUserExports delegates to DeleteUserExportsWithClient.
func (e *SeriesExporter) DeleteUserExports(ctx context.Context, userID int64) error {
	return DeleteUserExportsWithClient(ctx, e.client, e.ds, userID)
}

var _ SeriesWarehouse = (*SeriesExporter)(nil)
