package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteUserExportsWithClient removes every exported row of a user, member
// rows first. Rows still in the streaming buffer cannot be deleted by DML, so
// a delete right after an export may fail and should be retried later.
func DeleteUserExportsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, userID int64) error {
	if err := deleteByUser(ctx, client, ds, transactionsTable, userID); err != nil {
		return fmt.Errorf("DeleteUserExports: deleting transactions: %w", err)
	}

	if err := deleteByUser(ctx, client, ds, seriesTable, userID); err != nil {
		return fmt.Errorf("DeleteUserExports: deleting series: %w", err)
	}

	return nil
}

func deleteByUser(ctx context.Context, client *bigquery.Client, ds Dataset, table string, userID int64) error {
	q := client.Query(`
		DELETE FROM ` + ds.qualified(table) + `
		WHERE user_id = @user_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
