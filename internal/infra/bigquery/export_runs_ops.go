package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/google/uuid"
)

// StartExportRunWithClient inserts a new row into export_runs with status=RUNNING
// and returns the generated export_run_id.
func StartExportRunWithClient(ctx context.Context, d dataset) (string, error) {
	exportRunID := uuid.NewString()

	q := d.client.Query(fmt.Sprintf(`
		INSERT %s (
			export_run_id,
			started_ts,
			status
		)
		VALUES (
			@export_run_id,
			@started_ts,
			@status
		)
	`, d.ref(exportRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "export_run_id", Value: exportRunID},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: "RUNNING"},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartExportRun: %w", err)
	}
	return exportRunID, nil
}

// MarkExportRunFailedWithClient sets status=FAILED, finished_ts and error_message.
// Failures are only logged: the export already failed.
func MarkExportRunFailedWithClient(ctx context.Context, d dataset, exportRunID string, exportErr error) {
	log := logger.FromContext(ctx)

	errMsg := ""
	if exportErr != nil {
		errMsg = exportErr.Error()
		const maxLen = 2000
		if len(errMsg) > maxLen {
			errMsg = errMsg[:maxLen]
		}
	}

	q := d.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE export_run_id = @export_run_id
	`, d.ref(exportRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "FAILED"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: errMsg},
		{Name: "export_run_id", Value: exportRunID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("export_run_id", exportRunID).
			Msg("MarkExportRunFailed: update failed")
	}
}

// MarkExportRunSucceededWithClient sets status=SUCCESS, finished_ts and the row counts.
func MarkExportRunSucceededWithClient(ctx context.Context, d dataset, exportRunID string, debts, transactions int) error {
	q := d.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    debt_rows = @debt_rows,
		    transaction_rows = @transaction_rows
		WHERE export_run_id = @export_run_id
	`, d.ref(exportRunsTable)))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: "SUCCESS"},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "debt_rows", Value: int64(debts)},
		{Name: "transaction_rows", Value: int64(transactions)},
		{Name: "export_run_id", Value: exportRunID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkExportRunSucceeded: %w", err)
	}
	return nil
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
