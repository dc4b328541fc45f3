package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// InsertDebtSnapshotsWithClient inserts a batch of DebtSnapshotRow into debt_snapshots.
func InsertDebtSnapshotsWithClient(ctx context.Context, d dataset, rows []*DebtSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := d.table(debtsTable).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertDebtSnapshots: inserting rows: %w", err)
	}
	return nil
}

// InsertTransactionSnapshotsWithClient inserts a batch of TransactionSnapshotRow into
// transaction_snapshots.
func InsertTransactionSnapshotsWithClient(ctx context.Context, d dataset, rows []*TransactionSnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := d.table(transactionsTable).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("InsertTransactionSnapshots: inserting rows: %w", err)
	}
	return nil
}

// QueryTransactionsByDateRangeWithClient queries the transactions of the latest successful
// export run within the specified date range.
func QueryTransactionsByDateRangeWithClient(ctx context.Context, d dataset, startDate, endDate time.Time) ([]*TransactionSnapshotRow, error) {
	q := d.client.Query(fmt.Sprintf(`
		WITH latest AS (
			SELECT export_run_id
			FROM %s
			WHERE status = 'SUCCESS'
			ORDER BY finished_ts DESC
			LIMIT 1
		)
		SELECT
			t.export_run_id,
			t.sheet_row,
			t.transaction_date,
			t.booking_datetime,
			t.direction,
			t.category,
			t.location,
			t.currency,
			t.amount,
			t.rate_used,
			t.usd_equivalent,
			t.description,
			t.exported_ts
		FROM %s t
		INNER JOIN latest l
		  ON t.export_run_id = l.export_run_id
		WHERE t.transaction_date >= @start_date
		  AND t.transaction_date <= @end_date
		ORDER BY t.transaction_date, t.sheet_row
	`, d.ref(exportRunsTable), d.ref(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*TransactionSnapshotRow
	for {
		var r TransactionSnapshotRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}
