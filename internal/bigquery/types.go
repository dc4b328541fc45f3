package bigquery

import (
	"context"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// SnapshotRepository provides an interface for the analytics mirror of the spreadsheet.
type SnapshotRepository interface {
	// StartExportRun inserts a new export run with status=RUNNING and returns the export_run_id.
	StartExportRun(ctx context.Context) (string, error)

	// MarkExportRunFailed sets status=FAILED, finished_ts and error_message for an export run.
	MarkExportRunFailed(ctx context.Context, exportRunID string, exportErr error)

	// MarkExportRunSucceeded sets status=SUCCESS, finished_ts and the row counts.
	MarkExportRunSucceeded(ctx context.Context, exportRunID string, debts, transactions int) error

	// InsertDebtSnapshots inserts a batch of DebtSnapshotRow.
	InsertDebtSnapshots(ctx context.Context, rows []*DebtSnapshotRow) error

	// InsertTransactionSnapshots inserts a batch of TransactionSnapshotRow.
	InsertTransactionSnapshots(ctx context.Context, rows []*TransactionSnapshotRow) error

	// QueryTransactionsByDateRange returns the transactions of the latest successful export
	// whose date is within the range.
	QueryTransactionsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*TransactionSnapshotRow, error)
}

// DebtSnapshotRow is one debt record as of an export run.
type DebtSnapshotRow struct {
	ExportRunID string `bigquery:"export_run_id"` // REQUIRED
	DebtID      string `bigquery:"debt_id"`       // REQUIRED
	SheetRow    int64  `bigquery:"sheet_row"`

	PurchaseDate bigquery.NullDate `bigquery:"purchase_date"`
	Description  string            `bigquery:"description"`

	TotalAmount     *big.Rat `bigquery:"total_amount"`     // NUMERIC
	PaidAmount      *big.Rat `bigquery:"paid_amount"`      // NUMERIC
	RemainingAmount *big.Rat `bigquery:"remaining_amount"` // NUMERIC

	Status   string            `bigquery:"status"`
	Line     string            `bigquery:"line"`
	Imported bool              `bigquery:"imported"`
	NextDue  bigquery.NullDate `bigquery:"next_due_date"`
	Source   string            `bigquery:"source"`

	ExportedTS time.Time `bigquery:"exported_ts"`
}

// TransactionSnapshotRow is one transaction log row as of an export run.
type TransactionSnapshotRow struct {
	ExportRunID string `bigquery:"export_run_id"` // REQUIRED
	SheetRow    int64  `bigquery:"sheet_row"`

	TransactionDate civil.Date            `bigquery:"transaction_date"`
	BookingDatetime bigquery.NullDateTime `bigquery:"booking_datetime"`

	Direction string `bigquery:"direction"`
	Category  string `bigquery:"category"`
	Location  string `bigquery:"location"`
	Currency  string `bigquery:"currency"`

	Amount        *big.Rat             `bigquery:"amount"` // NUMERIC, negative for expenses
	RateUsed      bigquery.NullFloat64 `bigquery:"rate_used"`
	USDEquivalent *big.Rat             `bigquery:"usd_equivalent"` // NUMERIC

	Description string `bigquery:"description"`

	ExportedTS time.Time `bigquery:"exported_ts"`
}

// ExportRunRow represents an export run record in BigQuery.
type ExportRunRow struct {
	ExportRunID string `bigquery:"export_run_id"`

	StartedTS  time.Time              `bigquery:"started_ts"`
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"`

	Status       string `bigquery:"status"`
	ErrorMessage string `bigquery:"error_message"`

	DebtRows        bigquery.NullInt64 `bigquery:"debt_rows"`
	TransactionRows bigquery.NullInt64 `bigquery:"transaction_rows"`
}
