package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/finance-ledger/internal/bigquery"
)

// Re-export row types and the interface from the shared package.
type (
	SnapshotRepository     = bq.SnapshotRepository
	DebtSnapshotRow        = bq.DebtSnapshotRow
	TransactionSnapshotRow = bq.TransactionSnapshotRow
	ExportRunRow           = bq.ExportRunRow
)

// Table names inside the dataset.
const (
	exportRunsTable   = "export_runs"
	debtsTable        = "debt_snapshots"
	transactionsTable = "transaction_snapshots"
	dateFormat        = "2006-01-02"
)

// BigQuerySnapshotRepository is the concrete implementation of SnapshotRepository.
// It holds a shared BigQuery client to avoid creating a new connection for each operation.
type BigQuerySnapshotRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQuerySnapshotRepository creates a repository writing to projectID.datasetID.
func NewBigQuerySnapshotRepository(ctx context.Context, projectID, datasetID string) (*BigQuerySnapshotRepository, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewBigQuerySnapshotRepository: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySnapshotRepository: creating client: %w", err)
	}
	return &BigQuerySnapshotRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQuerySnapshotRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *BigQuerySnapshotRepository) dataset() dataset {
	return dataset{client: r.client, projectID: r.projectID, datasetID: r.datasetID}
}

// StartExportRun delegates to StartExportRunWithClient.
func (r *BigQuerySnapshotRepository) StartExportRun(ctx context.Context) (string, error) {
	return StartExportRunWithClient(ctx, r.dataset())
}

// MarkExportRunFailed delegates to MarkExportRunFailedWithClient.
func (r *BigQuerySnapshotRepository) MarkExportRunFailed(ctx context.Context, exportRunID string, exportErr error) {
	MarkExportRunFailedWithClient(ctx, r.dataset(), exportRunID, exportErr)
}

// MarkExportRunSucceeded delegates to MarkExportRunSucceededWithClient.
func (r *BigQuerySnapshotRepository) MarkExportRunSucceeded(ctx context.Context, exportRunID string, debts, transactions int) error {
	return MarkExportRunSucceededWithClient(ctx, r.dataset(), exportRunID, debts, transactions)
}

// InsertDebtSnapshots delegates to InsertDebtSnapshotsWithClient.
func (r *BigQuerySnapshotRepository) InsertDebtSnapshots(ctx context.Context, rows []*DebtSnapshotRow) error {
	return InsertDebtSnapshotsWithClient(ctx, r.dataset(), rows)
}

// InsertTransactionSnapshots delegates to InsertTransactionSnapshotsWithClient.
func (r *BigQuerySnapshotRepository) InsertTransactionSnapshots(ctx context.Context, rows []*TransactionSnapshotRow) error {
	return InsertTransactionSnapshotsWithClient(ctx, r.dataset(), rows)
}

// QueryTransactionsByDateRange delegates to QueryTransactionsByDateRangeWithClient.
func (r *BigQuerySnapshotRepository) QueryTransactionsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*TransactionSnapshotRow, error) {
	return QueryTransactionsByDateRangeWithClient(ctx, r.dataset(), startDate, endDate)
}

// dataset bundles a client with the fully qualified dataset it writes to.
type dataset struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

func (d dataset) table(name string) *bigquery.Table {
	return d.client.DatasetInProject(d.projectID, d.datasetID).Table(name)
}

// ref returns a backquoted `project.dataset.table` for queries.
func (d dataset) ref(name string) string {
	return "`" + d.projectID + "." + d.datasetID + "." + name + "`"
}

var _ SnapshotRepository = (*BigQuerySnapshotRepository)(nil)
