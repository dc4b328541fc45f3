package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/finance-ledger/internal/backup"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/export"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/notionsync"
	"github.com/rs/zerolog"
)

// Exporter runs one BigQuery export.
type Exporter interface {
	Export(ctx context.Context) (export.Result, error)
}

// BackupWriter snapshots tables to Cloud Storage.
type BackupWriter interface {
	Tables(ctx context.Context, tables ...backup.Table) ([]backup.Snapshot, error)
}

// Notion holds what sync_notion needs. Transactions are synced only when
// TransactionsDatabaseID and Transactions are both set.
type Notion struct {
	Client                 notionsync.NotionService
	Debts                  notionsync.DebtLister
	DebtsDatabaseID        string
	Transactions           notionsync.TransactionQuerier
	TransactionsDatabaseID string
	Days                   int
}

// Handler runs jobs against the configured integrations. A nil integration makes its
// job type fail with domain.ErrInvalidInput.
type Handler struct {
	Exporter     Exporter
	Backup       BackupWriter
	BackupTables []backup.Table
	Notion       *Notion

	Now func() time.Time
	Log zerolog.Logger
}

// Handle implements JobHandler.
func (h *Handler) Handle(ctx context.Context, job *Job) error {
	log := h.Log.With().Str("job_id", job.JobID).Str("type", string(job.Type)).Logger()
	ctx = logger.WithContext(ctx, log)
	log.Info().Int("retry_count", job.RetryCount).Msg("Processing job")

	var (
		summary string
		err     error
	)
	switch job.Type {
	case JobTypeExportBigQuery:
		summary, err = h.export(ctx)
	case JobTypeBackupTables:
		summary, err = h.backup(ctx)
	case JobTypeSyncNotion:
		summary, err = h.syncNotion(ctx, job.Params)
	default:
		err = fmt.Errorf("Handle: unknown job type %q: %w", job.Type, domain.ErrInvalidInput)
	}
	if err != nil {
		return err
	}
	job.Result = summary
	return nil
}

func (h *Handler) export(ctx context.Context) (string, error) {
	if h.Exporter == nil {
		return "", fmt.Errorf("export: BigQuery is not configured: %w", domain.ErrInvalidInput)
	}
	res, err := h.Exporter.Export(ctx)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return fmt.Sprintf("run %s: %d debts, %d transactions, %d skipped",
		res.ExportRunID, res.Debts, res.Transactions, res.Skipped), nil
}

func (h *Handler) backup(ctx context.Context) (string, error) {
	if h.Backup == nil {
		return "", fmt.Errorf("backup: Cloud Storage is not configured: %w", domain.ErrInvalidInput)
	}
	snaps, err := h.Backup.Tables(ctx, h.BackupTables...)
	if err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	rows := 0
	for _, s := range snaps {
		rows += s.Rows
	}
	return fmt.Sprintf("%d tables, %d rows", len(snaps), rows), nil
}

func (h *Handler) syncNotion(ctx context.Context, p Params) (string, error) {
	n := h.Notion
	if n == nil || n.Client == nil || n.DebtsDatabaseID == "" {
		return "", fmt.Errorf("syncNotion: Notion is not configured: %w", domain.ErrInvalidInput)
	}
	debts, err := notionsync.SyncDebts(ctx, n.Debts, n.Client, n.DebtsDatabaseID, p.DryRun)
	if err != nil {
		return "", fmt.Errorf("syncNotion: %w", err)
	}
	summary := fmt.Sprintf("debts: %d created, %d updated, %d deleted, %d failed",
		debts.Created, debts.Updated, debts.Deleted, debts.Failed)

	if n.Transactions == nil || n.TransactionsDatabaseID == "" {
		return summary, nil
	}
	days := p.Days
	if days <= 0 {
		days = n.Days
	}
	if days <= 0 {
		days = 30
	}
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	end := now().UTC()
	start := end.AddDate(0, 0, -days)
	txs, err := notionsync.SyncTransactions(ctx, n.Transactions, n.Client, n.TransactionsDatabaseID, start, end, p.DryRun)
	if err != nil {
		return "", fmt.Errorf("syncNotion: %w", err)
	}
	return summary + fmt.Sprintf("; transactions: %d created, %d deleted, %d failed",
		txs.Created, txs.Deleted, txs.Failed), nil
}
