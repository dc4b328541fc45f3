// Package export mirrors the spreadsheet into BigQuery for analysis.
package export

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-ledger/internal/bigquery"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/tabular"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DebtLister is the ledger read the exporter needs.
type DebtLister interface {
	ListDebts(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error)
}

// Exporter writes one snapshot of both tables per run.
type Exporter struct {
	debts        DebtLister
	transactions tabular.Store
	repo         bq.SnapshotRepository
	now          func() time.Time
	log          zerolog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(debts DebtLister, transactions tabular.Store, repo bq.SnapshotRepository, log zerolog.Logger) *Exporter {
	return &Exporter{
		debts:        debts,
		transactions: transactions,
		repo:         repo,
		now:          time.Now,
		log:          log.With().Str("component", "export").Logger(),
	}
}

// Result summarises an export run.
type Result struct {
	ExportRunID  string `json:"exportRunId"`
	Debts        int    `json:"debts"`
	Transactions int    `json:"transactions"`
	Skipped      int    `json:"skipped"`
}

// Export snapshots every debt and every readable transaction row. The run is marked
// failed in BigQuery when any step fails.
func (e *Exporter) Export(ctx context.Context) (Result, error) {
	runID, err := e.repo.StartExportRun(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("Export: starting run: %w", err)
	}
	res := Result{ExportRunID: runID}
	exported := e.now().UTC()

	fail := func(doing string, err error) (Result, error) {
		err = fmt.Errorf("Export: %s: %w", doing, err)
		e.repo.MarkExportRunFailed(ctx, runID, err)
		return res, err
	}

	debts, err := e.debts.ListDebts(ctx, false)
	if err != nil {
		return fail("listing debts", err)
	}
	debtRows := make([]*bq.DebtSnapshotRow, 0, len(debts))
	for _, d := range debts {
		debtRows = append(debtRows, debtSnapshot(runID, d, exported))
	}

	rows, err := e.transactions.ReadAllRows(ctx)
	if err != nil {
		return fail("reading transactions", fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err))
	}
	txRows := make([]*bq.TransactionSnapshotRow, 0, len(rows))
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		snap, err := transactionSnapshot(runID, r, tabular.SheetRow(i), exported)
		if err != nil {
			res.Skipped++
			e.log.Warn().Err(err).Int("row", tabular.SheetRow(i)).Msg("skipping transaction row")
			continue
		}
		txRows = append(txRows, snap)
	}

	if err := e.repo.InsertDebtSnapshots(ctx, debtRows); err != nil {
		return fail("inserting debts", err)
	}
	if err := e.repo.InsertTransactionSnapshots(ctx, txRows); err != nil {
		return fail("inserting transactions", err)
	}
	res.Debts, res.Transactions = len(debtRows), len(txRows)

	if err := e.repo.MarkExportRunSucceeded(ctx, runID, res.Debts, res.Transactions); err != nil {
		return res, fmt.Errorf("Export: %w", err)
	}
	e.log.Info().
		Str("export_run_id", runID).
		Int("debts", res.Debts).
		Int("transactions", res.Transactions).
		Int("skipped", res.Skipped).
		Msg("export finished")
	return res, nil
}

func debtSnapshot(runID string, d domain.DebtRecord, exported time.Time) *bq.DebtSnapshotRow {
	row := &bq.DebtSnapshotRow{
		ExportRunID:     runID,
		DebtID:          d.ID,
		SheetRow:        int64(d.Row),
		Description:     d.Description,
		TotalAmount:     numeric(d.TotalAmount),
		PaidAmount:      numeric(d.PaidAmount),
		RemainingAmount: numeric(d.RemainingAmount),
		Status:          string(d.Status),
		Line:            d.Kind.Line.String(),
		Imported:        d.Kind.Imported,
		Source:          d.Source,
		ExportedTS:      exported,
	}
	if d.PurchaseDate.IsValid() {
		row.PurchaseDate = bigquery.NullDate{Date: d.PurchaseDate, Valid: true}
	}
	if d.NextDueDate != nil && d.NextDueDate.IsValid() {
		row.NextDue = bigquery.NullDate{Date: *d.NextDueDate, Valid: true}
	}
	return row
}

func transactionSnapshot(runID string, r tabular.Row, sheetRow int, exported time.Time) (*bq.TransactionSnapshotRow, error) {
	row := &bq.TransactionSnapshotRow{
		ExportRunID: runID,
		SheetRow:    int64(sheetRow),
		Direction:   string(domain.ParseDirection(r.Get("Type"))),
		Category:    r.Get("Category"),
		Location:    r.Get("Location"),
		Currency:    r.Get("Currency"),
		Description: r.Get("Description"),
		ExportedTS:  exported,
	}

	stamp := r.Get("Date")
	if t, err := time.Parse(tabular.TimestampFormat, stamp); err == nil {
		row.TransactionDate = civil.DateOf(t)
		row.BookingDatetime = bigquery.NullDateTime{DateTime: civil.DateTimeOf(t), Valid: true}
	} else {
		d, err := tabular.ParseDate(stamp)
		if err != nil {
			return nil, err
		}
		row.TransactionDate = d
	}

	amount, err := tabular.ParseAmount(r.Get("Amount"))
	if err != nil {
		return nil, err
	}
	row.Amount = numeric(amount)
	row.USDEquivalent = numeric(tabular.Amount(r.Get("USDEquivalent")))
	if rate := tabular.Amount(r.Get("RateUsed")); rate > 0 {
		row.RateUsed = bigquery.NullFloat64{Float64: rate, Valid: true}
	}
	return row, nil
}

// numeric converts a cents-level float into the NUMERIC representation.
func numeric(v float64) *big.Rat {
	return decimal.NewFromFloat(v).Round(2).Rat()
}
