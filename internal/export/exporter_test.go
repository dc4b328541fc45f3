package export

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-ledger/internal/bigquery"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/tabular/inmemory"
	"github.com/rs/zerolog"
)

// mockRepo is a mock SnapshotRepository recording what was written.
type mockRepo struct {
	InsertDebtSnapshotsFunc func(ctx context.Context, rows []*bq.DebtSnapshotRow) error

	debts        []*bq.DebtSnapshotRow
	transactions []*bq.TransactionSnapshotRow
	succeeded    bool
	failedWith   error
}

func (m *mockRepo) StartExportRun(ctx context.Context) (string, error) { return "run-1", nil }

func (m *mockRepo) MarkExportRunFailed(ctx context.Context, exportRunID string, exportErr error) {
	m.failedWith = exportErr
}

func (m *mockRepo) MarkExportRunSucceeded(ctx context.Context, exportRunID string, debts, transactions int) error {
	m.succeeded = true
	return nil
}

func (m *mockRepo) InsertDebtSnapshots(ctx context.Context, rows []*bq.DebtSnapshotRow) error {
	if m.InsertDebtSnapshotsFunc != nil {
		return m.InsertDebtSnapshotsFunc(ctx, rows)
	}
	m.debts = rows
	return nil
}

func (m *mockRepo) InsertTransactionSnapshots(ctx context.Context, rows []*bq.TransactionSnapshotRow) error {
	m.transactions = rows
	return nil
}

func (m *mockRepo) QueryTransactionsByDateRange(ctx context.Context, startDate, endDate time.Time) ([]*bq.TransactionSnapshotRow, error) {
	return m.transactions, nil
}

type debtList []domain.DebtRecord

func (d debtList) ListDebts(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error) {
	return d, nil
}

type failingList struct{}

func (failingList) ListDebts(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error) {
	return nil, domain.ErrStoreUnavailable
}

func txTable(rows ...[]string) *inmemory.Table {
	tbl := inmemory.NewTable(domain.TransactionHeader)
	tbl.Canon = domain.CanonicalTransactionColumn
	tbl.Seed(rows...)
	return tbl
}

func TestExport(t *testing.T) {
	due := civil.Date{Year: 2025, Month: 1, Day: 15}
	debts := debtList{{
		ID: "DEBT-1", PurchaseDate: civil.Date{Year: 2025, Month: 1, Day: 1}, Description: "TV",
		TotalAmount: 100, PaidAmount: 40, RemainingAmount: 60, Status: domain.StatusPending,
		Kind: domain.Kind{Line: domain.LinePrincipal, Imported: true}, NextDueDate: &due, Row: 2,
	}}
	tbl := txTable(
		[]string{"2025-01-02 09:15:00", "Expense", "Food", "Venezuela", "Bs", "-365", "36,5", "-10", "Groceries"},
		[]string{"2025-01-03", "Income", "Salary", "Ecuador", "USD", "500", "1", "500", "Pay"},
		[]string{"yesterday", "Income", "Other", "Ecuador", "USD", "1", "", "1", "bad date"},
		[]string{"2025-01-04", "Income", "Other", "Ecuador", "USD", "abc", "", "", "bad amount"},
	)
	repo := &mockRepo{}
	e := NewExporter(debts, tbl, repo, zerolog.New(io.Discard))

	res, err := e.Export(context.Background())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.ExportRunID != "run-1" || res.Debts != 1 || res.Transactions != 2 || res.Skipped != 2 {
		t.Errorf("Result = %+v", res)
	}
	if !repo.succeeded {
		t.Error("run should be marked succeeded")
	}

	d := repo.debts[0]
	if d.Line != "Principal" || !d.Imported || !d.NextDue.Valid || d.NextDue.Date != due {
		t.Errorf("debt snapshot = %+v", d)
	}
	if d.RemainingAmount.FloatString(2) != "60.00" {
		t.Errorf("RemainingAmount = %s", d.RemainingAmount.FloatString(2))
	}

	tx := repo.transactions[0]
	if tx.Direction != "Expense" || tx.Amount.FloatString(2) != "-365.00" || tx.USDEquivalent.FloatString(2) != "-10.00" {
		t.Errorf("transaction snapshot = %+v", tx)
	}
	if !tx.BookingDatetime.Valid || tx.RateUsed.Float64 != 36.5 {
		t.Errorf("booking/rate = %+v / %+v", tx.BookingDatetime, tx.RateUsed)
	}
	if repo.transactions[1].BookingDatetime.Valid {
		t.Error("a date-only cell has no booking datetime")
	}
	if repo.transactions[1].SheetRow != 3 {
		t.Errorf("SheetRow = %d, want 3", repo.transactions[1].SheetRow)
	}
}

func TestExport_MarksRunFailed(t *testing.T) {
	repo := &mockRepo{}
	e := NewExporter(failingList{}, txTable(), repo, zerolog.New(io.Discard))
	if _, err := e.Export(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
	if repo.failedWith == nil || repo.succeeded {
		t.Error("run should be marked failed")
	}

	boom := errors.New("quota")
	repo = &mockRepo{InsertDebtSnapshotsFunc: func(ctx context.Context, rows []*bq.DebtSnapshotRow) error { return boom }}
	e = NewExporter(debtList{}, txTable(), repo, zerolog.New(io.Discard))
	if _, err := e.Export(context.Background()); !errors.Is(err, boom) {
		t.Errorf("error = %v, want insert error", err)
	}
	if !errors.Is(repo.failedWith, boom) {
		t.Errorf("failedWith = %v", repo.failedWith)
	}

	tbl := txTable()
	tbl.ReadErr = errors.New("503")
	repo = &mockRepo{}
	e = NewExporter(debtList{}, tbl, repo, zerolog.New(io.Discard))
	if _, err := e.Export(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("error = %v, want ErrStoreUnavailable", err)
	}
}
