package inmemory

import (
	"context"
	"errors"
	"testing"
)

func newDebtTable() *Table {
	tbl := NewTable([]string{"ID", "Date", "Description", "TotalAmount", "Paid", "Remaining", "Status"})
	tbl.Seed(
		[]string{"DEBT-1", "2025-01-01", "Groceries", "100", "0", "100", "Pending"},
		[]string{"DEBT-2", "2025-01-02", "Phone", "50", "50", "0", "Paid"},
	)
	return tbl
}

func TestTable_ReadAllRows(t *testing.T) {
	tbl := newDebtTable()
	rows, err := tbl.ReadAllRows(context.Background())
	if err != nil {
		t.Fatalf("ReadAllRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[1].Get("Description") != "Phone" {
		t.Errorf("rows[1].Description = %q, want Phone", rows[1].Get("Description"))
	}
}

func TestTable_Canon(t *testing.T) {
	tbl := NewTable([]string{"ID", "Fecha"})
	tbl.Seed([]string{"DEBT-1", "2025-01-01"})
	tbl.Canon = func(h string) string {
		if h == "Fecha" {
			return "Date"
		}
		return h
	}
	rows, _ := tbl.ReadAllRows(context.Background())
	if rows[0].Get("Date") != "2025-01-01" {
		t.Errorf("Canon was not applied: %v", rows[0])
	}
}

func TestTable_ReadColumn(t *testing.T) {
	tbl := newDebtTable()
	col, err := tbl.ReadColumn(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReadColumn failed: %v", err)
	}
	want := []string{"ID", "DEBT-1", "DEBT-2"}
	if len(col) != len(want) {
		t.Fatalf("ReadColumn() = %v, want %v", col, want)
	}
	for i := range want {
		if col[i] != want[i] {
			t.Errorf("col[%d] = %q, want %q", i, col[i], want[i])
		}
	}
	if _, err := tbl.ReadColumn(context.Background(), 0); err == nil {
		t.Error("expected error for column 0")
	}
}

func TestTable_InsertRowAt(t *testing.T) {
	tbl := newDebtTable()
	err := tbl.InsertRowAt(context.Background(), []any{"DEBT-3", "2025-01-03", "Rent", 300.5, 0.0, 300.5, "Pending"}, 2)
	if err != nil {
		t.Fatalf("InsertRowAt failed: %v", err)
	}
	if got := tbl.Cell(2, 1); got != "DEBT-3" {
		t.Errorf("row 2 ID = %q, want DEBT-3", got)
	}
	if got := tbl.Cell(3, 1); got != "DEBT-1" {
		t.Errorf("row 3 ID = %q, want DEBT-1", got)
	}
	if got := tbl.Cell(2, 4); got != "300.5" {
		t.Errorf("row 2 total = %q, want 300.5", got)
	}
	if err := tbl.InsertRowAt(context.Background(), []any{"x"}, 10); err == nil {
		t.Error("expected out of range error")
	}
}

func TestTable_UpdateRange(t *testing.T) {
	tbl := newDebtTable()
	err := tbl.UpdateRange(context.Background(), "E2:G2", [][]any{{30.0, 70.0, "Pending"}})
	if err != nil {
		t.Fatalf("UpdateRange failed: %v", err)
	}
	if tbl.Cell(2, 5) != "30" || tbl.Cell(2, 6) != "70" || tbl.Cell(2, 7) != "Pending" {
		t.Errorf("row 2 = %v", tbl.Values()[1])
	}
	// other rows untouched
	if tbl.Cell(3, 5) != "50" {
		t.Errorf("row 3 paid = %q, want 50", tbl.Cell(3, 5))
	}

	if err := tbl.UpdateRange(context.Background(), "A9", [][]any{{"x"}}); err == nil {
		t.Error("expected out of range error")
	}
	if err := tbl.UpdateRange(context.Background(), "not a range", nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestTable_AppendRow(t *testing.T) {
	tbl := newDebtTable()
	if err := tbl.AppendRow(context.Background(), []any{"DEBT-9", nil, "x", 1}); err != nil {
		t.Fatalf("AppendRow failed: %v", err)
	}
	if got := tbl.Cell(4, 1); got != "DEBT-9" {
		t.Errorf("appended ID = %q", got)
	}
	if got := tbl.Cell(4, 4); got != "1" {
		t.Errorf("appended total = %q", got)
	}
	if tbl.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", tbl.Writes())
	}
}

func TestTable_FailureInjection(t *testing.T) {
	boom := errors.New("boom")
	tbl := newDebtTable()
	tbl.ReadErr = boom
	tbl.WriteErr = boom
	ctx := context.Background()

	if _, err := tbl.ReadAllRows(ctx); !errors.Is(err, boom) {
		t.Errorf("ReadAllRows error = %v", err)
	}
	if _, err := tbl.ReadColumn(ctx, 1); !errors.Is(err, boom) {
		t.Errorf("ReadColumn error = %v", err)
	}
	if err := tbl.AppendRow(ctx, nil); !errors.Is(err, boom) {
		t.Errorf("AppendRow error = %v", err)
	}
	if err := tbl.UpdateRange(ctx, "A2", nil); !errors.Is(err, boom) {
		t.Errorf("UpdateRange error = %v", err)
	}
	if tbl.Writes() != 0 {
		t.Errorf("Writes() = %d, want 0", tbl.Writes())
	}
}
