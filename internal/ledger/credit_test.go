package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/tabular/inmemory"
	"github.com/rs/zerolog"
)

func TestSimulatePurchase(t *testing.T) {
	tests := []struct {
		name          string
		rows          [][]string
		amount        float64
		line          string
		wantDown      float64
		wantFinance   float64
		wantAvailable float64
		wantAdjusted  bool
	}{
		{
			name:   "fresh principal line",
			amount: 100, line: "principal",
			wantDown: 40, wantFinance: 60, wantAvailable: 400,
		},
		{
			name:   "shortfall moves to down payment",
			amount: 1200, line: "principal",
			wantDown: 800, wantFinance: 400, wantAvailable: 400, wantAdjusted: true,
		},
		{
			name: "daily line partly used",
			rows: [][]string{
				{"DEBT-1", "2025-01-01", "a", "200", "70", "130", "Pending", "Daily"},
				{"DEBT-2", "2025-01-01", "b", "50", "0", "50", "Pending", "Principal"},
				{"DEBT-3", "2025-01-01", "c", "90", "90", "0", "Paid", "Daily"},
			},
			amount: 50, line: "a",
			wantDown: 30, wantFinance: 20, wantAvailable: 20, wantAdjusted: true,
		},
		{
			name: "line exhausted",
			rows: [][]string{
				{"DEBT-1", "2025-01-01", "a", "500", "0", "500", "Pending", "RevolvingB (Imported)"},
			},
			amount: 10, line: "B",
			wantDown: 10, wantFinance: 0, wantAvailable: 0, wantAdjusted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _ := newTestLedger(t, tt.rows...)
			got, err := l.SimulatePurchase(context.Background(), tt.amount, tt.line)
			if err != nil {
				t.Fatalf("SimulatePurchase failed: %v", err)
			}
			if got.DownPayment != tt.wantDown || got.FinanceAmount != tt.wantFinance {
				t.Errorf("down/finance = %v/%v, want %v/%v", got.DownPayment, got.FinanceAmount, tt.wantDown, tt.wantFinance)
			}
			if got.AvailableBefore != tt.wantAvailable || got.Adjusted != tt.wantAdjusted {
				t.Errorf("available/adjusted = %v/%v, want %v/%v", got.AvailableBefore, got.Adjusted, tt.wantAvailable, tt.wantAdjusted)
			}
			if got.DownPayment+got.FinanceAmount != tt.amount {
				t.Errorf("down + finance = %v, want %v", got.DownPayment+got.FinanceAmount, tt.amount)
			}
		})
	}
}

func TestSimulatePurchase_Idempotent(t *testing.T) {
	l, tbl := newTestLedger(t, []string{"DEBT-1", "2025-01-01", "a", "100", "0", "100", "Pending", "Principal"})
	ctx := context.Background()

	first, err := l.SimulatePurchase(ctx, 700, "principal")
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.SimulatePurchase(ctx, 700, "principal")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if tbl.Writes() != 0 {
		t.Error("simulation must not write")
	}
}

func TestSimulatePurchase_Errors(t *testing.T) {
	l, tbl := newTestLedger(t)
	ctx := context.Background()

	for _, line := range []string{"normal", "custody", "platinum"} {
		if _, err := l.SimulatePurchase(ctx, 10, line); !errors.Is(err, domain.ErrUnknownLine) {
			t.Errorf("line %q error = %v, want ErrUnknownLine", line, err)
		}
	}
	if _, err := l.SimulatePurchase(ctx, 0, "daily"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("zero amount error = %v, want ErrInvalidInput", err)
	}
	tbl.ReadErr = errors.New("down")
	if _, err := l.SimulatePurchase(ctx, 10, "daily"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("read failure error = %v, want ErrStoreUnavailable", err)
	}
}

func TestAvailableCredit(t *testing.T) {
	tbl := inmemory.NewTable(domain.DebtHeader)
	tbl.Seed(
		[]string{"DEBT-1", "2025-01-01", "a", "100", "20", "80", "Pending", "Diario"},
		[]string{"DEBT-2", "2025-01-01", "b", "300", "0", "300", "Pending", "Principal - Imported"},
		[]string{"DEBT-3", "2025-01-01", "c", "40", "0", "40", "Pending", "Custody (Liability)"},
	)
	limits := map[domain.Line]float64{domain.LineDaily: 146, domain.LinePrincipal: 391}
	l := New(tbl, Options{Limits: limits, Now: func() time.Time { return testNow }}, zerolog.New(io.Discard))

	got, err := l.AvailableCredit(context.Background())
	if err != nil {
		t.Fatalf("AvailableCredit failed: %v", err)
	}
	want := []LineUsage{
		{Line: "Daily", Used: 80, Limit: 146, Available: 66},
		{Line: "Principal", Used: 300, Limit: 391, Available: 91},
	}
	if len(got) != len(want) {
		t.Fatalf("AvailableCredit() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPurchaseOnCredit(t *testing.T) {
	l, tbl := newTestLedger(t)
	ctx := context.Background()

	p, err := l.PurchaseOnCredit(ctx, PurchaseRequest{Description: "Bike", Amount: 1200, Line: "principal", Source: "Cashea"})
	if err != nil {
		t.Fatalf("PurchaseOnCredit failed: %v", err)
	}
	if p.Simulation.DownPayment != 800 || p.Debt.Remaining != 400 {
		t.Errorf("purchase = %+v", p)
	}
	if tbl.Cell(2, domain.DebtColKind) != "Principal" || tbl.Cell(2, domain.DebtColPaid) != "800" {
		t.Errorf("row = %v", tbl.Values()[1])
	}
	if tbl.Cell(2, domain.DebtColNextDue) != "2025-01-15" {
		t.Errorf("NextDue = %q, want 2025-01-15", tbl.Cell(2, domain.DebtColNextDue))
	}

	usage, _ := l.AvailableCredit(ctx)
	if usage[1].Available != 0 {
		t.Errorf("principal available = %v, want 0", usage[1].Available)
	}
}

func TestPurchaseOnCredit_ExplicitDownPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("fits the line", func(t *testing.T) {
		l, tbl := newTestLedger(t)
		down := 50.0
		p, err := l.PurchaseOnCredit(ctx, PurchaseRequest{Description: "Phone", Amount: 150, Line: "daily", DownPayment: &down})
		if err != nil {
			t.Fatalf("PurchaseOnCredit failed: %v", err)
		}
		if p.Debt.Remaining != 100 || tbl.Cell(2, domain.DebtColPaid) != "50" {
			t.Errorf("purchase = %+v, row %v", p, tbl.Values()[1])
		}
	})

	t.Run("over the limit writes nothing", func(t *testing.T) {
		l, tbl := newTestLedger(t)
		down := 100.0
		_, err := l.PurchaseOnCredit(ctx, PurchaseRequest{Description: "Bike", Amount: 1200, Line: "principal", DownPayment: &down})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("err = %v, want ErrInvalidInput", err)
		}
		var limitErr *LimitError
		if !errors.As(err, &limitErr) || limitErr.Available != 400 || limitErr.DownPayment != 800 {
			t.Errorf("limit error = %+v", limitErr)
		}
		if tbl.Writes() != 0 {
			t.Errorf("writes = %d, want 0", tbl.Writes())
		}
		usage, _ := l.AvailableCredit(ctx)
		if usage[1].Used != 0 {
			t.Errorf("principal used = %v, want 0", usage[1].Used)
		}
	})

	t.Run("down payment above the total", func(t *testing.T) {
		l, _ := newTestLedger(t)
		down := 200.0
		_, err := l.PurchaseOnCredit(ctx, PurchaseRequest{Description: "Lamp", Amount: 100, Line: "daily", DownPayment: &down})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})
}
