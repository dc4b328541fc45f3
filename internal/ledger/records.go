package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/tabular"
)

// readDebts loads every non-blank debt row, fresh from the store.
// Malformed numeric cells read as 0 and are logged.
func (l *Ledger) readDebts(ctx context.Context) ([]domain.DebtRecord, error) {
	rows, err := l.store.ReadAllRows(ctx)
	if err != nil {
		return nil, storeErr("readDebts", "reading debt rows", err)
	}

	debts := make([]domain.DebtRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 || (row.Get("ID") == "" && row.Get("Description") == "") {
			continue
		}
		debts = append(debts, l.debtFromRow(row, tabular.SheetRow(i)))
	}
	return debts, nil
}

func (l *Ledger) debtFromRow(row tabular.Row, sheetRow int) domain.DebtRecord {
	d := domain.DebtRecord{
		ID:          row.Get("ID"),
		Description: row.Get("Description"),
		Status:      domain.ParseStatus(row.Get("Status")),
		Kind:        domain.ParseKind(row.Get("Kind")),
		Source:      row.Get("Source"),
		Row:         sheetRow,
	}

	amount := func(col string) float64 {
		v, err := tabular.ParseAmount(row.Get(col))
		if err != nil {
			l.log.Warn().Err(err).Str("debt_id", d.ID).Int("row", sheetRow).Str("column", col).Msg("malformed amount, reading as 0")
		}
		return v
	}
	d.TotalAmount = amount("TotalAmount")
	d.PaidAmount = amount("Paid")
	if row.Get("Remaining") == "" {
		d.RemainingAmount = d.Recomputed()
	} else {
		d.RemainingAmount = max(0, amount("Remaining"))
	}

	if raw := row.Get("Date"); raw != "" {
		if date, err := tabular.ParseDate(raw); err == nil {
			d.PurchaseDate = date
		} else {
			l.log.Warn().Err(err).Str("debt_id", d.ID).Int("row", sheetRow).Msg("malformed purchase date")
		}
	}
	if raw := row.Get("NextDue"); raw != "" {
		if date, err := tabular.ParseDate(raw); err == nil {
			d.NextDueDate = &date
		} else {
			l.log.Warn().Err(err).Str("debt_id", d.ID).Int("row", sheetRow).Msg("malformed due date")
		}
	}
	return d
}

// debtValues renders a record in header order.
func debtValues(d domain.DebtRecord) []any {
	return []any{
		d.ID,
		dateCell(&d.PurchaseDate),
		d.Description,
		domain.RoundCents(d.TotalAmount),
		domain.RoundCents(d.PaidAmount),
		domain.RoundCents(d.RemainingAmount),
		string(d.Status),
		d.Kind.String(),
		dateCell(d.NextDueDate),
		d.Source,
	}
}

func dateCell(d *civil.Date) string {
	if d == nil || d.IsZero() {
		return ""
	}
	return d.String()
}

func storeErr(op, doing string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %s: %w", op, doing, err)
	}
	return fmt.Errorf("%s: %s: %w: %w", op, doing, domain.ErrStoreUnavailable, err)
}

// matchesReference is the payment match rule: exact ID or description substring, case-insensitive.
func matchesReference(d domain.DebtRecord, reference string) bool {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if ref == "" {
		return false
	}
	return strings.ToLower(d.ID) == ref || strings.Contains(strings.ToLower(d.Description), ref)
}
