package domain

import "strings"

// Direction is the Type column of the transaction log.
type Direction string

const (
	DirectionIncome   Direction = "Income"
	DirectionExpense  Direction = "Expense"
	DirectionTransfer Direction = "Transfer"
)

// ParseDirection accepts English and legacy Spanish labels.
func ParseDirection(raw string) Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "expense", "egreso":
		return DirectionExpense
	case "transfer", "conversion", "conversión":
		return DirectionTransfer
	}
	return DirectionIncome
}

// TransactionRow is one row of the append-only transaction log.
// Expense rows carry a negative SignedAmount; that sign is the only debit/credit marker.
type TransactionRow struct {
	Timestamp     string
	Direction     Direction
	Category      string
	Location      string
	Currency      string
	SignedAmount  float64
	RateUsed      float64
	USDEquivalent float64
	Description   string
}

// TransactionHeader is the header of the transaction table.
var TransactionHeader = []string{"Date", "Type", "Category", "Location", "Currency", "Amount", "RateUsed", "USDEquivalent", "Description"}

// Values renders the row in header order for the tabular store.
func (t TransactionRow) Values() []any {
	var rate any = ""
	if t.RateUsed != 0 {
		rate = t.RateUsed
	}
	return []any{
		t.Timestamp,
		string(t.Direction),
		t.Category,
		t.Location,
		t.Currency,
		RoundCents(t.SignedAmount),
		rate,
		RoundCents(t.USDEquivalent),
		t.Description,
	}
}

// CategoryDebtPayment tags expenses generated by debt settlement and installment payments.
const CategoryDebtPayment = "Debt Payment"

// DollarLike reports whether a currency converts to USD at 1.0.
func DollarLike(currency string) bool {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "USD", "USDT":
		return true
	}
	return false
}

var legacyTransactionHeaders = map[string]string{
	"Fecha":       "Date",
	"Tipo":        "Type",
	"Categoría":   "Category",
	"Ubicación":   "Location",
	"Moneda":      "Currency",
	"Monto":       "Amount",
	"Tasa Usada":  "RateUsed",
	"Monto USD":   "USDEquivalent",
	"Descripción": "Description",
}

// CanonicalTransactionColumn returns the current header name for a possibly legacy one.
func CanonicalTransactionColumn(name string) string {
	if c, ok := legacyTransactionHeaders[name]; ok {
		return c
	}
	return name
}
