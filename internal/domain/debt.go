package domain

import (
	"strings"

	"cloud.google.com/go/civil"
)

// Status is derived from the amounts; it is persisted only for the spreadsheet reader.
type Status string

const (
	StatusPending Status = "Pending"
	StatusPaid    Status = "Paid"
)

// StatusFor derives the status of a remaining balance.
func StatusFor(remaining float64) Status {
	if IsSettled(remaining) {
		return StatusPaid
	}
	return StatusPending
}

// ParseStatus accepts the English and the legacy Spanish labels.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "pagado":
		return StatusPaid
	}
	return StatusPending
}

// DueCadenceDays is the spacing between revolving due dates and installments.
const DueCadenceDays = 14

// DebtRecord is one row of the debt table.
type DebtRecord struct {
	ID              string      `json:"id"`
	PurchaseDate    civil.Date  `json:"purchaseDate"`
	Description     string      `json:"description"`
	TotalAmount     float64     `json:"totalAmount"`
	PaidAmount      float64     `json:"paidAmount"`
	RemainingAmount float64     `json:"remainingAmount"`
	Status          Status      `json:"status"`
	Kind            Kind        `json:"kind"`
	NextDueDate     *civil.Date `json:"nextDueDate,omitempty"`
	Source          string      `json:"source,omitempty"`

	// Row is the 1-based sheet row the record was read from; zero for new records.
	Row int `json:"-"`
}

// Recomputed returns max(0, total-paid), ignoring the stored remaining cell.
func (d DebtRecord) Recomputed() float64 {
	return ClampRemaining(d.TotalAmount, d.PaidAmount)
}

// Pending reports whether the stored status is not Paid.
func (d DebtRecord) Pending() bool {
	return d.Status != StatusPaid
}

// DebtHeader is the latest header of the debt table.
var DebtHeader = []string{"ID", "Date", "Description", "TotalAmount", "Paid", "Remaining", "Status", "Kind", "NextDue", "Source"}

// Debt table columns, 1-based.
const (
	DebtColID = iota + 1
	DebtColDate
	DebtColDescription
	DebtColTotal
	DebtColPaid
	DebtColRemaining
	DebtColStatus
	DebtColKind
	DebtColNextDue
	DebtColSource
)

// legacyDebtHeaders maps older header spellings onto the current ones.
var legacyDebtHeaders = map[string]string{
	"Fecha":       "Date",
	"Descripción": "Description",
	"Monto Total": "TotalAmount",
	"Pagado":      "Paid",
	"Restante":    "Remaining",
	"Estado":      "Status",
	"Tipo":        "Kind",
	"Vencimiento": "NextDue",
	"Fuente":      "Source",
}

// CanonicalDebtColumn returns the current header name for a possibly legacy one.
func CanonicalDebtColumn(name string) string {
	if c, ok := legacyDebtHeaders[name]; ok {
		return c
	}
	return name
}
