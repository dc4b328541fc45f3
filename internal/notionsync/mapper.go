package notionsync

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-ledger/internal/bigquery"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the Debts database.
const (
	PropDebtID      = "Debt ID"
	PropDescription = "Description"
	PropPurchased   = "Purchased"
	PropTotal       = "Total"
	PropPaid        = "Paid"
	PropRemaining   = "Remaining"
	PropStatus      = "Status"
	PropLine        = "Line"
	PropImported    = "Imported"
	PropNextDue     = "Next Due"
)

// Property names of the Transactions database.
const (
	PropTransactionID = "Transaction ID"
	PropDate          = "Date"
	PropType          = "Type"
	PropCategory      = "Category"
	PropLocation      = "Location"
	PropCurrency      = "Currency"
	PropAmount        = "Amount"
	PropUSD           = "USD"
)

// DebtToNotionProperties converts a debt record to Notion properties.
func DebtToNotionProperties(d domain.DebtRecord) notionapi.Properties {
	props := notionapi.Properties{
		PropDebtID:      titleProperty(d.ID),
		PropDescription: richTextProperty(d.Description),
		PropTotal:       notionapi.NumberProperty{Number: domain.RoundCents(d.TotalAmount)},
		PropPaid:        notionapi.NumberProperty{Number: domain.RoundCents(d.PaidAmount)},
		PropRemaining:   notionapi.NumberProperty{Number: domain.RoundCents(d.RemainingAmount)},
		PropStatus:      notionapi.SelectProperty{Select: notionapi.Option{Name: string(d.Status)}},
		PropLine:        notionapi.SelectProperty{Select: notionapi.Option{Name: d.Kind.Line.String()}},
		PropImported:    notionapi.CheckboxProperty{Checkbox: d.Kind.Imported},
	}
	if d.PurchaseDate.IsValid() {
		props[PropPurchased] = dateProperty(d.PurchaseDate)
	}
	if d.NextDueDate != nil && d.NextDueDate.IsValid() {
		props[PropNextDue] = dateProperty(*d.NextDueDate)
	}
	return props
}

// TransactionID is the stable key of an exported transaction. The log is append-only,
// so a sheet row never changes meaning.
func TransactionID(tx *bq.TransactionSnapshotRow) string {
	return fmt.Sprintf("TX-%d", tx.SheetRow)
}

// TransactionToNotionProperties converts an exported transaction to Notion properties.
func TransactionToNotionProperties(tx *bq.TransactionSnapshotRow) notionapi.Properties {
	props := notionapi.Properties{
		PropDescription:   titleProperty(tx.Description),
		PropTransactionID: richTextProperty(TransactionID(tx)),
		PropDate:          dateProperty(tx.TransactionDate),
		PropType:          notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Direction}},
		PropAmount:        notionapi.NumberProperty{Number: ratFloat(tx.Amount)},
		PropUSD:           notionapi.NumberProperty{Number: ratFloat(tx.USDEquivalent)},
	}
	if tx.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Category}}
	}
	if tx.Location != "" {
		props[PropLocation] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Location}}
	}
	if tx.Currency != "" {
		props[PropCurrency] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Currency}}
	}
	return props
}

func titleProperty(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Title: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}},
	}
}

func richTextProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}},
	}
}

func dateProperty(d civil.Date) notionapi.DateProperty {
	start := notionapi.Date(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
	return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}}
}

func ratFloat(r *big.Rat) float64 {
	if r == nil {
		return 0
	}
	f, _ := r.Float64()
	return f
}

// plainText reads a title or rich text property from a queried page.
func plainText(page notionapi.Page, name string) string {
	switch p := page.Properties[name].(type) {
	case *notionapi.TitleProperty:
		if len(p.Title) > 0 {
			return p.Title[0].PlainText
		}
	case *notionapi.RichTextProperty:
		if len(p.RichText) > 0 {
			return p.RichText[0].PlainText
		}
	}
	return ""
}

func number(page notionapi.Page, name string) (float64, bool) {
	if p, ok := page.Properties[name].(*notionapi.NumberProperty); ok {
		return p.Number, true
	}
	return 0, false
}

func selectName(page notionapi.Page, name string) string {
	if p, ok := page.Properties[name].(*notionapi.SelectProperty); ok {
		return p.Select.Name
	}
	return ""
}

// debtUpToDate reports whether a page already shows the debt's mutable fields.
func debtUpToDate(page notionapi.Page, d domain.DebtRecord) bool {
	paid, ok1 := number(page, PropPaid)
	remaining, ok2 := number(page, PropRemaining)
	return ok1 && ok2 &&
		paid == domain.RoundCents(d.PaidAmount) &&
		remaining == domain.RoundCents(d.RemainingAmount) &&
		selectName(page, PropStatus) == string(d.Status)
}
