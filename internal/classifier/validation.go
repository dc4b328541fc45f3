package classifier

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// modelIntent is the JSON object the model is asked to produce.
type modelIntent struct {
	Type                 string   `json:"type"`
	Category             string   `json:"category"`
	Location             string   `json:"location"`
	Currency             string   `json:"currency"`
	Amount               float64  `json:"amount"`
	Description          string   `json:"description"`
	DestinationCurrency  *string  `json:"destination_currency"`
	DestinationAmount    *float64 `json:"destination_amount"`
	IsCredit             bool     `json:"is_credit"`
	TotalCreditAmount    *float64 `json:"total_credit_amount"`
	CreditLine           string   `json:"credit_line"`
	IsInstallmentPayment bool     `json:"is_installment_payment"`
	DebtReference        *string  `json:"debt_reference"`
	Date                 string   `json:"date"`
}

// CategorySet matches model categories against the allowed list, ignoring case and accents.
type CategorySet struct {
	names map[string]string
}

// NewCategorySet creates a CategorySet from display names.
func NewCategorySet(names []string) *CategorySet {
	s := &CategorySet{names: make(map[string]string, len(names))}
	for _, n := range names {
		s.names[normalizeCategory(n)] = n
	}
	return s
}

// Resolve returns the display name of category, or "Other" when it is not allowed.
func (s *CategorySet) Resolve(category string) string {
	if n, ok := s.names[normalizeCategory(category)]; ok {
		return n
	}
	return "Other"
}

// normalizeCategory normalizes a category name for comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(NormalizeText(strings.TrimSpace(name)))
}

// NormalizeText removes diacritics ("Alimentación" -> "Alimentacion").
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func normalizeCurrency(raw string, local string) string {
	c := strings.ToUpper(strings.TrimSpace(NormalizeText(raw)))
	switch c {
	case "$", "DOLARES", "DOLAR":
		return "USD"
	case "TETHER":
		return "USDT"
	case "BS", "BS.", "BOLIVARES", "VES":
		if local != "" {
			return local
		}
	}
	if local != "" && strings.EqualFold(c, local) {
		return local
	}
	return c
}

func positive(v *float64) bool {
	return v != nil && *v > 0 && !math.IsInf(*v, 0)
}

// toIntent validates the model output and maps it onto domain.Intent.
func (c *GeminiClassifier) toIntent(m modelIntent) (domain.Intent, error) {
	if m.Amount <= 0 || math.IsNaN(m.Amount) || math.IsInf(m.Amount, 0) {
		return domain.Intent{}, fmt.Errorf("amount %v must be positive: %w", m.Amount, domain.ErrInvalidInput)
	}
	currency := normalizeCurrency(m.Currency, c.opts.LocalCurrency)
	if currency == "" {
		return domain.Intent{}, fmt.Errorf("currency is required: %w", domain.ErrInvalidInput)
	}

	in := domain.Intent{
		Direction:   domain.ParseDirection(m.Type),
		Category:    c.categories.Resolve(m.Category),
		Location:    strings.TrimSpace(m.Location),
		Currency:    currency,
		Amount:      m.Amount,
		Description: strings.TrimSpace(m.Description),
	}

	if in.Direction == domain.DirectionTransfer {
		if m.DestinationCurrency == nil || strings.TrimSpace(*m.DestinationCurrency) == "" || !positive(m.DestinationAmount) {
			return domain.Intent{}, fmt.Errorf("conversion needs a destination currency and amount: %w", domain.ErrInvalidInput)
		}
		dest := normalizeCurrency(*m.DestinationCurrency, c.opts.LocalCurrency)
		amt := *m.DestinationAmount
		in.DestinationCurrency = &dest
		in.DestinationAmount = &amt
		in.Category = c.categories.Resolve("Conversion")
	}

	if m.IsCredit {
		if !positive(m.TotalCreditAmount) || *m.TotalCreditAmount < m.Amount {
			return domain.Intent{}, fmt.Errorf("credit purchase needs a total not below the amount paid: %w", domain.ErrInvalidInput)
		}
		total := *m.TotalCreditAmount
		in.IsCreditPurchase = true
		in.TotalCreditAmount = &total
		in.CreditLine = strings.TrimSpace(m.CreditLine)
		in.Direction = domain.DirectionExpense
	}

	if m.IsInstallmentPayment {
		if m.DebtReference == nil || strings.TrimSpace(*m.DebtReference) == "" {
			return domain.Intent{}, fmt.Errorf("installment payment needs a debt reference: %w", domain.ErrInvalidInput)
		}
		ref := strings.TrimSpace(*m.DebtReference)
		in.IsInstallmentPayment = true
		in.PaymentReference = &ref
		in.Direction = domain.DirectionExpense
	}

	if d := strings.TrimSpace(m.Date); d != "" {
		if _, err := civil.ParseDate(d); err != nil {
			c.log.Warn().Str("date", d).Msg("ignoring unparseable date from model")
		} else {
			in.Date = d
		}
	}
	return in, nil
}
