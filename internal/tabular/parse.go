package tabular

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/shopspring/decimal"
)

// ParseAmount reads a possibly locale-formatted numeric cell ("$ 1.234,50", "70,5", "-12.00").
// Everything except digits, separators and a leading minus is dropped. When both separators
// appear the last one is the decimal separator; a lone comma is always decimal.
// On failure it returns 0 and an error wrapping domain.ErrParseFailure.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}

	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")

	var b strings.Builder
	digits := false
	rs := []rune(s)
	for i, c := range rs {
		switch {
		case c >= '0' && c <= '9':
			digits = true
			b.WriteRune(c)
		case c == '.', c == ',':
			// "Bs." style prefixes are not separators
			if digits || (i+1 < len(rs) && rs[i+1] >= '0' && rs[i+1] <= '9') {
				b.WriteRune(c)
			}
		case c == '-' && !digits:
			negative = true
		}
	}
	clean := b.String()
	if clean == "" {
		return 0, fmt.Errorf("ParseAmount: %q: %w", raw, domain.ErrParseFailure)
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		clean = strings.Replace(clean, ",", ".", 1)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("ParseAmount: %q: %w", raw, domain.ErrParseFailure)
	}
	if negative {
		d = d.Neg()
	}
	return d.InexactFloat64(), nil
}

// Amount is the lenient form of ParseAmount: malformed cells read as 0.
func Amount(raw string) float64 {
	v, _ := ParseAmount(raw)
	return v
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"02/01/2006",
	"2/1/2006",
}

// ParseDate reads a date cell in any of the layouts the sheet has used.
func ParseDate(raw string) (civil.Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return civil.Date{}, fmt.Errorf("ParseDate: empty: %w", domain.ErrParseFailure)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, fmt.Errorf("ParseDate: %q: %w", raw, domain.ErrParseFailure)
}

// TimestampFormat is the layout of the transaction Date column.
const TimestampFormat = "2006-01-02 15:04:05"
