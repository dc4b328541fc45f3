package ledger

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// NotFoundError is returned when no debt matches a reference. It unwraps to domain.ErrNotFound.
type NotFoundError struct {
	Reference string
	// Suggestion is the closest pending debt, "ID (description)", when one is close enough.
	Suggestion string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no pending debt matches %q", e.Reference)
}

func (e *NotFoundError) Unwrap() error {
	return domain.ErrNotFound
}

// Hint implements domain.Hinter.
func (e *NotFoundError) Hint() string {
	if e.Suggestion == "" {
		return ""
	}
	return "did you mean " + e.Suggestion + "?"
}

// closestDebt finds the pending debt whose ID or description is nearest to reference
// by edit distance. Distances above a third of the reference length are ignored.
func closestDebt(debts []domain.DebtRecord, reference string) string {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if ref == "" {
		return ""
	}
	limit := max(2, len(ref)/3)

	best, bestDist := "", limit+1
	for _, d := range debts {
		if !d.Pending() {
			continue
		}
		for _, candidate := range []string{d.ID, d.Description} {
			dist := levenshtein.ComputeDistance(ref, strings.ToLower(candidate))
			if dist < bestDist {
				best, bestDist = d.ID+" ("+d.Description+")", dist
			}
		}
	}
	return best
}

// LimitError is returned when a purchase would finance more than a line has available.
// It unwraps to domain.ErrInvalidInput.
type LimitError struct {
	Line      string
	Financed  float64
	Available float64
	// DownPayment is the smallest up-front payment that fits the line.
	DownPayment float64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s line: financing %.2f exceeds available %.2f", e.Line, e.Financed, e.Available)
}

func (e *LimitError) Unwrap() error {
	return domain.ErrInvalidInput
}

// Hint implements domain.Hinter.
func (e *LimitError) Hint() string {
	return fmt.Sprintf("the %s line has %.2f available, pay at least %.2f up front", e.Line, e.Available, e.DownPayment)
}
