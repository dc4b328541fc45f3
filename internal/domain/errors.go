package domain

import "errors"

// Error taxonomy shared by the ledger, the aggregator and the rate provider.
// Callers classify failures with errors.Is.
var (
	// ErrNotFound is returned when no debt matches a payment or settlement reference.
	ErrNotFound = errors.New("debt not found")

	// ErrAlreadySettled is returned when settling a Paid or zero-balance debt.
	ErrAlreadySettled = errors.New("debt already settled")

	// ErrStoreUnavailable wraps any read or write failure of the tabular store.
	ErrStoreUnavailable = errors.New("tabular store unavailable")

	// ErrRateUnavailable is returned when no conversion rate can be obtained.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrParseFailure marks a malformed numeric or date cell.
	ErrParseFailure = errors.New("malformed cell")

	// ErrInvalidInput rejects arguments that can never succeed (negative amounts, zero counts).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownLine is returned when a credit line name matches no configured line.
	ErrUnknownLine = errors.New("unknown credit line")
)

// Hinter is implemented by errors that carry a user-facing suggestion.
type Hinter interface {
	Hint() string
}

// UserMessage converts an error into the short text shown to a person.
// Only this string crosses the HTTP and CLI boundary.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	switch {
	case errors.Is(err, ErrNotFound):
		msg = "No pending debt matches that reference"
	case errors.Is(err, ErrAlreadySettled):
		msg = "That debt is already paid"
	case errors.Is(err, ErrRateUnavailable):
		msg = "No exchange rate available, set one manually"
	case errors.Is(err, ErrUnknownLine):
		msg = "Unknown credit line"
	case errors.Is(err, ErrInvalidInput):
		msg = "Invalid request"
	case errors.Is(err, ErrStoreUnavailable):
		msg = "The spreadsheet could not be reached, try again"
	case errors.Is(err, ErrParseFailure):
		msg = "A stored value could not be read"
	default:
		return "Internal error"
	}

	var h Hinter
	if errors.As(err, &h) && h.Hint() != "" {
		msg += " (" + h.Hint() + ")"
	}
	return msg
}
