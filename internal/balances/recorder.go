package balances

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/rates"
	"github.com/dvloznov/finance-ledger/internal/tabular"
	"github.com/rs/zerolog"
)

const (
	// CategoryConversion tags both legs of a currency conversion.
	CategoryConversion = "Conversion"
	// CategoryDownPayment tags the up-front part of a credit purchase.
	CategoryDownPayment = "Down Payment"
)

// Local names the home currency and where it is held.
type Local struct {
	Currency string
	Location string
}

// Recorder appends rows to the transaction log.
type Recorder struct {
	store tabular.Store
	rates rates.Provider
	local Local
	now   func() time.Time
	log   zerolog.Logger

	mu sync.Mutex
}

// NewRecorder creates a Recorder. now may be nil.
func NewRecorder(store tabular.Store, provider rates.Provider, local Local, now func() time.Time, log zerolog.Logger) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{
		store: store,
		rates: provider,
		local: local,
		now:   now,
		log:   log.With().Str("component", "recorder").Logger(),
	}
}

// Entry is an income or expense to record. Amount is positive; the sign comes from Direction.
type Entry struct {
	Direction   domain.Direction
	Category    string
	Location    string
	Currency    string
	Amount      float64
	Description string
	// Date back-dates the entry and selects the historical rate.
	Date *civil.Date
	// Rate, when positive, is used instead of a lookup.
	Rate float64
}

// Save converts the entry to USD and appends it. A local-currency entry without a rate is
// not written: it could never be reconciled into USD totals.
func (r *Recorder) Save(ctx context.Context, e Entry) (domain.TransactionRow, error) {
	row, err := r.build(ctx, e)
	if err != nil {
		return domain.TransactionRow{}, fmt.Errorf("Save: %w", err)
	}
	if err := r.Post(ctx, row); err != nil {
		return domain.TransactionRow{}, fmt.Errorf("Save: %w", err)
	}
	return row, nil
}

func (r *Recorder) build(ctx context.Context, e Entry) (domain.TransactionRow, error) {
	if e.Amount <= 0 || math.IsNaN(e.Amount) {
		return domain.TransactionRow{}, fmt.Errorf("amount %v must be positive: %w", e.Amount, domain.ErrInvalidInput)
	}
	currency := strings.TrimSpace(e.Currency)
	if currency == "" || strings.TrimSpace(e.Location) == "" {
		return domain.TransactionRow{}, fmt.Errorf("location and currency are required: %w", domain.ErrInvalidInput)
	}

	signed := math.Abs(e.Amount)
	if e.Direction == domain.DirectionExpense {
		signed = -signed
	}

	row := domain.TransactionRow{
		Timestamp:    r.timestamp(e.Date),
		Direction:    e.Direction,
		Category:     e.Category,
		Location:     strings.TrimSpace(e.Location),
		Currency:     currency,
		SignedAmount: signed,
		Description:  strings.TrimSpace(e.Description),
	}

	switch {
	case domain.DollarLike(currency):
		row.RateUsed = 1.0
		row.USDEquivalent = signed
	case strings.EqualFold(currency, r.local.Currency):
		rate := e.Rate
		if rate <= 0 {
			var err error
			rate, err = r.lookup(ctx, e.Date)
			if err != nil {
				r.log.Error().Err(err).Str("currency", currency).Msg("no rate, transaction not saved")
				return domain.TransactionRow{}, err
			}
		}
		row.RateUsed = rate
		row.USDEquivalent = signed / rate
	default:
		r.log.Warn().Str("currency", currency).Msg("unknown currency, saving without USD equivalent")
	}
	return row, nil
}

func (r *Recorder) lookup(ctx context.Context, date *civil.Date) (float64, error) {
	if date != nil && date.Before(civil.DateOf(r.now())) {
		return r.rates.HistoricalRate(ctx, *date)
	}
	return r.rates.CurrentRate(ctx)
}

func (r *Recorder) timestamp(date *civil.Date) string {
	now := r.now()
	if date == nil || date.IsZero() {
		return now.Format(tabular.TimestampFormat)
	}
	return civil.DateTime{Date: *date, Time: civil.TimeOf(now)}.In(now.Location()).Format(tabular.TimestampFormat)
}

// Post appends a pre-built row, such as a settlement expense.
func (r *Recorder) Post(ctx context.Context, row domain.TransactionRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.AppendRow(ctx, row.Values()); err != nil {
		r.log.Error().Err(err).Str("category", row.Category).Msg("appending transaction")
		return fmt.Errorf("Post: appending row: %w: %w", domain.ErrStoreUnavailable, err)
	}
	r.log.Info().
		Str("direction", string(row.Direction)).
		Str("location", row.Location).
		Str("currency", row.Currency).
		Float64("amount", row.SignedAmount).
		Float64("usd", row.USDEquivalent).
		Msg("transaction saved")
	return nil
}

// SaveDownPayment records the USD paid up front on a credit purchase, tagged with the
// debt it belongs to, at the usual dollar location.
func (r *Recorder) SaveDownPayment(ctx context.Context, debtID, description string, amount float64, date *civil.Date) (domain.TransactionRow, error) {
	row, err := r.Save(ctx, Entry{
		Direction:   domain.DirectionExpense,
		Category:    CategoryDownPayment,
		Location:    LocationFor("USD", r.local),
		Currency:    "USD",
		Amount:      amount,
		Description: "Down payment " + debtID + ": " + description,
		Date:        date,
	})
	if err != nil {
		return domain.TransactionRow{}, fmt.Errorf("SaveDownPayment: %s: %w", debtID, err)
	}
	return row, nil
}

// Conversion moves money between currencies: an expense at the origin and an income at the destination.
type Conversion struct {
	FromCurrency string
	FromAmount   float64
	ToCurrency   string
	ToAmount     float64
	// FromLocation and ToLocation default from the currencies when empty.
	FromLocation string
	ToLocation   string
	Date         *civil.Date
}

// ConversionResult holds both legs and what the conversion cost.
type ConversionResult struct {
	Out domain.TransactionRow `json:"out"`
	In  domain.TransactionRow `json:"in"`
	// Fee is set when both sides are dollar-like.
	Fee        float64 `json:"fee,omitempty"`
	FeePercent float64 `json:"feePercent,omitempty"`
	// EffectiveRate is set when dollars were sold for local currency.
	EffectiveRate float64 `json:"effectiveRate,omitempty"`
}

// SaveConversion writes both legs. Both rows are built before either is written, so a
// missing rate writes nothing; a store failure on the second append leaves the first.
func (r *Recorder) SaveConversion(ctx context.Context, c Conversion) (ConversionResult, error) {
	if c.ToAmount <= 0 || strings.TrimSpace(c.ToCurrency) == "" {
		return ConversionResult{}, fmt.Errorf("SaveConversion: destination amount and currency are required: %w", domain.ErrInvalidInput)
	}
	from, to := DefaultConversionLocations(c.FromCurrency, c.ToCurrency, r.local)
	if c.FromLocation != "" {
		from = c.FromLocation
	}
	if c.ToLocation != "" {
		to = c.ToLocation
	}

	out, err := r.build(ctx, Entry{
		Direction:   domain.DirectionExpense,
		Category:    CategoryConversion,
		Location:    from,
		Currency:    c.FromCurrency,
		Amount:      c.FromAmount,
		Description: "Conversion to " + c.ToCurrency,
		Date:        c.Date,
	})
	if err != nil {
		return ConversionResult{}, fmt.Errorf("SaveConversion: origin: %w", err)
	}
	in, err := r.build(ctx, Entry{
		Direction:   domain.DirectionIncome,
		Category:    CategoryConversion,
		Location:    to,
		Currency:    c.ToCurrency,
		Amount:      c.ToAmount,
		Description: "Received from conversion (" + c.FromCurrency + ")",
		Date:        c.Date,
	})
	if err != nil {
		return ConversionResult{}, fmt.Errorf("SaveConversion: destination: %w", err)
	}

	if err := r.Post(ctx, out); err != nil {
		return ConversionResult{}, fmt.Errorf("SaveConversion: origin: %w", err)
	}
	if err := r.Post(ctx, in); err != nil {
		return ConversionResult{Out: out}, fmt.Errorf("SaveConversion: destination: %w", err)
	}

	res := ConversionResult{Out: out, In: in}
	switch {
	case domain.DollarLike(c.FromCurrency) && domain.DollarLike(c.ToCurrency):
		res.Fee = domain.RoundCents(c.FromAmount - c.ToAmount)
		res.FeePercent = domain.RoundCents(res.Fee / c.FromAmount * 100)
	case domain.DollarLike(c.FromCurrency) && strings.EqualFold(c.ToCurrency, r.local.Currency):
		res.EffectiveRate = domain.RoundCents(c.ToAmount / c.FromAmount)
	}
	return res, nil
}

// DefaultConversionLocations is where money usually sits: dollars at the bank abroad,
// stablecoins at the exchange, local currency at home.
func DefaultConversionLocations(fromCurrency, toCurrency string, local Local) (from, to string) {
	return LocationFor(fromCurrency, local), LocationFor(toCurrency, local)
}

// LocationFor is the default location for money held in currency.
func LocationFor(currency string, local Local) string {
	switch {
	case strings.EqualFold(currency, "USD"):
		return "Ecuador"
	case strings.EqualFold(currency, "USDT"):
		return "Binance"
	case strings.EqualFold(currency, local.Currency):
		return local.Location
	}
	return "Other"
}
