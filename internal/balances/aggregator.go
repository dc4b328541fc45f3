// Package balances replays the transaction log into per-location, per-currency balances
// and writes new transaction rows.
package balances

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/rates"
	"github.com/dvloznov/finance-ledger/internal/tabular"
	"github.com/rs/zerolog"
)

// Balances maps location -> currency -> running total.
type Balances map[string]map[string]float64

// Aggregator recomputes balances from the full transaction log on every call.
type Aggregator struct {
	store         tabular.Store
	rates         rates.Provider
	localCurrency string
	log           zerolog.Logger
}

// NewAggregator creates an Aggregator. localCurrency is the currency converted through rates.
func NewAggregator(store tabular.Store, provider rates.Provider, localCurrency string, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:         store,
		rates:         provider,
		localCurrency: localCurrency,
		log:           log.With().Str("component", "balances").Logger(),
	}
}

// BalancesByLocationAndCurrency sums every signed amount. Expenses are already negative,
// so there is no debit/credit distinction. Rows without a location or currency, and rows
// whose amount cannot be parsed, are skipped.
func (a *Aggregator) BalancesByLocationAndCurrency(ctx context.Context) (Balances, error) {
	rows, err := a.store.ReadAllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("BalancesByLocationAndCurrency: reading transactions: %w: %w", domain.ErrStoreUnavailable, err)
	}

	out := make(Balances)
	for i, row := range rows {
		location, currency := row.Get("Location"), row.Get("Currency")
		if location == "" || currency == "" {
			continue
		}
		amount, err := tabular.ParseAmount(row.Get("Amount"))
		if err != nil {
			a.log.Warn().Err(err).Int("row", tabular.SheetRow(i)).Msg("skipping malformed transaction amount")
			continue
		}
		if out[location] == nil {
			out[location] = make(map[string]float64)
		}
		out[location][currency] += amount
	}
	return out, nil
}

// ConvertToUSD converts an amount. Dollar-like currencies pass through at 1.0; the local
// currency divides by the current rate. A zero rate means the conversion is unavailable,
// not that the balance is zero.
func (a *Aggregator) ConvertToUSD(ctx context.Context, amount float64, currency string) (usd, rate float64) {
	return a.converter().convert(ctx, amount, currency)
}

// TotalPortfolioUSD sums every balance in USD, leaving out entries that cannot be converted.
func (a *Aggregator) TotalPortfolioUSD(ctx context.Context) (float64, error) {
	p, err := a.Portfolio(ctx)
	if err != nil {
		return 0, fmt.Errorf("TotalPortfolioUSD: %w", err)
	}
	return p.TotalUSD, nil
}

// Holding is one location/currency balance with its USD value.
type Holding struct {
	Location string  `json:"location"`
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
	USD      float64 `json:"usd"`
	Rate     float64 `json:"rate"`
	// Converted is false when no rate was available; USD is then 0 and excluded from totals.
	Converted bool `json:"converted"`
}

// Portfolio is the detailed breakdown behind TotalPortfolioUSD.
type Portfolio struct {
	Holdings    []Holding `json:"holdings"`
	TotalUSD    float64   `json:"totalUsd"`
	CurrentRate float64   `json:"currentRate,omitempty"`
}

// Portfolio converts every balance, sorted by location then currency.
func (a *Aggregator) Portfolio(ctx context.Context) (Portfolio, error) {
	bal, err := a.BalancesByLocationAndCurrency(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("Portfolio: %w", err)
	}

	conv := a.converter()
	var p Portfolio
	for _, loc := range sortedKeys(bal) {
		for _, cur := range sortedKeys(bal[loc]) {
			h := conv.holding(ctx, loc, cur, bal[loc][cur])
			if h.Converted {
				p.TotalUSD += h.USD
			}
			p.Holdings = append(p.Holdings, h)
		}
	}
	p.TotalUSD = domain.RoundCents(p.TotalUSD)
	p.CurrentRate = conv.rate
	return p, nil
}

// LocationReport is the balance of one location.
type LocationReport struct {
	Location string    `json:"location"`
	Holdings []Holding `json:"holdings"`
	TotalUSD float64   `json:"totalUsd"`
}

// LocationBalance reports one location, matched case-insensitively.
// It returns domain.ErrNotFound when the location has no transactions.
func (a *Aggregator) LocationBalance(ctx context.Context, name string) (LocationReport, error) {
	bal, err := a.BalancesByLocationAndCurrency(ctx)
	if err != nil {
		return LocationReport{}, fmt.Errorf("LocationBalance: %w", err)
	}

	var location string
	for _, loc := range sortedKeys(bal) {
		if strings.EqualFold(loc, strings.TrimSpace(name)) {
			location = loc
			break
		}
	}
	if location == "" {
		return LocationReport{}, fmt.Errorf("LocationBalance: no transactions for %q: %w", name, domain.ErrNotFound)
	}

	conv := a.converter()
	r := LocationReport{Location: location}
	for _, cur := range sortedKeys(bal[location]) {
		h := conv.holding(ctx, location, cur, bal[location][cur])
		if h.Converted {
			r.TotalUSD += h.USD
		}
		r.Holdings = append(r.Holdings, h)
	}
	r.TotalUSD = domain.RoundCents(r.TotalUSD)
	return r, nil
}

// converter looks the current rate up at most once per report.
type converter struct {
	a       *Aggregator
	rate    float64
	fetched bool
}

func (a *Aggregator) converter() *converter {
	return &converter{a: a}
}

func (c *converter) localRate(ctx context.Context) float64 {
	if !c.fetched {
		c.fetched = true
		rate, err := c.a.rates.CurrentRate(ctx)
		if err != nil {
			c.a.log.Warn().Err(err).Msg("no rate to convert local currency")
		}
		c.rate = rate
	}
	return c.rate
}

func (c *converter) convert(ctx context.Context, amount float64, currency string) (float64, float64) {
	if domain.DollarLike(currency) {
		return amount, 1.0
	}
	if !strings.EqualFold(strings.TrimSpace(currency), c.a.localCurrency) {
		c.a.log.Warn().Str("currency", currency).Msg("unknown currency, not converted")
		return 0, 0
	}
	rate := c.localRate(ctx)
	if rate <= 0 {
		return 0, 0
	}
	return amount / rate, rate
}

func (c *converter) holding(ctx context.Context, location, currency string, amount float64) Holding {
	usd, rate := c.convert(ctx, amount, currency)
	return Holding{
		Location:  location,
		Currency:  currency,
		Amount:    domain.RoundCents(amount),
		USD:       domain.RoundCents(usd),
		Rate:      rate,
		Converted: rate > 0,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
