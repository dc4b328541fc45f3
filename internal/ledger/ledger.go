// Package ledger owns the debt table: creation, payments, settlement, ID assignment,
// revolving credit availability and installment plans.
//
// Every operation re-reads the table; the spreadsheet is the source of truth and may be
// edited by hand between calls. Mutations run inside one critical section so two requests
// in this process cannot lose each other's updates.
package ledger

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/tabular"
	"github.com/rs/zerolog"
)

// Options configures a Ledger.
type Options struct {
	// IDPrefix is the sequential ID prefix, "DEBT-" by default.
	IDPrefix string

	// Limits holds the revolving limit per line.
	Limits map[domain.Line]float64

	// LocalCurrency and LocalLocation tag the settlement expense.
	LocalCurrency string
	LocalLocation string

	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Ledger is the debt ledger over a tabular store.
type Ledger struct {
	store tabular.Store
	opts  Options
	idRe  *regexp.Regexp
	log   zerolog.Logger

	mu sync.Mutex
}

// New creates a Ledger.
func New(store tabular.Store, opts Options, log zerolog.Logger) *Ledger {
	if opts.IDPrefix == "" {
		opts.IDPrefix = "DEBT-"
	}
	if opts.Limits == nil {
		opts.Limits = DefaultLimits()
	}
	if opts.LocalCurrency == "" {
		opts.LocalCurrency = "Bs"
	}
	if opts.LocalLocation == "" {
		opts.LocalLocation = "Venezuela"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		store: store,
		opts:  opts,
		idRe:  regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(opts.IDPrefix) + `(\d+)$`),
		log:   log.With().Str("component", "ledger").Logger(),
	}
}

func (l *Ledger) today() civil.Date {
	return civil.DateOf(l.opts.Now())
}

// NewDebt is the input of CreateDebt.
type NewDebt struct {
	Description    string
	TotalAmount    float64
	InitialPayment float64
	Kind           domain.Kind
	// PurchaseDate defaults to today.
	PurchaseDate *civil.Date
	// DueDate overrides the revolving default of purchase date + 14 days.
	DueDate *civil.Date
	Source  string
}

// Created is the result of CreateDebt.
type Created struct {
	ID        string            `json:"id"`
	Remaining float64           `json:"remaining"`
	Status    domain.Status     `json:"status"`
	NextDue   *civil.Date       `json:"nextDue,omitempty"`
	Kind      string            `json:"kind"`
	Record    domain.DebtRecord `json:"-"`
}

// CreateDebt inserts a new record right below the header, most recent first.
func (l *Ledger) CreateDebt(ctx context.Context, in NewDebt) (Created, error) {
	if in.TotalAmount < 0 || in.InitialPayment < 0 {
		return Created{}, fmt.Errorf("CreateDebt: negative amount: %w", domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createLocked(ctx, in)
}

func (l *Ledger) createLocked(ctx context.Context, in NewDebt) (Created, error) {
	id, err := l.scanNextID(ctx)
	if err != nil {
		id = l.fallbackID()
		l.log.Warn().Err(err).Str("debt_id", id).Msg("ID column unreadable, using fallback ID")
	}

	purchase := l.today()
	if in.PurchaseDate != nil {
		purchase = *in.PurchaseDate
	}

	remaining := domain.ClampRemaining(in.TotalAmount, in.InitialPayment)
	d := domain.DebtRecord{
		ID:              id,
		PurchaseDate:    purchase,
		Description:     strings.TrimSpace(in.Description),
		TotalAmount:     in.TotalAmount,
		PaidAmount:      in.InitialPayment,
		RemainingAmount: remaining,
		Status:          domain.StatusFor(remaining),
		Kind:            in.Kind,
		Source:          strings.TrimSpace(in.Source),
		Row:             tabular.FirstDataRow,
	}
	switch {
	case in.DueDate != nil:
		due := *in.DueDate
		d.NextDueDate = &due
	case in.Kind.Line.Revolving():
		due := purchase.AddDays(domain.DueCadenceDays)
		d.NextDueDate = &due
	}

	if err := l.store.InsertRowAt(ctx, debtValues(d), tabular.FirstDataRow); err != nil {
		l.log.Error().Err(err).Str("debt_id", id).Msg("creating debt")
		return Created{}, storeErr("CreateDebt", "inserting row", err)
	}

	l.log.Info().Str("debt_id", id).Float64("total", d.TotalAmount).Float64("remaining", remaining).Str("kind", d.Kind.String()).Msg("debt created")
	return Created{
		ID:        id,
		Remaining: domain.RoundCents(remaining),
		Status:    d.Status,
		NextDue:   d.NextDueDate,
		Kind:      d.Kind.String(),
		Record:    d,
	}, nil
}

// NextSequentialID returns the next sequential ID, or prefix+1 when the ID column cannot be read.
func (l *Ledger) NextSequentialID(ctx context.Context) string {
	id, err := l.scanNextID(ctx)
	if err != nil {
		l.log.Error().Err(err).Msg("reading ID column")
		return l.opts.IDPrefix + "1"
	}
	return id
}

func (l *Ledger) scanNextID(ctx context.Context) (string, error) {
	cells, err := l.store.ReadColumn(ctx, domain.DebtColID)
	if err != nil {
		return "", storeErr("scanNextID", "reading ID column", err)
	}

	maxN := 0
	for _, c := range cells {
		m := l.idRe.FindStringSubmatch(strings.TrimSpace(c))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		maxN = max(maxN, n)
	}
	return l.opts.IDPrefix + strconv.Itoa(maxN+1), nil
}

// fallbackID never matches the sequential pattern, so it cannot collide with a later scan.
func (l *Ledger) fallbackID() string {
	return fmt.Sprintf("%sTS%d", l.opts.IDPrefix, l.opts.Now().UnixMilli())
}

// Payment is the result of RecordInstallmentPayment.
type Payment struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Amount      float64       `json:"amount"`
	PaidAmount  float64       `json:"paidAmount"`
	Remaining   float64       `json:"remaining"`
	Status      domain.Status `json:"status"`
	NextDue     *civil.Date   `json:"nextDue,omitempty"`
	// Ambiguous lists the other pending IDs the reference also matched.
	Ambiguous []string `json:"ambiguous,omitempty"`
	Message   string   `json:"message"`
}

// RecordInstallmentPayment applies a partial payment to the first pending debt, in table
// order, whose ID equals reference or whose description contains it.
func (l *Ledger) RecordInstallmentPayment(ctx context.Context, reference string, amount float64) (Payment, error) {
	if strings.TrimSpace(reference) == "" {
		return Payment{}, fmt.Errorf("RecordInstallmentPayment: empty reference: %w", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return Payment{}, fmt.Errorf("RecordInstallmentPayment: amount %v: %w", amount, domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	debts, err := l.readDebts(ctx)
	if err != nil {
		return Payment{}, fmt.Errorf("RecordInstallmentPayment: %w", err)
	}

	var (
		target *domain.DebtRecord
		others []string
	)
	for i := range debts {
		if !debts[i].Pending() || !matchesReference(debts[i], reference) {
			continue
		}
		if target == nil {
			target = &debts[i]
			continue
		}
		others = append(others, debts[i].ID)
	}
	if target == nil {
		return Payment{}, fmt.Errorf("RecordInstallmentPayment: %w", &NotFoundError{
			Reference:  reference,
			Suggestion: closestDebt(debts, reference),
		})
	}
	if len(others) > 0 {
		l.log.Warn().Str("reference", reference).Str("debt_id", target.ID).Strs("also_matched", others).Msg("ambiguous payment reference, using first match")
	}

	newPaid := target.PaidAmount + amount
	newRemaining := domain.ClampRemaining(target.TotalAmount, newPaid)
	newStatus := domain.StatusFor(newRemaining)

	ref := tabular.RangeRef(domain.DebtColPaid, domain.DebtColStatus, target.Row)
	values := [][]any{{domain.RoundCents(newPaid), domain.RoundCents(newRemaining), string(newStatus)}}
	if err := l.store.UpdateRange(ctx, ref, values); err != nil {
		l.log.Error().Err(err).Str("debt_id", target.ID).Int("row", target.Row).Msg("recording payment")
		return Payment{}, storeErr("RecordInstallmentPayment", "updating "+ref, err)
	}

	nextDue := target.NextDueDate
	if newStatus == domain.StatusPending && !target.Kind.Imported && target.NextDueDate != nil {
		advanced := target.NextDueDate.AddDays(domain.DueCadenceDays)
		cell := tabular.CellRef(domain.DebtColNextDue, target.Row)
		// the payment itself is already stored; a stale due date must not turn it into a failure
		if err := l.store.UpdateRange(ctx, cell, [][]any{{advanced.String()}}); err != nil {
			l.log.Warn().Err(err).Str("debt_id", target.ID).Str("cell", cell).Msg("payment recorded but due date not advanced")
		} else {
			nextDue = &advanced
		}
	}

	p := Payment{
		ID:          target.ID,
		Description: target.Description,
		Amount:      domain.RoundCents(amount),
		PaidAmount:  domain.RoundCents(newPaid),
		Remaining:   domain.RoundCents(newRemaining),
		Status:      newStatus,
		NextDue:     nextDue,
		Ambiguous:   others,
	}
	p.Message = fmt.Sprintf("Paid %.2f on %s (%s). Remaining %.2f, %s", p.Amount, p.ID, p.Description, p.Remaining, p.Status)
	if nextDue != nil && newStatus == domain.StatusPending {
		p.Message += ", next due " + nextDue.String()
	}
	l.log.Info().Str("debt_id", p.ID).Float64("amount", amount).Float64("remaining", p.Remaining).Msg("payment recorded")
	return p, nil
}

// Settlement is the result of SettleDebtFully.
type Settlement struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	// Repaired is set when the stored row looked settled but total-paid was still owed.
	Repaired bool                  `json:"repaired"`
	Expense  domain.TransactionRow `json:"expense"`
	Message  string                `json:"message"`
}

// SettleDebtFully pays off the remaining balance of the debt with exactly this ID and
// returns the local-currency expense the caller should post to the transaction log.
func (l *Ledger) SettleDebtFully(ctx context.Context, id string, paymentDate civil.Date, rate float64) (Settlement, error) {
	if rate <= 0 {
		return Settlement{}, fmt.Errorf("SettleDebtFully: rate %v: %w", rate, domain.ErrRateUnavailable)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	debts, err := l.readDebts(ctx)
	if err != nil {
		return Settlement{}, fmt.Errorf("SettleDebtFully: %w", err)
	}

	var target *domain.DebtRecord
	for i := range debts {
		if strings.EqualFold(debts[i].ID, strings.TrimSpace(id)) {
			target = &debts[i]
			break
		}
	}
	if target == nil {
		return Settlement{}, fmt.Errorf("SettleDebtFully: %w", &NotFoundError{
			Reference:  id,
			Suggestion: closestDebt(debts, id),
		})
	}

	remaining := target.RemainingAmount
	repaired := false
	if !target.Pending() || domain.IsSettled(remaining) {
		recomputed := target.Recomputed()
		if domain.IsSettled(recomputed) {
			return Settlement{}, fmt.Errorf("SettleDebtFully: %s: %w", target.ID, domain.ErrAlreadySettled)
		}
		l.log.Warn().
			Str("debt_id", target.ID).
			Int("row", target.Row).
			Float64("stored_remaining", remaining).
			Str("stored_status", string(target.Status)).
			Float64("recomputed_remaining", recomputed).
			Msg("stored row looks settled but is still owed, using recomputed balance")
		remaining = recomputed
		repaired = true
	}

	newPaid := target.PaidAmount + remaining
	ref := tabular.RangeRef(domain.DebtColPaid, domain.DebtColStatus, target.Row)
	values := [][]any{{domain.RoundCents(newPaid), 0.0, string(domain.StatusPaid)}}
	if err := l.store.UpdateRange(ctx, ref, values); err != nil {
		l.log.Error().Err(err).Str("debt_id", target.ID).Msg("settling debt")
		return Settlement{}, storeErr("SettleDebtFully", "updating "+ref, err)
	}

	local := remaining * rate
	s := Settlement{
		ID:          target.ID,
		Description: target.Description,
		Amount:      domain.RoundCents(remaining),
		Repaired:    repaired,
		Expense: domain.TransactionRow{
			Timestamp:     l.stamp(paymentDate),
			Direction:     domain.DirectionExpense,
			Category:      domain.CategoryDebtPayment,
			Location:      l.opts.LocalLocation,
			Currency:      l.opts.LocalCurrency,
			SignedAmount:  -domain.RoundCents(local),
			RateUsed:      rate,
			USDEquivalent: -domain.RoundCents(remaining),
			Description:   fmt.Sprintf("Settlement %s: %s", target.ID, target.Description),
		},
	}
	s.Message = fmt.Sprintf("Settled %s (%s): %.2f USD = %.2f %s at %.2f", s.ID, s.Description, s.Amount, domain.RoundCents(local), l.opts.LocalCurrency, rate)
	l.log.Info().Str("debt_id", s.ID).Float64("amount", s.Amount).Float64("rate", rate).Bool("repaired", repaired).Msg("debt settled")
	return s, nil
}

// stamp puts the current time of day on a payment date.
func (l *Ledger) stamp(date civil.Date) string {
	now := l.opts.Now()
	if date.IsZero() {
		return now.Format(tabular.TimestampFormat)
	}
	dt := civil.DateTime{Date: date, Time: civil.TimeOf(now)}
	return dt.In(now.Location()).Format(tabular.TimestampFormat)
}

// ListDebts returns the debt table in sheet order, optionally only pending records.
func (l *Ledger) ListDebts(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error) {
	debts, err := l.readDebts(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListDebts: %w", err)
	}
	if !pendingOnly {
		return debts, nil
	}
	out := debts[:0]
	for _, d := range debts {
		if d.Pending() && !domain.IsSettled(d.RemainingAmount) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Summary is the pending-debt overview.
type Summary struct {
	Count     int                 `json:"count"`
	TotalOwed float64             `json:"totalOwed"`
	Debts     []domain.DebtRecord `json:"debts"`
}

// PendingSummary lists pending debts and the total still owed.
func (l *Ledger) PendingSummary(ctx context.Context) (Summary, error) {
	debts, err := l.ListDebts(ctx, true)
	if err != nil {
		return Summary{}, fmt.Errorf("PendingSummary: %w", err)
	}
	var total float64
	for _, d := range debts {
		total += d.RemainingAmount
	}
	return Summary{Count: len(debts), TotalOwed: domain.RoundCents(total), Debts: debts}, nil
}

// Migration is the result of MigrateLegacyIDs.
type Migration struct {
	Total   int `json:"total"`
	Renamed int `json:"renamed"`
}

// MigrateLegacyIDs renumbers every debt sequentially in purchase-date order, oldest first.
// Rows with an unreadable date go last, in table order. Each changed ID cell is written on its own.
func (l *Ledger) MigrateLegacyIDs(ctx context.Context) (Migration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	debts, err := l.readDebts(ctx)
	if err != nil {
		return Migration{}, fmt.Errorf("MigrateLegacyIDs: %w", err)
	}

	sort.SliceStable(debts, func(i, j int) bool {
		a, b := debts[i].PurchaseDate, debts[j].PurchaseDate
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.Before(b)
	})

	m := Migration{Total: len(debts)}
	for i, d := range debts {
		id := l.opts.IDPrefix + strconv.Itoa(i+1)
		if d.ID == id {
			continue
		}
		cell := tabular.CellRef(domain.DebtColID, d.Row)
		if err := l.store.UpdateRange(ctx, cell, [][]any{{id}}); err != nil {
			l.log.Error().Err(err).Str("debt_id", d.ID).Int("row", d.Row).Int("renamed", m.Renamed).Msg("migration stopped")
			return m, storeErr("MigrateLegacyIDs", "updating "+cell, err)
		}
		l.log.Debug().Str("from", d.ID).Str("to", id).Int("row", d.Row).Msg("ID migrated")
		m.Renamed++
	}
	l.log.Info().Int("total", m.Total).Int("renamed", m.Renamed).Msg("legacy IDs migrated")
	return m, nil
}
