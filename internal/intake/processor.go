package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/balances"
	"github.com/dvloznov/finance-ledger/internal/classifier"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/rates"
	"github.com/rs/zerolog"
)

// Ledger is the part of the debt ledger intake writes to.
type Ledger interface {
	CreateDebt(ctx context.Context, in ledger.NewDebt) (ledger.Created, error)
	PurchaseOnCredit(ctx context.Context, req ledger.PurchaseRequest) (ledger.Purchase, error)
	RecordInstallmentPayment(ctx context.Context, reference string, amount float64) (ledger.Payment, error)
}

// Recorder is the part of the transaction log intake writes to.
type Recorder interface {
	Save(ctx context.Context, e balances.Entry) (domain.TransactionRow, error)
	SaveConversion(ctx context.Context, c balances.Conversion) (balances.ConversionResult, error)
}

// Outcome kinds.
const (
	KindTransaction        = "transaction"
	KindConversion         = "conversion"
	KindCreditPurchase     = "credit_purchase"
	KindInstallmentPayment = "installment_payment"
)

// Outcome describes everything an intent wrote.
type Outcome struct {
	Kind         string                     `json:"kind"`
	Intent       domain.Intent              `json:"intent"`
	Transactions []domain.TransactionRow    `json:"transactions,omitempty"`
	Conversion   *balances.ConversionResult `json:"conversion,omitempty"`
	Debt         *ledger.Created            `json:"debt,omitempty"`
	Payment      *ledger.Payment            `json:"payment,omitempty"`
	Message      string                     `json:"message"`
}

// Processor applies classified intents to the ledger and the transaction log.
type Processor struct {
	classifier classifier.Classifier
	ledger     Ledger
	recorder   Recorder
	rates      rates.Provider
	local      balances.Local
	now        func() time.Time
	log        zerolog.Logger
}

// NewProcessor creates a Processor. classifier may be nil when only Apply is used.
func NewProcessor(c classifier.Classifier, l Ledger, r Recorder, provider rates.Provider, local balances.Local, log zerolog.Logger) *Processor {
	return &Processor{
		classifier: c,
		ledger:     l,
		recorder:   r,
		rates:      provider,
		local:      local,
		now:        time.Now,
		log:        log.With().Str("component", "intake").Logger(),
	}
}

// ApplyText classifies a message and applies the result.
func (p *Processor) ApplyText(ctx context.Context, text string) (Outcome, error) {
	if p.classifier == nil {
		return Outcome{}, fmt.Errorf("ApplyText: no classifier configured: %w", domain.ErrInvalidInput)
	}
	intent, err := p.classifier.ClassifyText(ctx, text)
	if err != nil {
		return Outcome{}, fmt.Errorf("ApplyText: %w", err)
	}
	return p.Apply(ctx, intent)
}

// ApplyReceipt extracts a receipt and applies the result.
func (p *Processor) ApplyReceipt(ctx context.Context, image []byte, mimeType string) (Outcome, error) {
	if p.classifier == nil {
		return Outcome{}, fmt.Errorf("ApplyReceipt: no classifier configured: %w", domain.ErrInvalidInput)
	}
	intent, err := p.classifier.ExtractReceipt(ctx, image, mimeType)
	if err != nil {
		return Outcome{}, fmt.Errorf("ApplyReceipt: %w", err)
	}
	return p.Apply(ctx, intent)
}

// Apply writes one intent. Conversions write two rows; credit purchases create a debt and
// record the down payment; installment payments update the debt and record the expense.
func (p *Processor) Apply(ctx context.Context, in domain.Intent) (Outcome, error) {
	date, err := intentDate(in)
	if err != nil {
		return Outcome{}, fmt.Errorf("Apply: %w", err)
	}

	switch {
	case in.Direction == domain.DirectionTransfer:
		return p.applyConversion(ctx, in, date)
	case in.IsCreditPurchase:
		return p.applyCreditPurchase(ctx, in, date)
	case in.IsInstallmentPayment:
		return p.applyInstallmentPayment(ctx, in, date)
	}

	row, err := p.recorder.Save(ctx, p.entry(in, date))
	if err != nil {
		return Outcome{}, fmt.Errorf("Apply: %w", err)
	}
	return Outcome{
		Kind:         KindTransaction,
		Intent:       in,
		Transactions: []domain.TransactionRow{row},
		Message:      fmt.Sprintf("%s of %.2f %s saved (%s)", row.Direction, in.Amount, row.Currency, row.Location),
	}, nil
}

func (p *Processor) applyConversion(ctx context.Context, in domain.Intent, date *civil.Date) (Outcome, error) {
	if in.DestinationCurrency == nil || in.DestinationAmount == nil {
		return Outcome{}, fmt.Errorf("Apply: conversion without destination: %w", domain.ErrInvalidInput)
	}
	res, err := p.recorder.SaveConversion(ctx, balances.Conversion{
		FromCurrency: in.Currency,
		FromAmount:   in.Amount,
		ToCurrency:   *in.DestinationCurrency,
		ToAmount:     *in.DestinationAmount,
		FromLocation: in.Location,
		Date:         date,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("Apply: %w", err)
	}

	msg := fmt.Sprintf("Converted %.2f %s to %.2f %s", in.Amount, in.Currency, *in.DestinationAmount, *in.DestinationCurrency)
	switch {
	case res.Fee != 0:
		msg += fmt.Sprintf(", fee %.2f (%.2f%%)", res.Fee, res.FeePercent)
	case res.EffectiveRate != 0:
		msg += fmt.Sprintf(", rate %.2f", res.EffectiveRate)
	}
	return Outcome{
		Kind:         KindConversion,
		Intent:       in,
		Transactions: []domain.TransactionRow{res.Out, res.In},
		Conversion:   &res,
		Message:      msg,
	}, nil
}

func (p *Processor) applyCreditPurchase(ctx context.Context, in domain.Intent, date *civil.Date) (Outcome, error) {
	if in.TotalCreditAmount == nil || *in.TotalCreditAmount < in.Amount {
		return Outcome{}, fmt.Errorf("Apply: credit purchase total: %w", domain.ErrInvalidInput)
	}
	line, ok := domain.ParseLine(in.CreditLine)
	if !ok {
		return Outcome{}, fmt.Errorf("Apply: line %q: %w", in.CreditLine, domain.ErrUnknownLine)
	}
	rate, err := p.usdRate(ctx, in.Currency, date)
	if err != nil {
		return Outcome{}, fmt.Errorf("Apply: %w", err)
	}

	total := domain.RoundCents(*in.TotalCreditAmount / rate)
	down := domain.RoundCents(in.Amount / rate)

	var created ledger.Created
	if line.Revolving() {
		// revolving lines are checked against their limit before anything is written
		purchase, err := p.ledger.PurchaseOnCredit(ctx, ledger.PurchaseRequest{
			Description:  in.Description,
			Amount:       total,
			Line:         in.CreditLine,
			PurchaseDate: date,
			Source:       "intake",
			DownPayment:  &down,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("Apply: %w", err)
		}
		created = purchase.Debt
	} else {
		created, err = p.ledger.CreateDebt(ctx, ledger.NewDebt{
			Description:    in.Description,
			TotalAmount:    total,
			InitialPayment: down,
			Kind:           domain.Kind{Line: line},
			PurchaseDate:   date,
			Source:         "intake",
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("Apply: %w", err)
		}
	}
	out := Outcome{
		Kind:    KindCreditPurchase,
		Intent:  in,
		Debt:    &created,
		Message: fmt.Sprintf("Debt %s created, %.2f USD remaining", created.ID, created.Remaining),
	}
	if in.Amount <= 0 {
		return out, nil
	}

	e := p.entry(in, date)
	e.Direction = domain.DirectionExpense
	e.Description = "Down payment " + created.ID + ": " + in.Description
	if !domain.DollarLike(in.Currency) {
		e.Rate = rate
	}
	row, err := p.recorder.Save(ctx, e)
	if err != nil {
		p.log.Error().Err(err).Str("debt_id", created.ID).Msg("debt created but down payment not recorded")
		return out, fmt.Errorf("Apply: down payment for %s: %w", created.ID, err)
	}
	out.Transactions = []domain.TransactionRow{row}
	return out, nil
}

func (p *Processor) applyInstallmentPayment(ctx context.Context, in domain.Intent, date *civil.Date) (Outcome, error) {
	if in.PaymentReference == nil || strings.TrimSpace(*in.PaymentReference) == "" {
		return Outcome{}, fmt.Errorf("Apply: installment payment without reference: %w", domain.ErrInvalidInput)
	}
	rate, err := p.usdRate(ctx, in.Currency, date)
	if err != nil {
		return Outcome{}, fmt.Errorf("Apply: %w", err)
	}

	pay, err := p.ledger.RecordInstallmentPayment(ctx, *in.PaymentReference, domain.RoundCents(in.Amount/rate))
	if err != nil {
		return Outcome{}, fmt.Errorf("Apply: %w", err)
	}
	out := Outcome{Kind: KindInstallmentPayment, Intent: in, Payment: &pay, Message: pay.Message}

	e := p.entry(in, date)
	e.Direction = domain.DirectionExpense
	e.Category = domain.CategoryDebtPayment
	e.Description = "Installment " + pay.ID + ": " + pay.Description
	if !domain.DollarLike(in.Currency) {
		e.Rate = rate
	}
	row, err := p.recorder.Save(ctx, e)
	if err != nil {
		p.log.Error().Err(err).Str("debt_id", pay.ID).Msg("payment applied but expense not recorded")
		return out, fmt.Errorf("Apply: expense for %s: %w", pay.ID, err)
	}
	out.Transactions = []domain.TransactionRow{row}
	return out, nil
}

func (p *Processor) entry(in domain.Intent, date *civil.Date) balances.Entry {
	location := strings.TrimSpace(in.Location)
	if location == "" {
		location = balances.LocationFor(in.Currency, p.local)
	}
	return balances.Entry{
		Direction:   in.Direction,
		Category:    in.Category,
		Location:    location,
		Currency:    in.Currency,
		Amount:      in.Amount,
		Description: in.Description,
		Date:        date,
	}
}

// usdRate is how many units of currency make one dollar. Debts are kept in dollars.
func (p *Processor) usdRate(ctx context.Context, currency string, date *civil.Date) (float64, error) {
	switch {
	case domain.DollarLike(currency):
		return 1, nil
	case strings.EqualFold(currency, p.local.Currency):
	default:
		return 0, fmt.Errorf("currency %q cannot be converted to USD: %w", currency, domain.ErrInvalidInput)
	}

	var (
		rate float64
		err  error
	)
	if date != nil && date.Before(civil.DateOf(p.now())) {
		rate, err = p.rates.HistoricalRate(ctx, *date)
	} else {
		rate, err = p.rates.CurrentRate(ctx)
	}
	if err != nil {
		return 0, err
	}
	if rate <= 0 {
		return 0, domain.ErrRateUnavailable
	}
	return rate, nil
}

func intentDate(in domain.Intent) (*civil.Date, error) {
	if strings.TrimSpace(in.Date) == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(strings.TrimSpace(in.Date))
	if err != nil {
		return nil, fmt.Errorf("date %q: %w", in.Date, domain.ErrInvalidInput)
	}
	return &d, nil
}
