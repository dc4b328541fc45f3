package ledger

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// DownPaymentFraction is the minimum share of a credit purchase paid up front, on every line.
const DownPaymentFraction = 0.40

// DefaultLimits are the current revolving limits.
func DefaultLimits() map[domain.Line]float64 {
	return map[domain.Line]float64{
		domain.LineDaily:     150,
		domain.LinePrincipal: 400,
	}
}

// LineUsage is the state of one revolving line.
type LineUsage struct {
	Line      string  `json:"line"`
	Used      float64 `json:"used"`
	Limit     float64 `json:"limit"`
	Available float64 `json:"available"`
}

// revolvingLines is the fixed report order.
var revolvingLines = []domain.Line{domain.LineDaily, domain.LinePrincipal}

// AvailableCredit sums the remaining balance of pending debts per revolving line.
func (l *Ledger) AvailableCredit(ctx context.Context) ([]LineUsage, error) {
	debts, err := l.readDebts(ctx)
	if err != nil {
		return nil, fmt.Errorf("AvailableCredit: %w", err)
	}
	out := make([]LineUsage, 0, len(revolvingLines))
	for _, line := range revolvingLines {
		out = append(out, l.usage(debts, line))
	}
	return out, nil
}

func (l *Ledger) usage(debts []domain.DebtRecord, line domain.Line) LineUsage {
	var used float64
	for _, d := range debts {
		if d.Pending() && d.Kind.Line == line {
			used += d.RemainingAmount
		}
	}
	limit := l.opts.Limits[line]
	return LineUsage{
		Line:      line.String(),
		Used:      domain.RoundCents(used),
		Limit:     limit,
		Available: domain.RoundCents(max(0, limit-used)),
	}
}

// Simulation is the down payment needed to buy on a revolving line.
type Simulation struct {
	PurchaseAmount  float64 `json:"purchaseAmount"`
	Line            string  `json:"line"`
	DownPayment     float64 `json:"downPayment"`
	FinanceAmount   float64 `json:"financeAmount"`
	AvailableBefore float64 `json:"availableBefore"`
	Adjusted        bool    `json:"adjusted"`
	Message         string  `json:"message"`
}

// SimulatePurchase computes the down payment for a purchase. When 60% of the amount
// exceeds the line's headroom, the shortfall moves to the down payment so the financed
// part is exactly the available credit. It never writes.
func (l *Ledger) SimulatePurchase(ctx context.Context, amount float64, lineName string) (Simulation, error) {
	line, err := revolvingLine(lineName)
	if err != nil {
		return Simulation{}, fmt.Errorf("SimulatePurchase: %w", err)
	}
	if amount <= 0 {
		return Simulation{}, fmt.Errorf("SimulatePurchase: amount %v: %w", amount, domain.ErrInvalidInput)
	}

	debts, err := l.readDebts(ctx)
	if err != nil {
		return Simulation{}, fmt.Errorf("SimulatePurchase: %w", err)
	}
	return simulate(amount, l.usage(debts, line)), nil
}

func simulate(amount float64, u LineUsage) Simulation {
	baseDown := domain.RoundCents(amount * DownPaymentFraction)
	baseFinance := domain.RoundCents(amount - baseDown)

	s := Simulation{
		PurchaseAmount:  domain.RoundCents(amount),
		Line:            u.Line,
		DownPayment:     baseDown,
		FinanceAmount:   baseFinance,
		AvailableBefore: u.Available,
	}
	if baseFinance > u.Available {
		shortfall := baseFinance - u.Available
		s.DownPayment = domain.RoundCents(baseDown + shortfall)
		s.FinanceAmount = u.Available
		s.Adjusted = true
		s.Message = fmt.Sprintf("%s line has only %.2f available: pay %.2f up front (%.2f over the minimum) and finance %.2f",
			u.Line, u.Available, s.DownPayment, domain.RoundCents(shortfall), s.FinanceAmount)
		return s
	}
	s.Message = fmt.Sprintf("Pay %.2f up front and finance %.2f on the %s line (%.2f available)",
		s.DownPayment, s.FinanceAmount, u.Line, u.Available)
	return s
}

func revolvingLine(name string) (domain.Line, error) {
	line, ok := domain.ParseLine(name)
	if !ok || !line.Revolving() {
		return 0, fmt.Errorf("line %q: %w", strings.TrimSpace(name), domain.ErrUnknownLine)
	}
	return line, nil
}

// PurchaseRequest is a purchase financed on a revolving line.
type PurchaseRequest struct {
	Description  string
	Amount       float64
	Line         string
	PurchaseDate *civil.Date
	Source       string
	// DownPayment, when set, is what was actually paid up front. It replaces the
	// simulated down payment and the financed rest must fit in the line's headroom.
	DownPayment *float64
}

// Purchase is the result of PurchaseOnCredit.
type Purchase struct {
	Simulation Simulation `json:"simulation"`
	Debt       Created    `json:"debt"`
}

// PurchaseOnCredit simulates the purchase and records it with the simulated down payment
// already paid, or with req.DownPayment when the purchase already happened. Simulation
// and insert happen in one critical section.
func (l *Ledger) PurchaseOnCredit(ctx context.Context, req PurchaseRequest) (Purchase, error) {
	line, err := revolvingLine(req.Line)
	if err != nil {
		return Purchase{}, fmt.Errorf("PurchaseOnCredit: %w", err)
	}
	if req.Amount <= 0 {
		return Purchase{}, fmt.Errorf("PurchaseOnCredit: amount %v: %w", req.Amount, domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	debts, err := l.readDebts(ctx)
	if err != nil {
		return Purchase{}, fmt.Errorf("PurchaseOnCredit: %w", err)
	}
	usage := l.usage(debts, line)
	sim := simulate(req.Amount, usage)

	down := sim.DownPayment
	if req.DownPayment != nil {
		down = domain.RoundCents(*req.DownPayment)
		if down < 0 || down > req.Amount {
			return Purchase{Simulation: sim}, fmt.Errorf("PurchaseOnCredit: down payment %v of %v: %w", down, req.Amount, domain.ErrInvalidInput)
		}
		if financed := domain.RoundCents(req.Amount - down); financed-usage.Available > domain.SettledEpsilon {
			return Purchase{Simulation: sim}, fmt.Errorf("PurchaseOnCredit: %w", &LimitError{
				Line:        usage.Line,
				Financed:    financed,
				Available:   usage.Available,
				DownPayment: sim.DownPayment,
			})
		}
	}

	created, err := l.createLocked(ctx, NewDebt{
		Description:    req.Description,
		TotalAmount:    req.Amount,
		InitialPayment: down,
		Kind:           domain.Kind{Line: line},
		PurchaseDate:   req.PurchaseDate,
		Source:         req.Source,
	})
	if err != nil {
		return Purchase{Simulation: sim}, fmt.Errorf("PurchaseOnCredit: %w", err)
	}
	return Purchase{Simulation: sim, Debt: created}, nil
}
