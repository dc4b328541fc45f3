package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/dvloznov/finance-ledger/internal/rates"
)

// DebtLedger is the part of ledger.Ledger the HTTP API drives.
type DebtLedger interface {
	ListDebts(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error)
	PendingSummary(ctx context.Context) (ledger.Summary, error)
	CreateDebt(ctx context.Context, in ledger.NewDebt) (ledger.Created, error)
	RecordInstallmentPayment(ctx context.Context, reference string, amount float64) (ledger.Payment, error)
	SettleDebtFully(ctx context.Context, id string, paymentDate civil.Date, rate float64) (ledger.Settlement, error)
	CreateInstallmentPlan(ctx context.Context, req ledger.PlanRequest) (ledger.Plan, error)
	AvailableCredit(ctx context.Context) ([]ledger.LineUsage, error)
	SimulatePurchase(ctx context.Context, amount float64, lineName string) (ledger.Simulation, error)
	PurchaseOnCredit(ctx context.Context, req ledger.PurchaseRequest) (ledger.Purchase, error)
}

// ExpensePoster writes the expenses that debt operations produce to the transaction log.
type ExpensePoster interface {
	Post(ctx context.Context, row domain.TransactionRow) error
	SaveDownPayment(ctx context.Context, debtID, description string, amount float64, date *civil.Date) (domain.TransactionRow, error)
}

// DebtsHandler handles debt and credit endpoints.
type DebtsHandler struct {
	ledger DebtLedger
	poster ExpensePoster
	rates  rates.Provider
	now    func() time.Time
}

// NewDebtsHandler creates a new debts handler.
func NewDebtsHandler(l DebtLedger, poster ExpensePoster, provider rates.Provider) *DebtsHandler {
	return &DebtsHandler{ledger: l, poster: poster, rates: provider, now: time.Now}
}

// ListDebts handles GET /api/debts?pending=true
func (h *DebtsHandler) ListDebts(w http.ResponseWriter, r *http.Request) {
	pending, _ := strconv.ParseBool(r.URL.Query().Get("pending"))
	debts, err := h.ledger.ListDebts(r.Context(), pending)
	if err != nil {
		writeFailure(w, r, err, "Failed to list debts")
		return
	}
	if debts == nil {
		debts = []domain.DebtRecord{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"debts": debts,
		"count": len(debts),
	})
}

// Summary handles GET /api/debts/summary
func (h *DebtsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.ledger.PendingSummary(r.Context())
	if err != nil {
		writeFailure(w, r, err, "Failed to summarise debts")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}

// CreateDebt handles POST /api/debts
func (h *DebtsHandler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description    string  `json:"description"`
		TotalAmount    float64 `json:"total_amount"`
		InitialPayment float64 `json:"initial_payment"`
		Kind           string  `json:"kind"`
		PurchaseDate   string  `json:"purchase_date"`
		DueDate        string  `json:"due_date"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Description == "" {
		middleware.WriteError(w, http.StatusBadRequest, "description is required")
		return
	}
	purchased, err := optionalDate(req.PurchaseDate)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid purchase_date format")
		return
	}
	due, err := optionalDate(req.DueDate)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid due_date format")
		return
	}

	created, err := h.ledger.CreateDebt(r.Context(), ledger.NewDebt{
		Description:    req.Description,
		TotalAmount:    req.TotalAmount,
		InitialPayment: req.InitialPayment,
		Kind:           domain.ParseKind(req.Kind),
		PurchaseDate:   purchased,
		DueDate:        due,
		Source:         "api",
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to create debt")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, created)
}

// RecordPayment handles POST /api/debts/payments
func (h *DebtsHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string  `json:"reference"`
		Amount    float64 `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	p, err := h.ledger.RecordInstallmentPayment(r.Context(), req.Reference, req.Amount)
	if err != nil {
		writeFailure(w, r, err, "Failed to record payment")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// Settle handles POST /api/debts/{id}/settle. Without an explicit rate the rate of the
// payment date is looked up. The settlement expense is then posted to the transaction log.
func (h *DebtsHandler) Settle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	var req struct {
		PaymentDate string  `json:"payment_date"`
		Rate        float64 `json:"rate"`
	}
	if !decodeOptional(w, r, &req) {
		return
	}
	today := civil.DateOf(h.now())
	date := today
	if d, err := optionalDate(req.PaymentDate); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid payment_date format")
		return
	} else if d != nil {
		date = *d
	}

	rate := req.Rate
	if rate <= 0 {
		var err error
		if date.Before(today) {
			rate, err = h.rates.HistoricalRate(ctx, date)
		} else {
			rate, err = h.rates.CurrentRate(ctx)
		}
		if err != nil {
			writeFailure(w, r, err, "Failed to look up settlement rate")
			return
		}
	}

	s, err := h.ledger.SettleDebtFully(ctx, id, date, rate)
	if err != nil {
		writeFailure(w, r, err, "Failed to settle debt")
		return
	}

	posted := true
	if err := h.poster.Post(ctx, s.Expense); err != nil {
		// the debt row is already settled; report the missing expense instead of failing
		logger.FromContext(ctx).Error().Err(err).Str("debt_id", s.ID).Msg("Settlement expense not posted")
		posted = false
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"settlement":     s,
		"expense_posted": posted,
	})
}

// CreatePlan handles POST /api/debts/plans
func (h *DebtsHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description       string  `json:"description"`
		InstallmentAmount float64 `json:"installment_amount"`
		Count             int     `json:"count"`
		StartDate         string  `json:"start_date"`
		Line              string  `json:"line"`
	}
	if !decode(w, r, &req) {
		return
	}
	start, err := civil.ParseDate(req.StartDate)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
		return
	}
	plan, err := h.ledger.CreateInstallmentPlan(r.Context(), ledger.PlanRequest{
		Description:       req.Description,
		InstallmentAmount: req.InstallmentAmount,
		Count:             req.Count,
		StartDate:         start,
		Line:              req.Line,
		Source:            "api",
	})
	if err != nil {
		if len(plan.IDs) > 0 {
			logger.FromContext(r.Context()).Warn().Strs("created", plan.IDs).Msg("Installment plan partially created")
		}
		writeFailure(w, r, err, "Failed to create installment plan")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, plan)
}

// AvailableCredit handles GET /api/credit
func (h *DebtsHandler) AvailableCredit(w http.ResponseWriter, r *http.Request) {
	lines, err := h.ledger.AvailableCredit(r.Context())
	if err != nil {
		writeFailure(w, r, err, "Failed to compute available credit")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

// Simulate handles GET /api/credit/simulate?amount=100&line=daily
func (h *DebtsHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, err := strconv.ParseFloat(query.Get("amount"), 64)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	sim, err := h.ledger.SimulatePurchase(r.Context(), amount, query.Get("line"))
	if err != nil {
		writeFailure(w, r, err, "Failed to simulate purchase")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sim)
}

// Purchase handles POST /api/credit/purchases. The simulated down payment is recorded
// on the debt as paid and posted to the transaction log as a USD expense.
func (h *DebtsHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description  string  `json:"description"`
		Amount       float64 `json:"amount"`
		Line         string  `json:"line"`
		PurchaseDate string  `json:"purchase_date"`
	}
	if !decode(w, r, &req) {
		return
	}
	date, err := optionalDate(req.PurchaseDate)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid purchase_date format")
		return
	}
	ctx := r.Context()
	p, err := h.ledger.PurchaseOnCredit(ctx, ledger.PurchaseRequest{
		Description:  req.Description,
		Amount:       req.Amount,
		Line:         req.Line,
		PurchaseDate: date,
		Source:       "api",
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to record credit purchase")
		return
	}

	posted := true
	if down := p.Simulation.DownPayment; down > 0 {
		if _, err := h.poster.SaveDownPayment(ctx, p.Debt.ID, req.Description, down, date); err != nil {
			// the debt already counts the down payment as paid; report the missing expense
			logger.FromContext(ctx).Error().Err(err).Str("debt_id", p.Debt.ID).Msg("Down payment expense not posted")
			posted = false
		}
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{
		"purchase":       p,
		"expense_posted": posted,
	})
}
