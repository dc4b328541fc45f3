package handlers

import (
	"context"
	"net/http"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/balances"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// BalanceReader is the read side of the transaction log.
type BalanceReader interface {
	BalancesByLocationAndCurrency(ctx context.Context) (balances.Balances, error)
	Portfolio(ctx context.Context) (balances.Portfolio, error)
	LocationBalance(ctx context.Context, name string) (balances.LocationReport, error)
}

// TransactionWriter is the write side of the transaction log.
type TransactionWriter interface {
	Save(ctx context.Context, e balances.Entry) (domain.TransactionRow, error)
	SaveConversion(ctx context.Context, c balances.Conversion) (balances.ConversionResult, error)
}

// BalancesHandler handles balance and transaction-log endpoints.
type BalancesHandler struct {
	reader BalanceReader
	writer TransactionWriter
}

// NewBalancesHandler creates a new balances handler.
func NewBalancesHandler(reader BalanceReader, writer TransactionWriter) *BalancesHandler {
	return &BalancesHandler{reader: reader, writer: writer}
}

// Balances handles GET /api/balances
func (h *BalancesHandler) Balances(w http.ResponseWriter, r *http.Request) {
	b, err := h.reader.BalancesByLocationAndCurrency(r.Context())
	if err != nil {
		writeFailure(w, r, err, "Failed to aggregate balances")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"balances": b})
}

// Portfolio handles GET /api/balances/portfolio
func (h *BalancesHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.reader.Portfolio(r.Context())
	if err != nil {
		writeFailure(w, r, err, "Failed to value portfolio")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// Location handles GET /api/balances/locations/{name}
func (h *BalancesHandler) Location(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reader.LocationBalance(r.Context(), r.PathValue("name"))
	if err != nil {
		writeFailure(w, r, err, "Failed to report location")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, rep)
}

// RecordTransaction handles POST /api/transactions
func (h *BalancesHandler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string  `json:"type"`
		Category    string  `json:"category"`
		Location    string  `json:"location"`
		Currency    string  `json:"currency"`
		Amount      float64 `json:"amount"`
		Description string  `json:"description"`
		Date        string  `json:"date"`
		Rate        float64 `json:"rate"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Amount <= 0 || req.Currency == "" {
		middleware.WriteError(w, http.StatusBadRequest, "amount and currency are required")
		return
	}
	dir := domain.ParseDirection(req.Type)
	if dir == domain.DirectionTransfer {
		middleware.WriteError(w, http.StatusBadRequest, "Use /api/conversions for transfers")
		return
	}
	date, err := optionalDate(req.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date format")
		return
	}

	row, err := h.writer.Save(r.Context(), balances.Entry{
		Direction:   dir,
		Category:    req.Category,
		Location:    req.Location,
		Currency:    req.Currency,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        date,
		Rate:        req.Rate,
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to record transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, row)
}

// RecordConversion handles POST /api/conversions
func (h *BalancesHandler) RecordConversion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromCurrency string  `json:"from_currency"`
		FromAmount   float64 `json:"from_amount"`
		FromLocation string  `json:"from_location"`
		ToCurrency   string  `json:"to_currency"`
		ToAmount     float64 `json:"to_amount"`
		ToLocation   string  `json:"to_location"`
		Date         string  `json:"date"`
	}
	if !decode(w, r, &req) {
		return
	}
	date, err := optionalDate(req.Date)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date format")
		return
	}
	res, err := h.writer.SaveConversion(r.Context(), balances.Conversion{
		FromCurrency: req.FromCurrency,
		FromAmount:   req.FromAmount,
		FromLocation: req.FromLocation,
		ToCurrency:   req.ToCurrency,
		ToAmount:     req.ToAmount,
		ToLocation:   req.ToLocation,
		Date:         date,
	})
	if err != nil {
		writeFailure(w, r, err, "Failed to record conversion")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}
