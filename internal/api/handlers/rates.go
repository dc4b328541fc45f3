package handlers

import (
	"context"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/rates"
)

// RateService is the rate provider plus its manual override.
type RateService interface {
	rates.Provider
	Info(ctx context.Context) rates.Info
	SetManualOverride(ctx context.Context, rate float64) error
	ClearManualOverride()
}

// RatesHandler handles exchange-rate endpoints.
type RatesHandler struct {
	rates RateService
}

// NewRatesHandler creates a new rates handler.
func NewRatesHandler(svc RateService) *RatesHandler {
	return &RatesHandler{rates: svc}
}

// Current handles GET /api/rates
func (h *RatesHandler) Current(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.rates.Info(r.Context()))
}

// Historical handles GET /api/rates/{date}
func (h *RatesHandler) Historical(w http.ResponseWriter, r *http.Request) {
	date, err := civil.ParseDate(r.PathValue("date"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid date format")
		return
	}
	rate, err := h.rates.HistoricalRate(r.Context(), date)
	if err != nil {
		writeFailure(w, r, err, "Failed to look up historical rate")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"date": date.String(),
		"rate": rate,
	})
}

// SetManual handles PUT /api/rates/manual
func (h *RatesHandler) SetManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.rates.SetManualOverride(r.Context(), req.Rate); err != nil {
		writeFailure(w, r, err, "Failed to set manual rate")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.rates.Info(r.Context()))
}

// ClearManual handles DELETE /api/rates/manual
func (h *RatesHandler) ClearManual(w http.ResponseWriter, r *http.Request) {
	h.rates.ClearManualOverride()
	middleware.WriteJSON(w, http.StatusOK, h.rates.Info(r.Context()))
}
