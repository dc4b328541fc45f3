package handlers

import "net/http"

// Routes groups the handlers served by the API.
type Routes struct {
	Debts    *DebtsHandler
	Balances *BalancesHandler
	Rates    *RatesHandler
	Intents  *IntentsHandler
	Jobs     *JobsHandler
}

// Register mounts every non-nil handler on mux.
func (rt Routes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", Health)

	if h := rt.Debts; h != nil {
		mux.HandleFunc("GET /api/debts", h.ListDebts)
		mux.HandleFunc("POST /api/debts", h.CreateDebt)
		mux.HandleFunc("GET /api/debts/summary", h.Summary)
		mux.HandleFunc("POST /api/debts/payments", h.RecordPayment)
		mux.HandleFunc("POST /api/debts/plans", h.CreatePlan)
		mux.HandleFunc("POST /api/debts/{id}/settle", h.Settle)
		mux.HandleFunc("GET /api/credit", h.AvailableCredit)
		mux.HandleFunc("GET /api/credit/simulate", h.Simulate)
		mux.HandleFunc("POST /api/credit/purchases", h.Purchase)
	}
	if h := rt.Balances; h != nil {
		mux.HandleFunc("GET /api/balances", h.Balances)
		mux.HandleFunc("GET /api/balances/portfolio", h.Portfolio)
		mux.HandleFunc("GET /api/balances/locations/{name}", h.Location)
		mux.HandleFunc("POST /api/transactions", h.RecordTransaction)
		mux.HandleFunc("POST /api/conversions", h.RecordConversion)
	}
	if h := rt.Rates; h != nil {
		mux.HandleFunc("GET /api/rates", h.Current)
		mux.HandleFunc("GET /api/rates/{date}", h.Historical)
		mux.HandleFunc("PUT /api/rates/manual", h.SetManual)
		mux.HandleFunc("DELETE /api/rates/manual", h.ClearManual)
	}
	if h := rt.Intents; h != nil {
		mux.HandleFunc("POST /api/intents", h.Apply)
		mux.HandleFunc("POST /api/intents/text", h.ApplyText)
		mux.HandleFunc("POST /api/intents/receipt", h.ApplyReceipt)
	}
	if h := rt.Jobs; h != nil {
		mux.HandleFunc("GET /api/jobs", h.ListJobs)
		mux.HandleFunc("POST /api/jobs", h.Enqueue)
		mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	}
}
