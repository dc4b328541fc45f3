package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/balances"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/intake"
	"github.com/dvloznov/finance-ledger/internal/jobs"
	"github.com/dvloznov/finance-ledger/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ledger/internal/ledger"
	"github.com/dvloznov/finance-ledger/internal/rates"
)

// mockLedger is a mock DebtLedger; unset functions return zero values.
type mockLedger struct {
	ListDebtsFunc        func(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error)
	CreateDebtFunc       func(ctx context.Context, in ledger.NewDebt) (ledger.Created, error)
	RecordPaymentFunc    func(ctx context.Context, reference string, amount float64) (ledger.Payment, error)
	SettleDebtFullyFunc  func(ctx context.Context, id string, paymentDate civil.Date, rate float64) (ledger.Settlement, error)
	SimulatePurchaseFunc func(ctx context.Context, amount float64, lineName string) (ledger.Simulation, error)
	PurchaseOnCreditFunc func(ctx context.Context, req ledger.PurchaseRequest) (ledger.Purchase, error)
}

func (m *mockLedger) ListDebts(ctx context.Context, pendingOnly bool) ([]domain.DebtRecord, error) {
	if m.ListDebtsFunc != nil {
		return m.ListDebtsFunc(ctx, pendingOnly)
	}
	return nil, nil
}

func (m *mockLedger) PendingSummary(ctx context.Context) (ledger.Summary, error) {
	return ledger.Summary{}, nil
}

func (m *mockLedger) CreateDebt(ctx context.Context, in ledger.NewDebt) (ledger.Created, error) {
	if m.CreateDebtFunc != nil {
		return m.CreateDebtFunc(ctx, in)
	}
	return ledger.Created{}, nil
}

func (m *mockLedger) RecordInstallmentPayment(ctx context.Context, reference string, amount float64) (ledger.Payment, error) {
	if m.RecordPaymentFunc != nil {
		return m.RecordPaymentFunc(ctx, reference, amount)
	}
	return ledger.Payment{}, nil
}

func (m *mockLedger) SettleDebtFully(ctx context.Context, id string, paymentDate civil.Date, rate float64) (ledger.Settlement, error) {
	if m.SettleDebtFullyFunc != nil {
		return m.SettleDebtFullyFunc(ctx, id, paymentDate, rate)
	}
	return ledger.Settlement{}, nil
}

func (m *mockLedger) CreateInstallmentPlan(ctx context.Context, req ledger.PlanRequest) (ledger.Plan, error) {
	return ledger.Plan{}, nil
}

func (m *mockLedger) AvailableCredit(ctx context.Context) ([]ledger.LineUsage, error) {
	return nil, nil
}

func (m *mockLedger) SimulatePurchase(ctx context.Context, amount float64, lineName string) (ledger.Simulation, error) {
	if m.SimulatePurchaseFunc != nil {
		return m.SimulatePurchaseFunc(ctx, amount, lineName)
	}
	return ledger.Simulation{}, nil
}

func (m *mockLedger) PurchaseOnCredit(ctx context.Context, req ledger.PurchaseRequest) (ledger.Purchase, error) {
	if m.PurchaseOnCreditFunc != nil {
		return m.PurchaseOnCreditFunc(ctx, req)
	}
	return ledger.Purchase{}, nil
}

type downPayment struct {
	debtID string
	amount float64
	date   *civil.Date
}

type mockPoster struct {
	rows []domain.TransactionRow
	down []downPayment
	err  error
}

func (m *mockPoster) SaveDownPayment(ctx context.Context, debtID, description string, amount float64, date *civil.Date) (domain.TransactionRow, error) {
	if m.err != nil {
		return domain.TransactionRow{}, m.err
	}
	m.down = append(m.down, downPayment{debtID: debtID, amount: amount, date: date})
	return domain.TransactionRow{Direction: domain.DirectionExpense, Currency: "USD", SignedAmount: -amount}, nil
}

func (m *mockPoster) Post(ctx context.Context, row domain.TransactionRow) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, row)
	return nil
}

type mockProcessor struct {
	mimeType string
	size     int
}

func (m *mockProcessor) Apply(ctx context.Context, in domain.Intent) (intake.Outcome, error) {
	if in.Amount <= 0 {
		return intake.Outcome{}, fmt.Errorf("Apply: %w", domain.ErrInvalidInput)
	}
	return intake.Outcome{Kind: intake.KindTransaction, Intent: in}, nil
}

func (m *mockProcessor) ApplyText(ctx context.Context, text string) (intake.Outcome, error) {
	return intake.Outcome{Kind: intake.KindTransaction, Message: text}, nil
}

func (m *mockProcessor) ApplyReceipt(ctx context.Context, image []byte, mimeType string) (intake.Outcome, error) {
	m.mimeType, m.size = mimeType, len(image)
	return intake.Outcome{Kind: intake.KindTransaction}, nil
}

type mockPublisher struct {
	published []*jobs.Job
}

func (m *mockPublisher) Publish(ctx context.Context, job *jobs.Job) error {
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func newMux(rt Routes) *http.ServeMux {
	mux := http.NewServeMux()
	rt.Register(mux)
	return mux
}

func serve(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrAlreadySettled, http.StatusConflict},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnknownLine, http.StatusBadRequest},
		{domain.ErrRateUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, errors.New("503")), http.StatusServiceUnavailable},
		{domain.ErrParseFailure, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSettle(t *testing.T) {
	var gotID string
	var gotDate civil.Date
	var gotRate float64
	l := &mockLedger{SettleDebtFullyFunc: func(ctx context.Context, id string, paymentDate civil.Date, rate float64) (ledger.Settlement, error) {
		gotID, gotDate, gotRate = id, paymentDate, rate
		return ledger.Settlement{ID: id, Amount: 60, Expense: domain.TransactionRow{
			Direction: domain.DirectionExpense, Currency: "Bs", SignedAmount: -60 * rate,
		}}, nil
	}}
	poster := &mockPoster{}
	debts := NewDebtsHandler(l, poster, rates.Fixed(36.5))
	debts.now = func() time.Time { return time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC) }
	mux := newMux(Routes{Debts: debts})

	rec := serve(mux, http.MethodPost, "/api/debts/DEBT-3/settle", `{"payment_date":"2025-01-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gotID != "DEBT-3" || gotDate != (civil.Date{Year: 2025, Month: 1, Day: 1}) || gotRate != 36.5 {
		t.Errorf("settled %s on %v at %v", gotID, gotDate, gotRate)
	}
	if len(poster.rows) != 1 || poster.rows[0].SignedAmount != -2190 {
		t.Errorf("posted = %+v", poster.rows)
	}

	// no body: today and the current rate
	rec = serve(mux, http.MethodPost, "/api/debts/DEBT-4/settle", "")
	if rec.Code != http.StatusOK || gotDate != (civil.Date{Year: 2025, Month: 1, Day: 10}) {
		t.Errorf("status = %d, date %v", rec.Code, gotDate)
	}
}

func TestSettle_Errors(t *testing.T) {
	notFound := &mockLedger{SettleDebtFullyFunc: func(ctx context.Context, id string, paymentDate civil.Date, rate float64) (ledger.Settlement, error) {
		return ledger.Settlement{}, fmt.Errorf("SettleDebtFully: %s: %w", id, domain.ErrNotFound)
	}}

	tests := []struct {
		name    string
		ledger  *mockLedger
		rates   rates.Provider
		body    string
		status  int
		message string
	}{
		{name: "no rate", ledger: &mockLedger{}, rates: rates.Fixed(0), status: http.StatusServiceUnavailable,
			message: "No exchange rate available, set one manually"},
		{name: "not found", ledger: notFound, rates: rates.Fixed(36.5), status: http.StatusNotFound,
			message: "No pending debt matches that reference"},
		{name: "bad date", ledger: &mockLedger{}, rates: rates.Fixed(36.5), body: `{"payment_date":"01/01/2025"}`,
			status: http.StatusBadRequest, message: "Invalid payment_date format"},
		{name: "unknown field", ledger: &mockLedger{}, rates: rates.Fixed(36.5), body: `{"when":"today"}`,
			status: http.StatusBadRequest, message: "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newMux(Routes{Debts: NewDebtsHandler(tt.ledger, &mockPoster{}, tt.rates)})
			rec := serve(mux, http.MethodPost, "/api/debts/DEBT-9/settle", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errorMessage(t, rec); got != tt.message {
				t.Errorf("error = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestSettle_ExpenseNotPosted(t *testing.T) {
	l := &mockLedger{SettleDebtFullyFunc: func(ctx context.Context, id string, paymentDate civil.Date, rate float64) (ledger.Settlement, error) {
		return ledger.Settlement{ID: id}, nil
	}}
	mux := newMux(Routes{Debts: NewDebtsHandler(l, &mockPoster{err: domain.ErrStoreUnavailable}, rates.Fixed(40))})
	rec := serve(mux, http.MethodPost, "/api/debts/DEBT-1/settle", `{"rate":40}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"expense_posted":false`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestPurchase_PostsDownPayment(t *testing.T) {
	var got ledger.PurchaseRequest
	l := &mockLedger{PurchaseOnCreditFunc: func(ctx context.Context, req ledger.PurchaseRequest) (ledger.Purchase, error) {
		got = req
		return ledger.Purchase{
			Simulation: ledger.Simulation{PurchaseAmount: req.Amount, DownPayment: 800, FinanceAmount: 400},
			Debt:       ledger.Created{ID: "DEBT-7", Remaining: 400},
		}, nil
	}}
	poster := &mockPoster{}
	mux := newMux(Routes{Debts: NewDebtsHandler(l, poster, rates.Fixed(40))})

	rec := serve(mux, http.MethodPost, "/api/credit/purchases",
		`{"description":"Bike","amount":1200,"line":"principal","purchase_date":"2025-01-05"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.Source != "api" || got.DownPayment != nil {
		t.Errorf("request = %+v", got)
	}
	if len(poster.down) != 1 {
		t.Fatalf("down payments = %+v, want one", poster.down)
	}
	d := poster.down[0]
	if d.debtID != "DEBT-7" || d.amount != 800 || d.date == nil || *d.date != (civil.Date{Year: 2025, Month: 1, Day: 5}) {
		t.Errorf("down payment = %+v", d)
	}
	if !strings.Contains(rec.Body.String(), `"expense_posted":true`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPurchase_DownPaymentNotPosted(t *testing.T) {
	l := &mockLedger{PurchaseOnCreditFunc: func(ctx context.Context, req ledger.PurchaseRequest) (ledger.Purchase, error) {
		return ledger.Purchase{Simulation: ledger.Simulation{DownPayment: 40}, Debt: ledger.Created{ID: "DEBT-8"}}, nil
	}}
	mux := newMux(Routes{Debts: NewDebtsHandler(l, &mockPoster{err: domain.ErrStoreUnavailable}, rates.Fixed(40))})

	rec := serve(mux, http.MethodPost, "/api/credit/purchases", `{"description":"Lamp","amount":100,"line":"daily"}`)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"expense_posted":false`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateDebt(t *testing.T) {
	var got ledger.NewDebt
	l := &mockLedger{CreateDebtFunc: func(ctx context.Context, in ledger.NewDebt) (ledger.Created, error) {
		got = in
		return ledger.Created{ID: "DEBT-7", Remaining: 60, Status: domain.StatusPending}, nil
	}}
	mux := newMux(Routes{Debts: NewDebtsHandler(l, &mockPoster{}, rates.Fixed(1))})

	rec := serve(mux, http.MethodPost, "/api/debts",
		`{"description":"TV","total_amount":100,"initial_payment":40,"kind":"revolvingb","purchase_date":"2025-01-01"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got.Kind.Line != domain.LinePrincipal || got.PurchaseDate == nil || got.Source != "api" {
		t.Errorf("NewDebt = %+v", got)
	}
	var created ledger.Created
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil || created.ID != "DEBT-7" {
		t.Errorf("body = %s", rec.Body.String())
	}

	if rec := serve(mux, http.MethodPost, "/api/debts", `{"total_amount":5}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing description: status = %d", rec.Code)
	}
	if rec := serve(mux, http.MethodPost, "/api/debts", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d", rec.Code)
	}
}

func TestListDebts_EmptyIsArray(t *testing.T) {
	var pendingOnly bool
	l := &mockLedger{ListDebtsFunc: func(ctx context.Context, p bool) ([]domain.DebtRecord, error) {
		pendingOnly = p
		return nil, nil
	}}
	mux := newMux(Routes{Debts: NewDebtsHandler(l, &mockPoster{}, rates.Fixed(1))})
	rec := serve(mux, http.MethodGet, "/api/debts?pending=true", "")
	if !pendingOnly || !strings.Contains(rec.Body.String(), `"debts":[]`) {
		t.Errorf("pending=%v body=%s", pendingOnly, rec.Body.String())
	}
}

func TestSimulate(t *testing.T) {
	l := &mockLedger{SimulatePurchaseFunc: func(ctx context.Context, amount float64, line string) (ledger.Simulation, error) {
		if line != "daily" {
			return ledger.Simulation{}, fmt.Errorf("SimulatePurchase: %w", domain.ErrUnknownLine)
		}
		return ledger.Simulation{PurchaseAmount: amount, DownPayment: 40}, nil
	}}
	mux := newMux(Routes{Debts: NewDebtsHandler(l, &mockPoster{}, rates.Fixed(1))})

	if rec := serve(mux, http.MethodGet, "/api/credit/simulate?amount=100&line=daily", ""); rec.Code != http.StatusOK ||
		!strings.Contains(rec.Body.String(), `"downPayment":40`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
	rec := serve(mux, http.MethodGet, "/api/credit/simulate?amount=100&line=custody", "")
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "Unknown credit line" {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
	if rec := serve(mux, http.MethodGet, "/api/credit/simulate?amount=abc&line=daily", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad amount: status = %d", rec.Code)
	}
}

type mockWriter struct {
	entry balances.Entry
}

func (m *mockWriter) Save(ctx context.Context, e balances.Entry) (domain.TransactionRow, error) {
	m.entry = e
	return domain.TransactionRow{Direction: e.Direction, Currency: e.Currency, SignedAmount: -e.Amount}, nil
}

func (m *mockWriter) SaveConversion(ctx context.Context, c balances.Conversion) (balances.ConversionResult, error) {
	return balances.ConversionResult{}, nil
}

func TestRecordTransaction(t *testing.T) {
	w := &mockWriter{}
	mux := newMux(Routes{Balances: NewBalancesHandler(nil, w)})

	rec := serve(mux, http.MethodPost, "/api/transactions",
		`{"type":"egreso","category":"Food","currency":"USD","amount":12.5,"date":"2025-01-02"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if w.entry.Direction != domain.DirectionExpense || w.entry.Date == nil || w.entry.Amount != 12.5 {
		t.Errorf("entry = %+v", w.entry)
	}

	if rec := serve(mux, http.MethodPost, "/api/transactions", `{"type":"transfer","currency":"USD","amount":1}`); rec.Code != http.StatusBadRequest {
		t.Errorf("transfer: status = %d", rec.Code)
	}
}

func TestIntents(t *testing.T) {
	p := &mockProcessor{}
	mux := newMux(Routes{Intents: NewIntentsHandler(p)})

	rec := serve(mux, http.MethodPost, "/api/intents", `{"direction":"Expense","currency":"USD","amount":5}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("apply: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec := serve(mux, http.MethodPost, "/api/intents", `{"direction":"Expense","currency":"USD","amount":0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid intent: status = %d", rec.Code)
	}
	if rec := serve(mux, http.MethodPost, "/api/intents/text", `{"text":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty text: status = %d", rec.Code)
	}

	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)
	req := httptest.NewRequest(http.MethodPost, "/api/intents/receipt", strings.NewReader(png))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || p.mimeType != "image/png" || p.size != len(png) {
		t.Errorf("receipt: status %d mime %q size %d", rec.Code, p.mimeType, p.size)
	}
}

func TestJobs(t *testing.T) {
	store := inmemory.NewStore()
	pub := &mockPublisher{}
	mux := newMux(Routes{Jobs: NewJobsHandler(store, pub)})

	rec := serve(mux, http.MethodPost, "/api/jobs", `{"type":"sync_notion","params":{"dry_run":true}}`)
	if rec.Code != http.StatusAccepted || len(pub.published) != 1 || !pub.published[0].Params.DryRun {
		t.Errorf("enqueue: status %d, published %+v", rec.Code, pub.published)
	}
	if rec := serve(mux, http.MethodPost, "/api/jobs", `{"type":"parse_document"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type: status = %d", rec.Code)
	}

	if rec := serve(mux, http.MethodGet, "/api/jobs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing job: status = %d", rec.Code)
	}
	_ = store.SaveJob(context.Background(), &jobs.Job{JobID: "j1", Type: jobs.JobTypeBackupTables, Status: jobs.JobStatusCompleted})
	rec = serve(mux, http.MethodGet, "/api/jobs?type=backup_tables", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("list: %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	rec := serve(newMux(Routes{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec := serve(newMux(Routes{}), http.MethodGet, "/api/debts", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unregistered route: status = %d", rec.Code)
	}
}
