package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/finance-ledger/internal/logger"
	"github.com/rs/zerolog"
)

func TestChain_RequestIDAndLogging(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		logger.FromContext(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})
	h := Chain(inner, Recovery(log), RequestID, Logger(log), CORS)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/debts", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Errorf("request id = %q, header %q", seen, rec.Header().Get("X-Request-ID"))
	}
	out := buf.String()
	if strings.Count(out, `"request_id":"`+seen+`"`) != 2 {
		t.Errorf("both log lines should carry the request id:\n%s", out)
	}
	if !strings.Contains(out, `"status":418`) || !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("access log should be a warn line with the status:\n%s", out)
	}
}

func TestRequestID_KeepsClientValue(t *testing.T) {
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestRequestID_ReplacesInvalidValue(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{name: "empty", id: ""},
		{name: "too long", id: strings.Repeat("a", maxRequestIDLen+1)},
		{name: "control characters", id: "abc\x00def"},
		{name: "spaces", id: "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header["X-Request-Id"] = []string{tt.id}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			got := rec.Header().Get("X-Request-ID")
			if got == tt.id || len(got) != 36 {
				t.Errorf("X-Request-ID = %q, want a fresh UUID", got)
			}
		})
	}
}

func TestLogger_CountsBytes(t *testing.T) {
	var buf bytes.Buffer
	h := Logger(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]int{"n": 1})
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	// {"n":1} plus the encoder's newline
	if out := buf.String(); !strings.Contains(out, `"bytes":8`) || !strings.Contains(out, `"level":"info"`) {
		t.Errorf("access log = %s", out)
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "Internal server error") {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/debts", nil))
	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight: status %d, called %v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
