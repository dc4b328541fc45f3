// Package handlers exposes the ledger, the balances and the background jobs over JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/logger"
)

// maxBodyBytes bounds JSON bodies; receipts get their own limit.
const maxBodyBytes = 1 << 20

// statusFor maps the domain error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySettled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownLine):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateUnavailable), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrParseFailure):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeFailure logs err and writes its user message. Only the message leaves the process.
func writeFailure(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := statusFor(err)
	ev := logger.FromContext(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.FromContext(r.Context()).Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", status).Msg(msg)
	middleware.WriteError(w, status, domain.UserMessage(err))
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, false)
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	return decodeBody(w, r, v, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
	return false
}

// optionalDate parses a YYYY-MM-DD field; empty means nil.
func optionalDate(raw string) (*civil.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
