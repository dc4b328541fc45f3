package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/dvloznov/finance-ledger/internal/api/middleware"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/intake"
)

// maxReceiptBytes bounds receipt uploads.
const maxReceiptBytes = 10 << 20

// IntentProcessor applies classified or raw intents.
type IntentProcessor interface {
	Apply(ctx context.Context, in domain.Intent) (intake.Outcome, error)
	ApplyText(ctx context.Context, text string) (intake.Outcome, error)
	ApplyReceipt(ctx context.Context, image []byte, mimeType string) (intake.Outcome, error)
}

// IntentsHandler handles intent endpoints.
type IntentsHandler struct {
	processor IntentProcessor
}

// NewIntentsHandler creates a new intents handler.
func NewIntentsHandler(p IntentProcessor) *IntentsHandler {
	return &IntentsHandler{processor: p}
}

// Apply handles POST /api/intents with an already classified intent.
func (h *IntentsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var in domain.Intent
	if !decode(w, r, &in) {
		return
	}
	h.respond(w, r, func(ctx context.Context) (intake.Outcome, error) {
		return h.processor.Apply(ctx, in)
	})
}

// ApplyText handles POST /api/intents/text
func (h *IntentsHandler) ApplyText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "text is required")
		return
	}
	h.respond(w, r, func(ctx context.Context) (intake.Outcome, error) {
		return h.processor.ApplyText(ctx, req.Text)
	})
}

// ApplyReceipt handles POST /api/intents/receipt with the raw image as body.
func (h *IntentsHandler) ApplyReceipt(w http.ResponseWriter, r *http.Request) {
	image, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReceiptBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Receipt too large")
		return
	}
	if len(image) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Receipt image is required")
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(image)
	}
	h.respond(w, r, func(ctx context.Context) (intake.Outcome, error) {
		return h.processor.ApplyReceipt(ctx, image, mimeType)
	})
}

func (h *IntentsHandler) respond(w http.ResponseWriter, r *http.Request, apply func(context.Context) (intake.Outcome, error)) {
	out, err := apply(r.Context())
	if err != nil {
		writeFailure(w, r, err, "Failed to apply intent")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, out)
}
