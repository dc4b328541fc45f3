package ledger

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
)

// PlanRequest describes a purchase split into equal installments.
type PlanRequest struct {
	Description       string
	InstallmentAmount float64
	Count             int
	StartDate         civil.Date
	Line              string
	Source            string
}

// Plan is the result of CreateInstallmentPlan.
type Plan struct {
	IDs     []string `json:"ids"`
	Count   int      `json:"count"`
	Total   float64  `json:"total"`
	Message string   `json:"message"`
}

// CreateInstallmentPlan creates one independent debt per installment, due every 14 days
// from the start date. Records are inserted one by one; if a write fails, the installments
// already created stay and the partial plan is returned with the error.
func (l *Ledger) CreateInstallmentPlan(ctx context.Context, req PlanRequest) (Plan, error) {
	if req.Count <= 0 {
		return Plan{}, fmt.Errorf("CreateInstallmentPlan: count %d: %w", req.Count, domain.ErrInvalidInput)
	}
	if req.InstallmentAmount <= 0 {
		return Plan{}, fmt.Errorf("CreateInstallmentPlan: amount %v: %w", req.InstallmentAmount, domain.ErrInvalidInput)
	}
	if req.StartDate.IsZero() || !req.StartDate.IsValid() {
		return Plan{}, fmt.Errorf("CreateInstallmentPlan: start date: %w", domain.ErrInvalidInput)
	}
	line, ok := domain.ParseLine(req.Line)
	if !ok {
		return Plan{}, fmt.Errorf("CreateInstallmentPlan: line %q: %w", req.Line, domain.ErrUnknownLine)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	today := l.today()
	kind := domain.Kind{Line: line, Imported: true}
	desc := strings.TrimSpace(req.Description)

	var plan Plan
	for i := 0; i < req.Count; i++ {
		due := req.StartDate.AddDays(domain.DueCadenceDays * i)
		created, err := l.createLocked(ctx, NewDebt{
			Description:  fmt.Sprintf("%s (Installment %d/%d)", desc, i+1, req.Count),
			TotalAmount:  req.InstallmentAmount,
			Kind:         kind,
			PurchaseDate: &today,
			DueDate:      &due,
			Source:       req.Source,
		})
		if err != nil {
			plan.Message = fmt.Sprintf("Plan for %s stopped after %d of %d installments", desc, plan.Count, req.Count)
			l.log.Error().Err(err).Str("description", desc).Int("created", plan.Count).Int("count", req.Count).Msg("installment plan incomplete")
			return plan, fmt.Errorf("CreateInstallmentPlan: installment %d/%d: %w", i+1, req.Count, err)
		}
		plan.IDs = append(plan.IDs, created.ID)
		plan.Count++
		plan.Total += req.InstallmentAmount
	}

	plan.Total = domain.RoundCents(plan.Total)
	plan.Message = fmt.Sprintf("Created %d installments of %.2f for %s (total %.2f), first due %s",
		plan.Count, req.InstallmentAmount, desc, plan.Total, req.StartDate)
	l.log.Info().Str("description", desc).Int("count", plan.Count).Float64("total", plan.Total).Msg("installment plan created")
	return plan, nil
}
