package model

import "github.com/google/uuid"

type ItemOutcome string

const (
	OutcomeApplied         ItemOutcome = "applied"
	OutcomeSkipped         ItemOutcome = "skipped"
	OutcomeProductNotFound ItemOutcome = "product_not_found"
	OutcomeFailed          ItemOutcome = "failed"
)

type ItemReconciliation struct {
	Line      int         `json:"line"`
	ProductID uuid.UUID   `json:"productId"`
	Quantity  int         `json:"quantity"`
	Outcome   ItemOutcome `json:"outcome"`
	Shortfall int         `json:"shortfall,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ReconciliationReport describes one reconciliation pass over an order.
// Complete is false while any line item is still pending and must be retried.
type ReconciliationReport struct {
	OrderNumber int64                `json:"orderId"`
	Items       []ItemReconciliation `json:"items"`
	Complete    bool                 `json:"complete"`
}

func (r *ReconciliationReport) Count(outcome ItemOutcome) int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *ReconciliationReport) HasFailures() bool {
	return r.Count(OutcomeFailed) > 0 || r.Count(OutcomeProductNotFound) > 0
}
