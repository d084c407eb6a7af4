package domain

import "time"

// Run is the audit record of one reconciliation: who it was for, the clock
// value it ran against, and the report it produced.
type Run struct {
	ID        string                `json:"id"`
	TenantID  string                `json:"tenant_id"`
	AsOf      time.Time             `json:"as_of"`
	CreatedAt time.Time             `json:"created_at"`
	Report    *ReconciliationReport `json:"report,omitempty"`
}

// RunSummary is the list view of a stored run.
type RunSummary struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	AsOf           time.Time `json:"as_of"`
	CreatedAt      time.Time `json:"created_at"`
	PaymentCount   int       `json:"payment_count"`
	InvoiceCount   int       `json:"invoice_count"`
	MatchCount     int       `json:"match_count"`
	ExceptionCount int       `json:"exception_count"`
	MatchedAmount  int64     `json:"matched_amount"`
}
