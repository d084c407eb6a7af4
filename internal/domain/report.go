package domain

import "time"

// ReconciliationReport is the renderer-facing view of a ReconciliationResult.
// Optional fields are omitted rather than null.
type ReconciliationReport struct {
	TenantID          string                 `json:"tenant_id"`
	Currency          string                 `json:"currency,omitempty"`
	AsOf              time.Time              `json:"as_of"`
	Summary           ReportSummary          `json:"summary"`
	Matches           []MatchResult          `json:"matches"`
	Exceptions        []ExceptionRecord      `json:"exceptions"`
	UnmatchedPayments []UnmatchedPaymentLine `json:"unmatched_payments"`
	UnmatchedInvoices []UnmatchedInvoiceLine `json:"unmatched_invoices"`
}

type ReportSummary struct {
	TotalPayments          int                   `json:"total_payments"`
	TotalInvoices          int                   `json:"total_invoices"`
	TotalMatches           int                   `json:"total_matches"`
	MatchedAmount          int64                 `json:"matched_amount"`
	MatchesByType          map[MatchType]int     `json:"matches_by_type"`
	TotalExceptions        int                   `json:"total_exceptions"`
	ExceptionsByType       map[ExceptionType]int `json:"exceptions_by_type"`
	ExceptionsBySeverity   map[Severity]int      `json:"exceptions_by_severity"`
	OverpaidAmount         int64                 `json:"overpaid_amount"`
	UnderpaidAmount        int64                 `json:"underpaid_amount"`
	UnmatchedPaymentCount  int                   `json:"unmatched_payment_count"`
	UnmatchedPaymentAmount int64                 `json:"unmatched_payment_amount"`
	UnmatchedInvoiceCount  int                   `json:"unmatched_invoice_count"`
	UnmatchedInvoiceAmount int64                 `json:"unmatched_invoice_amount"`
	MatchRatePct           float64               `json:"match_rate_pct"`
}

type UnmatchedPaymentLine struct {
	ID         string    `json:"id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Reference  string    `json:"reference,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	Channel    Channel   `json:"channel,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type UnmatchedInvoiceLine struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	LeaseID    string    `json:"lease_id,omitempty"`
	Amount     int64     `json:"amount"`
	Reference  string    `json:"reference,omitempty"`
	DueDate    time.Time `json:"due_date"`
	PastDue    bool      `json:"past_due"`
}
