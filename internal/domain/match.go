package domain

import "time"

type MatchType string

const (
	MatchExactReference MatchType = "exact_reference"
	MatchCustomerAmount MatchType = "customer_amount"
	MatchFuzzy          MatchType = "fuzzy"
)

// MatchResult links one payment to one invoice. Amount is the portion of the
// payment applied to the invoice.
type MatchResult struct {
	PaymentID string    `json:"payment_id"`
	InvoiceID string    `json:"invoice_id"`
	Amount    int64     `json:"amount"`
	MatchType MatchType `json:"match_type"`
	Note      string    `json:"note,omitempty"`
}

// ReconciliationResult is the full output of one run for one tenant. It is
// built once and not modified afterwards.
type ReconciliationResult struct {
	TenantID          string        `json:"tenant_id"`
	Currency          string        `json:"currency,omitempty"`
	AsOf              time.Time     `json:"as_of"`
	PaymentCount      int           `json:"payment_count"`
	InvoiceCount      int           `json:"invoice_count"`
	Matches           []MatchResult `json:"matches"`
	Exceptions        []Exception   `json:"-"`
	UnmatchedPayments []Payment     `json:"unmatched_payments"`
	UnmatchedInvoices []Invoice     `json:"unmatched_invoices"`
}

// ExceptionRecords flattens the run's exceptions in emission order.
func (r *ReconciliationResult) ExceptionRecords() []ExceptionRecord {
	out := make([]ExceptionRecord, 0, len(r.Exceptions))
	for _, e := range r.Exceptions {
		out = append(out, e.Record())
	}
	return out
}
