// Package matching reconciles one tenant's payment batch against its open
// invoices. A run is pure and synchronous: it validates the whole input,
// builds a fresh candidate index, consumes payments in input order and
// returns a result without touching any shared state. Independent runs may be
// executed concurrently.
package matching

import (
	"strings"

	"github.com/leasepay/reconciler/internal/domain"
)

// Reconcile matches payments to invoices. Invalid input fails the whole run
// with a *ValidationError or ErrTenantMismatch before anything is matched.
// Problems with the money itself are reported as exceptions in the result,
// never as errors.
//
// Every payment ends in exactly one match or one orphan_payment exception.
// Every outstanding invoice is either matched or listed as unmatched, with an
// unmatched_invoice exception when it is past due at the run's clock.
func Reconcile(payments []domain.Payment, invoices []domain.Invoice, opts ...Option) (*domain.ReconciliationResult, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validateBatch(payments, invoices, cfg); err != nil {
		return nil, err
	}

	result := &domain.ReconciliationResult{
		TenantID:          batchTenant(payments, invoices),
		Currency:          batchCurrency(payments),
		AsOf:              cfg.Clock(),
		PaymentCount:      len(payments),
		Matches:           []domain.MatchResult{},
		Exceptions:        []domain.Exception{},
		UnmatchedPayments: []domain.Payment{},
		UnmatchedInvoices: []domain.Invoice{},
	}

	m := newMatcher(cfg, invoices, result)
	// Paid, void and zero-balance invoices are not candidates.
	result.InvoiceCount = m.index.Len()
	for _, p := range payments {
		m.matchPayment(p)
	}
	m.finish(result.AsOf)

	return result, nil
}

func batchTenant(payments []domain.Payment, invoices []domain.Invoice) string {
	if len(payments) > 0 {
		return payments[0].TenantID
	}
	if len(invoices) > 0 {
		return invoices[0].TenantID
	}
	return ""
}

// batchCurrency is the payments' currency. Validation guarantees they agree.
func batchCurrency(payments []domain.Payment) string {
	if len(payments) == 0 {
		return ""
	}
	return strings.ToUpper(payments[0].Currency)
}
