// Package report turns a reconciliation result into the summary shape that
// finance tooling and renderers consume.
package report

import (
	"math"

	"github.com/leasepay/reconciler/internal/domain"
)

// Generate aggregates a result. It performs no I/O and does not modify r.
func Generate(r *domain.ReconciliationResult) domain.ReconciliationReport {
	rep := domain.ReconciliationReport{
		TenantID:          r.TenantID,
		Currency:          r.Currency,
		AsOf:              r.AsOf,
		Matches:           append([]domain.MatchResult{}, r.Matches...),
		Exceptions:        r.ExceptionRecords(),
		UnmatchedPayments: make([]domain.UnmatchedPaymentLine, 0, len(r.UnmatchedPayments)),
		UnmatchedInvoices: make([]domain.UnmatchedInvoiceLine, 0, len(r.UnmatchedInvoices)),
	}

	s := domain.ReportSummary{
		TotalPayments:        r.PaymentCount,
		TotalInvoices:        r.InvoiceCount,
		TotalMatches:         len(r.Matches),
		MatchesByType:        make(map[domain.MatchType]int),
		TotalExceptions:      len(r.Exceptions),
		ExceptionsByType:     make(map[domain.ExceptionType]int),
		ExceptionsBySeverity: make(map[domain.Severity]int),
	}

	for _, m := range r.Matches {
		s.MatchedAmount += m.Amount
		s.MatchesByType[m.MatchType]++
	}

	for _, rec := range rep.Exceptions {
		s.ExceptionsByType[rec.Type]++
		s.ExceptionsBySeverity[rec.Severity]++
	}
	for _, e := range r.Exceptions {
		switch v := e.(type) {
		case domain.Overpayment:
			s.OverpaidAmount += v.Delta
		case domain.Underpayment:
			s.UnderpaidAmount += v.Shortfall
		}
	}

	for _, p := range r.UnmatchedPayments {
		s.UnmatchedPaymentCount++
		s.UnmatchedPaymentAmount += p.Amount
		rep.UnmatchedPayments = append(rep.UnmatchedPayments, domain.UnmatchedPaymentLine{
			ID:         p.ID,
			Amount:     p.Amount,
			Currency:   p.Currency,
			Reference:  p.Reference,
			CustomerID: p.CustomerID,
			Channel:    p.Channel,
			ReceivedAt: p.ReceivedAt,
		})
	}

	for _, inv := range r.UnmatchedInvoices {
		s.UnmatchedInvoiceCount++
		s.UnmatchedInvoiceAmount += inv.Amount
		rep.UnmatchedInvoices = append(rep.UnmatchedInvoices, domain.UnmatchedInvoiceLine{
			ID:         inv.ID,
			CustomerID: inv.CustomerID,
			LeaseID:    inv.LeaseID,
			Amount:     inv.Amount,
			Reference:  inv.Reference,
			DueDate:    inv.DueDate,
			PastDue:    inv.DueDate.Before(r.AsOf),
		})
	}

	s.MatchRatePct = matchRate(len(r.Matches), r.PaymentCount)
	rep.Summary = s
	return rep
}

// matchRate is the share of payments matched, rounded to two decimals.
func matchRate(matched, payments int) float64 {
	if payments == 0 {
		return 0
	}
	return math.Round(float64(matched)/float64(payments)*10000) / 100
}
