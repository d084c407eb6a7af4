package matching

import (
	"time"

	"github.com/leasepay/reconciler/internal/domain"
)

// Invoices overdue longer than this are reported with MEDIUM severity.
const staleInvoiceDays = 30

// classifier builds exceptions and decides their severity.
type classifier struct {
	highValue int64
	tolerance int64
}

func newClassifier(cfg Config) classifier {
	return classifier{highValue: cfg.HighValueMinorUnits, tolerance: cfg.ToleranceMinorUnits}
}

// flags reports whether an amount difference is large enough to surface.
func (c classifier) flags(delta int64) bool {
	if delta < 0 {
		delta = -delta
	}
	return delta != 0 && delta >= c.tolerance
}

func (c classifier) amountSeverity(delta int64) domain.Severity {
	if c.highValue > 0 && delta >= c.highValue {
		return domain.SeverityHigh
	}
	return domain.SeverityMedium
}

// amountDelta returns the over/underpayment exception for a match, or nil
// when the difference is within tolerance.
func (c classifier) amountDelta(p domain.Payment, inv domain.Invoice) domain.Exception {
	delta := p.Amount - inv.Amount
	if !c.flags(delta) {
		return nil
	}
	if delta > 0 {
		return domain.Overpayment{
			PaymentID: p.ID,
			InvoiceID: inv.ID,
			Delta:     delta,
			Currency:  p.Currency,
			Severity:  c.amountSeverity(delta),
		}
	}
	return domain.Underpayment{
		PaymentID: p.ID,
		InvoiceID: inv.ID,
		Shortfall: -delta,
		Currency:  p.Currency,
		Severity:  c.amountSeverity(-delta),
	}
}

func (c classifier) duplicate(p domain.Payment, dup *DuplicateReferenceError) domain.Exception {
	return domain.DuplicateReference{
		PaymentID:  p.ID,
		Reference:  dup.Reference,
		InvoiceIDs: append([]string(nil), dup.InvoiceIDs...),
		Severity:   domain.SeverityHigh,
	}
}

func (c classifier) orphan(p domain.Payment, reason string) domain.Exception {
	return domain.OrphanPayment{
		PaymentID:  p.ID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		CustomerID: p.CustomerID,
		Reference:  p.Reference,
		Reason:     reason,
		Severity:   domain.SeverityHigh,
	}
}

// unmatched returns the exception for a never-consumed invoice, or nil when
// the invoice is not yet due at asOf.
func (c classifier) unmatched(inv domain.Invoice, currency string, asOf time.Time) domain.Exception {
	if !inv.DueDate.Before(asOf) {
		return nil
	}
	days := daysOverdue(inv.DueDate, asOf)
	sev := domain.SeverityLow
	if days > staleInvoiceDays {
		sev = domain.SeverityMedium
	}
	if inv.Currency != "" {
		currency = inv.Currency
	}
	return domain.UnmatchedInvoice{
		InvoiceID:   inv.ID,
		CustomerID:  inv.CustomerID,
		Amount:      inv.Amount,
		Currency:    currency,
		DaysOverdue: days,
		Severity:    sev,
	}
}

// daysOverdue counts started days, so an invoice an hour late is 1 day over.
func daysOverdue(due, asOf time.Time) int {
	const day = 24 * time.Hour
	return int((asOf.Sub(due) + day - 1) / day)
}
