package matching

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leasepay/reconciler/internal/domain"
	"github.com/leasepay/reconciler/internal/money"
)

// matcher assigns payments to invoices for a single run. It is not safe for
// concurrent use and is discarded after the run.
type matcher struct {
	cfg      Config
	index    *Index
	classify classifier
	result   *domain.ReconciliationResult
}

func newMatcher(cfg Config, invoices []domain.Invoice, result *domain.ReconciliationResult) *matcher {
	return &matcher{
		cfg:      cfg,
		index:    buildIndex(invoices, newReferenceNormalizer(cfg.ReferenceStripPrefixes)),
		classify: newClassifier(cfg),
		result:   result,
	}
}

// matchPayment runs the tiers in priority order: exact reference, then
// customer and exact amount, then customer and due-date window. A payment
// that clears none of them is an orphan.
func (m *matcher) matchPayment(p domain.Payment) {
	var rejected string

	if strings.TrimSpace(p.Reference) != "" {
		inv, err := m.index.FindByReference(p.Reference)
		var dup *DuplicateReferenceError
		switch {
		case errors.As(err, &dup):
			m.emit(m.classify.duplicate(p, dup))
		case inv != nil:
			if reason := m.rejectCandidate(p, *inv); reason != "" {
				rejected = reason
			} else {
				m.apply(p, *inv, domain.MatchExactReference, "")
				return
			}
		}
	}

	if p.CustomerID == "" {
		m.orphan(p, rejected)
		return
	}

	if cands := m.compatible(p, m.index.FindByCustomerAndAmount(p.TenantID, p.CustomerID, p.Amount)); len(cands) > 0 {
		m.apply(p, cands[0], domain.MatchCustomerAmount, ambiguityNote(p, cands))
		return
	}

	if m.cfg.FuzzyWindow > 0 {
		cands := m.compatible(p, m.index.FindByCustomerWithinWindow(p.TenantID, p.CustomerID, p.ReceivedAt, m.cfg.FuzzyWindow))
		if len(cands) > 0 {
			m.apply(p, cands[0], domain.MatchFuzzy, m.fuzzyNote(p, cands))
			return
		}
	}

	m.orphan(p, rejected)
}

// rejectCandidate explains why a reference hit cannot be used, or returns "".
func (m *matcher) rejectCandidate(p domain.Payment, inv domain.Invoice) string {
	switch {
	case inv.TenantID != p.TenantID:
		return fmt.Sprintf("reference points to invoice %s of tenant %s", inv.ID, inv.TenantID)
	case p.CustomerID != "" && inv.CustomerID != p.CustomerID:
		return fmt.Sprintf("reference points to invoice %s of customer %s", inv.ID, inv.CustomerID)
	case !sameCurrency(p, inv):
		return fmt.Sprintf("reference points to invoice %s in %s", inv.ID, inv.Currency)
	}
	return ""
}

func (m *matcher) compatible(p domain.Payment, invs []domain.Invoice) []domain.Invoice {
	out := invs[:0:0]
	for _, inv := range invs {
		if sameCurrency(p, inv) {
			out = append(out, inv)
		}
	}
	return out
}

func sameCurrency(p domain.Payment, inv domain.Invoice) bool {
	return inv.Currency == "" || strings.EqualFold(inv.Currency, p.Currency)
}

// apply consumes the invoice and records the match plus any amount exception.
func (m *matcher) apply(p domain.Payment, inv domain.Invoice, mt domain.MatchType, note string) {
	m.index.Consume(inv.ID)

	applied := p.Amount
	if inv.Amount < applied {
		applied = inv.Amount
	}
	m.result.Matches = append(m.result.Matches, domain.MatchResult{
		PaymentID: p.ID,
		InvoiceID: inv.ID,
		Amount:    applied,
		MatchType: mt,
		Note:      note,
	})
	if exc := m.classify.amountDelta(p, inv); exc != nil {
		m.emit(exc)
	}
}

func (m *matcher) orphan(p domain.Payment, reason string) {
	m.result.UnmatchedPayments = append(m.result.UnmatchedPayments, p)
	m.emit(m.classify.orphan(p, reason))
}

func (m *matcher) emit(e domain.Exception) {
	m.result.Exceptions = append(m.result.Exceptions, e)
}

// finish accounts for the invoices no payment claimed.
func (m *matcher) finish(asOf time.Time) {
	for _, inv := range m.index.Unconsumed() {
		m.result.UnmatchedInvoices = append(m.result.UnmatchedInvoices, inv)
		if exc := m.classify.unmatched(inv, m.result.Currency, asOf); exc != nil {
			m.emit(exc)
		}
	}
}

// ambiguityNote describes a customer+amount collision; the oldest invoice
// (cands[0]) wins.
func ambiguityNote(p domain.Payment, cands []domain.Invoice) string {
	if len(cands) < 2 {
		return ""
	}
	return fmt.Sprintf("ambiguous: %d open invoices for customer %s at %s (%s); chose %s, oldest due %s",
		len(cands), p.CustomerID, money.Format(p.Amount, p.Currency), invoiceIDs(cands),
		cands[0].ID, cands[0].DueDate.Format(time.DateOnly))
}

func (m *matcher) fuzzyNote(p domain.Payment, cands []domain.Invoice) string {
	inv := cands[0]
	note := fmt.Sprintf("due %s within %s of receipt %s; amounts %s vs %s",
		inv.DueDate.Format(time.DateOnly), m.cfg.FuzzyWindow, p.ReceivedAt.Format(time.DateOnly),
		money.Format(p.Amount, p.Currency), money.Format(inv.Amount, p.Currency))
	if len(cands) > 1 {
		note += fmt.Sprintf("; %d candidates (%s), oldest chosen", len(cands), invoiceIDs(cands))
	}
	return note
}

func invoiceIDs(invs []domain.Invoice) string {
	ids := make([]string, len(invs))
	for i, inv := range invs {
		ids[i] = inv.ID
	}
	return strings.Join(ids, ", ")
}
