package matching

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/leasepay/reconciler/internal/domain"
)

// DuplicateReferenceError is returned by FindByReference when more than one
// unconsumed invoice carries the reference.
type DuplicateReferenceError struct {
	Reference  string
	InvoiceIDs []string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("reference %s shared by invoices %s", e.Reference, strings.Join(e.InvoiceIDs, ", "))
}

type customerKey struct {
	tenantID   string
	customerID string
}

type indexEntry struct {
	inv domain.Invoice
	ref string
}

// Index holds the outstanding invoices of one run, keyed by normalized
// reference and by tenant+customer. Consumed invoices stay in the maps but
// are skipped by every lookup.
type Index struct {
	norm       referenceNormalizer
	entries    []*indexEntry
	byRef      map[string][]*indexEntry
	byCustomer map[customerKey][]*indexEntry
	consumed   map[string]bool
}

// BuildIndex indexes the outstanding invoices in input order. Customer
// buckets are ordered by ascending due date, input order breaking ties.
func BuildIndex(invoices []domain.Invoice, prefixes []string) *Index {
	return buildIndex(invoices, newReferenceNormalizer(prefixes))
}

func buildIndex(invoices []domain.Invoice, norm referenceNormalizer) *Index {
	ix := &Index{
		norm:       norm,
		byRef:      make(map[string][]*indexEntry),
		byCustomer: make(map[customerKey][]*indexEntry),
		consumed:   make(map[string]bool),
	}
	for _, inv := range invoices {
		if !inv.Outstanding() {
			continue
		}
		e := &indexEntry{inv: inv, ref: norm.normalize(inv.Reference)}
		ix.entries = append(ix.entries, e)
		if e.ref != "" {
			ix.byRef[e.ref] = append(ix.byRef[e.ref], e)
		}
		k := customerKey{tenantID: inv.TenantID, customerID: inv.CustomerID}
		ix.byCustomer[k] = append(ix.byCustomer[k], e)
	}
	for _, bucket := range ix.byCustomer {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].inv.DueDate.Before(bucket[j].inv.DueDate)
		})
	}
	return ix
}

// Len is the number of indexed (outstanding) invoices.
func (ix *Index) Len() int { return len(ix.entries) }

// FindByReference returns the single unconsumed invoice whose normalized
// reference equals the normalized ref, nil when there is none, or a
// *DuplicateReferenceError when several qualify.
func (ix *Index) FindByReference(ref string) (*domain.Invoice, error) {
	key := ix.norm.normalize(ref)
	if key == "" {
		return nil, nil
	}
	var live []*indexEntry
	for _, e := range ix.byRef[key] {
		if !ix.consumed[e.inv.ID] {
			live = append(live, e)
		}
	}
	switch len(live) {
	case 0:
		return nil, nil
	case 1:
		inv := live[0].inv
		return &inv, nil
	}
	ids := make([]string, 0, len(live))
	for _, e := range live {
		ids = append(ids, e.inv.ID)
	}
	return nil, &DuplicateReferenceError{Reference: key, InvoiceIDs: ids}
}

// FindByCustomerAndAmount returns the customer's unconsumed invoices whose
// outstanding amount equals amount, oldest due date first.
func (ix *Index) FindByCustomerAndAmount(tenantID, customerID string, amount int64) []domain.Invoice {
	var out []domain.Invoice
	for _, e := range ix.byCustomer[customerKey{tenantID: tenantID, customerID: customerID}] {
		if !ix.consumed[e.inv.ID] && e.inv.Amount == amount {
			out = append(out, e.inv)
		}
	}
	return out
}

// FindByCustomerWithinWindow returns the customer's unconsumed invoices due
// within window of at (either side), oldest due date first.
func (ix *Index) FindByCustomerWithinWindow(tenantID, customerID string, at time.Time, window time.Duration) []domain.Invoice {
	var out []domain.Invoice
	for _, e := range ix.byCustomer[customerKey{tenantID: tenantID, customerID: customerID}] {
		if ix.consumed[e.inv.ID] {
			continue
		}
		d := e.inv.DueDate.Sub(at)
		if d < 0 {
			d = -d
		}
		if d <= window {
			out = append(out, e.inv)
		}
	}
	return out
}

// Consume removes an invoice from candidacy. Consuming twice, or consuming
// an unknown id, is a no-op.
func (ix *Index) Consume(invoiceID string) {
	ix.consumed[invoiceID] = true
}

func (ix *Index) IsConsumed(invoiceID string) bool {
	return ix.consumed[invoiceID]
}

// Unconsumed returns the invoices never consumed, in input order.
func (ix *Index) Unconsumed() []domain.Invoice {
	var out []domain.Invoice
	for _, e := range ix.entries {
		if !ix.consumed[e.inv.ID] {
			out = append(out, e.inv)
		}
	}
	return out
}
