package domain

import "time"

type InvoiceStatus string

const (
	InvoiceOpen          InvoiceStatus = "open"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceVoid          InvoiceStatus = "void"
)

// Invoice is an obligation owed by a customer (a rent charge or a lease
// installment). Amount is the outstanding balance in minor units.
type Invoice struct {
	ID         string        `json:"id" validate:"required"`
	TenantID   string        `json:"tenant_id" validate:"required"`
	CustomerID string        `json:"customer_id" validate:"required"`
	LeaseID    string        `json:"lease_id,omitempty"`
	Amount     int64         `json:"amount" validate:"gte=0"`
	Currency   string        `json:"currency,omitempty" validate:"omitempty,len=3"`
	DueDate    time.Time     `json:"due_date"`
	Reference  string        `json:"reference,omitempty"`
	Status     InvoiceStatus `json:"status,omitempty" validate:"omitempty,oneof=open partially_paid paid void"`
}

// Outstanding reports whether the invoice still expects money. Paid, void and
// zero-balance invoices never take part in matching.
func (inv Invoice) Outstanding() bool {
	if inv.Amount <= 0 {
		return false
	}
	switch inv.Status {
	case "", InvoiceOpen, InvoicePartiallyPaid:
		return true
	default:
		return false
	}
}
