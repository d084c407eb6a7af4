package domain

import (
	"fmt"
	"strings"

	"github.com/leasepay/reconciler/internal/money"
)

type ExceptionType string

const (
	ExceptionOverpayment        ExceptionType = "overpayment"
	ExceptionUnderpayment       ExceptionType = "underpayment"
	ExceptionOrphanPayment      ExceptionType = "orphan_payment"
	ExceptionDuplicateReference ExceptionType = "duplicate_reference"
	ExceptionUnmatchedInvoice   ExceptionType = "unmatched_invoice"
)

type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Exception is a reconciliation decision that could not be resolved cleanly.
// Exceptions are run output, not errors. The set of variants is closed.
type Exception interface {
	Type() ExceptionType
	Description() string
	Record() ExceptionRecord
	exception()
}

// ExceptionRecord is the flat external shape of an Exception. Fields that do
// not apply to the variant are left empty and omitted from JSON.
type ExceptionRecord struct {
	Type        ExceptionType `json:"type"`
	PaymentID   string        `json:"payment_id,omitempty"`
	InvoiceID   string        `json:"invoice_id,omitempty"`
	InvoiceIDs  []string      `json:"invoice_ids,omitempty"`
	Amount      *int64        `json:"amount,omitempty"`
	Currency    string        `json:"currency,omitempty"`
	Severity    Severity      `json:"severity"`
	Description string        `json:"description"`
}

// Overpayment: the payment exceeded the matched invoice's outstanding amount.
type Overpayment struct {
	PaymentID string
	InvoiceID string
	Delta     int64
	Currency  string
	Severity  Severity
}

func (Overpayment) Type() ExceptionType { return ExceptionOverpayment }

func (e Overpayment) Description() string {
	return fmt.Sprintf("Payment %s overpays invoice %s by %s",
		e.PaymentID, e.InvoiceID, money.Format(e.Delta, e.Currency))
}

func (e Overpayment) Record() ExceptionRecord {
	return ExceptionRecord{
		Type:        e.Type(),
		PaymentID:   e.PaymentID,
		InvoiceID:   e.InvoiceID,
		Amount:      amountPtr(e.Delta),
		Currency:    e.Currency,
		Severity:    e.Severity,
		Description: e.Description(),
	}
}

// Underpayment: the payment fell short of the matched invoice's outstanding
// amount. The invoice stays open for a later run.
type Underpayment struct {
	PaymentID string
	InvoiceID string
	Shortfall int64
	Currency  string
	Severity  Severity
}

func (Underpayment) Type() ExceptionType { return ExceptionUnderpayment }

func (e Underpayment) Description() string {
	return fmt.Sprintf("Payment %s underpays invoice %s by %s; invoice remains open",
		e.PaymentID, e.InvoiceID, money.Format(e.Shortfall, e.Currency))
}

func (e Underpayment) Record() ExceptionRecord {
	return ExceptionRecord{
		Type:        e.Type(),
		PaymentID:   e.PaymentID,
		InvoiceID:   e.InvoiceID,
		Amount:      amountPtr(e.Shortfall),
		Currency:    e.Currency,
		Severity:    e.Severity,
		Description: e.Description(),
	}
}

// OrphanPayment: no invoice could be found for the payment.
type OrphanPayment struct {
	PaymentID  string
	Amount     int64
	Currency   string
	CustomerID string
	Reference  string
	// Reason is an optional extra clause explaining a rejected candidate.
	Reason   string
	Severity Severity
}

func (OrphanPayment) Type() ExceptionType { return ExceptionOrphanPayment }

func (e OrphanPayment) Description() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Payment %s of %s", e.PaymentID, money.Format(e.Amount, e.Currency))
	switch {
	case e.CustomerID == "" && e.Reference == "":
		b.WriteString(" has no reference and no known customer; no invoice candidate")
	case e.CustomerID == "":
		fmt.Fprintf(&b, " with reference %s has no known customer and matched no invoice", e.Reference)
	default:
		fmt.Fprintf(&b, " from customer %s matched no open invoice by reference, amount or due date", e.CustomerID)
	}
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	return b.String()
}

func (e OrphanPayment) Record() ExceptionRecord {
	return ExceptionRecord{
		Type:        e.Type(),
		PaymentID:   e.PaymentID,
		Amount:      amountPtr(e.Amount),
		Currency:    e.Currency,
		Severity:    e.Severity,
		Description: e.Description(),
	}
}

// DuplicateReference: several unconsumed invoices share the payment's
// normalized reference, so the reference could not decide the match.
type DuplicateReference struct {
	PaymentID  string
	Reference  string
	InvoiceIDs []string
	Severity   Severity
}

func (DuplicateReference) Type() ExceptionType { return ExceptionDuplicateReference }

func (e DuplicateReference) Description() string {
	return fmt.Sprintf("Payment %s reference %s is shared by %d open invoices: %s",
		e.PaymentID, e.Reference, len(e.InvoiceIDs), strings.Join(e.InvoiceIDs, ", "))
}

func (e DuplicateReference) Record() ExceptionRecord {
	return ExceptionRecord{
		Type:        e.Type(),
		PaymentID:   e.PaymentID,
		InvoiceIDs:  append([]string(nil), e.InvoiceIDs...),
		Severity:    e.Severity,
		Description: e.Description(),
	}
}

// UnmatchedInvoice: a past-due invoice received no payment in this run.
type UnmatchedInvoice struct {
	InvoiceID   string
	CustomerID  string
	Amount      int64
	Currency    string
	DaysOverdue int
	Severity    Severity
}

func (UnmatchedInvoice) Type() ExceptionType { return ExceptionUnmatchedInvoice }

func (e UnmatchedInvoice) Description() string {
	return fmt.Sprintf("Invoice %s for customer %s (%s outstanding) is %d day(s) past due with no matching payment",
		e.InvoiceID, e.CustomerID, money.Format(e.Amount, e.Currency), e.DaysOverdue)
}

func (e UnmatchedInvoice) Record() ExceptionRecord {
	return ExceptionRecord{
		Type:        e.Type(),
		InvoiceID:   e.InvoiceID,
		Amount:      amountPtr(e.Amount),
		Currency:    e.Currency,
		Severity:    e.Severity,
		Description: e.Description(),
	}
}

func (Overpayment) exception()        {}
func (Underpayment) exception()       {}
func (OrphanPayment) exception()      {}
func (DuplicateReference) exception() {}
func (UnmatchedInvoice) exception()   {}

func amountPtr(v int64) *int64 { return &v }
