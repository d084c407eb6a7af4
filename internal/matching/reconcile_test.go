package matching

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leasepay/reconciler/internal/domain"
	"github.com/leasepay/reconciler/internal/report"
)

func payment(id, customer, ref string, amount int64, received time.Time) domain.Payment {
	return domain.Payment{
		ID:         id,
		TenantID:   "t1",
		Amount:     amount,
		Currency:   "KES",
		Reference:  ref,
		CustomerID: customer,
		ReceivedAt: received,
		Channel:    domain.ChannelMobileMoney,
	}
}

func reconcile(t *testing.T, payments []domain.Payment, invoices []domain.Invoice, opts ...Option) *domain.ReconciliationResult {
	t.Helper()
	opts = append([]Option{WithAsOf(day(15))}, opts...)
	res, err := Reconcile(payments, invoices, opts...)
	require.NoError(t, err)
	assertConservation(t, payments, invoices, res)
	return res
}

// assertConservation checks the accounting rules every run must satisfy:
// one disposition per payment and no invoice consumed twice.
func assertConservation(t *testing.T, payments []domain.Payment, invoices []domain.Invoice, res *domain.ReconciliationResult) {
	t.Helper()

	dispositions := make(map[string]int)
	for _, m := range res.Matches {
		dispositions[m.PaymentID]++
	}
	for _, e := range res.Exceptions {
		if o, ok := e.(domain.OrphanPayment); ok {
			dispositions[o.PaymentID]++
		}
	}
	for _, p := range payments {
		assert.Equalf(t, 1, dispositions[p.ID], "payment %s dispositions", p.ID)
	}

	consumed := make(map[string]bool)
	for _, m := range res.Matches {
		assert.Falsef(t, consumed[m.InvoiceID], "invoice %s matched twice", m.InvoiceID)
		consumed[m.InvoiceID] = true
	}
	for _, inv := range res.UnmatchedInvoices {
		assert.Falsef(t, consumed[inv.ID], "invoice %s both matched and unmatched", inv.ID)
	}

	outstanding := 0
	for _, inv := range invoices {
		if inv.Outstanding() {
			outstanding++
		}
	}
	assert.Equal(t, outstanding, len(res.Matches)+len(res.UnmatchedInvoices))
}

func exceptionTypes(res *domain.ReconciliationResult) []domain.ExceptionType {
	out := make([]domain.ExceptionType, 0, len(res.Exceptions))
	for _, e := range res.Exceptions {
		out = append(out, e.Type())
	}
	return out
}

func TestReconcileExactReference(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "MPESA-qk100", 1000, day(2))},
		[]domain.Invoice{invoice("i1", "c1", 1000, day(1), "QK100")},
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, domain.MatchResult{
		PaymentID: "p1",
		InvoiceID: "i1",
		Amount:    1000,
		MatchType: domain.MatchExactReference,
	}, res.Matches[0])
	assert.Empty(t, res.Exceptions)
	assert.Empty(t, res.UnmatchedPayments)
	assert.Empty(t, res.UnmatchedInvoices)
	assert.Equal(t, "t1", res.TenantID)
	assert.Equal(t, "KES", res.Currency)
	assert.Equal(t, day(15), res.AsOf)
}

func TestReconcileEmptyBatch(t *testing.T) {
	res := reconcile(t, nil, nil)

	assert.NotNil(t, res.Matches)
	assert.NotNil(t, res.Exceptions)
	assert.NotNil(t, res.UnmatchedPayments)
	assert.NotNil(t, res.UnmatchedInvoices)
	assert.Zero(t, res.PaymentCount)
}

func TestReconcileExactReferenceBeatsCustomerAmount(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "REF-B", 1000, day(2))},
		[]domain.Invoice{
			invoice("a", "c1", 1000, day(1), "REF-A"),
			invoice("b", "c1", 1200, day(10), "REF-B"),
		},
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "b", res.Matches[0].InvoiceID)
	assert.Equal(t, domain.MatchExactReference, res.Matches[0].MatchType)
	assert.Equal(t, int64(1000), res.Matches[0].Amount)
	assert.Equal(t, []domain.ExceptionType{
		domain.ExceptionUnderpayment,
		domain.ExceptionUnmatchedInvoice,
	}, exceptionTypes(res))
}

func TestReconcileOverpayment(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "QK1", 5000, day(2))},
		[]domain.Invoice{invoice("i1", "c1", 4500, day(1), "QK1")},
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, int64(4500), res.Matches[0].Amount)
	require.Len(t, res.Exceptions, 1)
	over, ok := res.Exceptions[0].(domain.Overpayment)
	require.True(t, ok)
	assert.Equal(t, int64(500), over.Delta)
	assert.Equal(t, "i1", over.InvoiceID)
	assert.Equal(t, domain.SeverityMedium, over.Severity)
	assert.Equal(t, "Payment p1 overpays invoice i1 by KES 5.00", over.Description())
}

func TestReconcileUnderpayment(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "QK1", 3000, day(2))},
		[]domain.Invoice{invoice("i1", "c1", 4500, day(1), "QK1")},
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, int64(3000), res.Matches[0].Amount)
	require.Len(t, res.Exceptions, 1)
	under, ok := res.Exceptions[0].(domain.Underpayment)
	require.True(t, ok)
	assert.Equal(t, int64(1500), under.Shortfall)
	// The invoice was consumed; its remaining balance is not re-offered.
	assert.Empty(t, res.UnmatchedInvoices)
}

func TestReconcileTolerance(t *testing.T) {
	tests := []struct {
		name      string
		paid      int64
		tolerance int64
		want      []domain.ExceptionType
	}{
		{"exact amount never flagged", 1000, 0, []domain.ExceptionType{}},
		{"zero tolerance flags one unit", 1001, 0, []domain.ExceptionType{domain.ExceptionOverpayment}},
		{"below tolerance", 1049, 50, []domain.ExceptionType{}},
		{"at tolerance", 1050, 50, []domain.ExceptionType{domain.ExceptionOverpayment}},
		{"short below tolerance", 951, 50, []domain.ExceptionType{}},
		{"short at tolerance", 950, 50, []domain.ExceptionType{domain.ExceptionUnderpayment}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := reconcile(t,
				[]domain.Payment{payment("p1", "c1", "QK1", tt.paid, day(2))},
				[]domain.Invoice{invoice("i1", "c1", 1000, day(1), "QK1")},
				WithTolerance(tt.tolerance),
			)
			require.Len(t, res.Matches, 1)
			assert.Equal(t, tt.want, exceptionTypes(res))
		})
	}
}

func TestReconcileHighValueSeverity(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{
			payment("p1", "c1", "QK1", 200000, day(2)),
			payment("p2", "c2", "QK2", 1500, day(2)),
		},
		[]domain.Invoice{
			invoice("i1", "c1", 100000, day(1), "QK1"),
			invoice("i2", "c2", 1000, day(1), "QK2"),
		},
		WithHighValueThreshold(50000),
	)

	require.Len(t, res.Exceptions, 2)
	assert.Equal(t, domain.SeverityHigh, res.Exceptions[0].Record().Severity)
	assert.Equal(t, domain.SeverityMedium, res.Exceptions[1].Record().Severity)
}

func TestReconcileOrphanPayment(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "", "", 700, day(2))},
		[]domain.Invoice{invoice("i1", "c1", 1000, day(20), "QK1")},
	)

	assert.Empty(t, res.Matches)
	require.Len(t, res.UnmatchedPayments, 1)
	assert.Equal(t, "p1", res.UnmatchedPayments[0].ID)
	require.Len(t, res.Exceptions, 1)
	rec := res.Exceptions[0].Record()
	assert.Equal(t, domain.ExceptionOrphanPayment, rec.Type)
	assert.Equal(t, domain.SeverityHigh, rec.Severity)
	require.NotNil(t, rec.Amount)
	assert.Equal(t, int64(700), *rec.Amount)
	assert.Contains(t, rec.Description, "no reference and no known customer")

	// Not yet due, so unmatched without an exception.
	require.Len(t, res.UnmatchedInvoices, 1)
}

func TestReconcileDuplicateReferenceFallsThrough(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "ABC123", 1000, day(4))},
		[]domain.Invoice{
			invoice("i1", "c1", 1000, day(5), "ABC123"),
			invoice("i2", "c2", 2000, day(1), "abc123"),
		},
		WithAsOf(day(3)),
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "i1", res.Matches[0].InvoiceID)
	assert.Equal(t, domain.MatchCustomerAmount, res.Matches[0].MatchType)

	require.Len(t, res.Exceptions, 2)
	dup, ok := res.Exceptions[0].(domain.DuplicateReference)
	require.True(t, ok)
	assert.Equal(t, "p1", dup.PaymentID)
	assert.Equal(t, "ABC123", dup.Reference)
	assert.Equal(t, []string{"i1", "i2"}, dup.InvoiceIDs)
	assert.Equal(t, domain.SeverityHigh, dup.Severity)

	unmatched, ok := res.Exceptions[1].(domain.UnmatchedInvoice)
	require.True(t, ok)
	assert.Equal(t, "i2", unmatched.InvoiceID)
	assert.Equal(t, 2, unmatched.DaysOverdue)
}

func TestReconcileDuplicateReferenceWithoutFallbackIsOrphan(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "", "ABC123", 1000, day(4))},
		[]domain.Invoice{
			invoice("i1", "c1", 1000, day(20), "ABC123"),
			invoice("i2", "c2", 1000, day(20), "abc123"),
		},
	)

	assert.Empty(t, res.Matches)
	assert.Equal(t, []domain.ExceptionType{
		domain.ExceptionDuplicateReference,
		domain.ExceptionOrphanPayment,
	}, exceptionTypes(res))
}

func TestReconcileNoDoubleConsumption(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{
			payment("p1", "c1", "QK1", 1000, day(2)),
			payment("p2", "c1", "QK1", 1000, day(3)),
		},
		[]domain.Invoice{invoice("i1", "c1", 1000, day(20), "QK1")},
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "p1", res.Matches[0].PaymentID)
	require.Len(t, res.UnmatchedPayments, 1)
	assert.Equal(t, "p2", res.UnmatchedPayments[0].ID)
}

func TestReconcileCustomerAmountPicksOldest(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "", 1000, day(2))},
		[]domain.Invoice{
			invoice("newer", "c1", 1000, day(20), ""),
			invoice("older", "c1", 1000, day(1), ""),
		},
	)

	require.Len(t, res.Matches, 1)
	m := res.Matches[0]
	assert.Equal(t, "older", m.InvoiceID)
	assert.Equal(t, domain.MatchCustomerAmount, m.MatchType)
	assert.Contains(t, m.Note, "ambiguous: 2 open invoices")
	assert.Contains(t, m.Note, "chose older")
	// Ambiguity is a note, not an exception.
	assert.Empty(t, res.Exceptions)
}

func TestReconcileFuzzyWindow(t *testing.T) {
	payments := []domain.Payment{payment("p1", "c1", "", 3000, day(8))}
	invoices := []domain.Invoice{invoice("i1", "c1", 2500, day(5), "")}

	t.Run("within window", func(t *testing.T) {
		res := reconcile(t, payments, invoices)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, domain.MatchFuzzy, res.Matches[0].MatchType)
		assert.Equal(t, int64(2500), res.Matches[0].Amount)
		assert.NotEmpty(t, res.Matches[0].Note)
		assert.Equal(t, []domain.ExceptionType{domain.ExceptionOverpayment}, exceptionTypes(res))
	})

	t.Run("outside window", func(t *testing.T) {
		res := reconcile(t, payments, invoices, WithFuzzyWindow(48*time.Hour))
		assert.Empty(t, res.Matches)
		assert.Equal(t, []domain.ExceptionType{
			domain.ExceptionOrphanPayment,
			domain.ExceptionUnmatchedInvoice,
		}, exceptionTypes(res))
	})

	t.Run("disabled", func(t *testing.T) {
		res := reconcile(t, payments, invoices, WithFuzzyWindow(0))
		assert.Empty(t, res.Matches)
	})
}

func TestReconcileRejectsOtherCustomersInvoice(t *testing.T) {
	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "QK9", 1000, day(2))},
		[]domain.Invoice{invoice("i9", "c9", 1000, day(20), "QK9")},
	)

	assert.Empty(t, res.Matches)
	require.Len(t, res.Exceptions, 1)
	assert.Contains(t, res.Exceptions[0].Description(), "reference points to invoice i9 of customer c9")
}

func TestReconcileCurrencyMustAgree(t *testing.T) {
	usd := invoice("i1", "c1", 1000, day(20), "QK1")
	usd.Currency = "USD"
	blank := invoice("i2", "c1", 1000, day(25), "")
	blank.Currency = ""

	res := reconcile(t,
		[]domain.Payment{payment("p1", "c1", "QK1", 1000, day(2))},
		[]domain.Invoice{usd, blank},
	)

	require.Len(t, res.Matches, 1)
	assert.Equal(t, "i2", res.Matches[0].InvoiceID)
	assert.Equal(t, domain.MatchCustomerAmount, res.Matches[0].MatchType)
}

func TestReconcileUnmatchedInvoices(t *testing.T) {
	stale := invoice("stale", "c1", 1000, time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC), "")
	pastDue := invoice("past", "c1", 2000, day(10), "")
	dueNow := invoice("now", "c1", 3000, day(15), "")
	future := invoice("future", "c1", 4000, day(20), "")

	res := reconcile(t, nil, []domain.Invoice{stale, pastDue, dueNow, future})

	require.Len(t, res.UnmatchedInvoices, 4)
	require.Len(t, res.Exceptions, 2)

	first := res.Exceptions[0].(domain.UnmatchedInvoice)
	assert.Equal(t, "stale", first.InvoiceID)
	assert.Equal(t, domain.SeverityMedium, first.Severity)
	assert.Equal(t, 75, first.DaysOverdue)

	second := res.Exceptions[1].(domain.UnmatchedInvoice)
	assert.Equal(t, "past", second.InvoiceID)
	assert.Equal(t, domain.SeverityLow, second.Severity)
	assert.Equal(t, 5, second.DaysOverdue)
	assert.Equal(t, "KES", second.Currency)
}

func TestReconcileIsDeterministic(t *testing.T) {
	payments := []domain.Payment{
		payment("p1", "c1", "QK1", 1000, day(2)),
		payment("p2", "c2", "", 2000, day(3)),
		payment("p3", "", "", 500, day(3)),
		payment("p4", "c3", "", 3100, day(4)),
	}
	invoices := []domain.Invoice{
		invoice("i1", "c1", 1000, day(1), "QK1"),
		invoice("i2", "c2", 2000, day(1), ""),
		invoice("i3", "c2", 2000, day(1), ""),
		invoice("i4", "c3", 3000, day(2), ""),
		invoice("i5", "c4", 900, day(3), ""),
	}

	first := reconcile(t, payments, invoices)
	second := reconcile(t, payments, invoices)
	assert.Equal(t, first, second)

	firstJSON, err := json.Marshal(report.Generate(first))
	require.NoError(t, err)
	secondJSON, err := json.Marshal(report.Generate(second))
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestReconcileInvoiceCountExcludesSettled(t *testing.T) {
	void := invoice("void", "c1", 1000, day(1), "")
	void.Status = domain.InvoiceVoid
	zero := invoice("zero", "c1", 0, day(1), "")

	res := reconcile(t, nil, []domain.Invoice{invoice("open", "c1", 1000, day(20), ""), void, zero})

	assert.Equal(t, 1, res.InvoiceCount)
	require.Len(t, res.UnmatchedInvoices, 1)
	assert.Equal(t, "open", res.UnmatchedInvoices[0].ID)
}

func TestReconcileRequiresReceivedAt(t *testing.T) {
	_, err := Reconcile(
		[]domain.Payment{payment("p1", "c1", "", 1000, time.Time{})},
		[]domain.Invoice{invoice("i1", "c1", 1000, day(1), "")},
	)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 1)
	assert.Equal(t, "received_at", verr.Problems[0].Field)
	assert.Equal(t, "p1", verr.Problems[0].ID)
}

func TestReconcileRejectsMixedCurrencies(t *testing.T) {
	usd := payment("p2", "c1", "", 1000, day(2))
	usd.Currency = "USD"
	lower := payment("p3", "c1", "", 1000, day(2))
	lower.Currency = "kes"

	_, err := Reconcile(
		[]domain.Payment{payment("p1", "c1", "", 1000, day(2)), usd, lower},
		nil,
	)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Problems, 1)
	assert.Equal(t, "p2", verr.Problems[0].ID)
	assert.Equal(t, "currency", verr.Problems[0].Field)
	assert.Equal(t, "must match the batch currency KES", verr.Problems[0].Reason)
}

func TestReconcileValidation(t *testing.T) {
	bad := payment("p1", "c1", "", -5, day(2))
	noID := payment("", "c1", "", 5, day(2))
	noDue := invoice("i1", "c1", 1000, time.Time{}, "")
	dupInv := invoice("i1", "c1", 1000, day(1), "")

	res, err := Reconcile(
		[]domain.Payment{bad, noID},
		[]domain.Invoice{noDue, dupInv},
		WithAsOf(day(15)),
	)
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrInvalidInput)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Problems))
	for _, p := range verr.Problems {
		fields = append(fields, p.Entity+"."+p.Field)
	}
	assert.ElementsMatch(t, []string{"payment.amount", "payment.id", "invoice.due_date", "invoice.id"}, fields)
}

func TestReconcileRejectsNegativeTolerance(t *testing.T) {
	_, err := Reconcile(nil, nil, WithTolerance(-1))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestReconcileTenantMismatch(t *testing.T) {
	other := invoice("i1", "c1", 1000, day(1), "")
	other.TenantID = "t2"

	res, err := Reconcile([]domain.Payment{payment("p1", "c1", "", 1000, day(2))}, []domain.Invoice{other})
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrTenantMismatch)
	assert.Contains(t, err.Error(), "t1, t2")
}
