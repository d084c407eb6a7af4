package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/leasepay/reconciler/internal/domain"
)

// Batch is the JSON shape accepted for a whole run: one tenant's payments and
// invoices, amounts in minor units.
type Batch struct {
	TenantID string           `json:"tenant_id"`
	Payments []domain.Payment `json:"payments"`
	Invoices []domain.Invoice `json:"invoices"`
}

// ParseBatchJSON decodes a Batch. Records without a tenant inherit the
// batch's tenant_id.
func ParseBatchJSON(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal batch: %w", err)
	}
	b.FillTenant()
	return &b, nil
}

// FillTenant copies the batch tenant onto records that omit it.
func (b *Batch) FillTenant() {
	if b.TenantID == "" {
		return
	}
	for i := range b.Payments {
		if b.Payments[i].TenantID == "" {
			b.Payments[i].TenantID = b.TenantID
		}
	}
	for i := range b.Invoices {
		if b.Invoices[i].TenantID == "" {
			b.Invoices[i].TenantID = b.TenantID
		}
	}
}

// ParsePaymentsJSON decodes a JSON array of payments.
func ParsePaymentsJSON(data []byte) ([]domain.Payment, error) {
	var payments []domain.Payment
	if err := json.Unmarshal(data, &payments); err != nil {
		return nil, fmt.Errorf("unmarshal payments: %w", err)
	}
	return payments, nil
}

// ParseInvoicesJSON decodes a JSON array of invoices.
func ParseInvoicesJSON(data []byte) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	if err := json.Unmarshal(data, &invoices); err != nil {
		return nil, fmt.Errorf("unmarshal invoices: %w", err)
	}
	return invoices, nil
}
