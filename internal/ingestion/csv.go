package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/leasepay/reconciler/internal/domain"
	"github.com/leasepay/reconciler/internal/money"
)

// ParsePaymentsCSV parses a payment batch. Amounts are decimal major units
// and are converted with the row's currency exponent.
//
// Expected header (any column order, extra columns ignored):
//
//	id,tenant_id,amount,currency,reference,customer_id,received_at,channel
func ParsePaymentsCSV(data []byte) ([]domain.Payment, error) {
	rows, err := readCSV(data, "id", "tenant_id", "amount", "currency")
	if err != nil {
		return nil, err
	}

	payments := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		cur := strings.ToUpper(row.get("currency"))
		amount, err := money.ParseMajor(row.get("amount"), cur)
		if err != nil {
			return nil, fmt.Errorf("line %d amount: %w", row.line, err)
		}

		var receivedAt time.Time
		if s := row.get("received_at"); s != "" {
			if receivedAt, err = parseTimestamp(s); err != nil {
				return nil, fmt.Errorf("line %d received_at: %w", row.line, err)
			}
		}

		payments = append(payments, domain.Payment{
			ID:         row.get("id"),
			TenantID:   row.get("tenant_id"),
			Amount:     amount,
			Currency:   cur,
			Reference:  row.get("reference"),
			CustomerID: row.get("customer_id"),
			ReceivedAt: receivedAt,
			Channel:    domain.Channel(strings.ToLower(row.get("channel"))),
		})
	}
	return payments, nil
}

// ParseInvoicesCSV parses an invoice snapshot.
//
// Expected header:
//
//	id,tenant_id,customer_id,lease_id,amount,currency,due_date,reference,status
func ParseInvoicesCSV(data []byte) ([]domain.Invoice, error) {
	rows, err := readCSV(data, "id", "tenant_id", "customer_id", "amount", "due_date")
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(rows))
	for _, row := range rows {
		cur := strings.ToUpper(row.get("currency"))
		amount, err := money.ParseMajor(row.get("amount"), cur)
		if err != nil {
			return nil, fmt.Errorf("line %d amount: %w", row.line, err)
		}
		due, err := parseTimestamp(row.get("due_date"))
		if err != nil {
			return nil, fmt.Errorf("line %d due_date: %w", row.line, err)
		}

		invoices = append(invoices, domain.Invoice{
			ID:         row.get("id"),
			TenantID:   row.get("tenant_id"),
			CustomerID: row.get("customer_id"),
			LeaseID:    row.get("lease_id"),
			Amount:     amount,
			Currency:   cur,
			DueDate:    due,
			Reference:  row.get("reference"),
			Status:     domain.InvoiceStatus(strings.ToLower(row.get("status"))),
		})
	}
	return invoices, nil
}

type csvRow struct {
	line   int
	cols   map[string]int
	values []string
}

func (r csvRow) get(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

func readCSV(data []byte, required ...string) ([]csvRow, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []csvRow
	lineNum := 1
	for {
		lineNum++
		values, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if blank(values) {
			continue
		}
		rows = append(rows, csvRow{line: lineNum, cols: cols, values: values})
	}
	return rows, nil
}

func blank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.DateOnly, s)
	}
	return t, err
}
