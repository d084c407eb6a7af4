package main

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/leasepay/reconciler/internal/domain"
	"github.com/leasepay/reconciler/internal/money"
)

const tenantID = "TEN-NAIROBI-01"

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Rent is due on the 1st; the run covers January 2024.
	dueDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	lateDue := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	futureDue := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	rents := []int64{1500000, 2500000, 3500000, 4500000} // KES 15k..45k in cents

	var invoices []domain.Invoice
	var payments []domain.Payment

	for i := 1; i <= 40; i++ {
		customer := fmt.Sprintf("CUST-%03d", i)
		lease := fmt.Sprintf("LEASE-%03d", i)
		rent := rents[rng.Intn(len(rents))]
		ref := fmt.Sprintf("QK%06d", rng.Intn(1000000))

		inv := domain.Invoice{
			ID:         fmt.Sprintf("INV-2024-01-%03d", i),
			TenantID:   tenantID,
			CustomerID: customer,
			LeaseID:    lease,
			Amount:     rent,
			Currency:   "KES",
			DueDate:    dueDate,
			Reference:  ref,
			Status:     domain.InvoiceOpen,
		}
		invoices = append(invoices, inv)

		// Every 10th customer also has an arrears invoice from December.
		if i%10 == 0 {
			invoices = append(invoices, domain.Invoice{
				ID:         fmt.Sprintf("INV-2023-12-%03d", i),
				TenantID:   tenantID,
				CustomerID: customer,
				LeaseID:    lease,
				Amount:     rent,
				Currency:   "KES",
				DueDate:    lateDue,
				Status:     domain.InvoicePartiallyPaid,
			})
		}
		// Every 8th customer has next month's invoice already issued.
		if i%8 == 0 {
			invoices = append(invoices, domain.Invoice{
				ID:         fmt.Sprintf("INV-2024-02-%03d", i),
				TenantID:   tenantID,
				CustomerID: customer,
				LeaseID:    lease,
				Amount:     rent,
				Currency:   "KES",
				DueDate:    futureDue,
				Status:     domain.InvoiceOpen,
			})
		}

		received := dueDate.Add(time.Duration(rng.Intn(5*24)) * time.Hour)
		p := domain.Payment{
			ID:         fmt.Sprintf("PAY-%04d", i),
			TenantID:   tenantID,
			Amount:     rent,
			Currency:   "KES",
			CustomerID: customer,
			ReceivedAt: received,
			Channel:    domain.ChannelMobileMoney,
		}

		switch r := rng.Float64(); {
		case r < 0.55:
			// Clean M-Pesa payment quoting the invoice reference.
			p.Reference = "MPESA-" + ref
		case r < 0.70:
			// Bank transfer without reference.
			p.Channel = domain.ChannelBank
		case r < 0.80:
			// Overpayment.
			p.Reference = ref
			p.Amount = rent + int64(rng.Intn(5)+1)*10000
		case r < 0.88:
			// Partial payment.
			p.Reference = ref
			p.Amount = rent / 2
		case r < 0.94:
			// Payment from an unknown payer.
			p.CustomerID = ""
			p.Reference = fmt.Sprintf("ZZ%06d", rng.Intn(1000000))
		default:
			// Customer never paid this month.
			continue
		}
		payments = append(payments, p)
	}

	// A cash payment nobody can place.
	payments = append(payments, domain.Payment{
		ID:         "PAY-9999",
		TenantID:   tenantID,
		Amount:     700000,
		Currency:   "KES",
		ReceivedAt: dueDate.Add(72 * time.Hour),
		Channel:    domain.ChannelCash,
	})

	if err := writePayments(filepath.Join(baseDir, "payments.csv"), payments); err != nil {
		fmt.Fprintf(os.Stderr, "payments: %v\n", err)
		os.Exit(1)
	}
	if err := writeInvoices(filepath.Join(baseDir, "invoices.csv"), invoices); err != nil {
		fmt.Fprintf(os.Stderr, "invoices: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d payments and %d invoices in %s\n", len(payments), len(invoices), baseDir)
}

func writePayments(path string, payments []domain.Payment) error {
	rows := [][]string{{"id", "tenant_id", "amount", "currency", "reference", "customer_id", "received_at", "channel"}}
	for _, p := range payments {
		rows = append(rows, []string{
			p.ID, p.TenantID, money.ToDecimal(p.Amount, p.Currency).StringFixed(money.Exponent(p.Currency)),
			p.Currency, p.Reference, p.CustomerID, p.ReceivedAt.Format(time.RFC3339), string(p.Channel),
		})
	}
	return writeCSV(path, rows)
}

func writeInvoices(path string, invoices []domain.Invoice) error {
	rows := [][]string{{"id", "tenant_id", "customer_id", "lease_id", "amount", "currency", "due_date", "reference", "status"}}
	for _, inv := range invoices {
		rows = append(rows, []string{
			inv.ID, inv.TenantID, inv.CustomerID, inv.LeaseID,
			money.ToDecimal(inv.Amount, inv.Currency).StringFixed(money.Exponent(inv.Currency)),
			inv.Currency, inv.DueDate.Format(time.DateOnly), inv.Reference, string(inv.Status),
		})
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

// findTestdataDir locates the testdata directory from the repo root or from
// inside testdata/generate.
func findTestdataDir() string {
	for _, dir := range []string{"testdata", ".."} {
		if _, err := os.Stat(filepath.Join(dir, "generate")); err == nil {
			return dir
		}
	}
	return "testdata"
}
