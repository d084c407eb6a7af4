package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/leasepay/reconciler/internal/domain"
)

// LoadPaymentsFile reads payments from a .csv or .json file.
func LoadPaymentsFile(path string) ([]domain.Payment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext(path) {
	case ".csv":
		return ParsePaymentsCSV(data)
	case ".json":
		return ParsePaymentsJSON(data)
	default:
		return nil, fmt.Errorf("unsupported payments file %s", path)
	}
}

// LoadInvoicesFile reads invoices from a .csv or .json file.
func LoadInvoicesFile(path string) ([]domain.Invoice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext(path) {
	case ".csv":
		return ParseInvoicesCSV(data)
	case ".json":
		return ParseInvoicesJSON(data)
	default:
		return nil, fmt.Errorf("unsupported invoices file %s", path)
	}
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
