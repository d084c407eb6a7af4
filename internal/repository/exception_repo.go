package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/leasepay/reconciler/internal/domain"
)

// ExceptionRepo queries the exceptions recorded by stored runs.
type ExceptionRepo struct {
	db *sql.DB
}

func NewExceptionRepo(db *sql.DB) *ExceptionRepo {
	return &ExceptionRepo{db: db}
}

// StoredException is an exception record with the run it came from.
type StoredException struct {
	RunID    string `json:"run_id"`
	TenantID string `json:"tenant_id"`
	Seq      int    `json:"seq"`
	domain.ExceptionRecord
}

type ExceptionFilter struct {
	RunID    string
	TenantID string
	Type     string
	Severity string
	Page     int
	Limit    int
}

// List returns exceptions in run order, and the total matching count.
func (r *ExceptionRepo) List(ctx context.Context, f ExceptionFilter) ([]StoredException, int, error) {
	where, args := buildExceptionWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM run_exceptions e JOIN reconciliation_runs r ON r.id = e.run_id"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := `SELECT e.run_id, r.tenant_id, e.seq, e.type, e.payment_id, e.invoice_id,
		e.invoice_ids, e.amount, e.currency, e.severity, e.description
		FROM run_exceptions e JOIN reconciliation_runs r ON r.id = e.run_id` + where +
		" ORDER BY r.created_at DESC, e.run_id, e.seq LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	excs, err := scanExceptions(rows)
	return excs, total, err
}

type ExceptionSummary struct {
	TotalCount   int              `json:"total_count"`
	TotalAmount  int64            `json:"total_amount"`
	ByType       map[string]int   `json:"by_type"`
	BySeverity   map[string]int   `json:"by_severity"`
	AmountByType map[string]int64 `json:"amount_by_type"`
}

// GetSummary aggregates exceptions across all runs of a tenant, or across
// every run when tenantID is empty.
func (r *ExceptionRepo) GetSummary(ctx context.Context, tenantID string) (*ExceptionSummary, error) {
	s := &ExceptionSummary{
		ByType:       make(map[string]int),
		BySeverity:   make(map[string]int),
		AmountByType: make(map[string]int64),
	}

	where, args := buildExceptionWhere(ExceptionFilter{TenantID: tenantID})
	from := " FROM run_exceptions e JOIN reconciliation_runs r ON r.id = e.run_id" + where

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(e.amount),0)"+from, args...,
	).Scan(&s.TotalCount, &s.TotalAmount); err != nil {
		return nil, err
	}

	if err := scanGroupCount(ctx, r.db, "e.severity", from, args, s.BySeverity); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT e.type, COUNT(*), COALESCE(SUM(e.amount),0)"+from+" GROUP BY e.type", args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		var amt int64
		if err := rows.Scan(&t, &n, &amt); err != nil {
			return nil, err
		}
		s.ByType[t] = n
		s.AmountByType[t] = amt
	}

	return s, rows.Err()
}

// --- helpers ---

func buildExceptionWhere(f ExceptionFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.RunID != "" {
		clauses = append(clauses, "e.run_id = ?")
		args = append(args, f.RunID)
	}
	if f.TenantID != "" {
		clauses = append(clauses, "r.tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Type != "" {
		clauses = append(clauses, "e.type = ?")
		args = append(args, f.Type)
	}
	if f.Severity != "" {
		clauses = append(clauses, "e.severity = ?")
		args = append(args, f.Severity)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanGroupCount(ctx context.Context, db *sql.DB, col, from string, args []any, m map[string]int) error {
	rows, err := db.QueryContext(ctx, "SELECT "+col+", COUNT(*)"+from+" GROUP BY "+col, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		m[k] = v
	}
	return rows.Err()
}

func scanExceptions(rows *sql.Rows) ([]StoredException, error) {
	excs := []StoredException{}
	for rows.Next() {
		var e StoredException
		var etype, sev string
		var paymentID, invoiceID, invoiceIDs, currency sql.NullString
		var amount sql.NullInt64

		err := rows.Scan(
			&e.RunID, &e.TenantID, &e.Seq, &etype, &paymentID, &invoiceID,
			&invoiceIDs, &amount, &currency, &sev, &e.Description,
		)
		if err != nil {
			return nil, err
		}

		e.Type = domain.ExceptionType(etype)
		e.Severity = domain.Severity(sev)
		e.PaymentID = paymentID.String
		e.InvoiceID = invoiceID.String
		e.Currency = currency.String
		if invoiceIDs.Valid && invoiceIDs.String != "" {
			e.InvoiceIDs = strings.Split(invoiceIDs.String, ",")
		}
		if amount.Valid {
			v := amount.Int64
			e.Amount = &v
		}

		excs = append(excs, e)
	}
	return excs, rows.Err()
}
