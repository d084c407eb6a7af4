package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leasepay/reconciler/internal/domain"
)

// RunRepo stores the audit trail of reconciliation runs. Payments and
// invoices themselves are never written; only what each run decided.
type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save writes a run, its matches and its exceptions in one transaction.
func (r *RunRepo) Save(ctx context.Context, run *domain.Run) error {
	return r.SaveAll(ctx, []*domain.Run{run})
}

// SaveAll writes several runs in one transaction. Either every run is
// stored or none is.
func (r *RunRepo) SaveAll(ctx context.Context, runs []*domain.Run) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, run := range runs {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, run *domain.Run) error {
	if run.Report == nil {
		return fmt.Errorf("save run %s: report is required", run.ID)
	}
	rep := run.Report

	reportJSON, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reconciliation_runs
		(id, tenant_id, currency, as_of, created_at, payment_count, invoice_count,
		 match_count, exception_count, matched_amount, report_json)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.TenantID, rep.Currency, formatTime(run.AsOf), formatTime(run.CreatedAt),
		rep.Summary.TotalPayments, rep.Summary.TotalInvoices, rep.Summary.TotalMatches,
		rep.Summary.TotalExceptions, rep.Summary.MatchedAmount, string(reportJSON),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	if err := insertMatches(ctx, tx, run.ID, rep.Matches); err != nil {
		return err
	}
	return insertExceptions(ctx, tx, run.ID, rep.Exceptions)
}

func insertMatches(ctx context.Context, tx *sql.Tx, runID string, matches []domain.MatchResult) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_matches
		(run_id, seq, payment_id, invoice_id, amount, match_type, note)
		VALUES (?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare matches: %w", err)
	}
	defer stmt.Close()

	for i, m := range matches {
		if _, err := stmt.ExecContext(ctx,
			runID, i, m.PaymentID, m.InvoiceID, m.Amount, string(m.MatchType), nullString(m.Note),
		); err != nil {
			return fmt.Errorf("insert match %d: %w", i, err)
		}
	}
	return nil
}

func insertExceptions(ctx context.Context, tx *sql.Tx, runID string, excs []domain.ExceptionRecord) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_exceptions
		(run_id, seq, type, payment_id, invoice_id, invoice_ids, amount, currency,
		 severity, description)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare exceptions: %w", err)
	}
	defer stmt.Close()

	for i, e := range excs {
		var amount any
		if e.Amount != nil {
			amount = *e.Amount
		}
		if _, err := stmt.ExecContext(ctx,
			runID, i, string(e.Type), nullString(e.PaymentID), nullString(e.InvoiceID),
			nullString(strings.Join(e.InvoiceIDs, ",")), amount, nullString(e.Currency),
			string(e.Severity), e.Description,
		); err != nil {
			return fmt.Errorf("insert exception %d: %w", i, err)
		}
	}
	return nil
}

// Exists reports whether a run is stored without decoding its report.
func (r *RunRepo) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM reconciliation_runs WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query run: %w", err)
	}
	return true, nil
}

// GetByID returns a stored run with its full report, or ErrNotFound.
func (r *RunRepo) GetByID(ctx context.Context, id string) (*domain.Run, error) {
	var run domain.Run
	var asOf, createdAt, reportJSON string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, tenant_id, as_of, created_at, report_json FROM reconciliation_runs WHERE id = ?", id,
	).Scan(&run.ID, &run.TenantID, &asOf, &createdAt, &reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	run.AsOf = parseTime(asOf)
	run.CreatedAt = parseTime(createdAt)

	var rep domain.ReconciliationReport
	if err := json.Unmarshal([]byte(reportJSON), &rep); err != nil {
		return nil, fmt.Errorf("decode report for run %s: %w", id, err)
	}
	run.Report = &rep
	return &run, nil
}

type RunFilter struct {
	TenantID string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// List returns run summaries, newest first, and the total matching count.
func (r *RunRepo) List(ctx context.Context, f RunFilter) ([]domain.RunSummary, int, error) {
	where, args := buildRunWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reconciliation_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := `SELECT id, tenant_id, as_of, created_at, payment_count, invoice_count,
		match_count, exception_count, matched_amount
		FROM reconciliation_runs` + where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	runs := []domain.RunSummary{}
	for rows.Next() {
		var s domain.RunSummary
		var asOf, createdAt string
		if err := rows.Scan(
			&s.ID, &s.TenantID, &asOf, &createdAt, &s.PaymentCount, &s.InvoiceCount,
			&s.MatchCount, &s.ExceptionCount, &s.MatchedAmount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		s.AsOf = parseTime(asOf)
		s.CreatedAt = parseTime(createdAt)
		runs = append(runs, s)
	}
	return runs, total, rows.Err()
}

// --- helpers ---

func buildRunWhere(f RunFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatTime(*f.To))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
