package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leasepay/reconciler/internal/config"
	"github.com/leasepay/reconciler/internal/domain"
	"github.com/leasepay/reconciler/internal/ingestion"
	"github.com/leasepay/reconciler/internal/matching"
	"github.com/leasepay/reconciler/internal/money"
	"github.com/leasepay/reconciler/internal/reconciliation"
	"github.com/leasepay/reconciler/internal/repository"
)

// env is what every subcommand needs from the persistent flags.
type env struct {
	cfg *config.Config
	log *logrus.Logger
}

func loadEnv(cmd *cobra.Command) (*env, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.DBPath = db
	}
	log, err := config.NewLogger(cfg.LogLevel, "text", os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

func openRuns(path string) (*sql.DB, *repository.RunRepo, error) {
	db, err := repository.InitDB(path)
	if err != nil {
		return nil, nil, err
	}
	return db, repository.NewRunRepo(db), nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Reconcile a payments file against an invoices file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			paymentsPath, _ := cmd.Flags().GetString("payments")
			invoicesPath, _ := cmd.Flags().GetString("invoices")
			tenant, _ := cmd.Flags().GetString("tenant")
			asOf, _ := cmd.Flags().GetString("as-of")
			save, _ := cmd.Flags().GetBool("save")
			format, _ := cmd.Flags().GetString("format")

			payments, err := ingestion.LoadPaymentsFile(paymentsPath)
			if err != nil {
				return fmt.Errorf("load payments: %w", err)
			}
			invoices, err := ingestion.LoadInvoicesFile(invoicesPath)
			if err != nil {
				return fmt.Errorf("load invoices: %w", err)
			}

			var opts []matching.Option
			if asOf != "" {
				t, err := parseAsOf(asOf)
				if err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
				opts = append(opts, matching.WithAsOf(t))
			}
			if cmd.Flags().Changed("tolerance") {
				tol, _ := cmd.Flags().GetInt64("tolerance")
				opts = append(opts, matching.WithTolerance(tol))
			}
			if cmd.Flags().Changed("prefix") {
				prefixes, _ := cmd.Flags().GetStringSlice("prefix")
				opts = append(opts, matching.WithReferencePrefixes(prefixes...))
			}

			var store reconciliation.RunStore
			if save {
				db, runs, err := openRuns(e.cfg.DBPath)
				if err != nil {
					return err
				}
				defer db.Close()
				store = runs
			}

			svc := reconciliation.NewService(store, e.log,
				reconciliation.WithDefaults(e.cfg.Matching.Options()...),
			)
			run, err := svc.Run(cmd.Context(), reconciliation.Request{
				TenantID: tenant,
				Payments: payments,
				Invoices: invoices,
				Options:  opts,
			})
			if err != nil {
				return err
			}

			if format == "text" {
				return printReport(cmd.OutOrStdout(), run)
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}

	cmd.Flags().StringP("payments", "p", "", "Payments file (.csv or .json)")
	cmd.Flags().StringP("invoices", "i", "", "Invoices file (.csv or .json)")
	cmd.Flags().StringP("tenant", "t", "", "Tenant id the batch must belong to")
	cmd.Flags().String("as-of", "", "Reference time for the past-due rule (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().Int64("tolerance", 0, "Over/underpayment tolerance in minor units")
	cmd.Flags().StringSlice("prefix", nil, "Reference prefix to strip (repeatable)")
	cmd.Flags().Bool("save", false, "Record the run in the SQLite run log")
	cmd.Flags().StringP("format", "f", "json", "Output format (json, text)")
	_ = cmd.MarkFlagRequired("payments")
	_ = cmd.MarkFlagRequired("invoices")

	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded reconciliation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			tenant, _ := cmd.Flags().GetString("tenant")
			limit, _ := cmd.Flags().GetInt("limit")

			db, runs, err := openRuns(e.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			list, total, err := runs.List(cmd.Context(), repository.RunFilter{TenantID: tenant, Limit: limit})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTENANT\tAS OF\tPAYMENTS\tMATCHES\tEXCEPTIONS\tMATCHED")
			for _, r := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					r.ID, r.TenantID, r.AsOf.Format(time.RFC3339),
					r.PaymentCount, r.MatchCount, r.ExceptionCount, r.MatchedAmount)
			}
			fmt.Fprintf(w, "\n%d of %d run(s)\n", len(list), total)
			return w.Flush()
		},
	}

	cmd.Flags().StringP("tenant", "t", "", "Only runs for this tenant")
	cmd.Flags().IntP("limit", "n", 20, "Maximum runs")

	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Print a recorded run's report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			db, runs, err := openRuns(e.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := runs.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), run)
		},
	}
}

func parseAsOf(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReport writes a short human-readable summary followed by every
// exception description.
func printReport(w io.Writer, run *domain.Run) error {
	rep := run.Report
	s := rep.Summary
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run\t%s\n", run.ID)
	fmt.Fprintf(tw, "Tenant\t%s\n", run.TenantID)
	fmt.Fprintf(tw, "As of\t%s\n", run.AsOf.Format(time.RFC3339))
	fmt.Fprintf(tw, "Payments\t%d\n", s.TotalPayments)
	fmt.Fprintf(tw, "Matches\t%d (%.2f%%)\n", s.TotalMatches, s.MatchRatePct)
	fmt.Fprintf(tw, "Matched\t%s\n", money.Format(s.MatchedAmount, rep.Currency))
	fmt.Fprintf(tw, "Overpaid\t%s\n", money.Format(s.OverpaidAmount, rep.Currency))
	fmt.Fprintf(tw, "Underpaid\t%s\n", money.Format(s.UnderpaidAmount, rep.Currency))
	fmt.Fprintf(tw, "Exceptions\t%d\n", s.TotalExceptions)
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, e := range rep.Exceptions {
		fmt.Fprintf(w, "  [%s] %s: %s\n", e.Severity, e.Type, e.Description)
	}
	return nil
}
