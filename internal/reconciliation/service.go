package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/leasepay/reconciler/internal/domain"
	"github.com/leasepay/reconciler/internal/matching"
	"github.com/leasepay/reconciler/internal/report"
)

// PaymentSource supplies validated payments for a tenant and window. It is
// implemented by the ingestion layer outside this service.
type PaymentSource interface {
	Payments(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Payment, error)
}

// InvoiceSource supplies a tenant's invoice snapshot.
type InvoiceSource interface {
	Invoices(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Invoice, error)
}

// RunStore persists finished runs. A nil store disables persistence.
// SaveAll must store every run or none.
type RunStore interface {
	Save(ctx context.Context, run *domain.Run) error
	SaveAll(ctx context.Context, runs []*domain.Run) error
}

// Request is the input of one run.
type Request struct {
	TenantID string
	Payments []domain.Payment
	Invoices []domain.Invoice
	// Options are applied after the service defaults.
	Options []matching.Option
}

// Service runs reconciliations and records them for audit.
type Service struct {
	store       RunStore
	log         logrus.FieldLogger
	defaults    []matching.Option
	parallelism int
	now         func() time.Time
}

type ServiceOption func(*Service)

// WithDefaults sets matcher options applied to every run.
func WithDefaults(opts ...matching.Option) ServiceOption {
	return func(s *Service) { s.defaults = append(s.defaults, opts...) }
}

// WithParallelism bounds RunAll's concurrency.
func WithParallelism(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// WithNow overrides the clock used for run creation times and, unless a
// request says otherwise, for the past-due rule.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new reconciliation service.
func NewService(store RunStore, log logrus.FieldLogger, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		log:         log.WithField("component", "reconciliation"),
		parallelism: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reconciles one tenant's batch, builds the report and stores the run.
func (s *Service) Run(ctx context.Context, req Request) (*domain.Run, error) {
	run, err := s.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if err := s.store.Save(ctx, run); err != nil {
			return nil, fmt.Errorf("save run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

// execute reconciles and reports without persisting anything.
func (s *Service) execute(ctx context.Context, req Request) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := make([]matching.Option, 0, len(s.defaults)+len(req.Options)+1)
	opts = append(opts, matching.WithClock(s.now))
	opts = append(opts, s.defaults...)
	opts = append(opts, req.Options...)

	if err := checkRequestTenant(req); err != nil {
		return nil, err
	}

	result, err := matching.Reconcile(req.Payments, req.Invoices, opts...)
	if err != nil {
		return nil, fmt.Errorf("reconcile tenant %s: %w", req.TenantID, err)
	}
	if result.TenantID == "" {
		result.TenantID = req.TenantID
	}

	rep := report.Generate(result)
	run := &domain.Run{
		ID:        uuid.NewString(),
		TenantID:  result.TenantID,
		AsOf:      result.AsOf,
		CreatedAt: s.now(),
		Report:    &rep,
	}

	log := s.log.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"tenant_id": run.TenantID,
	})
	for _, m := range result.Matches {
		if m.Note != "" {
			log.WithFields(logrus.Fields{
				"payment_id": m.PaymentID,
				"invoice_id": m.InvoiceID,
				"match_type": m.MatchType,
			}).Debug(m.Note)
		}
	}
	log.WithFields(logrus.Fields{
		"payments":       rep.Summary.TotalPayments,
		"invoices":       rep.Summary.TotalInvoices,
		"matches":        rep.Summary.TotalMatches,
		"matched_amount": rep.Summary.MatchedAmount,
		"exceptions":     rep.Summary.TotalExceptions,
	}).Info("reconciliation run complete")

	return run, nil
}

// RunFromSources pulls a tenant's batches from the given sources and runs
// them.
func (s *Service) RunFromSources(ctx context.Context, payments PaymentSource, invoices InvoiceSource, tenantID string, from, to time.Time, opts ...matching.Option) (*domain.Run, error) {
	ps, err := payments.Payments(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load payments: %w", err)
	}
	invs, err := invoices.Invoices(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load invoices: %w", err)
	}
	return s.Run(ctx, Request{TenantID: tenantID, Payments: ps, Invoices: invs, Options: opts})
}

// RunAll executes independent runs concurrently. Results are returned in
// request order. The first failure cancels the runs not yet started, and
// nothing is stored unless every request succeeds.
func (s *Service) RunAll(ctx context.Context, reqs []Request) ([]*domain.Run, error) {
	runs := make([]*domain.Run, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range reqs {
		i := i
		g.Go(func() error {
			run, err := s.execute(gctx, reqs[i])
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.SaveAll(ctx, runs); err != nil {
			return nil, fmt.Errorf("save %d runs: %w", len(runs), err)
		}
	}
	return runs, nil
}

// checkRequestTenant rejects records that belong to a tenant other than the
// one the request names.
func checkRequestTenant(req Request) error {
	if req.TenantID == "" {
		return nil
	}
	for _, p := range req.Payments {
		if p.TenantID != "" && p.TenantID != req.TenantID {
			return fmt.Errorf("payment %s belongs to tenant %s, not %s: %w", p.ID, p.TenantID, req.TenantID, matching.ErrTenantMismatch)
		}
	}
	for _, inv := range req.Invoices {
		if inv.TenantID != "" && inv.TenantID != req.TenantID {
			return fmt.Errorf("invoice %s belongs to tenant %s, not %s: %w", inv.ID, inv.TenantID, req.TenantID, matching.ErrTenantMismatch)
		}
	}
	return nil
}
