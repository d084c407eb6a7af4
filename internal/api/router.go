package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/leasepay/reconciler/internal/reconciliation"
	"github.com/leasepay/reconciler/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	reconSvc *reconciliation.Service,
	runRepo *repository.RunRepo,
	excRepo *repository.ExceptionRepo,
	log logrus.FieldLogger,
) http.Handler {
	h := &Handlers{
		reconSvc: reconSvc,
		runRepo:  runRepo,
		excRepo:  excRepo,
		log:      log.WithField("component", "api"),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Runs.
		r.Post("/reconciliations", h.CreateRun)
		r.Post("/reconciliations/batch", h.CreateRuns)
		r.Get("/reconciliations", h.ListRuns)
		r.Get("/reconciliations/{id}", h.GetRun)
		r.Get("/reconciliations/{id}/exceptions", h.ListRunExceptions)

		// Exceptions across runs.
		r.Get("/exceptions/summary", h.GetExceptionSummary)
	})

	return r
}
