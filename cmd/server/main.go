package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leasepay/reconciler/internal/api"
	"github.com/leasepay/reconciler/internal/config"
	"github.com/leasepay/reconciler/internal/reconciliation"
	"github.com/leasepay/reconciler/internal/repository"
)

func main() {
	cfg, err := config.Load(os.Getenv("RECON_CONFIG_FILE"))
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		logrus.Fatalf("Failed to build logger: %v", err)
	}

	log.Infof("Initializing database at %s", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.Close()

	// Create repositories.
	runRepo := repository.NewRunRepo(db)
	excRepo := repository.NewExceptionRepo(db)

	// Create services.
	reconSvc := reconciliation.NewService(runRepo, log,
		reconciliation.WithDefaults(cfg.Matching.Options()...),
		reconciliation.WithParallelism(cfg.Parallelism),
	)

	// Create router.
	router := api.NewRouter(reconSvc, runRepo, excRepo, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Lease Payment Reconciler")
	log.Infof("Listening on http://localhost:%s", cfg.Port)
	log.Infof("API base: http://localhost:%s/api/v1", cfg.Port)
	log.WithField("endpoints", []string{
		"POST   /api/v1/reconciliations",
		"POST   /api/v1/reconciliations/batch",
		"GET    /api/v1/reconciliations",
		"GET    /api/v1/reconciliations/{id}",
		"GET    /api/v1/reconciliations/{id}/exceptions",
		"GET    /api/v1/exceptions/summary",
	}).Info("Routes mounted")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Info("Server stopped")
}
