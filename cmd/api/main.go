package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-reports/internal/attachment"
	"github.com/jwalitptl/clinic-reports/internal/blobstore"
	"github.com/jwalitptl/clinic-reports/internal/config"
	filehandler "github.com/jwalitptl/clinic-reports/internal/handler/file"
	"github.com/jwalitptl/clinic-reports/internal/handler/health"
	promhandler "github.com/jwalitptl/clinic-reports/internal/handler/prometheus"
	reporthandler "github.com/jwalitptl/clinic-reports/internal/handler/report"
	"github.com/jwalitptl/clinic-reports/internal/middleware"
	"github.com/jwalitptl/clinic-reports/internal/report/document"
	"github.com/jwalitptl/clinic-reports/internal/report/merge"
	"github.com/jwalitptl/clinic-reports/internal/repository"
	"github.com/jwalitptl/clinic-reports/internal/repository/postgres"
	"github.com/jwalitptl/clinic-reports/internal/router"
	reportService "github.com/jwalitptl/clinic-reports/internal/service/report"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
	"github.com/jwalitptl/clinic-reports/pkg/metrics"
)

const namespace = "clinic_reports"

func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	if cfg.Log.JSON {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry, namespace)

	// Initialize attachment storage
	stores, err := blobstore.FromConfig(ctx, cfg.Storage, cfg.Server.BaseURL)
	if err != nil {
		log.Fatal(err, "failed to initialize storage", "driver", cfg.Storage.Driver)
	}

	checks := map[string]health.Check{}

	// The outbox is optional; reports are served without it.
	var outboxRepo repository.OutboxRepository
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			log.Fatal(err, "failed to connect to database")
		}
		defer db.Close()
		outboxRepo = postgres.NewOutboxRepository(postgres.NewBaseRepository(db))
		checks["database"] = db.PingContext
	}

	// Initialize report engine
	resolver := attachment.NewResolver(stores.BlobStore, attachment.Config{
		ProfileBucket: cfg.Storage.ProfileBucket,
		LabBucket:     cfg.Storage.LabBucket,
		Budget:        cfg.Report.AttachmentBudget,
		Concurrency:   cfg.Report.FetchConcurrency,
	}, log.With("component", "attachment"), m)

	reportSvc := reportService.NewService(
		resolver,
		document.NewComposer(log.With("component", "composer")),
		merge.NewPDFMerger(log.With("component", "merge"), m),
		outboxRepo,
		log,
		m,
		reportService.Options{Creator: cfg.Report.Creator},
	)

	// Initialize handlers
	var fileHandler router.Handler
	if stores.Local != nil {
		fileHandler = filehandler.NewHandler(stores.Local)
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins

	// Setup router
	r, err := router.NewRouter(
		log,
		promhandler.New(registry, namespace),
		health.NewHandler(checks),
		reporthandler.NewHandler(reportSvc),
		fileHandler,
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
			MaxBodyBytes:     cfg.Server.MaxBodyBytes,
			CORSConfig:       corsConfig,
		},
	)
	if err != nil {
		log.Fatal(err, "failed to create router")
	}
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r.Engine(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info("server listening", "addr", srv.Addr, "storage", cfg.Storage.Driver, "outbox", outboxRepo != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err, "failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "server forced to shutdown")
	}

	log.Info("server exited properly")
}
