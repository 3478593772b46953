package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/events"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/handler"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/repository"
	"github.com/pharmstock/pharmstock-backend/internal/pharmacy/service"
	"github.com/pharmstock/pharmstock-backend/pkg/config"
	"github.com/pharmstock/pharmstock-backend/pkg/database"
	"github.com/pharmstock/pharmstock-backend/pkg/httputil"
	"github.com/pharmstock/pharmstock-backend/pkg/logger"
	"github.com/pharmstock/pharmstock-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewPharmacyEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	medicineRepo := repository.NewMedicineRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	discardRepo := repository.NewDiscardRepository(db)

	// Initialize services
	medicineService := service.NewMedicineService(medicineRepo, log)
	batchService := service.NewBatchService(db, batchRepo, medicineRepo, activityRepo, publisher, log)
	discardService := service.NewDiscardService(db, batchRepo, medicineRepo, discardRepo, activityRepo, publisher, log)
	reportService := service.NewReportService(db, batchRepo, medicineRepo, log)
	exportService := service.NewExportService(reportService, discardRepo, log)
	activityService := service.NewActivityService(activityRepo)

	// Initialize handlers
	medicineHandler := handler.NewMedicineHandler(medicineService, log)
	batchHandler := handler.NewBatchHandler(batchService, log)
	discardHandler := handler.NewDiscardHandler(discardService, log)
	reportHandler := handler.NewReportHandler(reportService, log)
	exportHandler := handler.NewExportHandler(exportService, log)
	activityHandler := handler.NewActivityHandler(activityService, log)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.ActorContext) // Extract actor from gateway headers
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Actor-ID", "X-Actor-Name", "X-Actor-Role"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		// Medicine catalog
		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", medicineHandler.List)
			r.Get("/{id}", medicineHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireActor)
				r.Post("/", medicineHandler.Create)
				r.Put("/{id}", medicineHandler.Update)
				r.Post("/{id}/deactivate", medicineHandler.Deactivate)
			})
		})

		// Batch lifecycle
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Get("/{id}", batchHandler.Get)
			r.Get("/number/{batchNumber}", batchHandler.GetByBatchNumber)
			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireActor)
				r.Post("/", batchHandler.Create)
				r.Put("/{id}", batchHandler.Update)
				r.Delete("/{id}", batchHandler.Delete)
				r.Post("/{id}/finalize", batchHandler.Finalize)
			})
		})

		// Discard workflow
		r.Route("/discards", func(r chi.Router) {
			r.Get("/", discardHandler.List)
			r.Get("/export", exportHandler.DiscardRegister)
			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireActor)
				r.Post("/", discardHandler.Create)
			})
		})

		// Aggregation reports
		r.Route("/reports", func(r chi.Router) {
			r.Get("/low-stock", reportHandler.LowStock)
			r.Get("/expiry", reportHandler.Expiry)
			r.Get("/dashboard", reportHandler.Dashboard)
			r.Get("/trend", reportHandler.Trend)
			r.Get("/expiry/export", exportHandler.ExpiryRegister)
		})

		// Activity log (read-only)
		r.Route("/activity", func(r chi.Router) {
			r.Get("/", activityHandler.List)
			r.Get("/batch/{id}", activityHandler.ListByBatch)
			r.Get("/batch-number/{number}", activityHandler.ListByBatchNumber)
		})
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
