package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "marks-access/docs" // This is for Swagger
	"marks-access/internal/auth"
	"marks-access/internal/config"
	"marks-access/internal/database"
	"marks-access/internal/email"
	"marks-access/internal/handlers"
	"marks-access/internal/logger"
	"marks-access/internal/middleware"
	"marks-access/internal/repository"
	"marks-access/internal/scheduler"
	"marks-access/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Marks Access API
// @version 1.0
// @description Backend API for the examination marks portal: OTP login, marks entry and verification, edit-access requests and deadline tracking
// @termsOfService http://swagger.io/terms/

// @contact.name Examination Section
// @contact.email exam-section@university.edu

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	logger.Setup(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func(db *database.Database) {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}(db)

	slog.Info("Database connection established")

	// Run database migrations and check the resulting schema
	ctx, cancel := getContext(2 * time.Minute)
	migrator := database.NewMigrationExecutor(db.DB)
	if err := migrator.RunMigrations(ctx, os.DirFS(cfg.Database.MigrationsPath)); err != nil {
		cancel()
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := database.ValidateSchema(ctx, db.DB, database.RequiredColumns); err != nil {
		cancel()
		slog.Error("Schema validation failed", "error", err)
		os.Exit(1)
	}
	cancel()
	slog.Info("Database migrations completed")

	// Initialize repositories
	recordRepo := repository.NewRecordRepository(db.DB)
	editRequestRepo := repository.NewEditRequestRepository(db.DB)
	deadlineRepo := repository.NewDeadlineRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)
	emailLogRepo := repository.NewEmailLogRepository(db.DB)

	propertyStore, err := openPropertyStore(cfg, db)
	if err != nil {
		slog.Error("Failed to initialize property store", "error", err)
		os.Exit(1)
	}
	slog.Info("Property store ready", "backend", cfg.PropertyStore.Backend, "encrypted", cfg.PropertyStore.EncryptSecrets)

	// Initialize services
	authService := auth.NewService(&cfg.JWT)
	emailService := email.NewService(&cfg.Email, cfg.Admin.Email, email.NewSender(&cfg.Email), emailLogRepo)
	auditService := service.NewAuditService(auditRepo)
	otpService := service.NewOTPService(propertyStore, recordRepo, deadlineRepo, emailService)
	accessService := service.NewEditAccessService(recordRepo, editRequestRepo, emailService, cfg.Workflow.UnlockWindow)
	marksService := service.NewMarksService(recordRepo, accessService, cfg.Workflow.DefaultMaxMarks)
	completionService := service.NewCompletionService(recordRepo, propertyStore, emailService, cfg.Workflow.DefaultMaxMarks)
	deadlineService := service.NewDeadlineService(deadlineRepo, recordRepo, otpService, emailService, completionService)
	importService := service.NewImportService(recordRepo)

	// Initialize scheduler
	schedulerService := scheduler.NewScheduler(deadlineService, accessService, &cfg.Scheduler)
	schedulerService.Start()
	defer schedulerService.Stop()

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(authService)
	auditMw := middleware.NewAuditMiddleware(auditService)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)

	// Setup router
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, handlers.Handlers{
		Auth:     handlers.NewAuthHandler(otpService, authService, cfg.Admin, auditService),
		Faculty:  handlers.NewFacultyHandler(marksService, accessService, deadlineService),
		Admin:    handlers.NewAdminHandler(otpService, accessService),
		Deadline: handlers.NewDeadlineHandler(deadlineService),
		Report:   handlers.NewReportHandler(completionService, importService, emailService),
		Audit:    handlers.NewAuditHandler(auditService),
	}, authMw, auditMw)

	mux.HandleFunc("GET /health", healthHandler(db))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	// Apply global middleware
	handler := middleware.LoggingMiddleware(
		middleware.MetricsMiddleware(
			middleware.SecurityHeaders(
				corsMw.Handler(
					rateLimiter.Limit(mux),
				),
			),
		),
	)

	// Create server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		return
	}

	slog.Info("Server shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped")
}
