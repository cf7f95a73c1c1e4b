package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-compliance-tasks/internal/client"
	"github.com/pesio-ai/be-compliance-tasks/internal/documents"
	"github.com/pesio-ai/be-compliance-tasks/internal/handler"
	"github.com/pesio-ai/be-compliance-tasks/internal/observability"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/config"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-tasks/internal/platform/middleware"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
	"github.com/pesio-ai/be-compliance-tasks/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Compliance Tasks Service")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		DSN:         cfg.Database.DSN(),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	applied, err := repository.Migrate(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}
	if len(applied) > 0 {
		log.Info().Strs("migrations", applied).Msg("Migrations applied")
	}

	// Initialize repositories
	taskRepo := repository.NewTaskRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	complianceRepo := repository.NewComplianceRepository(db)
	poolRepo := repository.NewPoolRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)

	// Outbound integrations. Both are advisory and degrade to no-ops.
	notifier := client.NewNotificationPublisher(nil, cfg.NATS.SubjectPrefix, log.Logger)
	if cfg.NATS.URL != "" {
		nc, err := client.ConnectNATS(cfg.NATS.URL, cfg.Service.Name, log.Logger)
		if err != nil {
			log.Warn().Err(err).Msg("NATS unavailable; notifications disabled")
		} else {
			defer func() { _ = nc.Drain() }()
			notifier = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)
		}
	}

	feed := client.NewChangeFeed(nil, "", log.Logger)
	if cfg.Redis.Addr != "" {
		rdb, err := client.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable; change feed disabled")
		} else {
			defer func() { _ = rdb.Close() }()
			feed = client.NewChangeFeed(rdb, "", log.Logger)
		}
	}

	docs, err := documents.NewStore(ctx, cfg.Documents)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize document storage")
	}

	metrics, err := observability.New(ctx, cfg.Telemetry, cfg.Service)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	// Initialize services
	workflowService := service.NewWorkflowService(taskRepo, escalationRepo, docs, log.Component("workflow"),
		service.WithNotifier(notifier),
		service.WithEventPublisher(feed),
		service.WithWorkflowMetrics(metrics),
	)
	escalationService := service.NewEscalationService(taskRepo, employeeRepo, log.Component("escalation"),
		service.WithWorkers(cfg.Escalation.Workers),
		service.WithEscalationNotifier(notifier),
		service.WithEscalationEvents(feed),
		service.WithEscalationMetrics(metrics),
	)
	provisioningService := service.NewProvisioningService(complianceRepo, employeeRepo, poolRepo, taskRepo, log.Component("provisioning"),
		service.WithDefaultDueDays(cfg.Provisioning.DefaultDueDays),
		service.WithProvisioningNotifier(notifier),
		service.WithProvisioningEvents(feed),
		service.WithProvisioningMetrics(metrics),
	)
	assignmentService := service.NewAssignmentService(complianceRepo, employeeRepo, poolRepo, provisioningService, log.Component("assignment"))
	mastersService := service.NewMastersService(complianceRepo, employeeRepo, poolRepo, log.Component("masters"))

	services := handler.Services{
		Workflow:     workflowService,
		Escalation:   escalationService,
		Provisioning: provisioningService,
		Assignment:   assignmentService,
		Masters:      mastersService,
		Documents:    docs,
	}

	authenticator := auth.NewAuthenticator(
		auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		cfg.Auth.DevHeader && cfg.IsDevelopment(),
	)

	// Setup HTTP routes
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiter.Cleanup(ctx, 5*time.Minute)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Logger(&log.Logger),
		middleware.Recovery(&log.Logger),
		middleware.CORS([]string{"*"}),
		middleware.Timeout(cfg.Server.RequestTimeout),
		limiter.Middleware,
		authenticator.Middleware,
	)
	r.Get("/health", handler.Health)
	r.Get("/readiness", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, `{"status":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		handler.Health(w, r)
	})
	r.Mount("/api/v1", handler.NewHTTPHandler(services, cfg.Server.MaxUploadBytes, log.Component("http")).Routes())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(authenticator.UnaryInterceptor()))
	handler.NewGRPCHandler(services, log.Logger).Register(grpcServer)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer) // Enable reflection for debugging

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
			cancel()
		}
	}()

	// Background jobs
	var jobs sync.WaitGroup
	if cfg.Escalation.Enabled {
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			runPeriodically(ctx, log.Component("scheduler"), "escalation_sweep", cfg.Escalation.SweepInterval, func(ctx context.Context) error {
				_, err := escalationService.Sweep(ctx)
				return err
			})
		}()
	}
	jobs.Add(1)
	go func() {
		defer jobs.Done()
		runPeriodically(ctx, log.Component("scheduler"), "provisioning", cfg.Provisioning.Interval, func(ctx context.Context) error {
			_, err := provisioningService.ProvisionAll(ctx)
			return err
		})
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()
	jobs.Wait()

	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// runPeriodically runs fn once immediately and then every interval until ctx
// is cancelled. A run never overlaps the previous one.
func runPeriodically(ctx context.Context, log *logger.Logger, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		log.Info().Str("job", name).Msg("Job disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("job", name).Msg("Job failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
