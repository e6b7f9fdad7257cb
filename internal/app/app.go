package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"etaanalyzer/internal/config"
	apperrors "etaanalyzer/internal/errors"
	"etaanalyzer/internal/infrastructure"
	customMiddleware "etaanalyzer/internal/middleware"
	"etaanalyzer/internal/operations"
	"etaanalyzer/internal/services"
	handlers "etaanalyzer/internal/transport/http"
	"etaanalyzer/internal/validation"
	ws "etaanalyzer/internal/websocket"
	"etaanalyzer/pkg/contracts"
)

const (
	// RunRetention bounds how long finished runs stay queryable over the API
	RunRetention  = 24 * time.Hour
	pruneInterval = 10 * time.Minute
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Hub           *ws.Hub
	Pipeline      *services.PipelineService
	Health        *services.HealthService
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	janitorStop chan struct{}
	janitorWG   sync.WaitGroup
	stopOnce    sync.Once
}

// NewApplication loads configuration, initializes the global logger and
// wires the application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New wires an application from an explicit configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.String("output_dir", cfg.Pipeline.OutputDir))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		janitorStop:   make(chan struct{}),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	if err := validation.NewFileValidator(a.Logger).ValidateOutputDirectory(a.Config.Pipeline.OutputDir); err != nil {
		return err
	}

	metrics, err := infrastructure.CreatePipelineMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	tracer := operations.NewOperationTracer(metrics)

	hub := ws.NewHub(a.Config.WebSocket, a.Logger)
	hub.Start()
	a.Hub = hub

	pipeline, err := services.NewPipelineService(a.Config.Pipeline, hub, tracer, a.Logger)
	if err != nil {
		hub.Stop()
		return fmt.Errorf("failed to initialize pipeline service: %w", err)
	}
	a.Pipeline = pipeline

	a.Health = services.NewHealthService(
		config.AppVersion,
		contracts.BuildTime,
		a.Config.Pipeline.OutputDir,
		pipeline,
		hub,
		a.Logger,
	)

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Only middleware that leaves the ResponseWriter alone runs ahead of the
	// websocket upgrade.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.Handle("/ws", a.Hub)

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		a.setupAPIRoutes(r)
	})

	metricsHandler := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.Hub)
	r.Get("/metrics", metricsHandler.Prometheus)

	errHandler := apperrors.NewErrorHandler(a.Logger)
	r.NotFound(errHandler.NotFound)
	r.MethodNotAllowed(errHandler.MethodNotAllowed)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.NewRateLimiter(a.Config.Security.RateLimit, a.Logger).Handler)

		healthHandler := handlers.NewHealthHandler(a.Health, a.Logger)
		r.Mount("/health", healthHandler.Routes())
		r.Get("/version", healthHandler.Version)

		metricsHandler := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.Hub)
		r.Get("/metrics/websocket", metricsHandler.WebSocketStats)

		runsHandler := handlers.NewRunsHandler(a.Pipeline, a.Logger)
		r.Mount("/v1/runs", runsHandler.Routes())
	})
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start starts the HTTP server and the run janitor. A listener failure
// cancels ctx through cancel.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.startJanitor(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// startJanitor periodically forgets runs older than RunRetention
func (a *Application) startJanitor(ctx context.Context) {
	a.janitorWG.Add(1)
	go func() {
		defer a.janitorWG.Done()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				a.Pipeline.Prune(ctx, RunRetention)
			case <-a.janitorStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop gracefully stops the application. It is safe to call more than once.
func (a *Application) Stop(ctx context.Context) error {
	var stopErr error
	a.stopOnce.Do(func() {
		stopErr = a.stop(ctx)
	})
	return stopErr
}

func (a *Application) stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	close(a.janitorStop)
	a.janitorWG.Wait()

	if err := a.Pipeline.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "Runs did not stop in time", slog.String("error", err.Error()))
		errs = append(errs, fmt.Errorf("pipeline shutdown error: %w", err))
	}

	a.Hub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("log file close error: %w", err))
	}
	return errors.Join(errs...)
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	// ctx may already be cancelled; shutdown gets its own deadline.
	return a.Stop(context.Background())
}
