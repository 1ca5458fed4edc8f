// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent provides the hotel concierge service.
//
// This package contains the main Service type that coordinates all
// components: HTTP routing, the session state machine, the tool-call
// dispatcher, the snapshot store, and observability infrastructure.
//
// # Usage
//
//	cfg := agent.Config{Port: 12310}
//	svc, err := agent.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/harborstay/concierge/services/agent/engine"
	"github.com/harborstay/concierge/services/agent/guardrails"
	"github.com/harborstay/concierge/services/agent/observability"
	"github.com/harborstay/concierge/services/agent/routes"
	"github.com/harborstay/concierge/services/agent/store"
	"github.com/harborstay/concierge/services/agent/tools"
	"github.com/harborstay/concierge/services/reasoning"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the concierge agent service.
//
// # Description
//
// Service abstracts the agent lifecycle, enabling testing and alternative
// implementations. Run() blocks and should only be called once per
// instance.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds agent service configuration options.
//
// # Description
//
// Config centralizes all configuration for the agent service. Values can
// be populated from environment variables, config files, or
// programmatically for testing. All fields have sensible defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// ToolsBaseURL is the base URL of the booking tools backend.
	// Default: "http://localhost:12320"
	ToolsBaseURL string

	// ToolRegistryPath optionally overrides the embedded tool registry
	// with a YAML file on disk, reloaded on change.
	ToolRegistryPath string

	// DataDir is the Badger snapshot store directory. Empty runs the
	// store in memory.
	DataDir string

	// AdminToken guards the session import and delete routes.
	AdminToken string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "harborstay-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables Prometheus metric collection.
	// Default: false
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// Policy is the per-turn guardrail budget. Zero value uses
	// guardrails.DefaultPolicy().
	Policy guardrails.Policy

	// Reasoning configures the message interpreter backend.
	Reasoning reasoning.OpenAIConfig

	// SweepInterval is how often the retention sweeper runs.
	// Default: 1 hour
	SweepInterval time.Duration

	// SessionRetention is how long an untouched session survives.
	// Default: 720 hours
	SessionRetention time.Duration

	// SweepEnabled opts in to the background retention sweeper. When off,
	// sessions are kept until deleted explicitly.
	// Default: false
	SweepEnabled bool

	// ToolRequestsPerSecond rate-limits outbound tool calls.
	// Default: 50
	ToolRequestsPerSecond float64
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	store         store.SnapshotStore
	registry      *tools.Registry
	dispatcher    *tools.Dispatcher
	engine        *engine.Engine
	sweeper       *store.Sweeper
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new agent Service with the given configuration.
//
// # Description
//
// New initializes all agent components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Opens the Badger snapshot store and starts the retention sweeper
//  5. Loads the tool registry and builds the dispatcher
//  6. Creates the reasoning interpreter
//  7. Builds the state machine and sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run agent service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize snapshot store: %w", err)
	}

	if err := s.initTools(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize tool dispatcher: %w", err)
	}

	interpreter, err := reasoning.NewOpenAIInterpreter(s.config.Reasoning)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize interpreter: %w", err)
	}

	s.engine = engine.New(s.store, s.dispatcher, interpreter, engine.Config{
		Policy: s.config.Policy,
	}, observability.DefaultMetrics)

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error. Cleanup
// is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting concierge agent server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.ToolsBaseURL == "" {
		cfg.ToolsBaseURL = "http://localhost:12320"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "harborstay-otel-collector:4317"
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 1 * time.Hour
	}
	if cfg.SessionRetention == 0 {
		cfg.SessionRetention = 720 * time.Hour
	}
	if cfg.ToolRequestsPerSecond == 0 {
		cfg.ToolRequestsPerSecond = 50
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("concierge-agent")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the snapshot store and starts the retention sweeper.
func (s *service) initStore() error {
	var storeCfg store.Config
	if s.config.DataDir == "" {
		slog.Info("Data directory not configured, running the snapshot store in memory")
		storeCfg = store.InMemoryConfig()
	} else {
		storeCfg = store.DefaultConfig()
		storeCfg.Path = s.config.DataDir
	}

	st, err := store.Open(storeCfg)
	if err != nil {
		return err
	}
	s.store = st

	if s.config.SweepEnabled {
		s.sweeper = store.NewSweeper(st, store.SweeperConfig{
			Interval:  s.config.SweepInterval,
			Retention: s.config.SessionRetention,
		})
		if err := s.sweeper.Start(context.Background()); err != nil {
			return err
		}
		slog.Info("Started session retention sweeper",
			"interval", s.config.SweepInterval,
			"retention", s.config.SessionRetention)
	}
	return nil
}

// initTools loads the tool registry and builds the budgeted dispatcher.
func (s *service) initTools() error {
	registry, err := tools.NewRegistry(s.config.ToolRegistryPath)
	if err != nil {
		return err
	}
	s.registry = registry

	s.dispatcher = tools.NewDispatcher(registry, tools.DispatcherConfig{
		BaseURL:           s.config.ToolsBaseURL,
		RequestsPerSecond: s.config.ToolRequestsPerSecond,
	}, observability.DefaultMetrics)

	slog.Info("Tool registry loaded", "tools", registry.Names())
	return nil
}

// initRouter sets up the Gin router with middleware and routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("concierge-agent"))

	routes.SetupRoutes(router, s.engine, s.store, s.config.AdminToken)
	s.router = router
}

// cleanup releases resources acquired during initialization.
func (s *service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.registry != nil {
		s.registry.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("failed to close snapshot store", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

var _ Service = (*service)(nil)
