// Package main provides the entrypoint for the pushgate API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/api"
	"github.com/pushgate/pushgate/internal/api/handler"
	"github.com/pushgate/pushgate/internal/api/middleware"
	"github.com/pushgate/pushgate/internal/database"
	"github.com/pushgate/pushgate/internal/device"
	"github.com/pushgate/pushgate/internal/featureflags"
	"github.com/pushgate/pushgate/internal/provider/resilience"
	"github.com/pushgate/pushgate/internal/push"
	"github.com/pushgate/pushgate/internal/push/transport"
	"github.com/pushgate/pushgate/internal/push/webpush"
	"github.com/pushgate/pushgate/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pushgate-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pushgate API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	deliveryMetrics, err := middleware.NewDeliveryMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize delivery metrics")
		os.Exit(1)
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize device registry and service
	deviceRegistry := device.NewPostgresRegistry(pool)
	deviceService := device.NewService(deviceRegistry)
	log.Info().Msg("device service initialized")

	// Initialize feature flags repository and service
	ffRepo := featureflags.NewPostgresRepository(pool)
	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: ffRepo,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	// Initialize VAPID signer (may be nil if not configured)
	var signer *webpush.VAPIDSigner
	vapidPrivateKey := os.Getenv("VAPID_PRIVATE_KEY")
	if vapidPrivateKey != "" {
		vapidSubject := os.Getenv("VAPID_SUBJECT")
		if vapidSubject == "" {
			vapidSubject = "mailto:ops@pushgate.dev"
		}
		signer, err = webpush.NewVAPIDSigner(webpush.VAPIDConfig{
			PrivateKey: vapidPrivateKey,
			Subject:    vapidSubject,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize VAPID signer")
		}
		log.Info().Str("subject", vapidSubject).Msg("VAPID signer initialized")
	} else {
		log.Warn().Msg("VAPID not configured - push services may reject deliveries")
	}

	// Initialize push transport and fan-out service
	upstreams := resilience.NewRegistry()
	sender := transport.NewClient(transport.ClientConfig{
		Signer:    signer,
		Upstreams: upstreams,
		Logger:    log,
	})

	pushService := push.NewService(push.ServiceConfig{
		Registry: deviceRegistry,
		Sender:   sender,
		Flags:    ffService,
		Logger:   log,
	})
	log.Info().Msg("push service initialized")

	// Load caller tokens for service-to-service auth
	authTokens := parseAuthTokens(os.Getenv("AUTH_TOKENS"))
	if len(authTokens) == 0 {
		log.Warn().Msg("no auth tokens configured - authenticated endpoints will reject all callers")
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		DeliveryMetrics:    deliveryMetrics,
		AuthTokens:         authTokens,
		PushService:        pushService,
		DeviceService:      deviceService,
		FeatureFlagService: ffService,
		Upstreams:          upstreams,
		Readiness: map[string]handler.ReadinessChecker{
			"database": func(ctx context.Context) error {
				return pool.Ping(ctx)
			},
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// parseAuthTokens parses "caller:token,caller:token" pairs from the
// environment into the map consumed by the auth middleware.
func parseAuthTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		caller, token, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || caller == "" || token == "" {
			continue
		}
		tokens[caller] = token
	}
	return tokens
}
