// Package main provides the entrypoint for the pushgate event worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/database"
	"github.com/pushgate/pushgate/internal/device"
	"github.com/pushgate/pushgate/internal/featureflags"
	"github.com/pushgate/pushgate/internal/push"
	"github.com/pushgate/pushgate/internal/push/transport"
	"github.com/pushgate/pushgate/internal/push/webpush"
	"github.com/pushgate/pushgate/internal/telemetry"
	"github.com/pushgate/pushgate/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pushgate-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pushgate worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if subscription == "" {
		subscription = "account-events"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry
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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Str("database", dbConfig.Database).
		Msg("database connected")

	deviceRegistry := device.NewPostgresRegistry(pool)

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewPostgresRepository(pool),
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})

	// Initialize VAPID signer (may be nil if not configured)
	var signer *webpush.VAPIDSigner
	if vapidPrivateKey := os.Getenv("VAPID_PRIVATE_KEY"); vapidPrivateKey != "" {
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
	} else {
		log.Warn().Msg("VAPID not configured - push services may reject deliveries")
	}

	pushService := push.NewService(push.ServiceConfig{
		Registry: deviceRegistry,
		Sender: transport.NewClient(transport.ClientConfig{
			Signer: signer,
			Logger: log,
		}),
		Flags:  ffService,
		Logger: log,
	})

	eventHandler, err := worker.NewHandler(ctx, worker.HandlerConfig{
		ProjectID:        projectID,
		SubscriptionName: subscription,
		Pusher:           pushService,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event handler")
	}
	defer func() {
		if closeErr := eventHandler.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close event handler")
		}
	}()

	// Create HTTP server for health checks
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start consuming account events
	go func() {
		if err := eventHandler.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("event handler stopped")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
