// Package api provides the HTTP API for pushgate.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/api/handler"
	"github.com/pushgate/pushgate/internal/api/middleware"
	"github.com/pushgate/pushgate/internal/device"
	"github.com/pushgate/pushgate/internal/featureflags"
	"github.com/pushgate/pushgate/internal/provider/resilience"
	"github.com/pushgate/pushgate/internal/push"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version            string
	BuildTime          string
	Logger             zerolog.Logger
	ServiceName        string
	Metrics            *middleware.Metrics
	DeliveryMetrics    *middleware.DeliveryMetrics
	AuthTokens         map[string]string
	PushService        *push.Service
	DeviceService      *device.Service
	FeatureFlagService *featureflags.Service
	Upstreams          *resilience.Registry
	Readiness          map[string]handler.ReadinessChecker
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pushgate-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS)
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Upstreams, cfg.Readiness)
	deviceHandler := handler.NewDeviceHandler(cfg.DeviceService)
	notifyHandler := handler.NewNotifyHandler(cfg.PushService, cfg.DeviceService, cfg.DeliveryMetrics)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService)

	authMiddleware := middleware.Auth(cfg.AuthTokens)

	notifyRateLimit := middleware.RateLimitByIP(middleware.NotifyRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)
	adminRateLimit := middleware.RateLimitByIP(middleware.AdminRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authMiddleware).Get("/status", opsHandler.SystemStatus)
		})

		// Account endpoints (authenticated internal callers)
		r.Route("/accounts/{accountId}", func(r chi.Router) {
			r.Use(authMiddleware)

			r.With(notifyRateLimit).Post("/notify", notifyHandler.Notify)

			r.Route("/devices", func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/", deviceHandler.ListDevices)
				r.Post("/", deviceHandler.RegisterDevice)
				r.Route("/{deviceId}", func(r chi.Router) {
					r.Get("/", deviceHandler.GetDevice)
					r.Put("/", deviceHandler.UpdateDevice)
					r.Delete("/", deviceHandler.UnregisterDevice)
					r.With(notifyRateLimit).Post("/disconnect", notifyHandler.DisconnectDevice)
				})
			})
		})

		// Admin endpoints (authenticated) - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminRateLimit)

			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
