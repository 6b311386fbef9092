package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	httpAdapter "github.com/plantpulse/mes-backend/internal/adapters/primary/http"
	mw "github.com/plantpulse/mes-backend/internal/adapters/primary/http/middleware"
	"github.com/plantpulse/mes-backend/internal/adapters/primary/websocket"
	"github.com/plantpulse/mes-backend/internal/adapters/secondary/catalog"
	"github.com/plantpulse/mes-backend/internal/adapters/secondary/mqtt"
	"github.com/plantpulse/mes-backend/internal/adapters/secondary/postgres"
	"github.com/plantpulse/mes-backend/internal/auth"
	"github.com/plantpulse/mes-backend/internal/config"
	"github.com/plantpulse/mes-backend/internal/core/ports"
	"github.com/plantpulse/mes-backend/internal/core/services"
	"github.com/plantpulse/mes-backend/internal/infrastructure/logging"
	"github.com/plantpulse/mes-backend/internal/infrastructure/metrics"
	"github.com/plantpulse/mes-backend/internal/simulator"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(logger, r)
			os.Exit(1)
		}
	}()

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	// 3. Initialize Material Catalog (Postgres when configured, static otherwise)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pool            *pgxpool.Pool
		materialCatalog ports.MaterialCatalog
	)
	if cfg.Database.URL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
		if err != nil {
			logger.Error("failed to parse database URL", "error", err)
			os.Exit(1)
		}

		poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
		poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
		poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		logger.Info("database connection established")

		materialCatalog = postgres.NewMaterialRepository(pool)
	} else {
		logger.Info("no database configured, using static material catalog")
		materialCatalog = catalog.NewStaticCatalog(nil)
	}

	// 4. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// Optional MQTT event mirror
	var mirror ports.EventMirror
	if cfg.MQTT.Enabled {
		m, err := mqtt.NewMirror(mqtt.Config{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger)
		if err != nil {
			logger.Error("failed to connect event mirror", "error", err)
			os.Exit(1)
		}
		defer m.Close()
		mirror = m
	}

	// 5. Initialize Rate Limiters
	var generalRateLimiter, triggerRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		generalCfg := mw.DefaultRateLimiterConfig()
		generalCfg.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		generalCfg.BurstSize = cfg.RateLimit.BurstSize
		generalRateLimiter = mw.NewRateLimiter(generalCfg)

		triggerCfg := mw.TriggerRateLimiterConfig()
		triggerCfg.RequestsPerSecond = cfg.RateLimit.TriggerRPS
		triggerCfg.BurstSize = cfg.RateLimit.TriggerBurst
		triggerRateLimiter = mw.NewRateLimiter(triggerCfg)
	}

	// 6. Dependency Injection (Wiring the Hexagon)

	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Services (Core)
	dispatcher := services.NewDispatcher(hub, materialCatalog, mirror, logger)

	// Optional shop-floor activity simulator
	if cfg.Simulator.Enabled {
		sim := simulator.New(dispatcher, cfg.Simulator.Interval, logger)
		go sim.Run(ctx)
	}

	// Handlers (Primary Adapters)
	wsHandler := httpAdapter.NewWebSocketHandler(hub, dispatcher, tokenManager, cfg, logger)
	statusHandler := httpAdapter.NewStatusHandler(hub, dispatcher, errorHandler, logger)
	var healthChecker httpAdapter.HealthChecker
	if pool != nil {
		healthChecker = pool
	}
	healthHandler := httpAdapter.NewHealthHandler(healthChecker, hub, cfg.App.Version)

	// 7. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))

	corsOrigins := cfg.WebSocket.AllowedOrigins
	if cfg.IsDevelopment() {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if generalRateLimiter != nil {
		r.Use(generalRateLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	healthHandler.RegisterRoutes(r)

	// Prometheus metrics
	r.Handle("/metrics", metrics.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket route (Authentication is handled inside the handler)
		r.Get("/ws", wsHandler.ServeHTTP)

		// Protected REST routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(tokenManager))
			r.Get("/status", statusHandler.GetStatus)

			r.Group(func(r chi.Router) {
				if triggerRateLimiter != nil {
					r.Use(triggerRateLimiter.Middleware)
				}
				r.Post("/trigger-notification", statusHandler.TriggerNotification)
			})
		})
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}
