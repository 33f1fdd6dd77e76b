package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/waypulse/waypulse/internal/adapters/http"
	"github.com/waypulse/waypulse/internal/adapters/mapbox"
	natsadapter "github.com/waypulse/waypulse/internal/adapters/nats"
	"github.com/waypulse/waypulse/internal/adapters/postgres"
	"github.com/waypulse/waypulse/internal/adapters/valkey"
	"github.com/waypulse/waypulse/internal/core/usecases"
	"github.com/waypulse/waypulse/internal/pkg/config"
	"github.com/waypulse/waypulse/internal/pkg/logging"
	"github.com/waypulse/waypulse/internal/pkg/metrics"
	"github.com/waypulse/waypulse/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("waypulse-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("api", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	// Realtime store (presence + locations)
	store, err := natsadapter.NewStore(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer store.Close()

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Repos
	routeRepo := postgres.NewRouteRepo(db.Pool)
	planRepo := postgres.NewPlanRepo(db.Pool)

	// Directions
	directions := mapbox.New(cfg.Mapbox.BaseURL, cfg.Mapbox.Token, cfg.Mapbox.Profile)

	// Use cases
	archiveSvc := usecases.NewArchiveService(routeRepo, cache)
	planSvc := usecases.NewPlanService(planRepo, directions)
	fleetSvc := usecases.NewFleetService(store)
	if err := fleetSvc.Start(ctx); err != nil {
		log.Fatalf("fleet watch: %v", err)
	}
	defer fleetSvc.Stop()

	deps := &http.Dependencies{
		Fleet:   fleetSvc,
		Archive: archiveSvc,
		Plans:   planSvc,
		NATS:    natsConn,
		DB:      db,
		Cache:   cache,
	}

	// Periodic DB pool gauges
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.UpdateDBPoolMetrics(db.Pool.Stat())
			case <-ctx.Done():
				return
			}
		}
	}()

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "WayPulse API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173, https://*.waypulse.io",
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
