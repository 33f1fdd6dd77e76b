package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/waypulse/waypulse/internal/adapters/gpsd"
	"github.com/waypulse/waypulse/internal/adapters/mapbox"
	natsadapter "github.com/waypulse/waypulse/internal/adapters/nats"
	"github.com/waypulse/waypulse/internal/adapters/postgres"
	"github.com/waypulse/waypulse/internal/adapters/valkey"
	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
	"github.com/waypulse/waypulse/internal/core/usecases"
	"github.com/waypulse/waypulse/internal/pkg/config"
	"github.com/waypulse/waypulse/internal/pkg/logging"
	"github.com/waypulse/waypulse/internal/pkg/metrics"
	"github.com/waypulse/waypulse/internal/workflows"
)

// The agent runs on the vehicle: it samples gpsd, publishes presence and
// location heartbeats, records route sessions, and exposes a small local
// control API to start and end sessions.
func main() {
	cfg, err := config.Load("waypulse-agent")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Agent.UserID == "" {
		log.Fatal("agent.user_id is required")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("agent", logLevel, "json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Realtime store
	store, err := natsadapter.NewStore(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer store.Close()

	// Local cache (route history fallback + pending sync queue)
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	// Remote archive
	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	routeRepo := postgres.NewRouteRepo(db.Pool)

	directions := mapbox.New(cfg.Mapbox.BaseURL, cfg.Mapbox.Token, cfg.Mapbox.Profile)
	sampler := gpsd.New(cfg.GPSD.Addr)

	archiveSvc := usecases.NewArchiveService(routeRepo, cache)

	locationSvc := usecases.NewLocationService(store, cfg.Agent.UserID)
	if cfg.Agent.LocationIntervalMs > 0 {
		locationSvc.Interval = time.Duration(cfg.Agent.LocationIntervalMs) * time.Millisecond
	}
	presenceSvc := usecases.NewPresenceService(store, cfg.Agent.UserID)
	if cfg.Agent.PresenceIntervalMs > 0 {
		presenceSvc.Interval = time.Duration(cfg.Agent.PresenceIntervalMs) * time.Millisecond
	}

	tracker := usecases.NewTrackerService(
		sampler,
		directions,
		archiveSvc,
		cfg.Agent.UserID,
		ports.WatchOptions{
			HighAccuracy:      cfg.Agent.HighAccuracy,
			MinDistanceMeters: float64(cfg.Agent.MinDistanceMeters),
			MinIntervalMs:     cfg.Agent.MinIntervalMs,
		},
		func(c domain.Coordinate) {
			metrics.PositionSamples.WithLabelValues(cfg.Agent.UserID).Inc()
			locationSvc.Update(ctx, c)
		},
	)

	go func() {
		if err := presenceSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("presence loop exited", "error", err)
		}
	}()
	go locationSvc.Run(ctx)

	// Reconcile trigger: whenever routes are stuck in the pending queue,
	// kick a sweep on the reconciler's task queue. The workflow id is stable
	// per user, so overlapping triggers dedupe on the Temporal side.
	if tc, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	}); err != nil {
		slog.Warn("temporal unavailable, pending routes will wait", "error", err)
	} else {
		defer tc.Close()
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					pending, err := archiveSvc.PendingRoutes(ctx, cfg.Agent.UserID)
					if err != nil || len(pending) == 0 {
						continue
					}
					opts := client.StartWorkflowOptions{
						ID:        "reconcile-" + cfg.Agent.UserID,
						TaskQueue: cfg.Temporal.TaskQueue,
					}
					_, err = tc.ExecuteWorkflow(ctx, opts, workflows.ReconcileWorkflow,
						workflows.ReconcileInput{UserID: cfg.Agent.UserID})
					if err != nil {
						slog.Warn("reconcile trigger failed", "error", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Local control API
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "WayPulse Agent",
	})
	app.Use(recover.New())

	app.Get("/metrics", metrics.Handler())

	v1 := app.Group("/v1")
	v1.Post("/session/start", func(c *fiber.Ctx) error {
		if err := tracker.StartSession(c.Context()); err != nil {
			if errors.Is(err, domain.ErrPermissionDenied) {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "location_unavailable", "message": err.Error(),
				})
			}
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "session_error", "message": err.Error(),
			})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"tracking": true})
	})
	v1.Post("/session/end", func(c *fiber.Ctx) error {
		route, err := tracker.EndSession(c.Context())
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientData) {
				return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
					"error": "insufficient_data", "message": err.Error(),
				})
			}
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "session_error", "message": err.Error(),
			})
		}
		return c.JSON(route)
	})
	v1.Get("/session/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"tracking": tracker.Tracking(),
			"points":   len(tracker.Points()),
		})
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Agent.ControlPort)
		slog.Info("agent control API starting", "addr", addr, "user", cfg.Agent.UserID)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	// Close an open session so the route is not lost. ErrInsufficientData
	// just means nothing worth saving had accumulated.
	if tracker.Tracking() {
		endCtx, endCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if _, err := tracker.EndSession(endCtx); err != nil && !errors.Is(err, domain.ErrInsufficientData) {
			slog.Error("failed to close session on shutdown", "error", err)
		}
		endCancel()
	}

	cancel() // presence loop writes the offline record on its way out
	time.Sleep(500 * time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("agent stopped")
}
