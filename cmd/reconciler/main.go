package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/waypulse/waypulse/internal/adapters/postgres"
	"github.com/waypulse/waypulse/internal/adapters/valkey"
	"github.com/waypulse/waypulse/internal/core/usecases"
	"github.com/waypulse/waypulse/internal/pkg/config"
	"github.com/waypulse/waypulse/internal/pkg/logging"
	"github.com/waypulse/waypulse/internal/workflows"
)

// The reconciler drains the pending sync queue: routes that were archived
// locally while the remote store was unreachable get pushed once it is back.
func main() {
	cfg, err := config.Load("waypulse-reconciler")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logging.Setup("reconciler", logLevel, "json")

	ctx := context.Background()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		log.Fatalf("valkey: %v", err)
	}
	defer cache.Close()

	routeRepo := postgres.NewRouteRepo(db.Pool)
	archiveSvc := usecases.NewArchiveService(routeRepo, cache)

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ReconcileWorkflow)
	w.RegisterActivity(&workflows.ReconcileActivities{Archive: archiveSvc})

	slog.Info("reconciler worker starting", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}

	slog.Info("reconciler stopped")
}
