package http

import (
	"github.com/nats-io/nats.go"
	"github.com/waypulse/waypulse/internal/adapters/postgres"
	"github.com/waypulse/waypulse/internal/adapters/valkey"
	"github.com/waypulse/waypulse/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Fleet   *usecases.FleetService
	Archive *usecases.ArchiveService
	Plans   *usecases.PlanService
	NATS    *nats.Conn
	DB      *postgres.DB
	Cache   *valkey.Cache
}
