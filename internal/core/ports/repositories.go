package ports

import (
	"context"

	"github.com/waypulse/waypulse/internal/core/domain"
)

// RouteRepository persists archived routes in the remote per-user store.
type RouteRepository interface {
	Save(ctx context.Context, route *domain.Route) error
	ListByUser(ctx context.Context, userID string) ([]domain.Route, error)
	Delete(ctx context.Context, userID, routeID string) error
	DeleteAll(ctx context.Context, userID string) error
}

// PlanRepository persists saved tour plans in the remote per-user store.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.Plan) error
	ListByUser(ctx context.Context, userID string) ([]domain.Plan, error)
	Delete(ctx context.Context, userID, planID string) error
}
