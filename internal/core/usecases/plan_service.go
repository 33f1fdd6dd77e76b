package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
)

// PlanService manages saved tour plans. Unlike route snapping, plan creation
// requires a working directions result: a plan without its polyline is
// useless, so routing failures abort the create.
type PlanService struct {
	plans      ports.PlanRepository
	directions ports.DirectionsService
}

// NewPlanService creates a PlanService.
func NewPlanService(plans ports.PlanRepository, directions ports.DirectionsService) *PlanService {
	return &PlanService{plans: plans, directions: directions}
}

// CreatePlan fetches the road polyline between two named places and persists
// the plan.
func (s *PlanService) CreatePlan(ctx context.Context, userID, startName, endName string, start, end domain.Coordinate) (*domain.Plan, error) {
	coords, err := s.directions.SnapRoute(ctx, start, end)
	if err != nil {
		return nil, err
	}

	plan := &domain.Plan{
		ID:          uuid.NewString(),
		UserID:      userID,
		StartName:   startName,
		EndName:     endName,
		Start:       start,
		End:         end,
		Coordinates: coords,
		CreatedAt:   time.Now(),
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	return plan, nil
}

// List returns the user's plans newest first.
func (s *PlanService) List(ctx context.Context, userID string) ([]domain.Plan, error) {
	return s.plans.ListByUser(ctx, userID)
}

// Delete removes a plan.
func (s *PlanService) Delete(ctx context.Context, userID, planID string) error {
	if err := s.plans.Delete(ctx, userID, planID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	return nil
}
