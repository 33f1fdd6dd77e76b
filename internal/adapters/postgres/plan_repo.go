package postgres

import (
	"context"
	"fmt"

	"github.com/waypulse/waypulse/internal/core/domain"
)

// PlanRepo implements ports.PlanRepository.
type PlanRepo struct {
	db Querier
}

func NewPlanRepo(db Querier) *PlanRepo { return &PlanRepo{db: db} }

func (r *PlanRepo) Create(ctx context.Context, plan *domain.Plan) error {
	coords, err := encodeCoords(plan.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_plans (id, user_id, start_name, end_name,
		                        start_lng, start_lat, end_lng, end_lat,
		                        coordinates, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, plan.ID, plan.UserID, plan.StartName, plan.EndName,
		plan.Start.Lng(), plan.Start.Lat(), plan.End.Lng(), plan.End.Lat(),
		coords, plan.CreatedAt)
	return err
}

func (r *PlanRepo) ListByUser(ctx context.Context, userID string) ([]domain.Plan, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, start_name, end_name, start_lng, start_lat, end_lng, end_lat,
		       coordinates, created_at
		FROM user_plans WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		p := domain.Plan{UserID: userID}
		var startLng, startLat, endLng, endLat float64
		var coords []byte
		if err := rows.Scan(&p.ID, &p.StartName, &p.EndName,
			&startLng, &startLat, &endLng, &endLat, &coords, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Start = domain.Coordinate{startLng, startLat}
		p.End = domain.Coordinate{endLng, endLat}
		if p.Coordinates, err = decodeCoords(coords); err != nil {
			return nil, fmt.Errorf("decode coordinates for %s: %w", p.ID, err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (r *PlanRepo) Delete(ctx context.Context, userID, planID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM user_plans WHERE user_id = $1 AND id = $2
	`, userID, planID)
	return err
}
