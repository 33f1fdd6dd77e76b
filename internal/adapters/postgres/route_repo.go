package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/waypulse/waypulse/internal/core/domain"
)

// RouteRepo implements ports.RouteRepository. Polylines are stored as JSONB
// arrays of flat {lng,lat} records, never as nested coordinate arrays, and
// must come back byte-for-byte equivalent to what was recorded.
type RouteRepo struct {
	db Querier
}

func NewRouteRepo(db Querier) *RouteRepo { return &RouteRepo{db: db} }

// Save inserts an archived route. Route ids are stable across retries, so a
// conflicting insert from a reconcile push is a no-op.
func (r *RouteRepo) Save(ctx context.Context, route *domain.Route) error {
	coords, err := encodeCoords(route.Coordinates)
	if err != nil {
		return fmt.Errorf("encode coordinates: %w", err)
	}
	var snapped []byte
	if route.Snapped != nil {
		if snapped, err = encodeCoords(route.Snapped); err != nil {
			return fmt.Errorf("encode snapped: %w", err)
		}
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_routes (id, user_id, start_lng, start_lat, end_lng, end_lat,
		                         coordinates, snapped, distance_meters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, id) DO NOTHING
	`, route.ID, route.UserID, route.Start.Lng(), route.Start.Lat(),
		route.End.Lng(), route.End.Lat(), coords, snapped,
		route.DistanceMeters, route.CreatedAt)
	return err
}

func (r *RouteRepo) ListByUser(ctx context.Context, userID string) ([]domain.Route, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, start_lng, start_lat, end_lng, end_lat, coordinates, snapped,
		       distance_meters, created_at
		FROM user_routes WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []domain.Route
	for rows.Next() {
		rt := domain.Route{UserID: userID}
		var startLng, startLat, endLng, endLat float64
		var coords, snapped []byte
		if err := rows.Scan(&rt.ID, &startLng, &startLat, &endLng, &endLat,
			&coords, &snapped, &rt.DistanceMeters, &rt.CreatedAt); err != nil {
			return nil, err
		}
		rt.Start = domain.Coordinate{startLng, startLat}
		rt.End = domain.Coordinate{endLng, endLat}
		if rt.Coordinates, err = decodeCoords(coords); err != nil {
			return nil, fmt.Errorf("decode coordinates for %s: %w", rt.ID, err)
		}
		if rt.Snapped, err = decodeCoords(snapped); err != nil {
			return nil, fmt.Errorf("decode snapped for %s: %w", rt.ID, err)
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

func (r *RouteRepo) Delete(ctx context.Context, userID, routeID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM user_routes WHERE user_id = $1 AND id = $2
	`, userID, routeID)
	return err
}

func (r *RouteRepo) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM user_routes WHERE user_id = $1
	`, userID)
	return err
}

func encodeCoords(coords []domain.Coordinate) ([]byte, error) {
	return json.Marshal(domain.FlattenCoordinates(coords))
}

func decodeCoords(data []byte) ([]domain.Coordinate, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []domain.CoordinateRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return domain.CollectCoordinates(records), nil
}
