package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/waypulse/waypulse/internal/adapters/http"
	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/usecases"
)

// ---- Mock ports ----

type mockStore struct {
	presence  map[string]domain.PresenceRecord
	locations map[string]domain.LocationRecord
}

func (m *mockStore) PutPresence(ctx context.Context, rec *domain.PresenceRecord) error { return nil }
func (m *mockStore) PutLocation(ctx context.Context, rec *domain.LocationRecord) error { return nil }
func (m *mockStore) GuardDisconnect(ctx context.Context, userID string) error          { return nil }
func (m *mockStore) Presence(ctx context.Context) (map[string]domain.PresenceRecord, error) {
	return m.presence, nil
}
func (m *mockStore) Locations(ctx context.Context) (map[string]domain.LocationRecord, error) {
	return m.locations, nil
}
func (m *mockStore) WatchPresence(ctx context.Context, fn func(domain.PresenceRecord)) (func(), error) {
	return func() {}, nil
}
func (m *mockStore) WatchLocations(ctx context.Context, fn func(domain.LocationRecord)) (func(), error) {
	return func() {}, nil
}

type mockRouteRepo struct {
	routes     []domain.Route
	deleted    []string
	deletedAll bool
	listErr    error
}

func (m *mockRouteRepo) Save(ctx context.Context, route *domain.Route) error { return nil }
func (m *mockRouteRepo) ListByUser(ctx context.Context, userID string) ([]domain.Route, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Route
	for _, r := range m.routes {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m *mockRouteRepo) Delete(ctx context.Context, userID, routeID string) error {
	m.deleted = append(m.deleted, routeID)
	return nil
}
func (m *mockRouteRepo) DeleteAll(ctx context.Context, userID string) error {
	m.deletedAll = true
	return nil
}

type mockPlanRepo struct {
	plans     []domain.Plan
	createErr error
}

func (m *mockPlanRepo) Create(ctx context.Context, plan *domain.Plan) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.plans = append(m.plans, *plan)
	return nil
}
func (m *mockPlanRepo) ListByUser(ctx context.Context, userID string) ([]domain.Plan, error) {
	var out []domain.Plan
	for _, p := range m.plans {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *mockPlanRepo) Delete(ctx context.Context, userID, planID string) error { return nil }

type mockDirections struct {
	snapFn func(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error)
}

func (m *mockDirections) SnapRoute(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error) {
	if m.snapFn != nil {
		return m.snapFn(ctx, start, end)
	}
	return nil, domain.ErrRoutingUnavailable
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) { return m.data[key], nil }
func (m *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.data[key] = value
	return nil
}
func (m *memCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	d := &handler.Dependencies{
		Fleet:   usecases.NewFleetService(&mockStore{}),
		Archive: usecases.NewArchiveService(&mockRouteRepo{}, newMemCache()),
		Plans:   usecases.NewPlanService(&mockPlanRepo{}, &mockDirections{}),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func startedFleet(t *testing.T, store *mockStore) *usecases.FleetService {
	t.Helper()
	fleet := usecases.NewFleetService(store)
	if err := fleet.Start(context.Background()); err != nil {
		t.Fatalf("fleet start: %v", err)
	}
	t.Cleanup(fleet.Stop)
	return fleet
}

// ---- Fleet handler tests ----

func TestFleet_Success(t *testing.T) {
	now := time.Now().UTC()
	store := &mockStore{
		presence: map[string]domain.PresenceRecord{
			"driver-1": {UserID: "driver-1", Status: domain.StatusOnline, LastChanged: now},
			"driver-2": {UserID: "driver-2", Status: domain.StatusOffline, LastChanged: now},
		},
		locations: map[string]domain.LocationRecord{
			"driver-1": {UserID: "driver-1", Coord: domain.Coordinate{2.35, 48.85}, UpdatedAt: now},
		},
	}
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Fleet = startedFleet(t, store)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/fleet", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Members []domain.FleetMember `json:"members"`
		Count   int                  `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Count != 2 {
		t.Errorf("expected 2 members, got %d", result.Count)
	}
	if result.Members[0].UserID != "driver-1" || result.Members[0].Status != domain.StatusOnline {
		t.Errorf("unexpected first member: %+v", result.Members[0])
	}
	if result.Members[0].Coord == nil {
		t.Error("expected driver-1 to have a location")
	}
}

func TestFleet_NearFilter(t *testing.T) {
	now := time.Now().UTC()
	store := &mockStore{
		presence: map[string]domain.PresenceRecord{
			"close": {UserID: "close", Status: domain.StatusOnline, LastChanged: now},
			"far":   {UserID: "far", Status: domain.StatusOnline, LastChanged: now},
		},
		locations: map[string]domain.LocationRecord{
			"close": {UserID: "close", Coord: domain.Coordinate{2.3522, 48.8566}, UpdatedAt: now},
			"far":   {UserID: "far", Coord: domain.Coordinate{2.2945, 48.8584}, UpdatedAt: now},
		},
	}
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Fleet = startedFleet(t, store)
	})
	app := setupApp(deps)

	// ~4km between the two points; 500m radius keeps only "close".
	req := httptest.NewRequest("GET", "/v1/fleet?near=2.3522,48.8566&radius=500", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Members []domain.FleetMember `json:"members"`
		Count   int                  `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Count != 1 || result.Members[0].UserID != "close" {
		t.Errorf("expected only 'close' within radius, got %+v", result.Members)
	}
}

func TestFleet_BadNearParam(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/fleet?near=not-a-coordinate", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request error, got %s", apiErr.Code)
	}
}

// ---- Route history handler tests ----

func makeRoutes(userID string, n int) []domain.Route {
	base := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	routes := make([]domain.Route, n)
	for i := range routes {
		at := base.Add(time.Duration(n-i) * time.Hour) // newest first
		routes[i] = domain.Route{
			ID:     domain.NewRouteID(at),
			UserID: userID,
			Start:  domain.Coordinate{2.35, 48.85},
			End:    domain.Coordinate{2.36, 48.86},
			Coordinates: []domain.Coordinate{
				{2.35, 48.85}, {2.36, 48.86},
			},
			DistanceMeters: float64(1000 * (i + 1)),
			CreatedAt:      at,
		}
	}
	return routes
}

func TestListUserRoutes_Success(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Archive = usecases.NewArchiveService(
			&mockRouteRepo{routes: makeRoutes("driver-1", 3)}, newMemCache())
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/users/driver-1/routes", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Data       []domain.Route `json:"data"`
		Pagination struct {
			Total int `json:"total"`
		} `json:"pagination"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Pagination.Total != 3 {
		t.Errorf("expected total 3, got %d", result.Pagination.Total)
	}
	if len(result.Data) != 3 {
		t.Errorf("expected 3 routes, got %d", len(result.Data))
	}
	if len(result.Data[0].Coordinates) != 2 {
		t.Errorf("expected polyline round trip, got %v", result.Data[0].Coordinates)
	}
}

func TestListUserRoutes_Pagination(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Archive = usecases.NewArchiveService(
			&mockRouteRepo{routes: makeRoutes("driver-1", 5)}, newMemCache())
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/users/driver-1/routes?offset=2&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected next link header, got %q", link)
	}

	var result struct {
		Data       []domain.Route `json:"data"`
		Pagination struct {
			Offset int `json:"offset"`
			Total  int `json:"total"`
		} `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Pagination.Total != 5 || result.Pagination.Offset != 2 {
		t.Errorf("unexpected pagination: %+v", result.Pagination)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 routes in page, got %d", len(result.Data))
	}
}

func TestGetUserRoute_NotFound(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Archive = usecases.NewArchiveService(
			&mockRouteRepo{routes: makeRoutes("driver-1", 1)}, newMemCache())
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/users/driver-1/routes/no-such-route", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteUserRoute(t *testing.T) {
	repo := &mockRouteRepo{routes: makeRoutes("driver-1", 1)}
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Archive = usecases.NewArchiveService(repo, newMemCache())
	})
	app := setupApp(deps)

	routeID := repo.routes[0].ID
	req := httptest.NewRequest("DELETE", "/v1/users/driver-1/routes/"+routeID, nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != routeID {
		t.Errorf("expected remote delete of %s, got %v", routeID, repo.deleted)
	}
}

func TestClearUserRoutes(t *testing.T) {
	repo := &mockRouteRepo{routes: makeRoutes("driver-1", 2)}
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Archive = usecases.NewArchiveService(repo, newMemCache())
	})
	app := setupApp(deps)

	req := httptest.NewRequest("DELETE", "/v1/users/driver-1/routes", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 204 {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if !repo.deletedAll {
		t.Error("expected remote DeleteAll")
	}
}

// ---- Plan handler tests ----

func TestCreatePlan_Success(t *testing.T) {
	repo := &mockPlanRepo{}
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Plans = usecases.NewPlanService(repo, &mockDirections{
			snapFn: func(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error) {
				return []domain.Coordinate{start, {2.33, 48.855}, end}, nil
			},
		})
	})
	app := setupApp(deps)

	body := strings.NewReader(`{
		"start_name": "Depot",
		"end_name": "Harbor",
		"start": [2.35, 48.85],
		"end": [2.29, 48.86]
	}`)
	req := httptest.NewRequest("POST", "/v1/users/driver-1/plans", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var plan domain.Plan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatal(err)
	}
	if plan.ID == "" {
		t.Error("expected generated plan id")
	}
	if len(plan.Coordinates) != 3 {
		t.Errorf("expected snapped polyline, got %v", plan.Coordinates)
	}
	if len(repo.plans) != 1 {
		t.Errorf("expected plan persisted, got %d", len(repo.plans))
	}
}

func TestCreatePlan_RoutingUnavailable(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Plans = usecases.NewPlanService(&mockPlanRepo{}, &mockDirections{
			snapFn: func(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error) {
				return nil, fmt.Errorf("%w: upstream down", domain.ErrRoutingUnavailable)
			},
		})
	})
	app := setupApp(deps)

	body := strings.NewReader(`{
		"start_name": "Depot",
		"end_name": "Harbor",
		"start": [2.35, 48.85],
		"end": [2.29, 48.86]
	}`)
	req := httptest.NewRequest("POST", "/v1/users/driver-1/plans", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 502 {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	var apiErr struct {
		Code string `json:"code"`
	}
	json.NewDecoder(resp.Body).Decode(&apiErr)
	if apiErr.Code != "routing_unavailable" {
		t.Errorf("expected routing_unavailable, got %s", apiErr.Code)
	}
}

func TestCreatePlan_MissingNames(t *testing.T) {
	app := setupApp(makeDeps())

	body := strings.NewReader(`{"start": [2.35, 48.85], "end": [2.29, 48.86]}`)
	req := httptest.NewRequest("POST", "/v1/users/driver-1/plans", body)
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListUserPlans(t *testing.T) {
	repo := &mockPlanRepo{plans: []domain.Plan{
		{ID: "p1", UserID: "driver-1", StartName: "Depot", EndName: "Harbor"},
	}}
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Plans = usecases.NewPlanService(repo, &mockDirections{})
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/users/driver-1/plans", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Plans []domain.Plan `json:"plans"`
		Count int           `json:"count"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Count != 1 || result.Plans[0].StartName != "Depot" {
		t.Errorf("unexpected plans response: %+v", result)
	}
}

// ---- Health ----

func TestHealth(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Status != "healthy" {
		t.Errorf("expected healthy, got %s", body.Status)
	}
}
