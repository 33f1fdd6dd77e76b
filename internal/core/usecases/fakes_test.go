package usecases_test

import (
	"context"
	"errors"
	"sync"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
)

var errCacheDown = errors.New("cache down")

// ---- In-memory CacheService ----

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	// failing makes every operation error, for storage-failure paths.
	failing bool
	// failingReads errors only Get, for a store that still accepts writes.
	failingReads bool
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing || m.failingReads {
		return nil, errCacheDown
	}
	return m.data[key], nil
}

func (m *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errCacheDown
	}
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errCacheDown
	}
	delete(m.data, key)
	return nil
}

// ---- Mock RouteRepository ----

type mockRouteRepo struct {
	mu        sync.Mutex
	saved     []domain.Route
	saveErr   error
	listErr   error
	deleteErr error
}

func (m *mockRouteRepo) Save(ctx context.Context, route *domain.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, *route)
	return nil
}

func (m *mockRouteRepo) ListByUser(ctx context.Context, userID string) ([]domain.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Route
	for i := len(m.saved) - 1; i >= 0; i-- {
		if m.saved[i].UserID == userID {
			out = append(out, m.saved[i])
		}
	}
	return out, nil
}

func (m *mockRouteRepo) Delete(ctx context.Context, userID, routeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.saved[:0]
	for _, r := range m.saved {
		if !(r.UserID == userID && r.ID == routeID) {
			kept = append(kept, r)
		}
	}
	m.saved = kept
	return nil
}

func (m *mockRouteRepo) DeleteAll(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.saved[:0]
	for _, r := range m.saved {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	m.saved = kept
	return nil
}

func (m *mockRouteRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

// ---- Mock PlanRepository ----

type mockPlanRepo struct {
	mu        sync.Mutex
	plans     []domain.Plan
	createErr error
	deleteErr error
}

func (m *mockPlanRepo) Create(ctx context.Context, plan *domain.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.plans = append(m.plans, *plan)
	return nil
}

func (m *mockPlanRepo) ListByUser(ctx context.Context, userID string) ([]domain.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Plan
	for _, p := range m.plans {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPlanRepo) Delete(ctx context.Context, userID, planID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.plans[:0]
	for _, p := range m.plans {
		if !(p.UserID == userID && p.ID == planID) {
			kept = append(kept, p)
		}
	}
	m.plans = kept
	return nil
}

// ---- Mock DirectionsService ----

type mockDirections struct {
	snapFn func(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error)
}

func (m *mockDirections) SnapRoute(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error) {
	if m.snapFn != nil {
		return m.snapFn(ctx, start, end)
	}
	return nil, domain.ErrRoutingUnavailable
}

// ---- Mock Sampler ----

type mockSampler struct {
	mu        sync.Mutex
	currentFn func(ctx context.Context) (domain.Coordinate, error)
	watchFn   func(domain.Coordinate)
	watchCtx  context.Context
	stopped   bool
}

func (m *mockSampler) Current(ctx context.Context, opts ports.WatchOptions) (domain.Coordinate, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx)
	}
	return domain.Coordinate{}, nil
}

func (m *mockSampler) Watch(ctx context.Context, opts ports.WatchOptions, fn func(domain.Coordinate)) (func(), error) {
	m.mu.Lock()
	m.watchFn = fn
	m.watchCtx = ctx
	m.stopped = false
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
	}, nil
}

// emit delivers a sample as if the device produced it.
func (m *mockSampler) emit(c domain.Coordinate) {
	m.mu.Lock()
	fn, stopped := m.watchFn, m.stopped
	m.mu.Unlock()
	if fn != nil && !stopped {
		fn(c)
	}
}

// emitLate delivers a sample even after the watch was stopped, simulating a
// callback already in flight when the session ended.
func (m *mockSampler) emitLate(c domain.Coordinate) {
	m.mu.Lock()
	fn := m.watchFn
	m.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (m *mockSampler) watchContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watchCtx
}

func (m *mockSampler) wasStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// ---- Mock RealtimeStore ----

type mockRealtimeStore struct {
	mu          sync.Mutex
	presence    []domain.PresenceRecord
	locations   []domain.LocationRecord
	guarded     map[string]bool
	presenceW   func(domain.PresenceRecord)
	locationsW  func(domain.LocationRecord)
	primePres   map[string]domain.PresenceRecord
	primeLoc    map[string]domain.LocationRecord
	putErr      error
	watchCancel int
}

func newMockRealtimeStore() *mockRealtimeStore {
	return &mockRealtimeStore{
		guarded:   make(map[string]bool),
		primePres: make(map[string]domain.PresenceRecord),
		primeLoc:  make(map[string]domain.LocationRecord),
	}
}

func (m *mockRealtimeStore) PutPresence(ctx context.Context, rec *domain.PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.presence = append(m.presence, *rec)
	return nil
}

func (m *mockRealtimeStore) PutLocation(ctx context.Context, rec *domain.LocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.locations = append(m.locations, *rec)
	return nil
}

func (m *mockRealtimeStore) GuardDisconnect(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guarded[userID] = true
	return nil
}

func (m *mockRealtimeStore) Presence(ctx context.Context) (map[string]domain.PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.PresenceRecord, len(m.primePres))
	for k, v := range m.primePres {
		out[k] = v
	}
	return out, nil
}

func (m *mockRealtimeStore) Locations(ctx context.Context) (map[string]domain.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.LocationRecord, len(m.primeLoc))
	for k, v := range m.primeLoc {
		out[k] = v
	}
	return out, nil
}

func (m *mockRealtimeStore) WatchPresence(ctx context.Context, fn func(domain.PresenceRecord)) (func(), error) {
	m.mu.Lock()
	m.presenceW = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.watchCancel++
		m.mu.Unlock()
	}, nil
}

func (m *mockRealtimeStore) WatchLocations(ctx context.Context, fn func(domain.LocationRecord)) (func(), error) {
	m.mu.Lock()
	m.locationsW = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.watchCancel++
		m.mu.Unlock()
	}, nil
}

// expirePresence drops an entry the way a TTL does, with no watch event.
func (m *mockRealtimeStore) expirePresence(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.primePres, userID)
}

func (m *mockRealtimeStore) pushPresence(rec domain.PresenceRecord) {
	m.mu.Lock()
	fn := m.presenceW
	m.mu.Unlock()
	if fn != nil {
		fn(rec)
	}
}

func (m *mockRealtimeStore) pushLocation(rec domain.LocationRecord) {
	m.mu.Lock()
	fn := m.locationsW
	m.mu.Unlock()
	if fn != nil {
		fn(rec)
	}
}

func (m *mockRealtimeStore) presenceWrites() []domain.PresenceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PresenceRecord, len(m.presence))
	copy(out, m.presence)
	return out
}

func (m *mockRealtimeStore) locationWrites() []domain.LocationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LocationRecord, len(m.locations))
	copy(out, m.locations)
	return out
}

func (m *mockRealtimeStore) isGuarded(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.guarded[userID]
}
