package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
	"github.com/waypulse/waypulse/internal/pkg/geospatial"
)

// TrackerService owns the recording session state machine: Idle until a
// session starts, Tracking while samples accumulate, back to Idle when the
// session ends and the route is archived. Exactly one session is active at
// a time.
type TrackerService struct {
	sampler    ports.Sampler
	directions ports.DirectionsService
	archive    *ArchiveService
	userID     string
	opts       ports.WatchOptions

	// onSample, when set, receives every fix so the location publisher's
	// change trigger fires alongside route accumulation.
	onSample func(domain.Coordinate)

	mu        sync.Mutex
	tracking  bool
	points    []domain.RoutePoint
	stopWatch func()
}

// NewTrackerService creates a TrackerService. onSample may be nil.
func NewTrackerService(
	sampler ports.Sampler,
	directions ports.DirectionsService,
	archive *ArchiveService,
	userID string,
	opts ports.WatchOptions,
	onSample func(domain.Coordinate),
) *TrackerService {
	return &TrackerService{
		sampler:    sampler,
		directions: directions,
		archive:    archive,
		userID:     userID,
		opts:       opts,
		onSample:   onSample,
	}
}

// StartSession obtains a first fix and begins watching positions. It returns
// domain.ErrPermissionDenied (state stays Idle) when location access is not
// granted. ctx scopes only the synchronous first fix; the watch runs on a
// session-scoped context so a short-lived caller (an HTTP request) ending
// never tears down an active recording.
func (s *TrackerService) StartSession(ctx context.Context) error {
	s.mu.Lock()
	if s.tracking {
		s.mu.Unlock()
		return fmt.Errorf("session already active")
	}
	s.mu.Unlock()

	first, err := s.sampler.Current(ctx, s.opts)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("first fix: %w", err)
	}

	s.mu.Lock()
	s.tracking = true
	s.points = []domain.RoutePoint{{Coord: first, At: time.Now()}}
	s.mu.Unlock()

	if s.onSample != nil {
		s.onSample(first)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	stop, err := s.sampler.Watch(watchCtx, s.opts, s.record)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.tracking = false
		s.mu.Unlock()
		return fmt.Errorf("watch positions: %w", err)
	}

	s.mu.Lock()
	s.stopWatch = func() {
		stop()
		cancel()
	}
	s.mu.Unlock()

	slog.Info("tracking session started", "user", s.userID, "start", first)
	return nil
}

// record appends a sample in arrival order. Samples landing after the
// session has been closed are dropped.
func (s *TrackerService) record(c domain.Coordinate) {
	s.mu.Lock()
	if !s.tracking {
		s.mu.Unlock()
		return
	}
	s.points = append(s.points, domain.RoutePoint{Coord: c, At: time.Now()})
	s.mu.Unlock()

	if s.onSample != nil {
		s.onSample(c)
	}
}

// EndSession stops the watch, snaps the recorded path, and archives the
// route. The watch is cancelled synchronously before any further state
// transition so a late sample cannot mutate an archived route. Sessions
// with fewer than two points are discarded with domain.ErrInsufficientData.
func (s *TrackerService) EndSession(ctx context.Context) (*domain.Route, error) {
	s.mu.Lock()
	if !s.tracking {
		s.mu.Unlock()
		return nil, domain.ErrInsufficientData
	}
	s.tracking = false
	stop := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}

	s.mu.Lock()
	coords := make([]domain.Coordinate, len(s.points))
	for i, p := range s.points {
		coords[i] = p.Coord
	}
	s.mu.Unlock()

	if len(coords) < 2 {
		return nil, domain.ErrInsufficientData
	}

	start, end := coords[0], coords[len(coords)-1]

	// Optional enhancement: failure here never blocks the save.
	snapped, err := s.directions.SnapRoute(ctx, start, end)
	if err != nil {
		slog.Debug("route snapping unavailable", "user", s.userID, "error", err)
		snapped = nil
	}

	now := time.Now()
	route := &domain.Route{
		ID:             domain.NewRouteID(now),
		UserID:         s.userID,
		Start:          start,
		End:            end,
		Coordinates:    coords,
		Snapped:        snapped,
		DistanceMeters: pathDistance(coords),
		CreatedAt:      now,
	}

	if err := s.archive.Save(ctx, route); err != nil {
		return route, err
	}

	slog.Info("route archived", "user", s.userID, "route", route.ID,
		"points", len(coords), "snapped", snapped != nil)
	return route, nil
}

// Tracking reports whether a session is active.
func (s *TrackerService) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}

// Points returns a copy of the current session's recorded points.
func (s *TrackerService) Points() []domain.RoutePoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoutePoint, len(s.points))
	copy(out, s.points)
	return out
}

func pathDistance(coords []domain.Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += geospatial.Haversine(
			coords[i-1].Lat(), coords[i-1].Lng(),
			coords[i].Lat(), coords[i].Lng(),
		)
	}
	return total
}
