package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
	"github.com/waypulse/waypulse/internal/pkg/metrics"
)

// locationHeartbeat re-publishes the latest coordinate even when the device
// is stationary, so subscribers see liveness as well as motion.
const locationHeartbeat = 3 * time.Second

// LocationService publishes this device's current coordinate. Two triggers
// intentionally overlap: an immediate write on every change, and a fixed
// heartbeat re-writing the latest known coordinate. Both land on the same
// key with last-write-wins semantics, so the redundancy is harmless.
type LocationService struct {
	store  ports.RealtimeStore
	userID string

	// Interval is the heartbeat period, overridable in tests.
	Interval time.Duration

	mu     sync.Mutex
	latest *domain.Coordinate
}

// NewLocationService creates a LocationService with the default heartbeat.
func NewLocationService(store ports.RealtimeStore, userID string) *LocationService {
	return &LocationService{store: store, userID: userID, Interval: locationHeartbeat}
}

// Update is the change trigger: it records the new coordinate and publishes
// it immediately. Publish failures are logged, never propagated; the next
// heartbeat retries implicitly.
func (s *LocationService) Update(ctx context.Context, c domain.Coordinate) {
	s.mu.Lock()
	s.latest = &c
	s.mu.Unlock()

	if err := s.publish(ctx, c); err != nil {
		slog.Warn("location publish failed", "user", s.userID, "error", err)
		return
	}
	metrics.LocationPublishes.WithLabelValues("change").Inc()
}

// Run is the timer trigger: every heartbeat it re-publishes the latest
// coordinate, if one has been seen, until ctx is cancelled.
func (s *LocationService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			latest := s.latest
			s.mu.Unlock()
			if latest == nil {
				continue
			}
			if err := s.publish(ctx, *latest); err != nil {
				slog.Warn("location heartbeat failed", "user", s.userID, "error", err)
				continue
			}
			metrics.LocationPublishes.WithLabelValues("heartbeat").Inc()
		case <-ctx.Done():
			return
		}
	}
}

func (s *LocationService) publish(ctx context.Context, c domain.Coordinate) error {
	return s.store.PutLocation(ctx, &domain.LocationRecord{
		UserID:    s.userID,
		Coord:     c,
		UpdatedAt: time.Now(),
	})
}
