package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
)

// presenceHeartbeat is how often the online record is re-published so that a
// stale entry left behind by an ungraceful reconnect cycle self-heals.
const presenceHeartbeat = 5 * time.Second

// PresenceService announces this device's online/offline state. It runs
// whenever a user identity is known, independently of tracking state. The
// offline transition on disconnect is guaranteed by the realtime store
// itself; the teardown write here is a courtesy on top of that.
type PresenceService struct {
	store  ports.RealtimeStore
	userID string

	// Interval is the heartbeat period, overridable in tests.
	Interval time.Duration
}

// NewPresenceService creates a PresenceService with the default heartbeat.
func NewPresenceService(store ports.RealtimeStore, userID string) *PresenceService {
	return &PresenceService{store: store, userID: userID, Interval: presenceHeartbeat}
}

// Run publishes the online state, arms the store-side disconnect guard, and
// re-publishes on every heartbeat until ctx is cancelled. On cancellation it
// writes the offline state before returning.
func (s *PresenceService) Run(ctx context.Context) error {
	if err := s.publish(ctx, domain.StatusOnline); err != nil {
		return err
	}
	if err := s.store.GuardDisconnect(ctx, s.userID); err != nil {
		return err
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.publish(ctx, domain.StatusOnline); err != nil {
				slog.Warn("presence heartbeat failed", "user", s.userID, "error", err)
			}
		case <-ctx.Done():
			// The parent context is gone; give the courtesy write its own
			// short deadline.
			offCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.publish(offCtx, domain.StatusOffline); err != nil {
				slog.Warn("offline courtesy write failed", "user", s.userID, "error", err)
			}
			return nil
		}
	}
}

func (s *PresenceService) publish(ctx context.Context, status string) error {
	return s.store.PutPresence(ctx, &domain.PresenceRecord{
		UserID:      s.userID,
		Status:      status,
		LastChanged: time.Now(),
	})
}
