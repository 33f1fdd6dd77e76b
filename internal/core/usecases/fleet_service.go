package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
)

const defaultResync = 5 * time.Second

// FleetService mirrors the full presence and location collections from the
// realtime store into memory. Entries are replaced wholesale on every update;
// there is no incremental merge. The dataset is assumed small enough for
// full-collection streaming.
//
// The watch streams only carry explicit writes and deletes. A presence entry
// the store expires by TTL vanishes without an event, so the mirror also
// re-reads both collections on a fixed interval to shed expired entries.
type FleetService struct {
	store ports.RealtimeStore

	// Resync is the interval between full re-reads of the store. Zero means
	// defaultResync. Must be set before Start.
	Resync time.Duration

	mu        sync.RWMutex
	presence  map[string]domain.PresenceRecord
	locations map[string]domain.LocationRecord

	stops []func()
}

// NewFleetService creates a FleetService.
func NewFleetService(store ports.RealtimeStore) *FleetService {
	return &FleetService{
		store:     store,
		presence:  make(map[string]domain.PresenceRecord),
		locations: make(map[string]domain.LocationRecord),
	}
}

// Start primes both collections, subscribes to their update streams, and
// begins the periodic resync.
func (s *FleetService) Start(ctx context.Context) error {
	if err := s.reprime(ctx); err != nil {
		return err
	}

	stopPresence, err := s.store.WatchPresence(ctx, func(rec domain.PresenceRecord) {
		s.mu.Lock()
		s.presence[rec.UserID] = rec
		s.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("watch presence: %w", err)
	}
	s.stops = append(s.stops, stopPresence)

	stopLocations, err := s.store.WatchLocations(ctx, func(rec domain.LocationRecord) {
		s.mu.Lock()
		s.locations[rec.UserID] = rec
		s.mu.Unlock()
	})
	if err != nil {
		stopPresence()
		return fmt.Errorf("watch locations: %w", err)
	}
	s.stops = append(s.stops, stopLocations)

	interval := s.Resync
	if interval <= 0 {
		interval = defaultResync
	}
	resyncCtx, cancel := context.WithCancel(context.Background())
	s.stops = append(s.stops, cancel)
	go s.resyncLoop(resyncCtx, interval)

	return nil
}

func (s *FleetService) resyncLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reprime(ctx); err != nil {
				slog.Warn("fleet resync failed", "error", err)
			}
		}
	}
}

// reprime replaces both mirrors with a fresh read of the store.
func (s *FleetService) reprime(ctx context.Context) error {
	presence, err := s.store.Presence(ctx)
	if err != nil {
		return fmt.Errorf("prime presence: %w", err)
	}
	locations, err := s.store.Locations(ctx)
	if err != nil {
		return fmt.Errorf("prime locations: %w", err)
	}

	s.mu.Lock()
	s.presence = presence
	s.locations = locations
	s.mu.Unlock()
	return nil
}

// Stop cancels the store subscriptions.
func (s *FleetService) Stop() {
	for _, stop := range s.stops {
		stop()
	}
	s.stops = nil
}

// Presence returns a copy of the presence collection.
func (s *FleetService) Presence() map[string]domain.PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.PresenceRecord, len(s.presence))
	for k, v := range s.presence {
		out[k] = v
	}
	return out
}

// Locations returns a copy of the location collection.
func (s *FleetService) Locations() map[string]domain.LocationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.LocationRecord, len(s.locations))
	for k, v := range s.locations {
		out[k] = v
	}
	return out
}

// Fleet joins presence and location by user id, sorted by user id. A user
// with a location but no presence record is reported offline.
func (s *FleetService) Fleet() []domain.FleetMember {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[string]struct{}, len(s.presence)+len(s.locations))
	for id := range s.presence {
		ids[id] = struct{}{}
	}
	for id := range s.locations {
		ids[id] = struct{}{}
	}

	members := make([]domain.FleetMember, 0, len(ids))
	for id := range ids {
		m := domain.FleetMember{UserID: id, Status: domain.StatusOffline}
		if p, ok := s.presence[id]; ok {
			m.Status = p.Status
			m.LastChanged = p.LastChanged
		}
		if l, ok := s.locations[id]; ok {
			coord := l.Coord
			m.Coord = &coord
			m.UpdatedAt = l.UpdatedAt
		}
		members = append(members, m)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}
