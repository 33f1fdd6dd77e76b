package ports

import (
	"context"

	"github.com/waypulse/waypulse/internal/core/domain"
)

// WatchOptions configures a continuous position watch.
type WatchOptions struct {
	HighAccuracy      bool
	MinDistanceMeters float64
	MinIntervalMs     int
}

// Sampler wraps the device's positioning capability. Implementations return
// domain.ErrPermissionDenied when positioning access has not been granted;
// they must never fall back to stale data silently.
type Sampler interface {
	// Current returns a one-shot fix.
	Current(ctx context.Context, opts WatchOptions) (domain.Coordinate, error)

	// Watch delivers fixes to fn in arrival order until the returned stop
	// function is called. Stop is synchronous: no fn call is in flight or
	// forthcoming once it returns.
	Watch(ctx context.Context, opts WatchOptions, fn func(domain.Coordinate)) (stop func(), err error)
}

// DirectionsService snaps a recorded path onto road geometry. An empty or
// failed result is reported as domain.ErrRoutingUnavailable; callers treat
// it as an optional-enhancement miss, never a save blocker.
type DirectionsService interface {
	SnapRoute(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error)
}

// RealtimeStore is the shared live store for presence and location records,
// keyed by user id. Writes are last-write-wins; each device writes only its
// own keys.
type RealtimeStore interface {
	PutPresence(ctx context.Context, rec *domain.PresenceRecord) error
	PutLocation(ctx context.Context, rec *domain.LocationRecord) error

	// GuardDisconnect arms the store-side guarantee that this user's
	// presence flips to offline when the device stops refreshing it,
	// including ungraceful process death. It is a backend contract, not a
	// client timer.
	GuardDisconnect(ctx context.Context, userID string) error

	// Presence and Locations read the full collections. The fleet is
	// assumed small enough for full-collection reads.
	Presence(ctx context.Context) (map[string]domain.PresenceRecord, error)
	Locations(ctx context.Context) (map[string]domain.LocationRecord, error)

	// WatchPresence and WatchLocations stream updates until the returned
	// stop function is called. Explicit removal of a presence record is
	// delivered as an offline record; store-side expiry is silent, so
	// mirrors must also re-read the collections.
	WatchPresence(ctx context.Context, fn func(domain.PresenceRecord)) (stop func(), err error)
	WatchLocations(ctx context.Context, fn func(domain.LocationRecord)) (stop func(), err error)
}

// CacheService is the local persistent key-value cache used as the offline
// fallback for route history. A ttl of 0 persists the key indefinitely.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
