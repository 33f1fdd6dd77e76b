package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
	"github.com/waypulse/waypulse/internal/pkg/metrics"
)

const (
	historyKeyPrefix = "route_history:"
	pendingKeyPrefix = "route_pending:"
)

// ArchiveService persists completed routes. Every save lands in the local
// cache; the remote per-user store is best-effort, with failed remote writes
// queued for a later reconciliation pass. The local cache is authoritative
// for the current device's view.
type ArchiveService struct {
	remote ports.RouteRepository
	cache  ports.CacheService
}

// NewArchiveService creates an ArchiveService. remote may be nil when no
// user identity or remote store is available.
func NewArchiveService(remote ports.RouteRepository, cache ports.CacheService) *ArchiveService {
	return &ArchiveService{remote: remote, cache: cache}
}

// Save appends the route to the local cache and writes it to the remote
// store. Routes with fewer than two coordinates are rejected, never silently
// saved. A remote failure queues the route for reconciliation; only a
// failure of both stores is surfaced, as domain.ErrStorageFailure.
func (s *ArchiveService) Save(ctx context.Context, route *domain.Route) error {
	if len(route.Coordinates) < 2 {
		return domain.ErrInsufficientData
	}

	localErr := s.appendLocal(ctx, route)
	if localErr != nil {
		slog.Warn("local route save failed", "route", route.ID, "error", localErr)
		metrics.RouteSaveFailures.WithLabelValues("local").Inc()
	} else {
		metrics.RoutesSaved.WithLabelValues("local").Inc()
	}

	var remoteErr error
	if s.remote != nil {
		remoteErr = s.remote.Save(ctx, route)
		if remoteErr != nil {
			slog.Warn("remote route save failed, queued for sync", "route", route.ID, "error", remoteErr)
			metrics.RouteSaveFailures.WithLabelValues("remote").Inc()
			if err := s.addPending(ctx, route.UserID, route.ID); err != nil {
				slog.Warn("pending queue update failed", "route", route.ID, "error", err)
			}
		} else {
			metrics.RoutesSaved.WithLabelValues("remote").Inc()
		}
	}

	if localErr != nil && remoteErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, remoteErr)
	}
	return nil
}

// List returns the user's routes newest first, preferring the remote store
// and falling back to the local cache when it is unavailable.
func (s *ArchiveService) List(ctx context.Context, userID string) ([]domain.Route, error) {
	if s.remote != nil {
		routes, err := s.remote.ListByUser(ctx, userID)
		if err == nil {
			return routes, nil
		}
		slog.Warn("remote route list failed, using local cache", "user", userID, "error", err)
	}

	routes, err := s.loadLocal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].CreatedAt.After(routes[j].CreatedAt)
	})
	return routes, nil
}

// Delete removes a route. The local cache update must succeed; the remote
// delete is best-effort, so a listed route never resurrects locally even if
// the remote copy lingers.
func (s *ArchiveService) Delete(ctx context.Context, userID, routeID string) error {
	routes, err := s.loadLocal(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	kept := routes[:0]
	for _, r := range routes {
		if r.ID != routeID {
			kept = append(kept, r)
		}
	}
	if err := s.storeLocal(ctx, userID, kept); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	if err := s.removePending(ctx, userID, routeID); err != nil {
		slog.Warn("pending queue update failed", "route", routeID, "error", err)
	}

	if s.remote != nil {
		if err := s.remote.Delete(ctx, userID, routeID); err != nil {
			slog.Warn("remote route delete failed", "route", routeID, "error", err)
		}
	}
	return nil
}

// ClearAll empties the local cache and best-effort deletes all remote
// records.
func (s *ArchiveService) ClearAll(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, historyKeyPrefix+userID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	if err := s.cache.Delete(ctx, pendingKeyPrefix+userID); err != nil {
		slog.Warn("pending queue clear failed", "user", userID, "error", err)
	}

	if s.remote != nil {
		if err := s.remote.DeleteAll(ctx, userID); err != nil {
			slog.Warn("remote route clear failed", "user", userID, "error", err)
		}
	}
	return nil
}

// PendingRoutes returns locally-cached routes whose remote save has not
// succeeded yet.
func (s *ArchiveService) PendingRoutes(ctx context.Context, userID string) ([]domain.Route, error) {
	ids, err := s.loadPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	routes, err := s.loadLocal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	pending := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		pending[id] = struct{}{}
	}
	var out []domain.Route
	for _, r := range routes {
		if _, ok := pending[r.ID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// PushRemote writes a route to the remote store. Used by the reconciler,
// which owns the retry policy.
func (s *ArchiveService) PushRemote(ctx context.Context, route *domain.Route) error {
	if s.remote == nil {
		return fmt.Errorf("no remote store configured")
	}
	return s.remote.Save(ctx, route)
}

// MarkSynced drops a route id from the pending queue.
func (s *ArchiveService) MarkSynced(ctx context.Context, userID, routeID string) error {
	return s.removePending(ctx, userID, routeID)
}

func (s *ArchiveService) appendLocal(ctx context.Context, route *domain.Route) error {
	routes, err := s.loadLocal(ctx, route.UserID)
	if err != nil {
		return err
	}
	routes = append(routes, *route)
	return s.storeLocal(ctx, route.UserID, routes)
}

func (s *ArchiveService) loadLocal(ctx context.Context, userID string) ([]domain.Route, error) {
	data, err := s.cache.Get(ctx, historyKeyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("read local history: %w", err)
	}
	if len(data) == 0 {
		// A missing key is an empty history.
		return nil, nil
	}
	var routes []domain.Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("decode local history: %w", err)
	}
	return routes, nil
}

func (s *ArchiveService) storeLocal(ctx context.Context, userID string, routes []domain.Route) error {
	data, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, historyKeyPrefix+userID, data, 0)
}

func (s *ArchiveService) loadPending(ctx context.Context, userID string) ([]string, error) {
	data, err := s.cache.Get(ctx, pendingKeyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("read pending queue: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode pending queue: %w", err)
	}
	return ids, nil
}

func (s *ArchiveService) addPending(ctx context.Context, userID, routeID string) error {
	ids, err := s.loadPending(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == routeID {
			return nil
		}
	}
	ids = append(ids, routeID)
	return s.storePending(ctx, userID, ids)
}

func (s *ArchiveService) removePending(ctx context.Context, userID, routeID string) error {
	ids, err := s.loadPending(ctx, userID)
	if err != nil || len(ids) == 0 {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if id != routeID {
			kept = append(kept, id)
		}
	}
	return s.storePending(ctx, userID, kept)
}

func (s *ArchiveService) storePending(ctx context.Context, userID string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, pendingKeyPrefix+userID, data, 0)
}
