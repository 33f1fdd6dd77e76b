package workflows

import (
	"context"
	"fmt"

	"github.com/waypulse/waypulse/internal/core/usecases"
)

// ReconcileActivities holds the activity implementations for the reconcile
// workflow.
type ReconcileActivities struct {
	Archive *usecases.ArchiveService
}

// ListPendingRouteIDs returns the ids of routes saved locally whose remote
// write has not succeeded yet.
func (a *ReconcileActivities) ListPendingRouteIDs(ctx context.Context, userID string) ([]string, error) {
	routes, err := a.Archive.PendingRoutes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending routes: %w", err)
	}
	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// PushRoute writes one pending route to the remote store.
func (a *ReconcileActivities) PushRoute(ctx context.Context, userID, routeID string) error {
	routes, err := a.Archive.PendingRoutes(ctx, userID)
	if err != nil {
		return fmt.Errorf("load pending routes: %w", err)
	}
	for i := range routes {
		if routes[i].ID == routeID {
			if err := a.Archive.PushRemote(ctx, &routes[i]); err != nil {
				return fmt.Errorf("push route %s: %w", routeID, err)
			}
			return nil
		}
	}
	// Already drained by a concurrent sweep or deleted by the user.
	return nil
}

// MarkRouteSynced removes a route from the pending queue.
func (a *ReconcileActivities) MarkRouteSynced(ctx context.Context, userID, routeID string) error {
	if err := a.Archive.MarkSynced(ctx, userID, routeID); err != nil {
		return fmt.Errorf("mark synced %s: %w", routeID, err)
	}
	return nil
}
