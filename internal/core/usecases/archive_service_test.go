package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/usecases"
)

func testRoute(id string, createdAt time.Time) *domain.Route {
	return &domain.Route{
		ID:     id,
		UserID: "user-1",
		Start:  domain.Coordinate{0, 0},
		End:    domain.Coordinate{0, 0.002},
		Coordinates: []domain.Coordinate{
			{0, 0}, {0, 0.001}, {0, 0.002},
		},
		CreatedAt: createdAt,
	}
}

func TestArchiveSaveListRoundTrip(t *testing.T) {
	repo := &mockRouteRepo{}
	svc := usecases.NewArchiveService(repo, newMemCache())

	route := testRoute("100", time.Now())
	if err := svc.Save(context.Background(), route); err != nil {
		t.Fatalf("save: %v", err)
	}

	routes, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	got := routes[0]
	if got.ID != route.ID || got.Start != route.Start || got.End != route.End {
		t.Errorf("round trip mismatch: %+v", got)
	}
	for i, c := range route.Coordinates {
		if got.Coordinates[i] != c {
			t.Errorf("coordinates[%d] = %v, want %v", i, got.Coordinates[i], c)
		}
	}
}

func TestArchiveRejectsShortRoutes(t *testing.T) {
	repo := &mockRouteRepo{}
	svc := usecases.NewArchiveService(repo, newMemCache())

	short := testRoute("1", time.Now())
	short.Coordinates = short.Coordinates[:1]
	if err := svc.Save(context.Background(), short); !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if repo.count() != 0 {
		t.Error("short route must not be persisted")
	}
}

func TestArchiveRemoteFailureQueuesPending(t *testing.T) {
	repo := &mockRouteRepo{saveErr: errors.New("remote down")}
	cache := newMemCache()
	svc := usecases.NewArchiveService(repo, cache)

	route := testRoute("100", time.Now())
	if err := svc.Save(context.Background(), route); err != nil {
		t.Fatalf("save should tolerate remote failure, got %v", err)
	}

	pending, err := svc.PendingRoutes(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "100" {
		t.Fatalf("expected route 100 pending, got %+v", pending)
	}

	// Remote recovers; the reconciler pushes and marks synced.
	repo.saveErr = nil
	if err := svc.PushRemote(context.Background(), &pending[0]); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := svc.MarkSynced(context.Background(), "user-1", "100"); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	pending, _ = svc.PendingRoutes(context.Background(), "user-1")
	if len(pending) != 0 {
		t.Errorf("pending queue not drained: %+v", pending)
	}
}

func TestArchiveListFallsBackToLocal(t *testing.T) {
	repo := &mockRouteRepo{saveErr: errors.New("remote down"), listErr: errors.New("remote down")}
	svc := usecases.NewArchiveService(repo, newMemCache())

	older := testRoute("100", time.Now().Add(-time.Hour))
	newer := testRoute("200", time.Now())
	if err := svc.Save(context.Background(), older); err != nil {
		t.Fatalf("save older: %v", err)
	}
	if err := svc.Save(context.Background(), newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}

	routes, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 cached routes, got %d", len(routes))
	}
	if routes[0].ID != "200" || routes[1].ID != "100" {
		t.Errorf("expected newest first, got %s, %s", routes[0].ID, routes[1].ID)
	}
}

func TestArchiveDeleteIsLocallyAuthoritative(t *testing.T) {
	// Remote deletes fail, remote lists fail too: the local view must still
	// never show a deleted route again.
	repo := &mockRouteRepo{deleteErr: errors.New("remote down"), listErr: errors.New("remote down")}
	svc := usecases.NewArchiveService(repo, newMemCache())

	route := testRoute("100", time.Now())
	if err := svc.Save(context.Background(), route); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Delete(context.Background(), "user-1", "100"); err != nil {
		t.Fatalf("delete should tolerate remote failure, got %v", err)
	}

	routes, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range routes {
		if r.ID == "100" {
			t.Error("deleted route resurrected")
		}
	}
}

func TestArchiveClearAll(t *testing.T) {
	repo := &mockRouteRepo{}
	svc := usecases.NewArchiveService(repo, newMemCache())

	for i, id := range []string{"1", "2", "3"} {
		if err := svc.Save(context.Background(), testRoute(id, time.Now().Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := svc.ClearAll(context.Background(), "user-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	routes, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(routes) != 0 {
		t.Errorf("expected empty history, got %d routes", len(routes))
	}
}

func TestArchiveCacheReadFailureDoesNotEraseHistory(t *testing.T) {
	// Writes still land while reads error, the failure mode of a cache that
	// accepts commands but cannot serve lookups. A delete that cannot read
	// the history must fail rather than rewrite it from nothing.
	repo := &mockRouteRepo{saveErr: errors.New("remote down"), listErr: errors.New("remote down")}
	cache := newMemCache()
	svc := usecases.NewArchiveService(repo, cache)

	for _, id := range []string{"100", "200"} {
		if err := svc.Save(context.Background(), testRoute(id, time.Now())); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	cache.failingReads = true

	if err := svc.Delete(context.Background(), "user-1", "100"); !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("delete during read failure: expected ErrStorageFailure, got %v", err)
	}
	if _, err := svc.List(context.Background(), "user-1"); !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("list during read failure: expected ErrStorageFailure, got %v", err)
	}
	if _, err := svc.PendingRoutes(context.Background(), "user-1"); !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("pending during read failure: expected ErrStorageFailure, got %v", err)
	}

	// Reads recover: both routes survived the failed delete.
	cache.failingReads = false
	routes, err := svc.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list after recovery: %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes after recovery, got %d", len(routes))
	}
}

func TestArchiveSaveBothStoresDown(t *testing.T) {
	repo := &mockRouteRepo{saveErr: errors.New("remote down")}
	cache := newMemCache()
	cache.failing = true
	svc := usecases.NewArchiveService(repo, cache)

	err := svc.Save(context.Background(), testRoute("100", time.Now()))
	if !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}
}
