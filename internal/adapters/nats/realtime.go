package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/pkg/metrics"
)

const (
	presenceBucket = "fleet_presence"
	locationBucket = "fleet_location"

	// A presence entry not refreshed within this window is removed by the
	// server. Expiry emits no watcher event, so readers must re-read the
	// bucket to observe it.
	presenceTTL = 15 * time.Second
)

// Store implements ports.RealtimeStore on JetStream key-value buckets.
// Presence entries carry a bucket TTL so the offline transition is enforced
// server-side even when the writing process dies without cleanup. Every
// write is mirrored on a core subject (fleet.presence.<id>,
// fleet.location.<id>) for the WebSocket relay.
type Store struct {
	conn      *nats.Conn
	js        nats.JetStreamContext
	presence  nats.KeyValue
	locations nats.KeyValue
}

// NewStore connects to NATS and ensures both buckets exist.
func NewStore(url string) (*Store, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	presence, err := ensureBucket(js, &nats.KeyValueConfig{
		Bucket:  presenceBucket,
		TTL:     presenceTTL,
		History: 1,
		Storage: nats.MemoryStorage,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	locations, err := ensureBucket(js, &nats.KeyValueConfig{
		Bucket:  locationBucket,
		History: 1,
		Storage: nats.MemoryStorage,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Store{conn: conn, js: js, presence: presence, locations: locations}, nil
}

func ensureBucket(js nats.JetStreamContext, cfg *nats.KeyValueConfig) (nats.KeyValue, error) {
	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

func (s *Store) PutPresence(ctx context.Context, rec *domain.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.presence.Put(rec.UserID, data); err != nil {
		return fmt.Errorf("put presence %s: %w", rec.UserID, err)
	}
	metrics.PresenceHeartbeats.Inc()
	return s.conn.Publish("fleet.presence."+rec.UserID, data)
}

func (s *Store) PutLocation(ctx context.Context, rec *domain.LocationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := s.locations.Put(rec.UserID, data); err != nil {
		return fmt.Errorf("put location %s: %w", rec.UserID, err)
	}
	return s.conn.Publish("fleet.location."+rec.UserID, data)
}

// GuardDisconnect verifies the server-side expiry contract is in force for
// this user. The guard is the presence bucket TTL itself; once the entry
// exists, the server flips it without any client cooperation.
func (s *Store) GuardDisconnect(ctx context.Context, userID string) error {
	status, err := s.presence.Status()
	if err != nil {
		return fmt.Errorf("presence bucket status: %w", err)
	}
	if status.TTL() <= 0 {
		return fmt.Errorf("presence bucket %s has no expiry configured", presenceBucket)
	}
	if _, err := s.presence.Get(userID); err != nil {
		return fmt.Errorf("presence entry for %s not armed: %w", userID, err)
	}
	return nil
}

func (s *Store) Presence(ctx context.Context) (map[string]domain.PresenceRecord, error) {
	out := make(map[string]domain.PresenceRecord)
	keys, err := s.presence.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list presence keys: %w", err)
	}
	for _, key := range keys {
		entry, err := s.presence.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			continue // expired between Keys and Get
		}
		if err != nil {
			return nil, fmt.Errorf("get presence %s: %w", key, err)
		}
		var rec domain.PresenceRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		out[key] = rec
	}
	return out, nil
}

func (s *Store) Locations(ctx context.Context) (map[string]domain.LocationRecord, error) {
	out := make(map[string]domain.LocationRecord)
	keys, err := s.locations.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list location keys: %w", err)
	}
	for _, key := range keys {
		entry, err := s.locations.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get location %s: %w", key, err)
		}
		var rec domain.LocationRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		out[key] = rec
	}
	return out, nil
}

// WatchPresence streams presence updates. An explicit delete or purge of an
// entry is delivered as an offline record for that user. TTL expiry removes
// entries without a marker on the stream, so it is never seen here; callers
// that mirror the bucket must poll Presence to catch it.
func (s *Store) WatchPresence(ctx context.Context, fn func(domain.PresenceRecord)) (func(), error) {
	watcher, err := s.presence.WatchAll(nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("watch presence: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range watcher.Updates() {
			if entry == nil {
				continue // end of initial replay
			}
			switch entry.Operation() {
			case nats.KeyValuePut:
				var rec domain.PresenceRecord
				if err := json.Unmarshal(entry.Value(), &rec); err != nil {
					continue
				}
				fn(rec)
			case nats.KeyValueDelete, nats.KeyValuePurge:
				fn(domain.PresenceRecord{
					UserID:      entry.Key(),
					Status:      domain.StatusOffline,
					LastChanged: time.Now().UTC(),
				})
			}
		}
	}()

	stop := func() {
		_ = watcher.Stop()
		<-done
	}
	return stop, nil
}

// WatchLocations streams location updates. Deletes are ignored; a stale
// location is still the last known position.
func (s *Store) WatchLocations(ctx context.Context, fn func(domain.LocationRecord)) (func(), error) {
	watcher, err := s.locations.WatchAll(nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("watch locations: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range watcher.Updates() {
			if entry == nil || entry.Operation() != nats.KeyValuePut {
				continue
			}
			var rec domain.LocationRecord
			if err := json.Unmarshal(entry.Value(), &rec); err != nil {
				continue
			}
			fn(rec)
		}
	}()

	stop := func() {
		_ = watcher.Stop()
		<-done
	}
	return stop, nil
}

// Conn exposes the underlying connection for the WebSocket relay.
func (s *Store) Conn() *nats.Conn {
	return s.conn
}

// Close drains and closes the connection.
func (s *Store) Close() {
	_ = s.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
