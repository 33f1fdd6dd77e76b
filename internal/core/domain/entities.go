package domain

import (
	"strconv"
	"time"
)

// RoutePoint is a coordinate sampled during an active tracking session.
// Points are appended in arrival order and never mutated.
type RoutePoint struct {
	Coord Coordinate `json:"coord"`
	At    time.Time  `json:"at"`
}

// Route is the immutable archived record produced when a session ends.
// Snapped is the road-aligned version of the recorded path; it is nil when
// the directions call failed or returned nothing.
type Route struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Start          Coordinate   `json:"start"`
	End            Coordinate   `json:"end"`
	Coordinates    []Coordinate `json:"coordinates"`
	Snapped        []Coordinate `json:"snapped,omitempty"`
	DistanceMeters float64      `json:"distance_meters"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewRouteID derives a process-unique route identifier from a timestamp,
// mirroring the id scheme route history was originally recorded under.
func NewRouteID(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Plan is a saved tour: a named start and end with the road polyline
// between them fetched from the directions service at creation time.
type Plan struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	StartName   string       `json:"start_name"`
	EndName     string       `json:"end_name"`
	Start       Coordinate   `json:"start"`
	End         Coordinate   `json:"end"`
	Coordinates []Coordinate `json:"coordinates"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Presence states.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceRecord is a user's online/offline flag. Each device writes only
// its own record; reads are last-write-wins with no conflict resolution,
// which is acceptable for a presence signal.
type PresenceRecord struct {
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	LastChanged time.Time `json:"last_changed"`
}

// LocationRecord is a user's current coordinate, written only by that
// user's own device and readable by all.
type LocationRecord struct {
	UserID    string     `json:"user_id"`
	Coord     Coordinate `json:"coord"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FleetMember joins a user's presence and location by user id. Users with a
// known location but no live presence record are reported offline.
type FleetMember struct {
	UserID      string      `json:"user_id"`
	Status      string      `json:"status"`
	LastChanged time.Time   `json:"last_changed"`
	Coord       *Coordinate `json:"coord,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
