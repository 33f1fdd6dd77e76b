package domain

import "errors"

// Error taxonomy for the tracking subsystem. Permission and insufficient-data
// errors block the triggering operation and reach the user; routing and
// secondary-store failures degrade gracefully and never propagate as fatal.
var (
	// ErrPermissionDenied means positioning access has not been granted.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrInsufficientData means a session ended with fewer than two points.
	ErrInsufficientData = errors.New("not enough points to save a route")

	// ErrRoutingUnavailable means the directions call failed or returned no
	// route. Callers save the route anyway with no snapped path.
	ErrRoutingUnavailable = errors.New("directions unavailable")

	// ErrStorageFailure wraps local or remote persistence errors that are
	// surfaced to the user as a generic save/delete failure.
	ErrStorageFailure = errors.New("storage failure")
)
