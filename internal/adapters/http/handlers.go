package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/pkg/geospatial"
)

// FleetHandler returns the joined presence+location view of every tracked
// user. An optional near=<lng>,<lat>&radius=<meters> pair filters to members
// with a known location inside the circle.
func FleetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		members := deps.Fleet.Fleet()

		if near := c.Query("near"); near != "" {
			center, err := parseLngLat(near)
			if err != nil {
				return errBadRequest(c, "near must be <lng>,<lat>")
			}
			radius := c.QueryFloat("radius", 1000)
			if radius <= 0 || radius > 100000 {
				return errBadRequest(c, "radius must be between 1 and 100000 meters")
			}

			var filtered []domain.FleetMember
			for _, m := range members {
				if m.Coord == nil {
					continue
				}
				if geospatial.WithinRadius(center.Lat(), center.Lng(),
					m.Coord.Lat(), m.Coord.Lng(), radius) {
					filtered = append(filtered, m)
				}
			}
			members = filtered
		}

		return c.JSON(fiber.Map{
			"members": members,
			"count":   len(members),
		})
	}
}

// FleetPresenceHandler returns the raw presence collection.
func FleetPresenceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Fleet.Presence())
	}
}

// FleetLocationsHandler returns the raw location collection.
func FleetLocationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(deps.Fleet.Locations())
	}
}

// ListUserRoutesHandler returns a user's archived routes, newest first.
func ListUserRoutesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if userID == "" {
			return errBadRequest(c, "user id is required")
		}

		routes, err := deps.Archive.List(c.Context(), userID)
		if err != nil {
			return errInternal(c, err.Error())
		}

		pg := parsePagination(c, len(routes))
		start, end := pg.page(len(routes))
		routes = routes[start:end]

		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: routes, Pagination: pg})
	}
}

// GetUserRouteHandler returns a single archived route by id.
func GetUserRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("id")
		routeID := c.Params("routeID")
		if userID == "" || routeID == "" {
			return errBadRequest(c, "user id and route id are required")
		}

		routes, err := deps.Archive.List(c.Context(), userID)
		if err != nil {
			return errInternal(c, err.Error())
		}
		for i := range routes {
			if routes[i].ID == routeID {
				return c.JSON(routes[i])
			}
		}
		return errNotFound(c, "route not found")
	}
}

// DeleteUserRouteHandler removes one archived route.
func DeleteUserRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("id")
		routeID := c.Params("routeID")
		if userID == "" || routeID == "" {
			return errBadRequest(c, "user id and route id are required")
		}

		if err := deps.Archive.Delete(c.Context(), userID, routeID); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ClearUserRoutesHandler removes a user's entire route history.
func ClearUserRoutesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if userID == "" {
			return errBadRequest(c, "user id is required")
		}

		if err := deps.Archive.ClearAll(c.Context(), userID); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// createPlanRequest is the POST body for saving a tour plan. Coordinates are
// [lng, lat] pairs.
type createPlanRequest struct {
	StartName string            `json:"start_name"`
	EndName   string            `json:"end_name"`
	Start     domain.Coordinate `json:"start"`
	End       domain.Coordinate `json:"end"`
}

// CreatePlanHandler saves a tour plan. The road polyline is fetched at
// creation time; if the directions service is down the plan is not saved.
func CreatePlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if userID == "" {
			return errBadRequest(c, "user id is required")
		}

		var req createPlanRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.StartName == "" || req.EndName == "" {
			return errBadRequest(c, "start_name and end_name are required")
		}
		if req.Start == req.End {
			return errBadRequest(c, "start and end must differ")
		}

		plan, err := deps.Plans.CreatePlan(c.Context(), userID,
			req.StartName, req.EndName, req.Start, req.End)
		if err != nil {
			if errors.Is(err, domain.ErrRoutingUnavailable) {
				return errRoutingUnavailable(c, "directions service did not return a route")
			}
			return errInternal(c, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(plan)
	}
}

// ListUserPlansHandler returns a user's saved plans.
func ListUserPlansHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if userID == "" {
			return errBadRequest(c, "user id is required")
		}

		plans, err := deps.Plans.List(c.Context(), userID)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{
			"plans": plans,
			"count": len(plans),
		})
	}
}

// DeleteUserPlanHandler removes a saved plan.
func DeleteUserPlanHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("id")
		planID := c.Params("planID")
		if userID == "" || planID == "" {
			return errBadRequest(c, "user id and plan id are required")
		}

		if err := deps.Plans.Delete(c.Context(), userID, planID); err != nil {
			return errInternal(c, err.Error())
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// parseLngLat parses "<lng>,<lat>".
func parseLngLat(s string) (domain.Coordinate, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return domain.Coordinate{}, errors.New("expected two components")
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Coordinate{}, err
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Coordinate{}, err
	}
	return domain.Coordinate{lng, lat}, nil
}
