package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/pkg/metrics"
)

const requestTimeout = 10 * time.Second

// Client calls the Mapbox Directions API to snap a start/end pair onto road
// geometry. A single attempt only: callers treat failure as a missing
// enhancement, so retrying here would just delay the save.
type Client struct {
	baseURL string
	token   string
	profile string
	http    *http.Client
}

// New creates a directions client. profile is a Mapbox routing profile such
// as "driving" or "cycling".
func New(baseURL, token, profile string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		profile: profile,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

type directionsResponse struct {
	Routes []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Distance float64 `json:"distance"`
	} `json:"routes"`
	Code string `json:"code"`
}

// SnapRoute requests road geometry between start and end. Any failure,
// including an empty route set, is reported as domain.ErrRoutingUnavailable.
func (c *Client) SnapRoute(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error) {
	started := time.Now()
	coords, err := c.snap(ctx, start, end)
	metrics.DirectionsDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.DirectionsRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.DirectionsRequests.WithLabelValues("ok").Inc()
	return coords, nil
}

func (c *Client) snap(ctx context.Context, start, end domain.Coordinate) ([]domain.Coordinate, error) {
	endpoint := fmt.Sprintf("%s/directions/v5/mapbox/%s/%f,%f;%f,%f",
		c.baseURL, c.profile, start.Lng(), start.Lat(), end.Lng(), end.Lat())

	q := url.Values{}
	q.Set("geometries", "geojson")
	q.Set("overview", "full")
	q.Set("access_token", c.token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrRoutingUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRoutingUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrRoutingUnavailable, resp.StatusCode)
	}

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrRoutingUnavailable, err)
	}
	if len(body.Routes) == 0 || len(body.Routes[0].Geometry.Coordinates) == 0 {
		return nil, fmt.Errorf("%w: no routes returned", domain.ErrRoutingUnavailable)
	}

	raw := body.Routes[0].Geometry.Coordinates
	coords := make([]domain.Coordinate, len(raw))
	for i, c := range raw {
		coords[i] = domain.Coordinate(c)
	}
	return coords, nil
}
