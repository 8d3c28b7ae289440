package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
)

// This file implements route calculation against an OSRM-compatible backend
// and a locally computed distance-matrix approximation. Routing is a
// best-effort feature: when the backend is unreachable the service
// synthesizes a deterministic straight-line route so the UI always has
// something renderable, and flags the result as degraded.

// Routing profiles accepted by the OSRM route endpoint.
const ProfileDriving = "driving"

// Fallback route constants. The placeholder distance and duration are
// fixed; the geometry is start → midpoint → end.
const (
	fallbackRouteDistanceM = 10000
	fallbackRouteDurationS = 1800
)

// RoutingService defines the routing operations used by the handlers.
type RoutingService interface {
	CalculateRoute(ctx context.Context, start, end GeoPoint, profile string) Result[Route]
	DistanceMatrix(origins, destinations []GeoPoint, profile string) [][]MatrixCell
}

// OSRMRoutingService implements RoutingService against an OSRM HTTP API.
type OSRMRoutingService struct {
	gateway *Gateway
	baseURL string
	logger  *slog.Logger
}

// NewOSRMRoutingService creates an OSRMRoutingService for the given base URL.
func NewOSRMRoutingService(gateway *Gateway, baseURL string, logger *slog.Logger) *OSRMRoutingService {
	return &OSRMRoutingService{
		gateway: gateway,
		baseURL: baseURL,
		logger:  logger,
	}
}

// osrmResponse mirrors the subset of the OSRM route response this
// application consumes. Coordinates are GeoJSON-ordered: [lng, lat].
type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Legs []struct {
			Summary  string  `json:"summary"`
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Steps    []struct {
				Name     string  `json:"name"`
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
	Waypoints []struct {
		Name     string     `json:"name"`
		Location [2]float64 `json:"location"`
	} `json:"waypoints"`
}

// CalculateRoute requests a full-geometry route with up to 3 alternatives
// and returns the best one. Any failure, including an unusable response,
// yields a degraded synthesized route instead of an error.
func (s *OSRMRoutingService) CalculateRoute(ctx context.Context, start, end GeoPoint, profile string) Result[Route] {
	if profile == "" {
		profile = ProfileDriving
	}

	endpoint := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f",
		s.baseURL, profile, start.Lng, start.Lat, end.Lng, end.Lat)

	params := url.Values{}
	params.Set("overview", "full")
	params.Set("geometries", "geojson")
	params.Set("steps", "true")
	params.Set("alternatives", "3")

	body, err := s.gateway.Get(ctx, endpoint, params)
	if err != nil {
		return s.fallback(start, end, err)
	}

	var response osrmResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return s.fallback(start, end, fmt.Errorf("failed to decode route response: %w", err))
	}
	if response.Code != "Ok" || len(response.Routes) == 0 {
		return s.fallback(start, end, fmt.Errorf("routing backend returned code %q with %d routes", response.Code, len(response.Routes)))
	}

	best := response.Routes[0]
	route := Route{
		DistanceMeters:  best.Distance,
		DurationSeconds: best.Duration,
		Geometry:        make([]GeoPoint, 0, len(best.Geometry.Coordinates)),
		Legs:            make([]RouteLeg, 0, len(best.Legs)),
		Waypoints:       make([]Waypoint, 0, len(response.Waypoints)),
	}
	for _, coordinate := range best.Geometry.Coordinates {
		if len(coordinate) < 2 {
			continue
		}
		route.Geometry = append(route.Geometry, GeoPoint{Lat: coordinate[1], Lng: coordinate[0]})
	}
	for _, leg := range best.Legs {
		steps := make([]RouteStep, 0, len(leg.Steps))
		for _, step := range leg.Steps {
			steps = append(steps, RouteStep{
				Name:            step.Name,
				DistanceMeters:  step.Distance,
				DurationSeconds: step.Duration,
			})
		}
		route.Legs = append(route.Legs, RouteLeg{
			Summary:         leg.Summary,
			DistanceMeters:  leg.Distance,
			DurationSeconds: leg.Duration,
			Steps:           steps,
		})
	}
	for _, waypoint := range response.Waypoints {
		route.Waypoints = append(route.Waypoints, Waypoint{
			Point: GeoPoint{Lat: waypoint.Location[1], Lng: waypoint.Location[0]},
			Label: waypoint.Name,
		})
	}

	return ok(route)
}

// fallback synthesizes the deterministic two-segment placeholder route.
func (s *OSRMRoutingService) fallback(start, end GeoPoint, cause error) Result[Route] {
	s.logger.Warn("route calculation failed, returning synthesized route", "error", cause)
	degradedResultsTotal.WithLabelValues("routing").Inc()

	route := Route{
		DistanceMeters:  fallbackRouteDistanceM,
		DurationSeconds: fallbackRouteDurationS,
		Geometry:        []GeoPoint{start, Midpoint(start, end), end},
		Legs: []RouteLeg{{
			Summary:         "",
			DistanceMeters:  fallbackRouteDistanceM,
			DurationSeconds: fallbackRouteDurationS,
			Steps:           []RouteStep{},
		}},
		Waypoints: []Waypoint{
			{Point: start, Label: "start"},
			{Point: end, Label: "end"},
		},
	}
	return degraded(route, cause)
}

// DistanceMatrix computes an origins × destinations matrix entirely locally
// from great-circle distances; duration assumes a uniform 10 m/s. This is
// an approximation, not a routing-matrix call, and never touches the
// network. The profile parameter exists for interface parity only.
func (s *OSRMRoutingService) DistanceMatrix(origins, destinations []GeoPoint, profile string) [][]MatrixCell {
	_ = profile

	matrix := make([][]MatrixCell, len(origins))
	for i, origin := range origins {
		row := make([]MatrixCell, len(destinations))
		for j, destination := range destinations {
			distance := Haversine(origin, destination)
			row[j] = MatrixCell{
				DistanceMeters:  distance,
				DurationSeconds: distance / 10,
			}
		}
		matrix[i] = row
	}
	return matrix
}
