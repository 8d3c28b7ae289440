package main

import (
	"time"

	"github.com/google/uuid"
)

// SearchResult is a single forward-geocoding candidate, normalized from the
// provider's raw record. It is request-scoped: it is never persisted unless
// the caller promotes it to a SearchHistoryEntry.
type SearchResult struct {
	DisplayName string   `json:"display_name"`
	Point       GeoPoint `json:"point"`
	Kind        string   `json:"kind"`
	Importance  float64  `json:"importance"`
}

// Suggestion is a lighter-weight search candidate used for autocomplete.
type Suggestion struct {
	Value      string   `json:"value"`
	Point      GeoPoint `json:"point"`
	Kind       string   `json:"kind"`
	Importance float64  `json:"importance"`
}

// Address is the result of a reverse-geocode lookup: the provider's display
// name plus its raw address component map.
type Address struct {
	DisplayName string            `json:"display_name"`
	Point       GeoPoint          `json:"point"`
	Components  map[string]string `json:"components,omitempty"`
}

// POIElement is a single map feature returned by an Overpass query.
type POIElement struct {
	ID    int64             `json:"id"`
	Type  string            `json:"type"`
	Point GeoPoint          `json:"point"`
	Tags  map[string]string `json:"tags,omitempty"`
}

// Marker is a user-placed map marker. Markers are owned exclusively by the
// MapStore and persist across sessions as part of the state blob.
type Marker struct {
	ID        uuid.UUID `json:"id"`
	Position  GeoPoint  `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	Label     string    `json:"label,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Note      string    `json:"note,omitempty"`
}

// MarkerUpdate is a typed partial update for a marker. Nil fields are left
// untouched; non-nil fields replace the marker's current value.
type MarkerUpdate struct {
	Position *GeoPoint `json:"position,omitempty"`
	Label    *string   `json:"label,omitempty"`
	Icon     *string   `json:"icon,omitempty"`
	Note     *string   `json:"note,omitempty"`
}

// SearchHistoryEntry records a committed search. Uniqueness key is the exact
// query string; re-adding a query moves it to the front with fresh
// coordinates instead of duplicating it.
type SearchHistoryEntry struct {
	Query     string    `json:"query"`
	Point     GeoPoint  `json:"point"`
	Timestamp time.Time `json:"timestamp"`
}

/// Polyline is a measured line drawn on the map. Session-only state: it is
// cleared by ClearAllData and never persisted.
type Polyline struct {
	Points         []GeoPoint `json:"points"`
	DistanceMeters float64    `json:"distance_m"`
}

// Polygon is a drawn area. Session-only, like Polyline.
type Polygon struct {
	Points []GeoPoint `json:"points"`
}

// RouteStep is a single maneuver within a route leg.
type RouteStep struct {
	Name            string  `json:"name"`
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
}

// RouteLeg is the portion of a route between two consecutive waypoints.
type RouteLeg struct {
	Summary         string      `json:"summary"`
	DistanceMeters  float64     `json:"distance_m"`
	DurationSeconds float64     `json:"duration_s"`
	Steps           []RouteStep `json:"steps"`
}

// Waypoint anchors a route to a labeled point.
type Waypoint struct {
	Point GeoPoint `json:"point"`
	Label string   `json:"label"`
}

// Route is a computed (or synthesized) route between two points. Routes are
// produced fresh per request and never persisted by this service.
type Route struct {
	DistanceMeters  float64    `json:"distance_m"`
	DurationSeconds float64    `json:"duration_s"`
	Geometry        []GeoPoint `json:"geometry"`
	Legs            []RouteLeg `json:"legs"`
	Waypoints       []Waypoint `json:"waypoints"`
}

// MatrixCell is one origin/destination pair in a distance matrix.
type MatrixCell struct {
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
}

// CurrentConditions is the "right now" part of a weather snapshot.
type CurrentConditions struct {
	Temperature   float64   `json:"temperature_c"`
	WindSpeed     float64   `json:"wind_speed_kmh"`
	WindDirection int       `json:"wind_direction_deg"`
	Code          int       `json:"weather_code"`
	ObservedAt    time.Time `json:"observed_at"`
}

// DailyConditions is a one-day forecast entry, ordered by date.
type DailyConditions struct {
	Date    string  `json:"date"`
	Code    int     `json:"weather_code"`
	TempMax float64 `json:"temp_max_c"`
	TempMin float64 `json:"temp_min_c"`
	Sunrise string  `json:"sunrise"`
	Sunset  string  `json:"sunset"`
}

// WeatherSnapshot bundles current conditions with the daily forecast.
type WeatherSnapshot struct {
	Current CurrentConditions `json:"current"`
	Daily   []DailyConditions `json:"daily"`
}

// AirQualityCoordinates is the measuring station's position.
type AirQualityCoordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AirQualityMeasurement is a single pollutant reading.
type AirQualityMeasurement struct {
	Parameter   string  `json:"parameter"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	LastUpdated string  `json:"lastUpdated"`
}

// AirQualityRecord is the latest set of measurements from the nearest
// station. A nil record means no station was found (or the provider was
// unreachable); callers must handle absence.
type AirQualityRecord struct {
	Location     string                  `json:"location"`
	City         string                  `json:"city"`
	Country      string                  `json:"country"`
	Coordinates  AirQualityCoordinates   `json:"coordinates"`
	Measurements []AirQualityMeasurement `json:"measurements"`
}

// MapViewState is the viewport plus presentation settings, rehydrated at
// startup and written back on every relevant mutation.
type MapViewState struct {
	Center      GeoPoint `json:"center"`
	Zoom        int      `json:"zoom"`
	Theme       string   `json:"theme"`
	ActiveLayer string   `json:"active_layer"`
}

// Result wraps the outcome of a fallback-capable operation. A Degraded
// result carries a deterministic placeholder in Value and the triggering
// error in Cause, so callers can tell a live answer from a substitute
// without inspecting its shape.
type Result[T any] struct {
	Value    T
	Degraded bool
	Cause    error
}

func ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func degraded[T any](v T, cause error) Result[T] {
	return Result[T]{Value: v, Degraded: true, Cause: cause}
}
