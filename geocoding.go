package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// This file provides the application's geocoding capabilities: forward
// search, reverse lookup, autocomplete suggestions, and nearby
// point-of-interest queries. The provider is abstracted behind a
// GeocodingService interface so the rest of the application stays
// independent of Nominatim and Overpass specifically, and so tests can
// substitute a mock.
//
// Error policy is asymmetric by criticality: Search and Reverse are
// primary, user-blocking actions and propagate gateway failures;
// Suggestions and NearbyPOI are best-effort UI affordances and degrade to
// an empty slice instead.

// ErrNoResultsFound is returned when a forward geocode yields no candidates.
var ErrNoResultsFound = errors.New("no results found for the given query")

// Search kinds. "address" requests address-level detail, "poi" requests
// polygon geometry alongside the point.
const (
	KindPlace   = "place"
	KindAddress = "address"
	KindPOI     = "poi"
)

// GeocodingService defines the geocoding operations used by the handlers
// and the scheduler.
type GeocodingService interface {
	Search(ctx context.Context, query, kind string) (SearchResult, error)
	Reverse(ctx context.Context, lat, lng float64) (Address, error)
	Suggestions(ctx context.Context, query, kind string) []Suggestion
	NearbyPOI(ctx context.Context, lat, lng float64, radiusMeters int, categories []string) []POIElement
}

// NominatimService implements GeocodingService against a Nominatim-speaking
// search endpoint and an Overpass-QL-speaking map-feature endpoint.
type NominatimService struct {
	gateway      *Gateway
	nominatimURL string
	overpassURL  string
	logger       *slog.Logger
}

// NewNominatimService creates a NominatimService. Both URLs are base URLs
// without trailing slashes.
func NewNominatimService(gateway *Gateway, nominatimURL, overpassURL string, logger *slog.Logger) *NominatimService {
	return &NominatimService{
		gateway:      gateway,
		nominatimURL: nominatimURL,
		overpassURL:  overpassURL,
		logger:       logger,
	}
}

// nominatimRecord mirrors the fields of a Nominatim search/reverse result
// this application consumes. Coordinates arrive as strings.
type nominatimRecord struct {
	DisplayName string            `json:"display_name"`
	Lat         string            `json:"lat"`
	Lon         string            `json:"lon"`
	Type        string            `json:"type"`
	Importance  float64           `json:"importance"`
	Address     map[string]string `json:"address"`
}

func (r nominatimRecord) point() (GeoPoint, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid latitude %q: %w", r.Lat, err)
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid longitude %q: %w", r.Lon, err)
	}
	return GeoPoint{Lat: lat, Lng: lng}, nil
}

// Search issues a forward geocode with up to 10 candidates and returns the
// first one; providers rank by relevance. Gateway failures propagate.
func (s *NominatimService) Search(ctx context.Context, query, kind string) (SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "10")
	params.Set("addressdetails", "1")
	if kind == KindPOI {
		params.Set("polygon_geojson", "1")
	}

	body, err := s.gateway.Get(ctx, s.nominatimURL+"/search", params)
	if err != nil {
		return SearchResult{}, fmt.Errorf("geocode search failed: %w", err)
	}

	var records []nominatimRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return SearchResult{}, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if len(records) == 0 {
		return SearchResult{}, ErrNoResultsFound
	}

	point, err := records[0].point()
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{
		DisplayName: records[0].DisplayName,
		Point:       point,
		Kind:        kind,
		Importance:  records[0].Importance,
	}, nil
}

// Reverse performs a single reverse-geocode call. Gateway failures propagate.
func (s *NominatimService) Reverse(ctx context.Context, lat, lng float64) (Address, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("format", "json")

	body, err := s.gateway.Get(ctx, s.nominatimURL+"/reverse", params)
	if err != nil {
		return Address{}, fmt.Errorf("reverse geocode failed: %w", err)
	}

	var record nominatimRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return Address{}, fmt.Errorf("failed to decode reverse geocode response: %w", err)
	}
	point, err := record.point()
	if err != nil {
		return Address{}, err
	}
	return Address{
		DisplayName: record.DisplayName,
		Point:       point,
		Components:  record.Address,
	}, nil
}

// Suggestions returns up to 5 lightweight candidates for autocomplete.
// On any failure it returns an empty slice; suggestions are non-critical
// and must never surface an error state in the UI.
func (s *NominatimService) Suggestions(ctx context.Context, query, kind string) []Suggestion {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "5")
	params.Set("addressdetails", "0")

	body, err := s.gateway.Get(ctx, s.nominatimURL+"/search", params)
	if err != nil {
		s.logger.Warn("suggestions lookup failed", "query", query, "error", err)
		return []Suggestion{}
	}

	var records []nominatimRecord
	if err := json.Unmarshal(body, &records); err != nil {
		s.logger.Warn("failed to decode suggestions response", "query", query, "error", err)
		return []Suggestion{}
	}

	suggestions := make([]Suggestion, 0, len(records))
	for _, record := range records {
		point, err := record.point()
		if err != nil {
			s.logger.Warn("skipping suggestion with bad coordinates", "value", record.DisplayName, "error", err)
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Value:      record.DisplayName,
			Point:      point,
			Kind:       record.Type,
			Importance: record.Importance,
		})
	}
	return suggestions
}

// overpassResponse is the envelope of an Overpass interpreter reply.
type overpassResponse struct {
	Elements []struct {
		Type string            `json:"type"`
		ID   int64             `json:"id"`
		Lat  float64           `json:"lat"`
		Lon  float64           `json:"lon"`
		Tags map[string]string `json:"tags"`
	} `json:"elements"`
}

// NearbyPOI queries map features around a point over three fixed categories
// (amenity, shop, tourism). The query always uses a ±0.01° bounding box
// (roughly 1.1 km); radiusMeters and categories are accepted for interface
// stability but do not change the query. On failure it returns an empty
// slice.
func (s *NominatimService) NearbyPOI(ctx context.Context, lat, lng float64, radiusMeters int, categories []string) []POIElement {
	_ = radiusMeters
	_ = categories

	south, west, north, east := boundingBox(GeoPoint{Lat: lat, Lng: lng}, 0.01)
	query := fmt.Sprintf(`[out:json][timeout:25];
(
  node["amenity"](%[1]f,%[2]f,%[3]f,%[4]f);
  node["shop"](%[1]f,%[2]f,%[3]f,%[4]f);
  node["tourism"](%[1]f,%[2]f,%[3]f,%[4]f);
);
out body;
>;
out skel qt;
`, south, west, north, east)

	body, err := s.gateway.Post(ctx, s.overpassURL+"/api/interpreter", "text/plain", []byte(query))
	if err != nil {
		s.logger.Warn("nearby POI lookup failed", "lat", lat, "lng", lng, "error", err)
		return []POIElement{}
	}

	var response overpassResponse
	if err := json.Unmarshal(body, &response); err != nil {
		s.logger.Warn("failed to decode overpass response", "error", err)
		return []POIElement{}
	}

	elements := make([]POIElement, 0, len(response.Elements))
	for _, element := range response.Elements {
		elements = append(elements, POIElement{
			ID:    element.ID,
			Type:  element.Type,
			Point: GeoPoint{Lat: element.Lat, Lng: element.Lon},
			Tags:  element.Tags,
		})
	}
	return elements
}
