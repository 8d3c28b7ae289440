package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

// --- Mocks ---

// mockGeocodingService is a mock for the GeocodingService interface.
type mockGeocodingService struct {
	SearchFunc      func(ctx context.Context, query, kind string) (SearchResult, error)
	ReverseFunc     func(ctx context.Context, lat, lng float64) (Address, error)
	SuggestionsFunc func(ctx context.Context, query, kind string) []Suggestion
	NearbyPOIFunc   func(ctx context.Context, lat, lng float64, radiusMeters int, categories []string) []POIElement
}

func (m *mockGeocodingService) Search(ctx context.Context, query, kind string) (SearchResult, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, kind)
	}
	return SearchResult{}, errors.New("SearchFunc not implemented in mock")
}

func (m *mockGeocodingService) Reverse(ctx context.Context, lat, lng float64) (Address, error) {
	if m.ReverseFunc != nil {
		return m.ReverseFunc(ctx, lat, lng)
	}
	return Address{}, errors.New("ReverseFunc not implemented in mock")
}

func (m *mockGeocodingService) Suggestions(ctx context.Context, query, kind string) []Suggestion {
	if m.SuggestionsFunc != nil {
		return m.SuggestionsFunc(ctx, query, kind)
	}
	return []Suggestion{}
}

func (m *mockGeocodingService) NearbyPOI(ctx context.Context, lat, lng float64, radiusMeters int, categories []string) []POIElement {
	if m.NearbyPOIFunc != nil {
		return m.NearbyPOIFunc(ctx, lat, lng, radiusMeters, categories)
	}
	return []POIElement{}
}

// mockRoutingService is a mock for the RoutingService interface.
type mockRoutingService struct {
	CalculateRouteFunc func(ctx context.Context, start, end GeoPoint, profile string) Result[Route]
	DistanceMatrixFunc func(origins, destinations []GeoPoint, profile string) [][]MatrixCell
}

func (m *mockRoutingService) CalculateRoute(ctx context.Context, start, end GeoPoint, profile string) Result[Route] {
	if m.CalculateRouteFunc != nil {
		return m.CalculateRouteFunc(ctx, start, end, profile)
	}
	return ok(Route{})
}

func (m *mockRoutingService) DistanceMatrix(origins, destinations []GeoPoint, profile string) [][]MatrixCell {
	if m.DistanceMatrixFunc != nil {
		return m.DistanceMatrixFunc(origins, destinations, profile)
	}
	return [][]MatrixCell{}
}

// mockWeatherService is a mock for the WeatherService interface.
type mockWeatherService struct {
	GetWeatherFunc    func(ctx context.Context, lat, lng float64) Result[WeatherSnapshot]
	GetAirQualityFunc func(ctx context.Context, lat, lng float64) *AirQualityRecord
}

func (m *mockWeatherService) GetWeather(ctx context.Context, lat, lng float64) Result[WeatherSnapshot] {
	if m.GetWeatherFunc != nil {
		return m.GetWeatherFunc(ctx, lat, lng)
	}
	return ok(WeatherSnapshot{})
}

func (m *mockWeatherService) GetAirQuality(ctx context.Context, lat, lng float64) *AirQualityRecord {
	if m.GetAirQualityFunc != nil {
		return m.GetAirQualityFunc(ctx, lat, lng)
	}
	return nil
}

// mockCache is a mock for the Cache interface.
type mockCache struct {
	getFunc   func(ctx context.Context, key string) (string, error)
	setFunc   func(ctx context.Context, key string, value any, expiration time.Duration) error
	flushFunc func(ctx context.Context) error
}

func (m *mockCache) Get(ctx context.Context, key string) (string, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return "", ErrCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if m.setFunc != nil {
		return m.setFunc(ctx, key, value, expiration)
	}
	return nil
}

func (m *mockCache) Flush(ctx context.Context) error {
	if m.flushFunc != nil {
		return m.flushFunc(ctx)
	}
	return nil
}

// mockStorage is a mock for the Storage interface.
type mockStorage struct {
	getFunc    func(ctx context.Context, key string) (string, error)
	setFunc    func(ctx context.Context, key, value string) error
	deleteFunc func(ctx context.Context, key string) error
}

func (m *mockStorage) Get(ctx context.Context, key string) (string, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return "", ErrKeyNotFound
}

func (m *mockStorage) Set(ctx context.Context, key, value string) error {
	if m.setFunc != nil {
		return m.setFunc(ctx, key, value)
	}
	return nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, key)
	}
	return nil
}

// --- Test fixtures ---

// testAPIConfig bundles an apiConfig wired with mocks plus handles to the
// mocks so tests can override behavior per case.
type testAPIConfig struct {
	apiConfig    *apiConfig
	mockGeocoder *mockGeocodingService
	mockRouter   *mockRoutingService
	mockWeather  *mockWeatherService
}

// newTestAPIConfig builds an apiConfig with a discard logger, an in-memory
// cache, a file store in a temp dir, and mock services.
func newTestAPIConfig(t *testing.T) *testAPIConfig {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage := NewFileStorage(filepath.Join(t.TempDir(), "mapstate.json"))

	geocoder := &mockGeocodingService{}
	router := &mockRoutingService{}
	weather := &mockWeatherService{}

	cfg := &apiConfig{
		gateway:         NewGateway(&http.Client{Timeout: 5 * time.Second}, logger),
		geocoder:        geocoder,
		router:          router,
		weather:         weather,
		cache:           NewMemoryCache(),
		store:           NewMapStore(storage, logger),
		refreshInterval: time.Minute,
		port:            "8080",
		devMode:         true,
		logger:          logger,
	}

	return &testAPIConfig{
		apiConfig:    cfg,
		mockGeocoder: geocoder,
		mockRouter:   router,
		mockWeather:  weather,
	}
}

// newTestGateway builds a gateway around the given client with a discard logger.
func newTestGateway(client *http.Client) *Gateway {
	return NewGateway(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}
