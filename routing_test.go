package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(server *httptest.Server) *OSRMRoutingService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOSRMRoutingService(newTestGateway(server.Client()), server.URL, logger)
}

func TestCalculateRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/"))
		assert.Equal(t, "full", r.URL.Query().Get("overview"))
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		assert.Equal(t, "true", r.URL.Query().Get("steps"))
		assert.Equal(t, "3", r.URL.Query().Get("alternatives"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"code": "Ok",
			"routes": [{
				"distance": 5210.3,
				"duration": 612.8,
				"geometry": {"coordinates": [[13.388, 52.517], [13.397, 52.529]]},
				"legs": [{
					"summary": "Unter den Linden",
					"distance": 5210.3,
					"duration": 612.8,
					"steps": [
						{"name": "Unter den Linden", "distance": 900.0, "duration": 120.0},
						{"name": "Friedrichstraße", "distance": 4310.3, "duration": 492.8}
					]
				}]
			}],
			"waypoints": [
				{"name": "Unter den Linden", "location": [13.388, 52.517]},
				{"name": "Torstraße", "location": [13.397, 52.529]}
			]
		}`))
	}))
	defer server.Close()

	service := newTestRouter(server)

	result := service.CalculateRoute(context.Background(),
		GeoPoint{Lat: 52.517, Lng: 13.388}, GeoPoint{Lat: 52.529, Lng: 13.397}, ProfileDriving)

	require.False(t, result.Degraded)
	route := result.Value
	assert.InDelta(t, 5210.3, route.DistanceMeters, 1e-9)
	assert.InDelta(t, 612.8, route.DurationSeconds, 1e-9)

	// GeoJSON coordinates arrive [lng, lat] and must be flipped.
	require.Len(t, route.Geometry, 2)
	assert.Equal(t, GeoPoint{Lat: 52.517, Lng: 13.388}, route.Geometry[0])

	require.Len(t, route.Legs, 1)
	assert.Equal(t, "Unter den Linden", route.Legs[0].Summary)
	require.Len(t, route.Legs[0].Steps, 2)
	assert.Equal(t, "Friedrichstraße", route.Legs[0].Steps[1].Name)

	require.Len(t, route.Waypoints, 2)
	assert.Equal(t, "Torstraße", route.Waypoints[1].Label)
}

func TestCalculateRouteFallback(t *testing.T) {
	start := GeoPoint{Lat: 0, Lng: 0}
	end := GeoPoint{Lat: 1, Lng: 1}

	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "gateway failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "backend rejects request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"code": "NoRoute", "routes": []}`))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			service := newTestRouter(server)

			result := service.CalculateRoute(context.Background(), start, end, ProfileDriving)

			require.True(t, result.Degraded)
			require.Error(t, result.Cause)

			route := result.Value
			assert.Equal(t, float64(fallbackRouteDistanceM), route.DistanceMeters)
			assert.Equal(t, float64(fallbackRouteDurationS), route.DurationSeconds)
			assert.Equal(t, []GeoPoint{
				{Lat: 0, Lng: 0},
				{Lat: 0.5, Lng: 0.5},
				{Lat: 1, Lng: 1},
			}, route.Geometry)

			require.Len(t, route.Legs, 1)
			assert.Empty(t, route.Legs[0].Steps)

			require.Len(t, route.Waypoints, 2)
			assert.Equal(t, "start", route.Waypoints[0].Label)
			assert.Equal(t, "end", route.Waypoints[1].Label)
		})
	}
}

func TestDistanceMatrix(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewOSRMRoutingService(newTestGateway(&http.Client{}), "http://unused", logger)

	origins := []GeoPoint{
		{Lat: 48.8566, Lng: 2.3522},
		{Lat: 51.5074, Lng: -0.1278},
	}
	destinations := []GeoPoint{
		{Lat: 48.8566, Lng: 2.3522},
		{Lat: 52.5200, Lng: 13.4050},
		{Lat: 40.7128, Lng: -74.0060},
	}

	matrix := service.DistanceMatrix(origins, destinations, ProfileDriving)

	require.Len(t, matrix, 2)
	require.Len(t, matrix[0], 3)

	// Origin equal to destination yields a zero cell.
	assert.Zero(t, matrix[0][0].DistanceMeters)
	assert.Zero(t, matrix[0][0].DurationSeconds)

	// Duration assumes a uniform 10 m/s.
	assert.InDelta(t, matrix[0][1].DistanceMeters/10, matrix[0][1].DurationSeconds, 1e-9)

	// Paris to Berlin is roughly 878 km.
	assert.InDelta(t, 878000, matrix[0][1].DistanceMeters, 5000)
}
