package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWeatherService(server *httptest.Server) *OpenMeteoService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewOpenMeteoService(newTestGateway(server.Client()), server.URL, server.URL, logger)
}

func TestGetWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
		assert.NotEmpty(t, r.URL.Query().Get("hourly"))
		assert.NotEmpty(t, r.URL.Query().Get("daily"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"current_weather": {
				"temperature": 17.3,
				"windspeed": 12.4,
				"winddirection": 231.0,
				"weathercode": 3,
				"time": "2026-08-30T14:00"
			},
			"daily": {
				"time": ["2026-08-30", "2026-08-31"],
				"weathercode": [3, 61],
				"temperature_2m_max": [21.2, 18.4],
				"temperature_2m_min": [12.6, 11.9],
				"sunrise": ["2026-08-30T06:21", "2026-08-31T06:23"],
				"sunset": ["2026-08-30T19:58", "2026-08-31T19:56"]
			}
		}`))
	}))
	defer server.Close()

	service := newTestWeatherService(server)

	result := service.GetWeather(context.Background(), 52.52, 13.405)

	require.False(t, result.Degraded)
	snapshot := result.Value
	assert.InDelta(t, 17.3, snapshot.Current.Temperature, 1e-9)
	assert.Equal(t, 231, snapshot.Current.WindDirection)
	assert.Equal(t, 3, snapshot.Current.Code)
	assert.Equal(t, time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC), snapshot.Current.ObservedAt)

	require.Len(t, snapshot.Daily, 2)
	assert.Equal(t, "2026-08-31", snapshot.Daily[1].Date)
	assert.Equal(t, 61, snapshot.Daily[1].Code)
	assert.InDelta(t, 18.4, snapshot.Daily[1].TempMax, 1e-9)
}

func TestGetWeatherFallback(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "gateway failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			service := newTestWeatherService(server)
			fixedNow := time.Date(2026, 8, 30, 10, 30, 0, 0, time.UTC)
			service.now = func() time.Time { return fixedNow }

			result := service.GetWeather(context.Background(), 52.52, 13.405)

			require.True(t, result.Degraded)
			require.Error(t, result.Cause)

			snapshot := result.Value
			assert.Equal(t, fallbackTemperatureC, snapshot.Current.Temperature)
			assert.Equal(t, fallbackWindSpeed, snapshot.Current.WindSpeed)
			assert.Equal(t, fallbackWindDirection, snapshot.Current.WindDirection)
			assert.Equal(t, fallbackWeatherCode, snapshot.Current.Code)

			require.Len(t, snapshot.Daily, 1)
			assert.Equal(t, "2026-08-30", snapshot.Daily[0].Date)
			assert.Equal(t, fallbackTempMaxC, snapshot.Daily[0].TempMax)
			assert.Equal(t, fallbackTempMinC, snapshot.Daily[0].TempMin)
			assert.Equal(t, fallbackSunrise, snapshot.Daily[0].Sunrise)
			assert.Equal(t, fallbackSunset, snapshot.Daily[0].Sunset)
		})
	}
}

func TestGetAirQuality(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/latest", r.URL.Path)
		assert.Equal(t, "10000", r.URL.Query().Get("radius"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"results": [{
				"location": "Berlin Mitte",
				"coordinates": {"latitude": 52.52, "longitude": 13.40},
				"measurements": [
					{"parameter": "pm25", "value": 8.4, "unit": "µg/m³"},
					{"parameter": "no2", "value": 21.7, "unit": "µg/m³"}
				]
			}]
		}`))
	}))
	defer server.Close()

	service := newTestWeatherService(server)

	record := service.GetAirQuality(context.Background(), 52.52, 13.405)

	require.NotNil(t, record)
	assert.Equal(t, "Berlin Mitte", record.Location)
	require.Len(t, record.Measurements, 2)
	assert.Equal(t, "pm25", record.Measurements[0].Parameter)
	assert.InDelta(t, 8.4, record.Measurements[0].Value, 1e-9)
}

func TestGetAirQualityReturnsNil(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "gateway failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`not json`))
			},
		},
		{
			name: "no stations nearby",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"results": []}`))
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(tc.handler)
			defer server.Close()

			service := newTestWeatherService(server)

			record := service.GetAirQuality(context.Background(), 0, 0)
			assert.Nil(t, record)
		})
	}
}
