package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name     string
		setup    func(t *testing.T)
		key      string
		fallback string
		expected string
	}{
		{
			name:     "Set",
			setup:    func(t *testing.T) { t.Setenv("WAYMARK_TEST_VAR", "custom") },
			key:      "WAYMARK_TEST_VAR",
			fallback: "default",
			expected: "custom",
		},
		{
			name:     "Unset",
			key:      "WAYMARK_TEST_VAR_UNSET",
			fallback: "default",
			expected: "default",
		},
		{
			name:     "Set Empty",
			setup:    func(t *testing.T) { t.Setenv("WAYMARK_TEST_VAR", "") },
			key:      "WAYMARK_TEST_VAR",
			fallback: "default",
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup(t)
			}
			assert.Equal(t, tc.expected, getEnv(tc.key, tc.fallback, logger))
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	testCases := []struct {
		name     string
		setup    func(t *testing.T)
		key      string
		fallback int
		expected int
	}{
		{
			name:     "Valid Int",
			setup:    func(t *testing.T) { t.Setenv("WAYMARK_TEST_INT", "42") },
			key:      "WAYMARK_TEST_INT",
			fallback: 10,
			expected: 42,
		},
		{
			name:     "Unset",
			key:      "WAYMARK_TEST_INT_UNSET",
			fallback: 10,
			expected: 10,
		},
		{
			name:     "Not An Int",
			setup:    func(t *testing.T) { t.Setenv("WAYMARK_TEST_INT", "not_an_int") },
			key:      "WAYMARK_TEST_INT",
			fallback: 10,
			expected: 10,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setup != nil {
				tc.setup(t)
			}
			assert.Equal(t, tc.expected, getEnvAsInt(tc.key, tc.fallback, logger))
		})
	}
}

func TestConfig(t *testing.T) {
	if _, ok := os.LookupEnv("REDIS_URL"); ok {
		t.Skip("REDIS_URL is set; config would try to connect to Redis")
	}

	testCases := []struct {
		name  string
		setup func(t *testing.T)
		check func(t *testing.T, cfg *apiConfig)
	}{
		{
			name: "Defaults",
			setup: func(t *testing.T) {
				t.Setenv("STORAGE_FILE", filepath.Join(t.TempDir(), "mapstate.json"))
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.nominatimURL)
				assert.Equal(t, "https://router.project-osrm.org", cfg.osrmURL)
				assert.Equal(t, "https://api.open-meteo.com", cfg.weatherURL)
				assert.Equal(t, "https://api.openaq.org", cfg.airQualityURL)
				assert.Equal(t, 30*time.Minute, cfg.refreshInterval)
				assert.Equal(t, "8080", cfg.port)
				assert.False(t, cfg.devMode)
			},
		},
		{
			name: "Overrides",
			setup: func(t *testing.T) {
				t.Setenv("STORAGE_FILE", filepath.Join(t.TempDir(), "mapstate.json"))
				t.Setenv("DEV_MODE", "true")
				t.Setenv("PORT", "9090")
				t.Setenv("REFRESH_INTERVAL_MIN", "15")
				t.Setenv("NOMINATIM_URL", "http://localhost:8088")
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.Equal(t, "http://localhost:8088", cfg.nominatimURL)
				assert.Equal(t, 15*time.Minute, cfg.refreshInterval)
				assert.Equal(t, "9090", cfg.port)
				assert.True(t, cfg.devMode)
			},
		},
		{
			name: "Invalid Optional Vars Fall Back",
			setup: func(t *testing.T) {
				t.Setenv("STORAGE_FILE", filepath.Join(t.TempDir(), "mapstate.json"))
				t.Setenv("DEV_MODE", "not_a_bool")
				t.Setenv("REFRESH_INTERVAL_MIN", "not_an_int")
			},
			check: func(t *testing.T, cfg *apiConfig) {
				assert.False(t, cfg.devMode)
				assert.Equal(t, 30*time.Minute, cfg.refreshInterval)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setup(t)

			cfg := config()
			require.NotNil(t, cfg)
			assert.NotNil(t, cfg.gateway)
			assert.NotNil(t, cfg.geocoder)
			assert.NotNil(t, cfg.router)
			assert.NotNil(t, cfg.weather)
			assert.NotNil(t, cfg.store)
			assert.NotNil(t, cfg.cache)
			tc.check(t, cfg)
		})
	}
}
