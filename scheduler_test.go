package main

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunRefreshJobs(t *testing.T) {
	// --- Setup ---
	ctx := context.Background()
	testCfg := newTestAPIConfig(t)

	var refreshCalls atomic.Int32
	testCfg.mockWeather.GetWeatherFunc = func(ctx context.Context, lat, lng float64) Result[WeatherSnapshot] {
		refreshCalls.Add(1)
		return ok(WeatherSnapshot{Current: CurrentConditions{Temperature: 12.5}})
	}

	// Seed more history than the refresh window covers.
	for _, query := range []string{"berlin", "paris", "london", "madrid", "rome", "oslo", "vienna"} {
		testCfg.apiConfig.store.AddSearchToHistory(ctx, query, GeoPoint{Lat: 1, Lng: 1})
	}

	s := NewScheduler(testCfg.apiConfig, 1*time.Minute)

	// --- Action ---
	s.runRefreshJobs()

	// --- Assertions ---
	if got := refreshCalls.Load(); got != recentSearchRefreshCount {
		t.Errorf("expected %d weather refreshes, got %d", recentSearchRefreshCount, got)
	}
}

func TestRunRefreshJobsEmptyHistory(t *testing.T) {
	// --- Setup ---
	testCfg := newTestAPIConfig(t)

	var refreshCalls atomic.Int32
	testCfg.mockWeather.GetWeatherFunc = func(ctx context.Context, lat, lng float64) Result[WeatherSnapshot] {
		refreshCalls.Add(1)
		return ok(WeatherSnapshot{})
	}

	s := NewScheduler(testCfg.apiConfig, 1*time.Minute)

	// --- Action ---
	s.runRefreshJobs()

	// --- Assertions ---
	if got := refreshCalls.Load(); got != 0 {
		t.Errorf("expected no weather refreshes with empty history, got %d", got)
	}
}

func TestScheduler_Ticks(t *testing.T) {
	// --- Setup ---
	testCfg := newTestAPIConfig(t)

	refreshChan := make(chan time.Time)

	s := &Scheduler{
		cfg:         testCfg.apiConfig,
		refreshChan: refreshChan,
		stop:        make(chan struct{}),
		ticker:      time.NewTicker(time.Hour),
	}

	// --- Mock Job Function ---
	var wg sync.WaitGroup
	var refreshCalled bool

	s.refreshJobs = func() {
		refreshCalled = true
		wg.Done()
	}

	// --- Action & Assertions ---
	s.Start()
	defer s.Stop()

	wg.Add(1)
	refreshChan <- time.Now()
	wg.Wait()

	if !refreshCalled {
		t.Error("expected refresh job to be called, but it wasn't")
	}
}
