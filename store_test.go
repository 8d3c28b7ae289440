package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*MapStore, Storage) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage := NewFileStorage(filepath.Join(t.TempDir(), "mapstate.json"))
	return NewMapStore(storage, logger), storage
}

func TestAddMarker(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	marker := store.AddMarker(ctx, GeoPoint{Lat: 52.52, Lng: 13.405}, "Home", "pin", "")

	assert.NotEqual(t, uuid.Nil, marker.ID)
	assert.False(t, marker.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, marker.CreatedAt.Location())
	assert.Equal(t, "Home", marker.Label)

	markers := store.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, marker.ID, markers[0].ID)

	// Two markers at the same position still get distinct ids.
	other := store.AddMarker(ctx, GeoPoint{Lat: 52.52, Lng: 13.405}, "Home", "pin", "")
	assert.NotEqual(t, marker.ID, other.ID)
	assert.Equal(t, 2, store.MarkerCount())
}

func TestRemoveMarker(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	marker := store.AddMarker(ctx, GeoPoint{Lat: 1, Lng: 2}, "", "", "")
	store.RemoveMarker(ctx, marker.ID)
	assert.Zero(t, store.MarkerCount())

	// Removing an absent id is a no-op.
	store.RemoveMarker(ctx, marker.ID)
	store.RemoveMarker(ctx, uuid.New())
	assert.Zero(t, store.MarkerCount())
}

func TestUpdateMarker(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	marker := store.AddMarker(ctx, GeoPoint{Lat: 1, Lng: 2}, "Old", "pin", "note")

	newLabel := "New"
	updated, found := store.UpdateMarker(ctx, marker.ID, MarkerUpdate{Label: &newLabel})

	require.True(t, found)
	assert.Equal(t, "New", updated.Label)
	// Fields not named in the update keep their values.
	assert.Equal(t, "pin", updated.Icon)
	assert.Equal(t, "note", updated.Note)
	assert.Equal(t, GeoPoint{Lat: 1, Lng: 2}, updated.Position)

	newPosition := GeoPoint{Lat: 3, Lng: 4}
	updated, found = store.UpdateMarker(ctx, marker.ID, MarkerUpdate{Position: &newPosition})
	require.True(t, found)
	assert.Equal(t, newPosition, updated.Position)
	assert.Equal(t, "New", updated.Label)

	_, found = store.UpdateMarker(ctx, uuid.New(), MarkerUpdate{Label: &newLabel})
	assert.False(t, found)
}

func TestSearchHistoryDedupe(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	store.AddSearchToHistory(ctx, "berlin", GeoPoint{Lat: 52.52, Lng: 13.40})
	store.AddSearchToHistory(ctx, "paris", GeoPoint{Lat: 48.85, Lng: 2.35})
	store.AddSearchToHistory(ctx, "london", GeoPoint{Lat: 51.50, Lng: -0.12})

	// Re-adding an existing query moves it to the front with the new
	// coordinates instead of duplicating it.
	store.AddSearchToHistory(ctx, "berlin", GeoPoint{Lat: 52.53, Lng: 13.41})

	history := store.SearchHistory()
	require.Len(t, history, 3)
	assert.Equal(t, "berlin", history[0].Query)
	assert.Equal(t, GeoPoint{Lat: 52.53, Lng: 13.41}, history[0].Point)
	assert.Equal(t, "london", history[1].Query)
	assert.Equal(t, "paris", history[2].Query)

	// Matching is case-sensitive: a differently cased query is a new entry.
	store.AddSearchToHistory(ctx, "Berlin", GeoPoint{Lat: 52.52, Lng: 13.40})
	assert.Len(t, store.SearchHistory(), 4)
}

func TestSearchHistoryCap(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for i := 0; i < searchHistoryLimit+1; i++ {
		store.AddSearchToHistory(ctx, fmt.Sprintf("query-%d", i), GeoPoint{Lat: float64(i), Lng: 0})
	}

	history := store.SearchHistory()
	require.Len(t, history, searchHistoryLimit)
	// The newest entry is at the front; the oldest was evicted.
	assert.Equal(t, fmt.Sprintf("query-%d", searchHistoryLimit), history[0].Query)
	for _, entry := range history {
		assert.NotEqual(t, "query-0", entry.Query)
	}
}

func TestRecentSearches(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for i := 0; i < 8; i++ {
		store.AddSearchToHistory(ctx, fmt.Sprintf("query-%d", i), GeoPoint{})
	}

	recent := store.RecentSearches(5)
	require.Len(t, recent, 5)
	assert.Equal(t, "query-7", recent[0].Query)

	assert.Len(t, store.RecentSearches(100), 8)
}

func TestClearSearchHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	store.AddSearchToHistory(ctx, "berlin", GeoPoint{})
	store.ClearSearchHistory(ctx)
	assert.Empty(t, store.SearchHistory())
}

func TestClearAllData(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	store.AddMarker(ctx, GeoPoint{Lat: 1, Lng: 1}, "", "", "")
	store.AddSearchToHistory(ctx, "berlin", GeoPoint{})
	store.AddPolyline(Polyline{Points: []GeoPoint{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}, DistanceMeters: 157000})
	store.AddPolygon(Polygon{Points: []GeoPoint{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 1, Lng: 0}}})
	store.SetView(ctx, GeoPoint{Lat: 10, Lng: 20}, 7)

	store.ClearAllData(ctx)

	assert.Zero(t, store.MarkerCount())
	assert.Empty(t, store.SearchHistory())
	assert.Zero(t, store.TotalDistance())

	// Viewport, theme and layer survive a data wipe.
	view := store.View()
	assert.Equal(t, GeoPoint{Lat: 10, Lng: 20}, view.Center)
	assert.Equal(t, 7, view.Zoom)
}

func TestTotalDistance(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Zero(t, store.TotalDistance())

	store.AddPolyline(Polyline{DistanceMeters: 1200})
	store.AddPolyline(Polyline{DistanceMeters: 800})
	assert.InDelta(t, 2000, store.TotalDistance(), 1e-9)
}

func TestToggleTheme(t *testing.T) {
	ctx := context.Background()
	store, storage := newTestStore(t)

	assert.Equal(t, "dark", store.ToggleTheme(ctx))
	assert.Equal(t, "light", store.ToggleTheme(ctx))
	assert.Equal(t, "dark", store.ToggleTheme(ctx))

	// The theme persists under its own key.
	value, err := storage.Get(ctx, storageKeyTheme)
	require.NoError(t, err)
	assert.Equal(t, "dark", value)
}

func TestSetActiveLayer(t *testing.T) {
	ctx := context.Background()
	store, storage := newTestStore(t)

	store.SetActiveLayer(ctx, "satellite")
	assert.Equal(t, "satellite", store.View().ActiveLayer)

	value, err := storage.Get(ctx, storageKeyLayer)
	require.NoError(t, err)
	assert.Equal(t, "satellite", value)
}

func TestStoreRehydration(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "mapstate.json")
	storage := NewFileStorage(path)

	first := NewMapStore(storage, logger)
	marker := first.AddMarker(ctx, GeoPoint{Lat: 52.52, Lng: 13.405}, "Home", "pin", "")
	first.AddSearchToHistory(ctx, "berlin", GeoPoint{Lat: 52.52, Lng: 13.40})
	first.SetView(ctx, GeoPoint{Lat: 48.85, Lng: 2.35}, 11)
	first.ToggleTheme(ctx)
	first.SetActiveLayer(ctx, "topo")

	// A fresh store over the same file sees everything the first one wrote.
	second := NewMapStore(storage, logger)

	markers := second.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, marker.ID, markers[0].ID)
	assert.Equal(t, "Home", markers[0].Label)

	history := second.SearchHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "berlin", history[0].Query)

	view := second.View()
	assert.Equal(t, GeoPoint{Lat: 48.85, Lng: 2.35}, view.Center)
	assert.Equal(t, 11, view.Zoom)
	assert.Equal(t, "dark", view.Theme)
	assert.Equal(t, "topo", view.ActiveLayer)
}

func TestStoreRehydrationMalformedBlob(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage := NewFileStorage(filepath.Join(t.TempDir(), "mapstate.json"))

	// A corrupt main blob falls back to defaults without blocking the
	// independently stored keys from loading.
	require.NoError(t, storage.Set(ctx, storageKeyMapData, "{not json"))
	require.NoError(t, storage.Set(ctx, storageKeyTheme, "dark"))

	store := NewMapStore(storage, logger)

	assert.Empty(t, store.Markers())
	view := store.View()
	assert.Equal(t, GeoPoint{Lat: defaultCenterLat, Lng: defaultCenterLng}, view.Center)
	assert.Equal(t, defaultZoom, view.Zoom)
	assert.Equal(t, "dark", view.Theme)
	assert.Equal(t, defaultLayer, view.ActiveLayer)
}

func TestStoreRehydrationInvalidTheme(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage := NewFileStorage(filepath.Join(t.TempDir(), "mapstate.json"))

	require.NoError(t, storage.Set(ctx, storageKeyTheme, "neon"))

	store := NewMapStore(storage, logger)
	assert.Equal(t, defaultTheme, store.View().Theme)
}

func TestStorePersistenceFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	storage := &mockStorage{
		setFunc: func(ctx context.Context, key, value string) error {
			return fmt.Errorf("disk full")
		},
	}

	store := NewMapStore(storage, logger)

	// Mutations succeed in memory even when every write fails.
	marker := store.AddMarker(ctx, GeoPoint{Lat: 1, Lng: 1}, "", "", "")
	assert.NotEqual(t, uuid.Nil, marker.ID)
	assert.Equal(t, 1, store.MarkerCount())

	store.AddSearchToHistory(ctx, "berlin", GeoPoint{})
	assert.Len(t, store.SearchHistory(), 1)
}
