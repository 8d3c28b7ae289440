package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// This file implements the MapStore: the in-memory session state for
// markers, drawn shapes, search history, viewport, theme and active layer,
// persisted through the Storage interface.
//
// The persistence contract: every mutator updates memory first and then
// calls the single persistence coordinator, which serializes the full
// relevant state synchronously. The persisted blob is always a complete,
// self-consistent snapshot; a failed write is logged and swallowed because
// in-memory state stays authoritative for the session. Theme and layer
// live under their own keys, outside the main blob, so they survive even
// if the blob write fails.

// Storage keys.
const (
	storageKeyMapData = "mapData"
	storageKeyTheme   = "theme"
	storageKeyLayer   = "activeLayer"
)

// Defaults used when storage is empty or a field is malformed.
const (
	defaultCenterLat = 39.9042
	defaultCenterLng = 116.4074
	defaultZoom      = 13
	defaultTheme     = "light"
	defaultLayer     = "osm"
)

// searchHistoryLimit bounds the history list; the oldest entry is evicted
// on overflow.
const searchHistoryLimit = 10

// mapDataBlob is the serialized form of the main state snapshot.
type mapDataBlob struct {
	Markers         []Marker             `json:"markers"`
	SearchHistory   []SearchHistoryEntry `json:"searchHistory"`
	CurrentLocation GeoPoint             `json:"currentLocation"`
	ZoomLevel       int                  `json:"zoomLevel"`
}

// MapStore holds the map session state. All access is serialized by a
// mutex: the original client ran on a single UI thread, but this service
// sees concurrent handlers.
type MapStore struct {
	mu      sync.Mutex
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
	newID   func() uuid.UUID

	markers         []Marker
	polylines       []Polyline
	polygons        []Polygon
	searchHistory   []SearchHistoryEntry
	currentLocation GeoPoint
	zoomLevel       int
	theme           string
	activeLayer     string
}

// NewMapStore constructs the store and rehydrates it from storage.
// Missing or malformed data for any field falls back to that field's
// default without blocking the other fields from loading.
func NewMapStore(storage Storage, logger *slog.Logger) *MapStore {
	s := &MapStore{
		storage: storage,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.New,

		currentLocation: GeoPoint{Lat: defaultCenterLat, Lng: defaultCenterLng},
		zoomLevel:       defaultZoom,
		theme:           defaultTheme,
		activeLayer:     defaultLayer,
	}
	s.loadFromStorage(context.Background())
	return s
}

// loadFromStorage reads the main blob plus the two independent keys.
func (s *MapStore) loadFromStorage(ctx context.Context) {
	blobJSON, err := s.storage.Get(ctx, storageKeyMapData)
	if err == nil {
		var blob mapDataBlob
		if jsonErr := json.Unmarshal([]byte(blobJSON), &blob); jsonErr == nil {
			s.markers = blob.Markers
			s.searchHistory = blob.SearchHistory
			if blob.CurrentLocation.Valid() && blob.CurrentLocation != (GeoPoint{}) {
				s.currentLocation = blob.CurrentLocation
			}
			if blob.ZoomLevel > 0 {
				s.zoomLevel = blob.ZoomLevel
			}
		} else {
			s.logger.Warn("malformed map state blob, using defaults", "error", jsonErr)
		}
	} else if err != ErrKeyNotFound {
		s.logger.Warn("could not load map state", "error", err)
	}

	if theme, err := s.storage.Get(ctx, storageKeyTheme); err == nil {
		if theme == "light" || theme == "dark" {
			s.theme = theme
		}
	} else if err != ErrKeyNotFound {
		s.logger.Warn("could not load theme", "error", err)
	}

	if layer, err := s.storage.Get(ctx, storageKeyLayer); err == nil && layer != "" {
		s.activeLayer = layer
	} else if err != nil && err != ErrKeyNotFound {
		s.logger.Warn("could not load active layer", "error", err)
	}
}

// persistLocked is the single persistence coordinator. It serializes the
// full snapshot and writes it under the main key. Failures are logged,
// never propagated. Callers must hold the mutex.
func (s *MapStore) persistLocked(ctx context.Context) {
	blob := mapDataBlob{
		Markers:         s.markers,
		SearchHistory:   s.searchHistory,
		CurrentLocation: s.currentLocation,
		ZoomLevel:       s.zoomLevel,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		s.logger.Error("could not serialize map state", "error", err)
		return
	}
	if err := s.storage.Set(ctx, storageKeyMapData, string(data)); err != nil {
		s.logger.Error("could not persist map state", "error", err)
	}
}

// AddMarker assigns a unique id and creation timestamp, stores the marker
// and persists the snapshot. The returned marker carries the assigned id.
func (s *MapStore) AddMarker(ctx context.Context, position GeoPoint, label, icon, note string) Marker {
	s.mu.Lock()
	defer s.mu.Unlock()

	marker := Marker{
		ID:        s.newID(),
		Position:  position,
		CreatedAt: s.now().UTC(),
		Label:     label,
		Icon:      icon,
		Note:      note,
	}
	s.markers = append(s.markers, marker)
	s.persistLocked(ctx)
	return marker
}

// RemoveMarker deletes the marker with the given id. Removing an absent id
// is a no-op, not an error.
func (s *MapStore) RemoveMarker(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, marker := range s.markers {
		if marker.ID == id {
			s.markers = append(s.markers[:i], s.markers[i+1:]...)
			s.persistLocked(ctx)
			return
		}
	}
}

// UpdateMarker applies a typed partial update to the marker with the given
// id, field by field: nil fields keep their current value. It reports
// whether the marker was found.
func (s *MapStore) UpdateMarker(ctx context.Context, id uuid.UUID, update MarkerUpdate) (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.markers {
		if s.markers[i].ID != id {
			continue
		}
		if update.Position != nil {
			s.markers[i].Position = *update.Position
		}
		if update.Label != nil {
			s.markers[i].Label = *update.Label
		}
		if update.Icon != nil {
			s.markers[i].Icon = *update.Icon
		}
		if update.Note != nil {
			s.markers[i].Note = *update.Note
		}
		s.persistLocked(ctx)
		return s.markers[i], true
	}
	return Marker{}, false
}

// AddSearchToHistory commits a search. An existing entry with the exact
// same query (case-sensitive) moves to the front with the new coordinates
// instead of duplicating; the list is capped at searchHistoryLimit with
// the oldest entry evicted.
func (s *MapStore) AddSearchToHistory(ctx context.Context, query string, point GeoPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.searchHistory {
		if entry.Query == query {
			s.searchHistory = append(s.searchHistory[:i], s.searchHistory[i+1:]...)
			break
		}
	}

	entry := SearchHistoryEntry{
		Query:     query,
		Point:     point,
		Timestamp: s.now().UTC(),
	}
	s.searchHistory = append([]SearchHistoryEntry{entry}, s.searchHistory...)
	if len(s.searchHistory) > searchHistoryLimit {
		s.searchHistory = s.searchHistory[:searchHistoryLimit]
	}
	s.persistLocked(ctx)
}

// ClearSearchHistory empties the history list.
func (s *MapStore) ClearSearchHistory(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searchHistory = nil
	s.persistLocked(ctx)
}

// AddPolyline stores a drawn, measured line. Session-only; included in the
// total-distance getter but never persisted.
func (s *MapStore) AddPolyline(line Polyline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polylines = append(s.polylines, line)
}

// AddPolygon stores a drawn area. Session-only.
func (s *MapStore) AddPolygon(polygon Polygon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polygons = append(s.polygons, polygon)
}

// ClearAllData wipes markers, shapes and history, keeping viewport, theme
// and layer.
func (s *MapStore) ClearAllData(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markers = nil
	s.polylines = nil
	s.polygons = nil
	s.searchHistory = nil
	s.persistLocked(ctx)
}

// SetView updates the viewport center and zoom and persists the snapshot.
func (s *MapStore) SetView(ctx context.Context, center GeoPoint, zoom int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentLocation = center
	s.zoomLevel = zoom
	s.persistLocked(ctx)
}

// ToggleTheme flips between light and dark and persists the theme under
// its own key, independent of the main blob.
func (s *MapStore) ToggleTheme(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.theme == "light" {
		s.theme = "dark"
	} else {
		s.theme = "light"
	}
	if err := s.storage.Set(ctx, storageKeyTheme, s.theme); err != nil {
		s.logger.Error("could not persist theme", "error", err)
	}
	return s.theme
}

// SetActiveLayer switches the base layer and persists it under its own key.
func (s *MapStore) SetActiveLayer(ctx context.Context, layerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeLayer = layerID
	if err := s.storage.Set(ctx, storageKeyLayer, layerID); err != nil {
		s.logger.Error("could not persist active layer", "error", err)
	}
}

// Markers returns a copy of the marker list.
func (s *MapStore) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()

	markers := make([]Marker, len(s.markers))
	copy(markers, s.markers)
	return markers
}

// MarkerCount returns the number of markers.
func (s *MapStore) MarkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}

// SearchHistory returns a copy of the full history, most recent first.
func (s *MapStore) SearchHistory() []SearchHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]SearchHistoryEntry, len(s.searchHistory))
	copy(history, s.searchHistory)
	return history
}

// RecentSearches returns up to limit of the most recent history entries.
func (s *MapStore) RecentSearches(limit int) []SearchHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > len(s.searchHistory) {
		limit = len(s.searchHistory)
	}
	recent := make([]SearchHistoryEntry, limit)
	copy(recent, s.searchHistory[:limit])
	return recent
}

// TotalDistance sums the distances of all drawn polylines, in meters.
func (s *MapStore) TotalDistance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for _, line := range s.polylines {
		total += line.DistanceMeters
	}
	return total
}

// View returns the current viewport and presentation settings.
func (s *MapStore) View() MapViewState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return MapViewState{
		Center:      s.currentLocation,
		Zoom:        s.zoomLevel,
		Theme:       s.theme,
		ActiveLayer: s.activeLayer,
	}
}
