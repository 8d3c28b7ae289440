package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// This file contains the main HTTP handlers for the application. Each handler is
// responsible for validating the incoming request, calling the appropriate
// service or store method, and writing the final JSON response.
//
// The geodata handlers (search, reverse, route, weather) share a pattern:
// 1. They ensure the request method is correct.
// 2. They parse and validate the query parameters.
// 3. They call the cached-or-fetch helper for the service.
// 4. They map service errors to client-facing status codes.
// 5. They send the JSON response to the client.

// parseCoordParams extracts and validates a latitude/longitude pair from
// query parameters with the given names.
func parseCoordParams(r *http.Request, latKey, lngKey string) (GeoPoint, error) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get(latKey), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid %s: %w", latKey, err)
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get(lngKey), 64)
	if err != nil {
		return GeoPoint{}, fmt.Errorf("invalid %s: %w", lngKey, err)
	}
	point := GeoPoint{Lat: lat, Lng: lng}
	if !point.Valid() {
		return GeoPoint{}, fmt.Errorf("coordinates out of range: %f, %f", lat, lng)
	}
	return point, nil
}

// respondWithUpstreamError maps a failed upstream call to a client-facing
// status. Rate limiting passes through as 429 so the client can back off;
// everything else surfaces as 502 with the error's category as the message.
func (cfg *apiConfig) respondWithUpstreamError(w http.ResponseWriter, err error) {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.StatusCode == http.StatusTooManyRequests {
			cfg.respondWithError(w, http.StatusTooManyRequests, gwErr.Category, err)
			return
		}
		cfg.respondWithError(w, http.StatusBadGateway, gwErr.Category, err)
		return
	}
	cfg.respondWithError(w, http.StatusBadGateway, "request failed", err)
}

// @Summary      Search for a place
// @Description  Forward-geocodes a free-text query and returns the single best
// @Description  candidate. A successful search is committed to the search history.
// @Tags         geocoding
// @Produce      json
// @Param        q    query     string  true   "Free-text query (e.g., 'Berlin')"
// @Param        kind query     string  false  "Search kind: place, address or poi"
// @Success      200  {object}  SearchResult
// @Failure      400  {object}  ErrorResponse "Bad Request - Missing query"
// @Failure      404  {object}  ErrorResponse "Not Found - No results for the query"
// @Router       /api/search [get]
func (cfg *apiConfig) handlerSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		cfg.respondWithError(w, http.StatusBadRequest, "query parameter 'q' is required", nil)
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = KindPlace
	}
	cfg.logger.Debug("search request", "query", query, "kind", kind)

	result, err := cfg.getCachedOrFetchSearch(ctx, query, kind)
	if err != nil {
		if errors.Is(err, ErrNoResultsFound) {
			cfg.respondWithError(w, http.StatusNotFound, "no results found", err)
			return
		}
		cfg.respondWithUpstreamError(w, err)
		return
	}

	cfg.store.AddSearchToHistory(ctx, query, result.Point)

	cfg.respondWithJSON(w, http.StatusOK, result)
}

// @Summary      Reverse-geocode coordinates
// @Description  Resolves a coordinate pair to a structured address.
// @Tags         geocoding
// @Produce      json
// @Param        lat  query     number  true  "Latitude"
// @Param        lng  query     number  true  "Longitude"
// @Success      200  {object}  Address
// @Failure      400  {object}  ErrorResponse "Bad Request - Invalid coordinates"
// @Router       /api/reverse [get]
func (cfg *apiConfig) handlerReverse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	point, err := parseCoordParams(r, "lat", "lng")
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid coordinates", err)
		return
	}

	address, err := cfg.getCachedOrFetchReverse(ctx, point.Lat, point.Lng)
	if err != nil {
		if errors.Is(err, ErrNoResultsFound) {
			cfg.respondWithError(w, http.StatusNotFound, "no address at this location", err)
			return
		}
		cfg.respondWithUpstreamError(w, err)
		return
	}

	cfg.respondWithJSON(w, http.StatusOK, address)
}

// @Summary      Autocomplete suggestions
// @Description  Returns up to five suggestions for a partial query. Upstream
// @Description  failures yield an empty list, never an error.
// @Tags         geocoding
// @Produce      json
// @Param        q    query     string  true   "Partial query"
// @Param        kind query     string  false  "Search kind: place, address or poi"
// @Success      200  {array}   Suggestion
// @Router       /api/suggestions [get]
func (cfg *apiConfig) handlerSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		cfg.respondWithJSON(w, http.StatusOK, []Suggestion{})
		return
	}
	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = KindPlace
	}

	suggestions := cfg.geocoder.Suggestions(ctx, query, kind)
	cfg.respondWithJSON(w, http.StatusOK, suggestions)
}

// @Summary      Nearby points of interest
// @Description  Returns amenity, shop and tourism nodes around a coordinate.
// @Description  Upstream failures yield an empty list, never an error.
// @Tags         geocoding
// @Produce      json
// @Param        lat        query  number  true   "Latitude"
// @Param        lng        query  number  true   "Longitude"
// @Param        radius     query  integer false  "Search radius in meters"
// @Param        categories query  string  false  "Comma-separated category filter"
// @Success      200  {array}   POIElement
// @Failure      400  {object}  ErrorResponse "Bad Request - Invalid coordinates"
// @Router       /api/poi [get]
func (cfg *apiConfig) handlerPOI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	point, err := parseCoordParams(r, "lat", "lng")
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid coordinates", err)
		return
	}

	radius := 1000
	if radiusStr := r.URL.Query().Get("radius"); radiusStr != "" {
		if parsed, err := strconv.Atoi(radiusStr); err == nil && parsed > 0 {
			radius = parsed
		}
	}
	var categories []string
	if categoriesStr := r.URL.Query().Get("categories"); categoriesStr != "" {
		categories = strings.Split(categoriesStr, ",")
	}

	elements := cfg.geocoder.NearbyPOI(ctx, point.Lat, point.Lng, radius, categories)
	cfg.respondWithJSON(w, http.StatusOK, elements)
}

// routeResponse carries a calculated route plus the degradation flag so the
// client can tell live routes from estimated ones.
type routeResponse struct {
	Route    Route  `json:"route"`
	Degraded bool   `json:"degraded"`
	Cause    string `json:"cause,omitempty"`
}

// @Summary      Calculate a route
// @Description  Calculates a route between two coordinates. When the routing
// @Description  upstream is unavailable the response carries a straight-line
// @Description  estimate marked as degraded instead of an error.
// @Tags         routing
// @Produce      json
// @Param        start_lat query number true  "Start latitude"
// @Param        start_lng query number true  "Start longitude"
// @Param        end_lat   query number true  "End latitude"
// @Param        end_lng   query number true  "End longitude"
// @Param        profile   query string false "Routing profile (driving)"
// @Success      200  {object}  routeResponse
// @Failure      400  {object}  ErrorResponse "Bad Request - Invalid coordinates"
// @Router       /api/route [get]
func (cfg *apiConfig) handlerRoute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	start, err := parseCoordParams(r, "start_lat", "start_lng")
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid start coordinates", err)
		return
	}
	end, err := parseCoordParams(r, "end_lat", "end_lng")
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid end coordinates", err)
		return
	}
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = ProfileDriving
	}

	result := cfg.router.CalculateRoute(ctx, start, end, profile)
	response := routeResponse{
		Route:    result.Value,
		Degraded: result.Degraded,
	}
	if result.Cause != nil {
		response.Cause = result.Cause.Error()
	}
	cfg.respondWithJSON(w, http.StatusOK, response)
}

// matrixRequest is the POST body for the distance matrix endpoint.
type matrixRequest struct {
	Origins      []GeoPoint `json:"origins"`
	Destinations []GeoPoint `json:"destinations"`
	Profile      string     `json:"profile"`
}

// @Summary      Distance matrix
// @Description  Computes straight-line distances and duration estimates between
// @Description  every origin/destination pair.
// @Tags         routing
// @Accept       json
// @Produce      json
// @Param        request body matrixRequest true "Origins and destinations"
// @Success      200  {array}   []MatrixCell
// @Failure      400  {object}  ErrorResponse "Bad Request - Invalid body or coordinates"
// @Router       /api/matrix [post]
func (cfg *apiConfig) handlerDistanceMatrix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	var req matrixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Origins) == 0 || len(req.Destinations) == 0 {
		cfg.respondWithError(w, http.StatusBadRequest, "origins and destinations must be non-empty", nil)
		return
	}
	for _, p := range append(append([]GeoPoint{}, req.Origins...), req.Destinations...) {
		if !p.Valid() {
			cfg.respondWithError(w, http.StatusBadRequest, "coordinates out of range", nil)
			return
		}
	}
	if req.Profile == "" {
		req.Profile = ProfileDriving
	}

	matrix := cfg.router.DistanceMatrix(req.Origins, req.Destinations, req.Profile)
	cfg.respondWithJSON(w, http.StatusOK, matrix)
}

// weatherResponse mirrors routeResponse for the weather service.
type weatherResponse struct {
	Weather  WeatherSnapshot `json:"weather"`
	Degraded bool            `json:"degraded"`
	Cause    string          `json:"cause,omitempty"`
}

// @Summary      Weather at a coordinate
// @Description  Returns current conditions and a daily summary. When the
// @Description  weather upstream is unavailable the response carries mild
// @Description  placeholder conditions marked as degraded.
// @Tags         weather
// @Produce      json
// @Param        lat  query     number  true  "Latitude"
// @Param        lng  query     number  true  "Longitude"
// @Success      200  {object}  weatherResponse
// @Failure      400  {object}  ErrorResponse "Bad Request - Invalid coordinates"
// @Router       /api/weather [get]
func (cfg *apiConfig) handlerWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	point, err := parseCoordParams(r, "lat", "lng")
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid coordinates", err)
		return
	}

	result := cfg.getCachedOrFetchWeather(ctx, point.Lat, point.Lng)
	response := weatherResponse{
		Weather:  result.Value,
		Degraded: result.Degraded,
	}
	if result.Cause != nil {
		response.Cause = result.Cause.Error()
	}
	cfg.respondWithJSON(w, http.StatusOK, response)
}

// @Summary      Air quality at a coordinate
// @Description  Returns the nearest air quality measurement, or null when no
// @Description  station reports nearby or the upstream is unavailable.
// @Tags         weather
// @Produce      json
// @Param        lat  query     number  true  "Latitude"
// @Param        lng  query     number  true  "Longitude"
// @Success      200  {object}  AirQualityRecord
// @Failure      400  {object}  ErrorResponse "Bad Request - Invalid coordinates"
// @Router       /api/airquality [get]
func (cfg *apiConfig) handlerAirQuality(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	point, err := parseCoordParams(r, "lat", "lng")
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid coordinates", err)
		return
	}

	record := cfg.weather.GetAirQuality(ctx, point.Lat, point.Lng)
	cfg.respondWithJSON(w, http.StatusOK, record)
}

// createMarkerRequest is the POST body for marker creation.
type createMarkerRequest struct {
	Position GeoPoint `json:"position"`
	Label    string   `json:"label"`
	Icon     string   `json:"icon"`
	Note     string   `json:"note"`
}

// handlerMarkers serves the marker collection: GET lists all markers,
// POST creates one.
func (cfg *apiConfig) handlerMarkers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		cfg.respondWithJSON(w, http.StatusOK, cfg.store.Markers())
	case http.MethodPost:
		var req createMarkerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			cfg.respondWithError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		if !req.Position.Valid() {
			cfg.respondWithError(w, http.StatusBadRequest, "coordinates out of range", nil)
			return
		}
		marker := cfg.store.AddMarker(ctx, req.Position, req.Label, req.Icon, req.Note)
		cfg.respondWithJSON(w, http.StatusCreated, marker)
	default:
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	}
}

// handlerMarkerByID serves a single marker: PATCH applies a partial update,
// DELETE removes it. Deleting an unknown marker succeeds silently.
func (cfg *apiConfig) handlerMarkerByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid marker id", err)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var update MarkerUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			cfg.respondWithError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		if update.Position != nil && !update.Position.Valid() {
			cfg.respondWithError(w, http.StatusBadRequest, "coordinates out of range", nil)
			return
		}
		marker, found := cfg.store.UpdateMarker(ctx, id, update)
		if !found {
			cfg.respondWithError(w, http.StatusNotFound, "marker not found", nil)
			return
		}
		cfg.respondWithJSON(w, http.StatusOK, marker)
	case http.MethodDelete:
		cfg.store.RemoveMarker(ctx, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	}
}

// historyEntryRequest is the POST body for committing a search manually.
type historyEntryRequest struct {
	Query string   `json:"query"`
	Point GeoPoint `json:"point"`
}

// handlerHistory serves the search history: GET lists it most-recent-first,
// POST commits an entry, DELETE clears it.
func (cfg *apiConfig) handlerHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		cfg.respondWithJSON(w, http.StatusOK, cfg.store.SearchHistory())
	case http.MethodPost:
		var req historyEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			cfg.respondWithError(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			cfg.respondWithError(w, http.StatusBadRequest, "query must not be empty", nil)
			return
		}
		cfg.store.AddSearchToHistory(ctx, req.Query, req.Point)
		cfg.respondWithJSON(w, http.StatusCreated, cfg.store.SearchHistory())
	case http.MethodDelete:
		cfg.store.ClearSearchHistory(ctx)
		w.WriteHeader(http.StatusNoContent)
	default:
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	}
}

// stateResponse is the full session state: viewport, presentation, markers
// and history in one payload for client rehydration.
type stateResponse struct {
	View          MapViewState         `json:"view"`
	Markers       []Marker             `json:"markers"`
	SearchHistory []SearchHistoryEntry `json:"searchHistory"`
	TotalDistance float64              `json:"totalDistanceMeters"`
}

// handlerState returns the full session state in one round trip.
func (cfg *apiConfig) handlerState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	cfg.respondWithJSON(w, http.StatusOK, stateResponse{
		View:          cfg.store.View(),
		Markers:       cfg.store.Markers(),
		SearchHistory: cfg.store.SearchHistory(),
		TotalDistance: cfg.store.TotalDistance(),
	})
}

// setViewRequest is the PUT body for viewport updates.
type setViewRequest struct {
	Center GeoPoint `json:"center"`
	Zoom   int      `json:"zoom"`
}

// handlerSetView updates the persisted viewport center and zoom.
func (cfg *apiConfig) handlerSetView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPut {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	var req setViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if !req.Center.Valid() {
		cfg.respondWithError(w, http.StatusBadRequest, "coordinates out of range", nil)
		return
	}
	if req.Zoom < 1 || req.Zoom > 20 {
		cfg.respondWithError(w, http.StatusBadRequest, "zoom must be between 1 and 20", nil)
		return
	}

	cfg.store.SetView(ctx, req.Center, req.Zoom)
	cfg.respondWithJSON(w, http.StatusOK, cfg.store.View())
}

// handlerToggleTheme flips between light and dark mode.
func (cfg *apiConfig) handlerToggleTheme(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	theme := cfg.store.ToggleTheme(ctx)
	cfg.respondWithJSON(w, http.StatusOK, map[string]string{"theme": theme})
}

// setLayerRequest is the PUT body for base layer selection.
type setLayerRequest struct {
	Layer string `json:"layer"`
}

// handlerSetLayer switches the active base tile layer.
func (cfg *apiConfig) handlerSetLayer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPut {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}

	var req setLayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cfg.respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Layer == "" {
		cfg.respondWithError(w, http.StatusBadRequest, "layer must not be empty", nil)
		return
	}

	cfg.store.SetActiveLayer(ctx, req.Layer)
	cfg.respondWithJSON(w, http.StatusOK, map[string]string{"activeLayer": req.Layer})
}

// handlerRunRefreshJobs is a development-only endpoint that manually
// triggers a weather refresh cycle for recent searches.

// @Summary      Manually trigger refresh jobs (development only)
// @Description  Manually triggers a weather cache refresh for the most recent
// @Description  searches. This endpoint is intended for development and testing
// @Description  purposes only. It should not be enabled in production environments.
// @Tags         development
// @Produce      json
// @Success      202  {object}  map[string]string "Confirmation of triggering. Example:`{\"status\": \"refresh jobs triggered\"}`"
// @Router       /dev/runrefreshjobs [post]
func (s *Scheduler) handlerRunRefreshJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	s.cfg.logger.Info("manual refresh run triggered")

	s.ticker.Reset(s.cfg.refreshInterval)

	go func() {
		s.cfg.logger.Info("starting manual refresh jobs")
		s.refreshJobs()
		s.cfg.logger.Info("manual refresh run finished")
	}()

	s.cfg.respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "refresh jobs triggered"})
}

// handlerReset is a development-only endpoint that wipes markers, shapes,
// search history and the response cache. Viewport, theme and layer survive.

// @Summary      Reset map data and cache (development only)
// @Description  Wipes markers, drawn shapes, search history and the response
// @Description  cache. This endpoint is intended for development and testing
// @Description  purposes only. It should not be enabled in production environments.
// @Tags         development
// @Produce      json
// @Success      200  {object}  map[string]string "Confirmation of reset. Example: `{\"status\":\"map data and cache reset\"}`"
// @Failure      500  {object}  ErrorResponse "Internal Server Error - Failed to flush cache"
// @Router       /dev/reset [post]
func (cfg *apiConfig) handlerReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		cfg.respondWithError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
		return
	}
	cfg.logger.Debug("map data reset request received")

	ctx := r.Context()

	cfg.store.ClearAllData(ctx)

	if err := cfg.cache.Flush(ctx); err != nil {
		cfg.respondWithError(w, http.StatusInternalServerError, "Failed to flush cache", err)
		return
	}

	cfg.respondWithJSON(w, http.StatusOK, map[string]string{"status": "map data and cache reset"})
}
