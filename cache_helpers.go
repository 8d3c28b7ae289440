package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// This file contains the caching wrappers around the upstream services.
// The generic cachedOrFetch helper checks the response cache first and
// falls through to the live fetch on a miss, re-priming the cache on
// success. Degraded results are never cached: a placeholder stored under a
// real cache key would outlive the outage that produced it.

// Cache TTL constants. Geocoding answers change rarely; weather goes stale
// within the scheduler's refresh window.
const (
	geocodeCacheTTL = 24 * time.Hour
	weatherCacheTTL = 10 * time.Minute
)

// cachedOrFetch returns the cached value under key, or calls fetch and
// caches the result. Cache errors are logged and treated as misses;
// the caller never fails because the cache is unhealthy.
func cachedOrFetch[T any](
	cfg *apiConfig,
	ctx context.Context,
	key string,
	ttl time.Duration,
	fetch func() (T, error),
) (T, error) {
	var zero T

	cached, err := cfg.cache.Get(ctx, key)
	if err == nil {
		var value T
		if jsonErr := json.Unmarshal([]byte(cached), &value); jsonErr == nil {
			cfg.logger.Debug("cache hit", "key", key)
			return value, nil
		}
		cfg.logger.Warn("invalid cache entry, refetching", "key", key)
	} else if err != ErrCacheMiss {
		cfg.logger.Warn("error reading from cache", "key", key, "error", err)
	}

	value, err := fetch()
	if err != nil {
		return zero, err
	}

	if cacheErr := cfg.cache.Set(ctx, key, value, ttl); cacheErr != nil {
		cfg.logger.Warn("error writing to cache", "key", key, "error", cacheErr)
	} else {
		cfg.logger.Debug("cached fresh value", "key", key)
	}
	return value, nil
}

// getCachedOrFetchSearch wraps the primary forward geocode. The cache key
// uses the normalized query so accented and differently cased spellings of
// the same place share an entry.
func (cfg *apiConfig) getCachedOrFetchSearch(ctx context.Context, query, kind string) (SearchResult, error) {
	normalized, err := normalizeQuery(query)
	if err != nil {
		// A query the normalizer rejects is still a valid search.
		normalized = query
	}
	key := fmt.Sprintf("geocode:search:%s:%s", kind, normalized)
	return cachedOrFetch(cfg, ctx, key, geocodeCacheTTL, func() (SearchResult, error) {
		return cfg.geocoder.Search(ctx, query, kind)
	})
}

// getCachedOrFetchReverse wraps reverse geocoding, keyed by coordinates
// rounded to four decimals (~11 m), enough to collapse jittery map taps.
func (cfg *apiConfig) getCachedOrFetchReverse(ctx context.Context, lat, lng float64) (Address, error) {
	key := fmt.Sprintf("geocode:reverse:%.4f:%.4f", lat, lng)
	return cachedOrFetch(cfg, ctx, key, geocodeCacheTTL, func() (Address, error) {
		return cfg.geocoder.Reverse(ctx, lat, lng)
	})
}

// getCachedOrFetchWeather wraps the forecast lookup, keyed by coordinates
// rounded to two decimals (~1.1 km, the resolution of the forecast grid).
// Only live snapshots are cached; a degraded result passes through
// uncached so the next request retries the backend.
func (cfg *apiConfig) getCachedOrFetchWeather(ctx context.Context, lat, lng float64) Result[WeatherSnapshot] {
	key := fmt.Sprintf("weather:%.2f:%.2f", lat, lng)

	cached, err := cfg.cache.Get(ctx, key)
	if err == nil {
		var snapshot WeatherSnapshot
		if jsonErr := json.Unmarshal([]byte(cached), &snapshot); jsonErr == nil {
			cfg.logger.Debug("cache hit", "key", key)
			return ok(snapshot)
		}
		cfg.logger.Warn("invalid cache entry, refetching", "key", key)
	} else if err != ErrCacheMiss {
		cfg.logger.Warn("error reading from cache", "key", key, "error", err)
	}

	result := cfg.weather.GetWeather(ctx, lat, lng)
	if !result.Degraded {
		if cacheErr := cfg.cache.Set(ctx, key, result.Value, weatherCacheTTL); cacheErr != nil {
			cfg.logger.Warn("error writing to cache", "key", key, "error", cacheErr)
		}
	}
	return result
}

// refreshWeather fetches a fresh forecast bypassing the cache and re-primes
// it on success. Used by the scheduler to keep recent locations warm.
func (cfg *apiConfig) refreshWeather(ctx context.Context, point GeoPoint) {
	result := cfg.weather.GetWeather(ctx, point.Lat, point.Lng)
	if result.Degraded {
		cfg.logger.Warn("weather refresh skipped, backend degraded", "lat", point.Lat, "lng", point.Lng, "error", result.Cause)
		return
	}
	key := fmt.Sprintf("weather:%.2f:%.2f", point.Lat, point.Lng)
	if err := cfg.cache.Set(ctx, key, result.Value, weatherCacheTTL); err != nil {
		cfg.logger.Warn("error writing refreshed weather to cache", "key", key, "error", err)
	}
}
