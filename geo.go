package main

import "math"

// This file contains the geodetic math used throughout the application:
// great-circle distances for the locally computed distance matrix, midpoints
// for synthesized fallback routes, and the bounding box used by POI queries.

// earthRadiusM is the mean Earth radius in meters. No ellipsoidal correction
// is applied; the haversine result is exact to the precision of the formula.
const earthRadiusM = 6371000.0

// GeoPoint is an immutable latitude/longitude pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the WGS84 coordinate ranges.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b GeoPoint) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return earthRadiusM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Midpoint returns the arithmetic midpoint between two points. This is not a
// geodesic midpoint; it is only used to synthesize a placeholder route
// geometry, where a straight interpolation is exactly what the UI expects.
func Midpoint(a, b GeoPoint) GeoPoint {
	return GeoPoint{
		Lat: (a.Lat + b.Lat) / 2,
		Lng: (a.Lng + b.Lng) / 2,
	}
}

// boundingBox returns the south/west/north/east corners of a square box
// delta degrees around the point.
func boundingBox(p GeoPoint, delta float64) (south, west, north, east float64) {
	return p.Lat - delta, p.Lng - delta, p.Lat + delta, p.Lng + delta
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
